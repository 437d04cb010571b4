package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("expected gateway host 127.0.0.1, got %s", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 8790 {
		t.Errorf("expected gateway port 8790, got %d", cfg.Gateway.Port)
	}
	if cfg.Redis.Addr != "127.0.0.1:6379" {
		t.Errorf("expected redis addr 127.0.0.1:6379, got %s", cfg.Redis.Addr)
	}
	if cfg.SQLite.Path == "" {
		t.Error("expected a non-empty default sqlite path")
	}
	if cfg.Scheduler.RetryTick != 5*time.Second {
		t.Errorf("expected retry tick 5s, got %v", cfg.Scheduler.RetryTick)
	}
	if cfg.Scheduler.SweepTick != 30*time.Second {
		t.Errorf("expected sweep tick 30s, got %v", cfg.Scheduler.SweepTick)
	}
	if cfg.Webhook.MaxRetries != 3 {
		t.Errorf("expected default webhook max retries 3, got %d", cfg.Webhook.MaxRetries)
	}
	if cfg.Webhook.Multiplier != 2.0 {
		t.Errorf("expected default webhook multiplier 2.0, got %v", cfg.Webhook.Multiplier)
	}
}

func TestLoadDefaults(t *testing.T) {
	origHome := os.Getenv("HOME")
	os.Setenv("HOME", "/tmp/nonexistent-flowbroker-test")
	defer os.Setenv("HOME", origHome)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Gateway.Port != 8790 {
		t.Errorf("expected default gateway port 8790, got %d", cfg.Gateway.Port)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, ".flowbroker")
	os.MkdirAll(configDir, 0755)
	configFile := filepath.Join(configDir, "config.json")

	configJSON := `{
		"redis": {
			"addr": "redis.internal:6380"
		},
		"gateway": {
			"port": 9999
		}
	}`
	os.WriteFile(configFile, []byte(configJSON), 0600)

	origHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("expected redis addr redis.internal:6380, got %s", cfg.Redis.Addr)
	}
	if cfg.Gateway.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Gateway.Port)
	}
}

func TestEnvOverride(t *testing.T) {
	os.Setenv("FLOWBROKER_GATEWAY_HOST", "0.0.0.0")
	os.Setenv("FLOWBROKER_GATEWAY_PORT", "8080")
	defer func() {
		os.Unsetenv("FLOWBROKER_GATEWAY_HOST")
		os.Unsetenv("FLOWBROKER_GATEWAY_PORT")
	}()

	tmpDir := t.TempDir()
	origHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", origHome)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Gateway.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0 from env, got %s", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 8080 {
		t.Errorf("expected port 8080 from env, got %d", cfg.Gateway.Port)
	}
}

func TestWebhookConfigRetryPolicyConversion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Webhook.MaxRetries = 5
	cfg.Webhook.Initial = 2 * time.Second
	cfg.Webhook.Multiplier = 3.0
	cfg.Webhook.Cap = time.Minute
	cfg.Webhook.Jitter = true

	policy := cfg.Webhook.RetryPolicy()
	if policy.MaxRetries != 5 || policy.Initial != 2*time.Second || policy.Multiplier != 3.0 ||
		policy.Cap != time.Minute || !policy.Jitter {
		t.Fatalf("unexpected retry policy conversion: %+v", policy)
	}
}
