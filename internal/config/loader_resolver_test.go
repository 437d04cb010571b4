package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWithIncludeAndEnvSubstitution(t *testing.T) {
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, ".flowbroker")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}

	basePath := filepath.Join(configDir, "base.json")
	mainPath := filepath.Join(configDir, "config.json")
	baseCfg := `{
		"redis": { "addr": "base-redis:6379", "db": 2 },
		"gateway": { "host": "127.0.0.1", "port": 9000 }
	}`
	mainCfg := `{
		"$include": "base.json",
		"redis": { "addr": "${TEST_REDIS_ADDR}" },
		"gateway": { "port": 7777 }
	}`
	if err := os.WriteFile(basePath, []byte(baseCfg), 0o600); err != nil {
		t.Fatalf("write base config: %v", err)
	}
	if err := os.WriteFile(mainPath, []byte(mainCfg), 0o600); err != nil {
		t.Fatalf("write main config: %v", err)
	}

	origHome := os.Getenv("HOME")
	origAddr := os.Getenv("TEST_REDIS_ADDR")
	defer os.Setenv("HOME", origHome)
	defer os.Setenv("TEST_REDIS_ADDR", origAddr)
	_ = os.Setenv("HOME", tmpDir)
	_ = os.Setenv("TEST_REDIS_ADDR", "env-redis:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Redis.Addr != "env-redis:6379" {
		t.Fatalf("expected env-substituted redis addr, got %q", cfg.Redis.Addr)
	}
	if cfg.Redis.DB != 2 {
		t.Fatalf("expected db from include file, got %d", cfg.Redis.DB)
	}
	if cfg.Gateway.Port != 7777 {
		t.Fatalf("expected main config override for gateway.port, got %d", cfg.Gateway.Port)
	}
}

func TestLoadWithIncludeArrayMergeOrder(t *testing.T) {
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, ".flowbroker")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}

	first := `{"redis": {"addr": "first", "db": 1}}`
	second := `{"redis": {"addr": "second"}}`
	main := `{"$include": ["first.json", "second.json"], "gateway": {"port": 1234}}`

	_ = os.WriteFile(filepath.Join(configDir, "first.json"), []byte(first), 0o600)
	_ = os.WriteFile(filepath.Join(configDir, "second.json"), []byte(second), 0o600)
	_ = os.WriteFile(filepath.Join(configDir, "config.json"), []byte(main), 0o600)

	origHome := os.Getenv("HOME")
	defer os.Setenv("HOME", origHome)
	_ = os.Setenv("HOME", tmpDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Redis.Addr != "second" {
		t.Fatalf("expected second include to override first, got %q", cfg.Redis.Addr)
	}
	if cfg.Redis.DB != 1 {
		t.Fatalf("expected db preserved from first include, got %d", cfg.Redis.DB)
	}
	if cfg.Gateway.Port != 1234 {
		t.Fatalf("expected gateway port from main config, got %d", cfg.Gateway.Port)
	}
}

func TestLoadWithInvalidIncludeTypeReturnsError(t *testing.T) {
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, ".flowbroker")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	main := `{"$include": 123}`
	if err := os.WriteFile(filepath.Join(configDir, "config.json"), []byte(main), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	origHome := os.Getenv("HOME")
	defer os.Setenv("HOME", origHome)
	_ = os.Setenv("HOME", tmpDir)

	if _, err := Load(); err == nil {
		t.Fatal("expected invalid $include error, got nil")
	}
}

func TestLoadWithIncludeCycleReturnsError(t *testing.T) {
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, ".flowbroker")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	main := `{"$include": "a.json"}`
	a := `{"$include": "b.json"}`
	b := `{"$include": "a.json"}`
	_ = os.WriteFile(filepath.Join(configDir, "config.json"), []byte(main), 0o600)
	_ = os.WriteFile(filepath.Join(configDir, "a.json"), []byte(a), 0o600)
	_ = os.WriteFile(filepath.Join(configDir, "b.json"), []byte(b), 0o600)

	origHome := os.Getenv("HOME")
	defer os.Setenv("HOME", origHome)
	_ = os.Setenv("HOME", tmpDir)

	if _, err := Load(); err == nil {
		t.Fatal("expected include cycle error, got nil")
	}
}

func TestParseIncludes(t *testing.T) {
	got, err := parseIncludes("one.json")
	if err != nil || len(got) != 1 || got[0] != "one.json" {
		t.Fatalf("unexpected parse result: got=%v err=%v", got, err)
	}
	got, err = parseIncludes([]any{"one.json", "two.json"})
	if err != nil || len(got) != 2 {
		t.Fatalf("unexpected array parse: got=%v err=%v", got, err)
	}
	if _, err := parseIncludes([]any{"ok.json", 42}); err == nil {
		t.Fatal("expected parse error for non-string include item")
	}
}
