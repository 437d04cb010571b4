package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigPathRespectsFlowbrokerConfigAndHome(t *testing.T) {
	origCfg := os.Getenv("FLOWBROKER_CONFIG")
	origHome := os.Getenv("FLOWBROKER_HOME")
	defer os.Setenv("FLOWBROKER_CONFIG", origCfg)
	defer os.Setenv("FLOWBROKER_HOME", origHome)

	_ = os.Setenv("FLOWBROKER_HOME", "/srv/flowhome")
	_ = os.Setenv("FLOWBROKER_CONFIG", "~/.flowbroker/custom.json")

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if path != filepath.Join("/srv/flowhome", ".flowbroker", "custom.json") {
		t.Fatalf("unexpected config path: %q", path)
	}
}

func TestConfigPathDefaultsUnderHome(t *testing.T) {
	origCfg := os.Getenv("FLOWBROKER_CONFIG")
	origHome := os.Getenv("FLOWBROKER_HOME")
	defer os.Setenv("FLOWBROKER_CONFIG", origCfg)
	defer os.Setenv("FLOWBROKER_HOME", origHome)
	_ = os.Unsetenv("FLOWBROKER_CONFIG")
	_ = os.Unsetenv("FLOWBROKER_HOME")

	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir available: %v", err)
	}
	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if path != filepath.Join(home, ConfigDir, ConfigFile) {
		t.Fatalf("unexpected default config path: %q", path)
	}
}
