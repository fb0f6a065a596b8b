package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Listen != "/ip4/0.0.0.0/tcp/0" {
		t.Errorf("unexpected default listen: %q", config.Listen)
	}
	if len(config.BootstrapPeers) != 0 {
		t.Errorf("expected no default bootstrap peers, got %v", config.BootstrapPeers)
	}
	if config.AdminAddr != "127.0.0.1:9090" {
		t.Errorf("unexpected default admin addr: %q", config.AdminAddr)
	}
	if config.GossipIntervalSeconds != 10 {
		t.Errorf("expected default gossip interval 10, got %d", config.GossipIntervalSeconds)
	}
	if config.Logging.Level != "info" {
		t.Errorf("unexpected default logging level: %q", config.Logging.Level)
	}
	if config.SentryDSN != "" {
		t.Errorf("expected empty default sentry dsn, got %q", config.SentryDSN)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("load existing config", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.yaml")

		expected := &Config{
			Listen:                "/ip4/127.0.0.1/tcp/4001",
			BootstrapPeers:        []string{"/ip4/10.0.0.1/tcp/4001/p2p/QmABC"},
			AdminAddr:             "0.0.0.0:9191",
			GossipIntervalSeconds: 30,
			Logging:               Logging{Level: "debug"},
			SentryDSN:             "https://example.invalid/1",
		}

		if err := SaveConfig(expected, configPath); err != nil {
			t.Fatalf("saving config: %v", err)
		}

		loaded, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("loading config: %v", err)
		}

		if loaded.Listen != expected.Listen || loaded.AdminAddr != expected.AdminAddr ||
			loaded.GossipIntervalSeconds != expected.GossipIntervalSeconds ||
			loaded.Logging != expected.Logging || loaded.SentryDSN != expected.SentryDSN ||
			len(loaded.BootstrapPeers) != len(expected.BootstrapPeers) {
			t.Fatalf("loaded config %+v does not match expected %+v", loaded, expected)
		}
	})

	t.Run("load non-existent config", func(t *testing.T) {
		if _, err := LoadConfig("/non/existent/config.yaml"); err == nil {
			t.Fatal("expected an error loading a missing config file")
		}
	})

	t.Run("load invalid yaml", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "invalid.yaml")
		if err := os.WriteFile(configPath, []byte("invalid: yaml: content: ["), 0644); err != nil {
			t.Fatalf("writing invalid yaml: %v", err)
		}

		if _, err := LoadConfig(configPath); err == nil {
			t.Fatal("expected an error parsing invalid yaml")
		}
	})

	t.Run("missing fields fall back to defaults", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "partial.yaml")
		if err := os.WriteFile(configPath, []byte("admin_addr: 0.0.0.0:9999\n"), 0644); err != nil {
			t.Fatalf("writing partial config: %v", err)
		}

		loaded, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("loading config: %v", err)
		}
		if loaded.AdminAddr != "0.0.0.0:9999" {
			t.Errorf("expected overridden admin addr, got %q", loaded.AdminAddr)
		}
		if loaded.Listen != "/ip4/0.0.0.0/tcp/0" {
			t.Errorf("expected default listen to survive a partial file, got %q", loaded.Listen)
		}
	})
}

func TestSaveConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	config := DefaultConfig()

	if err := SaveConfig(config, configPath); err != nil {
		t.Fatalf("saving config: %v", err)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("stat-ing saved config: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
	}

	loaded, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if loaded.AdminAddr != config.AdminAddr || loaded.Listen != config.Listen {
		t.Fatalf("loaded config %+v does not match saved %+v", loaded, config)
	}
}

func TestSaveConfigErrorHandling(t *testing.T) {
	config := DefaultConfig()
	invalidPath := "/invalid/path/that/cannot/be/created/config.yaml"

	if err := SaveConfig(config, invalidPath); err == nil {
		t.Fatal("expected an error saving to an uncreatable directory")
	}
}

func TestBootstrapConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	config, err := BootstrapConfig(configPath)
	if err != nil {
		t.Fatalf("bootstrapping config: %v", err)
	}
	if config.AdminAddr != DefaultConfig().AdminAddr {
		t.Fatalf("expected bootstrapped config to match defaults, got %+v", config)
	}
	if !ConfigExists(configPath) {
		t.Fatal("expected bootstrap to create a config file")
	}

	// A second bootstrap against the same path must not clobber a config
	// an operator has since edited by hand.
	edited, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	edited.AdminAddr = "0.0.0.0:1234"
	if err := SaveConfig(edited, configPath); err != nil {
		t.Fatalf("saving edited config: %v", err)
	}

	again, err := BootstrapConfig(configPath)
	if err != nil {
		t.Fatalf("re-bootstrapping config: %v", err)
	}
	if again.AdminAddr != "0.0.0.0:1234" {
		t.Fatalf("expected bootstrap to preserve the edited admin addr, got %q", again.AdminAddr)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()
	if path == "" {
		t.Fatal("expected a non-empty default config path")
	}
	if !stringsContains(path, "distree") {
		t.Errorf("expected default path to mention distree, got %q", path)
	}
	if !stringsContains(path, "config.yaml") {
		t.Errorf("expected default path to end in config.yaml, got %q", path)
	}
}

func stringsContains(path, substr string) bool {
	for i := 0; i+len(substr) <= len(path); i++ {
		if path[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestConfigExists(t *testing.T) {
	tmpDir := t.TempDir()
	existingPath := filepath.Join(tmpDir, "exists.yaml")
	nonExistentPath := filepath.Join(tmpDir, "does-not-exist.yaml")

	if err := os.WriteFile(existingPath, []byte("test"), 0644); err != nil {
		t.Fatalf("writing fixture file: %v", err)
	}

	if !ConfigExists(existingPath) {
		t.Error("expected existing file to be reported as existing")
	}
	if ConfigExists(nonExistentPath) {
		t.Error("expected missing file to be reported as not existing")
	}
}
