package unit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Tyrowin/chatrelay/internal/server"
)

// TestLoadConfigDefaults verifies the default configuration values when no
// file or environment overrides are present.
func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := server.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.Port != ":8001" {
		t.Errorf("Port = %q, want :8001", cfg.Port)
	}
	if cfg.MaxHistorySize != 0 {
		t.Errorf("MaxHistorySize = %d, want 0 (unlimited)", cfg.MaxHistorySize)
	}
	if cfg.MaxMessageSize <= 0 {
		t.Errorf("MaxMessageSize = %d, want a positive bound", cfg.MaxMessageSize)
	}
	if cfg.PingInterval >= cfg.PongWait {
		t.Errorf("PingInterval %v must undercut PongWait %v", cfg.PingInterval, cfg.PongWait)
	}
}

// TestLoadConfigEnvOverrides verifies that environment variables take
// precedence over defaults.
func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9100")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example.com, http://b.example.com")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("MAX_HISTORY_SIZE", "50")
	t.Setenv("HANDSHAKE_TIMEOUT", "3s")

	cfg, err := server.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.Port != ":9100" {
		t.Errorf("Port = %q, want :9100", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "http://a.example.com" {
		t.Errorf("AllowedOrigins = %v, want the two configured origins", cfg.AllowedOrigins)
	}
	if cfg.MaxMessageSize != 1024 {
		t.Errorf("MaxMessageSize = %d, want 1024", cfg.MaxMessageSize)
	}
	if cfg.MaxHistorySize != 50 {
		t.Errorf("MaxHistorySize = %d, want 50", cfg.MaxHistorySize)
	}
	if cfg.HandshakeTimeout != 3*time.Second {
		t.Errorf("HandshakeTimeout = %v, want 3s", cfg.HandshakeTimeout)
	}
}

// TestLoadConfigFromFile verifies that a YAML config file is honored.
func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := "port: \":9200\"\nmax_history_size: 10\npong_wait: 30s\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := server.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.Port != ":9200" {
		t.Errorf("Port = %q, want :9200", cfg.Port)
	}
	if cfg.MaxHistorySize != 10 {
		t.Errorf("MaxHistorySize = %d, want 10", cfg.MaxHistorySize)
	}
	if cfg.PongWait != 30*time.Second {
		t.Errorf("PongWait = %v, want 30s", cfg.PongWait)
	}
	if cfg.PingInterval >= cfg.PongWait {
		t.Errorf("PingInterval %v was not clamped below PongWait %v", cfg.PingInterval, cfg.PongWait)
	}
}

// TestLoadConfigMissingFile verifies that an unreadable config file is an
// error rather than a silent fallback.
func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := server.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadConfig() succeeded with a nonexistent config file")
	}
}

// TestLoadConfigSanitizesInvalidValues verifies that unusable settings are
// clamped back to defaults instead of breaking the server.
func TestLoadConfigSanitizesInvalidValues(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "-5")
	t.Setenv("SERVER_PORT", "9300")

	cfg, err := server.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.MaxMessageSize <= 0 {
		t.Errorf("MaxMessageSize = %d, want a sanitized positive value", cfg.MaxMessageSize)
	}
	if cfg.Port != ":9300" {
		t.Errorf("Port = %q, want a bare port normalized to :9300", cfg.Port)
	}
}
