// Package server provides configuration loading for the chat relay: defaults,
// an optional config file, environment overrides, and a sanitize pass that
// clamps unusable values back to defaults.
package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the runtime settings for the relay.
type Config struct {
	Port           string
	AllowedOrigins []string
	Development    bool

	// MaxMessageSize bounds a single inbound frame in bytes.
	MaxMessageSize int64
	// MaxHistorySize caps a room's message history; 0 means unlimited.
	MaxHistorySize int

	// HandshakeTimeout bounds the wait for the initial init frame.
	HandshakeTimeout time.Duration
	// PongWait is the idle read deadline, refreshed on each pong.
	PongWait time.Duration
	// PingInterval is the keepalive ping period; it must undercut PongWait.
	PingInterval time.Duration
	// WriteWait bounds a single outbound write.
	WriteWait time.Duration
}

// NewConfig returns a Config populated with default values.
func NewConfig() *Config {
	return &Config{
		Port:             ":8001",
		AllowedOrigins:   []string{"http://localhost:8001"},
		MaxMessageSize:   4096,
		MaxHistorySize:   0,
		HandshakeTimeout: 10 * time.Second,
		PongWait:         60 * time.Second,
		PingInterval:     54 * time.Second,
		WriteWait:        10 * time.Second,
	}
}

// LoadConfig builds a Config from defaults, an optional config file, and
// environment variables (SERVER_PORT, ALLOWED_ORIGINS, MAX_MESSAGE_SIZE,
// MAX_HISTORY_SIZE, HANDSHAKE_TIMEOUT, PONG_WAIT, PING_INTERVAL, WRITE_WAIT,
// DEVELOPMENT), in ascending precedence. Passing an empty path skips the
// file lookup.
func LoadConfig(path string) (*Config, error) {
	defaults := NewConfig()

	v := viper.New()
	v.SetDefault("port", defaults.Port)
	v.SetDefault("allowed_origins", defaults.AllowedOrigins)
	v.SetDefault("development", defaults.Development)
	v.SetDefault("max_message_size", defaults.MaxMessageSize)
	v.SetDefault("max_history_size", defaults.MaxHistorySize)
	v.SetDefault("handshake_timeout", defaults.HandshakeTimeout)
	v.SetDefault("pong_wait", defaults.PongWait)
	v.SetDefault("ping_interval", defaults.PingInterval)
	v.SetDefault("write_wait", defaults.WriteWait)

	bindings := map[string]string{
		"port":              "SERVER_PORT",
		"allowed_origins":   "ALLOWED_ORIGINS",
		"development":       "DEVELOPMENT",
		"max_message_size":  "MAX_MESSAGE_SIZE",
		"max_history_size":  "MAX_HISTORY_SIZE",
		"handshake_timeout": "HANDSHAKE_TIMEOUT",
		"pong_wait":         "PONG_WAIT",
		"ping_interval":     "PING_INTERVAL",
		"write_wait":        "WRITE_WAIT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{
		Port:             v.GetString("port"),
		AllowedOrigins:   splitOrigins(v.GetStringSlice("allowed_origins")),
		Development:      v.GetBool("development"),
		MaxMessageSize:   v.GetInt64("max_message_size"),
		MaxHistorySize:   v.GetInt("max_history_size"),
		HandshakeTimeout: v.GetDuration("handshake_timeout"),
		PongWait:         v.GetDuration("pong_wait"),
		PingInterval:     v.GetDuration("ping_interval"),
		WriteWait:        v.GetDuration("write_wait"),
	}
	cfg.sanitize()
	return cfg, nil
}

// splitOrigins flattens comma-separated entries, which is how the value
// arrives from an environment variable.
func splitOrigins(entries []string) []string {
	var origins []string
	for _, entry := range entries {
		for _, part := range strings.Split(entry, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				origins = append(origins, part)
			}
		}
	}
	return origins
}

func (cfg *Config) sanitize() {
	defaults := NewConfig()

	if cfg.Port == "" {
		cfg.Port = defaults.Port
	}
	if !strings.HasPrefix(cfg.Port, ":") && !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}
	if cfg.MaxHistorySize < 0 {
		cfg.MaxHistorySize = defaults.MaxHistorySize
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaults.PongWait
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaults.WriteWait
	}
}
