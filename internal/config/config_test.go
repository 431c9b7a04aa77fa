package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Save original env and restore after test
	origEnv := os.Environ()
	t.Cleanup(func() {
		os.Clearenv()
		for _, e := range origEnv {
			for i := 0; i < len(e); i++ {
				if e[i] == '=' {
					os.Setenv(e[:i], e[i+1:])
					break
				}
			}
		}
	})

	t.Run("defaults", func(t *testing.T) {
		os.Clearenv()
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "einbeck.social", cfg.Instance)
		assert.True(t, cfg.DryRun)
		assert.Equal(t, 24*time.Hour, cfg.StartOffset)
		assert.Equal(t, "rules.yaml", cfg.RulesURL)
		assert.Equal(t, 5*time.Minute, cfg.RulesRefreshInterval)
		assert.Equal(t, "spamlaststatus", cfg.CursorPath)
		assert.Equal(t, "data/spamsweep.db", cfg.DatabasePath)
		assert.Equal(t, 40, cfg.PageSize)
		assert.Equal(t, 1500*time.Millisecond, cfg.MinRequestInterval)
		assert.True(t, cfg.StreamEnabled)
		assert.Equal(t, TransportSSE, cfg.StreamTransport)
		assert.Equal(t, 5*time.Minute, cfg.StreamBudget)
		assert.Equal(t, time.Minute, cfg.PollInterval)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Empty(t, cfg.Token)
		assert.Empty(t, cfg.MetricsAddr)
	})

	t.Run("custom values", func(t *testing.T) {
		os.Clearenv()
		os.Setenv("MASTODON_INSTANCE", "mastodon.example")
		os.Setenv("MASTODON_TOKEN", "secret")
		os.Setenv("MASTODON_MIN_ID", " 111949538918400000 ")
		os.Setenv("MASTODON_DRY_RUN", "0")
		os.Setenv("MASTODON_START_OFFSET", "2h")
		os.Setenv("RULES_URL", "https://example.com/rules.yaml")
		os.Setenv("RULES_REFRESH_INTERVAL", "10m")
		os.Setenv("PAGE_SIZE", "20")
		os.Setenv("STREAM_TRANSPORT", "WebSocket")
		os.Setenv("STREAM_ENABLED", "0")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "mastodon.example", cfg.Instance)
		assert.Equal(t, "secret", cfg.Token)
		assert.Equal(t, "111949538918400000", cfg.MinID)
		assert.False(t, cfg.DryRun)
		assert.Equal(t, 2*time.Hour, cfg.StartOffset)
		assert.Equal(t, "https://example.com/rules.yaml", cfg.RulesURL)
		assert.Equal(t, 10*time.Minute, cfg.RulesRefreshInterval)
		assert.Equal(t, 10*time.Minute, cfg.StreamBudget)
		assert.Equal(t, 20, cfg.PageSize)
		assert.Equal(t, TransportWebSocket, cfg.StreamTransport)
		assert.False(t, cfg.StreamEnabled)
	})

	t.Run("dry run stays on for anything but 0", func(t *testing.T) {
		for _, v := range []string{"1", "false", "no", "off"} {
			os.Clearenv()
			os.Setenv("MASTODON_DRY_RUN", v)

			cfg, err := Load()
			require.NoError(t, err)
			assert.True(t, cfg.DryRun, v)
		}
	})

	t.Run("invalid duration", func(t *testing.T) {
		os.Clearenv()
		os.Setenv("RULES_REFRESH_INTERVAL", "invalid")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "RULES_REFRESH_INTERVAL")
	})

	t.Run("invalid integer", func(t *testing.T) {
		os.Clearenv()
		os.Setenv("PAGE_SIZE", "notanumber")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "PAGE_SIZE")
	})
}

func validConfig() *Config {
	return &Config{
		Instance:             "einbeck.social",
		Token:                "secret",
		RulesURL:             "rules.yaml",
		RulesRefreshInterval: 5 * time.Minute,
		CursorPath:           "spamlaststatus",
		DatabasePath:         "test.db",
		PageSize:             40,
		MinRequestInterval:   1500 * time.Millisecond,
		StreamEnabled:        true,
		StreamTransport:      TransportSSE,
		StreamBudget:         5 * time.Minute,
		PollInterval:         time.Minute,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing database path", mutate: func(c *Config) { c.DatabasePath = "" }, wantErr: "DATABASE_PATH"},
		{name: "missing rules url", mutate: func(c *Config) { c.RulesURL = "" }, wantErr: "RULES_URL"},
		{name: "malformed min id", mutate: func(c *Config) { c.MinID = "12a" }, wantErr: "MASTODON_MIN_ID"},
		{name: "malformed status id", mutate: func(c *Config) { c.StatusID = "-1" }, wantErr: "MASTODON_STATUS_ID"},
		{name: "page size too large", mutate: func(c *Config) { c.PageSize = 41 }, wantErr: "PAGE_SIZE"},
		{name: "page size zero", mutate: func(c *Config) { c.PageSize = 0 }, wantErr: "PAGE_SIZE"},
		{name: "zero refresh interval", mutate: func(c *Config) { c.RulesRefreshInterval = 0 }, wantErr: "RULES_REFRESH_INTERVAL"},
		{name: "negative start offset", mutate: func(c *Config) { c.StartOffset = -time.Hour }, wantErr: "MASTODON_START_OFFSET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateForScan(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validConfig().ValidateForScan())
	})

	t.Run("missing token", func(t *testing.T) {
		cfg := validConfig()
		cfg.Token = ""
		err := cfg.ValidateForScan()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "MASTODON_TOKEN")
	})

	t.Run("missing cursor path", func(t *testing.T) {
		cfg := validConfig()
		cfg.CursorPath = ""
		err := cfg.ValidateForScan()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "CURSOR_PATH")
	})
}

func TestConfig_ValidateForServe(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validConfig().ValidateForServe())
	})

	t.Run("unknown transport", func(t *testing.T) {
		cfg := validConfig()
		cfg.StreamTransport = "grpc"
		err := cfg.ValidateForServe()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "STREAM_TRANSPORT")
	})

	t.Run("transport ignored when streaming is off", func(t *testing.T) {
		cfg := validConfig()
		cfg.StreamEnabled = false
		cfg.StreamTransport = "grpc"
		assert.NoError(t, cfg.ValidateForServe())
	})

	t.Run("inherits scan checks", func(t *testing.T) {
		cfg := validConfig()
		cfg.Token = ""
		assert.Error(t, cfg.ValidateForServe())
	})
}
