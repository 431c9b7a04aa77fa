package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/abdulachik/spamsweep/internal/toot"
)

// Stream transports.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

const maxPageSize = 40

// Config holds all application configuration.
type Config struct {
	// Mastodon
	Instance    string
	Token       string
	MinID       string        // explicit resume identifier
	DryRun      bool          // default on; only "0" disables it
	StatusID    string        // single-post debug override
	StartOffset time.Duration // initial cursor window when nothing was persisted

	// Rules
	RulesURL             string
	RulesRefreshInterval time.Duration

	// State
	CursorPath   string
	DatabasePath string

	// Pagination
	PageSize           int
	MinRequestInterval time.Duration

	// Streaming
	StreamEnabled   bool
	StreamTransport string
	StreamBudget    time.Duration
	PollInterval    time.Duration

	// Notification settings
	NotifyHandle string

	// Observability
	MetricsAddr string
	LogLevel    string
}

// Load reads configuration from environment variables.
// It automatically loads .env file if present.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Instance:        getEnv("MASTODON_INSTANCE", "einbeck.social"),
		Token:           getEnv("MASTODON_TOKEN", ""),
		MinID:           strings.TrimSpace(getEnv("MASTODON_MIN_ID", "")),
		DryRun:          getEnv("MASTODON_DRY_RUN", "1") != "0",
		StatusID:        strings.TrimSpace(getEnv("MASTODON_STATUS_ID", "")),
		RulesURL:        getEnv("RULES_URL", "rules.yaml"),
		CursorPath:      getEnv("CURSOR_PATH", "spamlaststatus"),
		DatabasePath:    getEnv("DATABASE_PATH", "data/spamsweep.db"),
		StreamEnabled:   getEnv("STREAM_ENABLED", "1") != "0",
		StreamTransport: strings.ToLower(getEnv("STREAM_TRANSPORT", TransportSSE)),
		NotifyHandle:    getEnv("NOTIFY_HANDLE", ""),
		MetricsAddr:     getEnv("METRICS_ADDR", ""),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	// Parse durations
	var err error
	if cfg.StartOffset, err = parseDuration("MASTODON_START_OFFSET", "24h"); err != nil {
		return nil, err
	}
	if cfg.RulesRefreshInterval, err = parseDuration("RULES_REFRESH_INTERVAL", "5m"); err != nil {
		return nil, err
	}
	if cfg.MinRequestInterval, err = parseDuration("MIN_REQUEST_INTERVAL", "1.5s"); err != nil {
		return nil, err
	}
	if cfg.StreamBudget, err = parseDuration("STREAM_BUDGET", cfg.RulesRefreshInterval.String()); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = parseDuration("POLL_INTERVAL", "1m"); err != nil {
		return nil, err
	}

	// Parse integers
	pageSize, err := strconv.Atoi(getEnv("PAGE_SIZE", strconv.Itoa(maxPageSize)))
	if err != nil {
		return nil, fmt.Errorf("invalid PAGE_SIZE: %w", err)
	}
	cfg.PageSize = pageSize

	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.RulesURL == "" {
		return fmt.Errorf("RULES_URL is required")
	}
	if c.MinID != "" && !toot.ValidID(c.MinID) {
		return fmt.Errorf("invalid MASTODON_MIN_ID: %q is not a status id", c.MinID)
	}
	if c.StatusID != "" && !toot.ValidID(c.StatusID) {
		return fmt.Errorf("invalid MASTODON_STATUS_ID: %q is not a status id", c.StatusID)
	}
	if c.StartOffset < 0 {
		return fmt.Errorf("MASTODON_START_OFFSET must not be negative")
	}
	if c.RulesRefreshInterval <= 0 {
		return fmt.Errorf("RULES_REFRESH_INTERVAL must be positive")
	}
	if c.PageSize < 1 || c.PageSize > maxPageSize {
		return fmt.Errorf("PAGE_SIZE must be between 1 and %d, got %d", maxPageSize, c.PageSize)
	}
	if c.MinRequestInterval < 0 {
		return fmt.Errorf("MIN_REQUEST_INTERVAL must not be negative")
	}
	return nil
}

// ValidateForScan checks configuration needed to read the timeline and act
// on hits.
func (c *Config) ValidateForScan() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Instance == "" {
		return fmt.Errorf("MASTODON_INSTANCE is required")
	}
	if c.Token == "" {
		return fmt.Errorf("MASTODON_TOKEN is required for scanning")
	}
	if c.CursorPath == "" {
		return fmt.Errorf("CURSOR_PATH is required for scanning")
	}
	return nil
}

// ValidateForServe checks all configuration needed for serve mode.
func (c *Config) ValidateForServe() error {
	if err := c.ValidateForScan(); err != nil {
		return err
	}
	if c.StreamEnabled {
		switch c.StreamTransport {
		case TransportSSE, TransportWebSocket:
		default:
			return fmt.Errorf("invalid STREAM_TRANSPORT: %s (must be '%s' or '%s')", c.StreamTransport, TransportSSE, TransportWebSocket)
		}
		if c.StreamBudget <= 0 {
			return fmt.Errorf("STREAM_BUDGET must be positive")
		}
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseDuration(key, defaultVal string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultVal))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
