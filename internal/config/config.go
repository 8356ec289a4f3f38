package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort    int    `envconfig:"HTTP_PORT" default:"8080"` // keep-alive, health and metrics

	// Slack (optional, the bot starts in mgmt-only mode without it)
	SlackBotToken   string        `envconfig:"SLACK_BOT_TOKEN"`
	SlackAppToken   string        `envconfig:"SLACK_APP_TOKEN"` // xapp- token for Socket Mode
	AdminUserIDs    string        `envconfig:"ADMIN_USER_IDS"`  // comma-separated Slack user IDs allowed to run admin commands
	SlackRateLimit  int           `envconfig:"SLACK_RATE_LIMIT" default:"10"`
	SlackRateWindow time.Duration `envconfig:"SLACK_RATE_WINDOW" default:"1m"`

	// Model
	GeminiAPIKey          string `envconfig:"GEMINI_API_KEY"`
	GeminiModel           string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	GeminiMaxOutputTokens int    `envconfig:"GEMINI_MAX_OUTPUT_TOKENS" default:"256"`
	PersonaFile           string `envconfig:"PERSONA_FILE"` // built-in persona when empty

	// Sessions
	MaxHistoryTurns     int           `envconfig:"MAX_HISTORY_TURNS" default:"20"`
	RetentionWindow     time.Duration `envconfig:"RETENTION_WINDOW" default:"720h"`
	SweepInterval       time.Duration `envconfig:"SWEEP_INTERVAL" default:"1h"`
	ResponseTimeout     time.Duration `envconfig:"RESPONSE_TIMEOUT" default:"30s"`
	ModelMaxAttempts    int           `envconfig:"MODEL_MAX_ATTEMPTS" default:"1"`
	BridgeMaxConcurrent int           `envconfig:"BRIDGE_MAX_CONCURRENT" default:"16"`

	// Health
	MaxSessions        int `envconfig:"MAX_SESSIONS" default:"5000"`        // sessions check degrades at this count
	ModelFailureStreak int `envconfig:"MODEL_FAILURE_STREAK" default:"5"` // model check degrades after this many failures in a row

	// Management API
	MgmtListenAddr     string `envconfig:"MGMT_LISTEN_ADDR" default:":8090"`
	MgmtAuthMode       string `envconfig:"MGMT_AUTH_MODE" default:"api-key"` // api-key, jwt or none
	MgmtAPIKey         string `envconfig:"MGMT_API_KEY"`
	MgmtJWTSecret      string `envconfig:"MGMT_JWT_SECRET"`
	MgmtRateLimitRPS   int    `envconfig:"MGMT_RATE_LIMIT_RPS" default:"20"`
	MgmtRateLimitBurst int    `envconfig:"MGMT_RATE_LIMIT_BURST" default:"40"`
	MgmtCORSOrigins    string `envconfig:"MGMT_CORS_ORIGINS"`

	// Audit log
	AuditDBPath    string        `envconfig:"AUDIT_DB_PATH"` // disabled when empty
	AuditRetention time.Duration `envconfig:"AUDIT_RETENTION" default:"2160h"`
}

// SlackEnabled returns true if Slack tokens are configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackAppToken != ""
}

// AdminUserList returns the parsed admin user IDs. Nil means nobody may run
// admin commands.
func (c *Config) AdminUserList() []string {
	return splitList(c.AdminUserIDs)
}

// CORSOriginList returns the parsed list of allowed mgmt CORS origins.
func (c *Config) CORSOriginList() []string {
	return splitList(c.MgmtCORSOrigins)
}

// MaxHistoryEntries is the per-session history cap in turns.
func (c *Config) MaxHistoryEntries() int {
	return 2 * c.MaxHistoryTurns
}

// AuditEnabled returns true if an audit database is configured.
func (c *Config) AuditEnabled() bool {
	return c.AuditDBPath != ""
}

// Validate checks settings that envconfig cannot.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.MaxHistoryTurns < 1 {
		return fmt.Errorf("MAX_HISTORY_TURNS must be at least 1, got %d", c.MaxHistoryTurns)
	}
	if c.RetentionWindow <= 0 {
		return fmt.Errorf("RETENTION_WINDOW must be positive, got %s", c.RetentionWindow)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	if c.ResponseTimeout <= 0 {
		return fmt.Errorf("RESPONSE_TIMEOUT must be positive, got %s", c.ResponseTimeout)
	}
	if c.ModelMaxAttempts < 1 {
		return fmt.Errorf("MODEL_MAX_ATTEMPTS must be at least 1, got %d", c.ModelMaxAttempts)
	}
	if c.BridgeMaxConcurrent < 1 {
		return fmt.Errorf("BRIDGE_MAX_CONCURRENT must be at least 1, got %d", c.BridgeMaxConcurrent)
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("MAX_SESSIONS must be at least 1, got %d", c.MaxSessions)
	}
	if c.ModelFailureStreak < 1 {
		return fmt.Errorf("MODEL_FAILURE_STREAK must be at least 1, got %d", c.ModelFailureStreak)
	}
	if (c.SlackBotToken == "") != (c.SlackAppToken == "") {
		return fmt.Errorf("SLACK_BOT_TOKEN and SLACK_APP_TOKEN must be set together")
	}

	switch strings.ToLower(c.MgmtAuthMode) {
	case "api-key":
		if c.MgmtAPIKey == "" {
			return fmt.Errorf("MGMT_API_KEY is required when MGMT_AUTH_MODE=api-key")
		}
	case "jwt":
		if c.MgmtJWTSecret == "" {
			return fmt.Errorf("MGMT_JWT_SECRET is required when MGMT_AUTH_MODE=jwt")
		}
	case "none":
		if c.Environment == "production" {
			return fmt.Errorf("MGMT_AUTH_MODE=none is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown MGMT_AUTH_MODE %q", c.MgmtAuthMode)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	return &cfg, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
