package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/marketsafe/checkout-risk-backend/internal/service/gate"
	"github.com/marketsafe/checkout-risk-backend/internal/service/scoring"
	"github.com/marketsafe/checkout-risk-backend/internal/service/verification"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`

	Risk          scoring.Policy      `koanf:"risk"`
	Gate          gate.Config         `koanf:"gate"`
	Verification  verification.Config `koanf:"verification"`
	Velocity      VelocityConfig      `koanf:"velocity"`
	Reputation    ReputationConfig    `koanf:"reputation"`
	Justification JustificationConfig `koanf:"justification"`
	Directory     DirectoryConfig     `koanf:"directory"`
	RateLimit     RateLimitConfig     `koanf:"rate_limit"`
	Telemetry     TelemetryConfig     `koanf:"telemetry"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL      string `koanf:"url"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// ReputationConfig seeds the static IP lists backing the Redis reputation
// sets when Redis is unavailable.
type ReputationConfig struct {
	Blacklist  []string `koanf:"blacklist"`
	Suspicious []string `koanf:"suspicious"`
}

// VelocityConfig tunes the sliding-window attempt counter.
type VelocityConfig struct {
	Window      time.Duration `koanf:"window"`
	MaxAttempts int           `koanf:"max_attempts"`
}

// JustificationConfig points at the optional text-generation capability. An
// empty URL leaves only the deterministic fallback.
type JustificationConfig struct {
	AdvisorURL string        `koanf:"advisor_url"`
	Timeout    time.Duration `koanf:"timeout"`
}

// DirectoryConfig points at the account and order systems the engine
// consults during signal extraction and linkage.
type DirectoryConfig struct {
	AccountsURL string        `koanf:"accounts_url"`
	OrdersURL   string        `koanf:"orders_url"`
	Timeout     time.Duration `koanf:"timeout"`
}

// RateLimitConfig bounds verification submissions per client.
type RateLimitConfig struct {
	RequestsPerSecond int `koanf:"requests_per_second"`
	BurstSize         int `koanf:"burst_size"`
}

type TelemetryConfig struct {
	OTLPEndpoint string  `koanf:"otlp_endpoint"`
	SampleRate   float64 `koanf:"sample_rate"`
}

// Load reads configuration in precedence order: built-in defaults, then
// configs/config.yaml when present, then RISK_-prefixed environment
// variables with double underscore as the nesting separator
// (RISK_SERVER__PORT=8080 sets server.port).
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			DB: 0,
		},
		Risk:         scoring.DefaultPolicy(),
		Gate:         gate.DefaultConfig(),
		Verification: verification.DefaultConfig(),
		Velocity: VelocityConfig{
			Window:      10 * time.Minute,
			MaxAttempts: 5,
		},
		Justification: JustificationConfig{
			Timeout: 5 * time.Second,
		},
		Directory: DirectoryConfig{
			Timeout: 3 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			BurstSize:         20,
		},
		Telemetry: TelemetryConfig{
			SampleRate: 0.1,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Optional file override.
	_ = k.Load(file.Provider("configs/config.yaml"), yaml.Parser())

	if err := k.Load(env.Provider("RISK_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "RISK_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Risk.WarnThreshold >= c.Risk.DenyThreshold {
		return fmt.Errorf("risk: warn threshold %d must be below deny threshold %d",
			c.Risk.WarnThreshold, c.Risk.DenyThreshold)
	}
	if c.Risk.StepUpThreshold < c.Risk.WarnThreshold || c.Risk.StepUpThreshold > c.Risk.DenyThreshold {
		return fmt.Errorf("risk: step-up threshold %d must lie in the warn band [%d, %d]",
			c.Risk.StepUpThreshold, c.Risk.WarnThreshold, c.Risk.DenyThreshold)
	}
	if c.Verification.MaxAttempts < 1 {
		return fmt.Errorf("verification: max attempts must be at least 1")
	}
	if c.Verification.TokenTTL <= 0 {
		return fmt.Errorf("verification: token ttl must be positive")
	}
	return nil
}
