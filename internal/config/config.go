package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	LogLevel    string   `mapstructure:"LOG_LEVEL"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`

	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	TLSEnabled  bool   `mapstructure:"TLS_ENABLED"`
	TLSCertFile string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string `mapstructure:"TLS_KEY_FILE"`

	KafkaBrokers  []string `mapstructure:"KAFKA_BROKERS"`
	KafkaLabTopic string   `mapstructure:"KAFKA_LAB_TOPIC"`
	KafkaGroupID  string   `mapstructure:"KAFKA_GROUP_ID"`

	RiskSweepSchedule     string `mapstructure:"RISK_SWEEP_SCHEDULE"`
	RiskSweepLookbackDays int    `mapstructure:"RISK_SWEEP_LOOKBACK_DAYS"`

	StoreBreakerMaxFailures uint32        `mapstructure:"STORE_BREAKER_MAX_FAILURES"`
	StoreBreakerTimeout     time.Duration `mapstructure:"STORE_BREAKER_TIMEOUT"`
}

var defaults = map[string]interface{}{
	"PORT":                       "8000",
	"ENV":                        "development",
	"LOG_LEVEL":                  "info",
	"DB_MAX_CONNS":               20,
	"DB_MIN_CONNS":               5,
	"CORS_ORIGINS":               "http://localhost:3000",
	"RATE_LIMIT_RPS":             100,
	"RATE_LIMIT_BURST":           200,
	"BODY_LIMIT":                 "1M",
	"REQUEST_TIMEOUT":            "30s",
	"KAFKA_LAB_TOPIC":            "lab-results",
	"KAFKA_GROUP_ID":             "lab-ingest",
	"RISK_SWEEP_LOOKBACK_DAYS":   14,
	"STORE_BREAKER_MAX_FAILURES": 5,
	"STORE_BREAKER_TIMEOUT":      "30s",
}

var bound = []string{
	"DATABASE_URL", "AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE", "KAFKA_BROKERS", "RISK_SWEEP_SCHEDULE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Bind env vars explicitly so Unmarshal picks them up
	for key, val := range defaults {
		v.SetDefault(key, val)
		v.BindEnv(key)
	}
	for _, key := range bound {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

// splitList flattens comma-separated entries and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Level parses LOG_LEVEL, falling back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// KafkaEnabled reports whether lab ingest has brokers to talk to.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Validate checks that the configuration is safe to run. Outside development
// a token verifier must be configured so requests are authenticated.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf(
			"AUTH_ISSUER, AUTH_JWKS_URL or AUTH_SIGNING_KEY must be set when ENV=%q; "+
				"refusing to start without authentication", c.Env)
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.DBMinConns < 0 || c.DBMaxConns <= 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS (%d)", c.DBMaxConns)
	}
	if c.RiskSweepSchedule != "" {
		if _, err := cron.ParseStandard(c.RiskSweepSchedule); err != nil {
			return fmt.Errorf("RISK_SWEEP_SCHEDULE is not a valid cron spec: %w", err)
		}
	}
	if c.RiskSweepLookbackDays <= 0 {
		return fmt.Errorf("RISK_SWEEP_LOOKBACK_DAYS must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}
	return nil
}
