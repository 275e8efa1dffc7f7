// Package config defines the configuration for the prediction-market
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then overridden by XRPREDICT_* environment variables (plus
// a handful of legacy aliases kept for deploy-script compatibility).
type Config struct {
	Market   MarketConfig   `toml:"market"`
	XRPL     XRPLConfig     `toml:"xrpl"`
	Admin    AdminConfig    `toml:"admin"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	LogLevel string         `toml:"log_level"`
}

// MarketConfig describes the single market created at startup.
type MarketConfig struct {
	Question      string `toml:"question"`
	DurationHours int    `toml:"duration_hours"`
	YesAddress    string `toml:"yes_address"`
	NoAddress     string `toml:"no_address"`
}

// XRPLConfig holds ledger endpoint and transfer-policy parameters.
type XRPLConfig struct {
	WSURL string `toml:"ws_url"`

	// SubmitTimeout bounds one submit-and-wait attempt for a vote
	// transfer.
	SubmitTimeout duration `toml:"submit_timeout"`

	// MaxSubmitAttempts is the vote-transfer retry budget.
	MaxSubmitAttempts int `toml:"max_submit_attempts"`

	// PayoutDelay is the fixed inter-transfer delay during settlement,
	// throttling to respect network rate limits.
	PayoutDelay duration `toml:"payout_delay"`
}

// AdminConfig holds the admin bearer secret and treasury wallet. The
// wallet secret is only required once resolution is triggered.
type AdminConfig struct {
	Secret        string `toml:"secret"`
	WalletAddress string `toml:"wallet_address"`
	WalletSecret  string `toml:"wallet_secret"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds object-storage parameters for resolution report
// archiving. Archiving is optional.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "45s", "2s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			Question:      "Will XRP cross $3k by tonight?",
			DurationHours: 24,
		},
		XRPL: XRPLConfig{
			WSURL:             "wss://s.altnet.rippletest.net:51233",
			SubmitTimeout:     duration{45 * time.Second},
			MaxSubmitAttempts: 3,
			PayoutDelay:       duration{2 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "xrpredict",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "xrpredict-archive",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:        5000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found. The process must refuse
// to start on any validation failure.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Market
	if strings.TrimSpace(c.Market.Question) == "" {
		errs = append(errs, "market: question must not be empty")
	}
	if c.Market.DurationHours <= 0 {
		errs = append(errs, "market: duration_hours must be positive")
	}
	if c.Market.YesAddress == "" {
		errs = append(errs, "market: yes_address is required (YES_WALLET_ADDRESS)")
	}
	if c.Market.NoAddress == "" {
		errs = append(errs, "market: no_address is required (NO_WALLET_ADDRESS)")
	}
	if c.Market.YesAddress != "" && c.Market.YesAddress == c.Market.NoAddress {
		errs = append(errs, "market: yes_address and no_address must differ")
	}

	// XRPL
	if c.XRPL.WSURL == "" {
		errs = append(errs, "xrpl: ws_url must not be empty")
	}
	if c.XRPL.SubmitTimeout.Duration <= 0 {
		errs = append(errs, "xrpl: submit_timeout must be positive")
	}
	if c.XRPL.MaxSubmitAttempts < 1 {
		errs = append(errs, "xrpl: max_submit_attempts must be >= 1")
	}
	if c.XRPL.PayoutDelay.Duration < 0 {
		errs = append(errs, "xrpl: payout_delay must not be negative")
	}

	// Admin — the wallet secret is intentionally not required here; it is
	// checked when resolution is triggered.
	if c.Admin.Secret == "" {
		errs = append(errs, "admin: secret is required (ADMIN_SECRET)")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
