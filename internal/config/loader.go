package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, and applies environment variable overrides. A missing
// file is not an error so the service can run from environment variables
// alone. The returned Config has NOT been validated; the caller should
// invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known XRPREDICT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. The
// unprefixed aliases match the names used by existing deploy scripts.
func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setStr(&cfg.Market.Question, "XRPREDICT_MARKET_QUESTION")
	setStr(&cfg.Market.Question, "PREDICTION_QUESTION") // compatibility alias
	setInt(&cfg.Market.DurationHours, "XRPREDICT_MARKET_DURATION_HOURS")
	setInt(&cfg.Market.DurationHours, "PREDICTION_DURATION_HOURS") // compatibility alias
	setStr(&cfg.Market.YesAddress, "XRPREDICT_MARKET_YES_ADDRESS")
	setStr(&cfg.Market.YesAddress, "YES_WALLET_ADDRESS") // compatibility alias
	setStr(&cfg.Market.NoAddress, "XRPREDICT_MARKET_NO_ADDRESS")
	setStr(&cfg.Market.NoAddress, "NO_WALLET_ADDRESS") // compatibility alias

	// ── XRPL ──
	setStr(&cfg.XRPL.WSURL, "XRPREDICT_XRPL_WS_URL")
	setStr(&cfg.XRPL.WSURL, "XRPL_WS_URL")         // compatibility alias
	setStr(&cfg.XRPL.WSURL, "XRPL_TESTNET_WS")     // compatibility alias
	setDuration(&cfg.XRPL.SubmitTimeout, "XRPREDICT_XRPL_SUBMIT_TIMEOUT")
	setInt(&cfg.XRPL.MaxSubmitAttempts, "XRPREDICT_XRPL_MAX_SUBMIT_ATTEMPTS")
	setDuration(&cfg.XRPL.PayoutDelay, "XRPREDICT_XRPL_PAYOUT_DELAY")

	// ── Admin ──
	setStr(&cfg.Admin.Secret, "XRPREDICT_ADMIN_SECRET")
	setStr(&cfg.Admin.Secret, "ADMIN_SECRET") // compatibility alias
	setStr(&cfg.Admin.WalletAddress, "XRPREDICT_ADMIN_WALLET_ADDRESS")
	setStr(&cfg.Admin.WalletAddress, "ADMIN_WALLET_ADDRESS") // compatibility alias
	setStr(&cfg.Admin.WalletSecret, "XRPREDICT_ADMIN_WALLET_SECRET")
	setStr(&cfg.Admin.WalletSecret, "ADMIN_WALLET_SECRET") // compatibility alias

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "XRPREDICT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "XRPREDICT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "XRPREDICT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "XRPREDICT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "XRPREDICT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "XRPREDICT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "XRPREDICT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "XRPREDICT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "XRPREDICT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "XRPREDICT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "XRPREDICT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "XRPREDICT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "XRPREDICT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "XRPREDICT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "XRPREDICT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "XRPREDICT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "XRPREDICT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "XRPREDICT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "XRPREDICT_S3_REGION")
	setStr(&cfg.S3.Bucket, "XRPREDICT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "XRPREDICT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "XRPREDICT_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "XRPREDICT_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "XRPREDICT_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // compatibility alias
	setStringSlice(&cfg.Server.CORSOrigins, "XRPREDICT_SERVER_CORS_ORIGINS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "XRPREDICT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
