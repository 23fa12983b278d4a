package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies STAKESTORE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known STAKESTORE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "STAKESTORE_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "STAKESTORE_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "STAKESTORE_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "STAKESTORE_CHAIN_RPC_URL")
	setStr(&cfg.Chain.WsURL, "STAKESTORE_CHAIN_WS_URL")
	setInt64(&cfg.Chain.ChainID, "STAKESTORE_CHAIN_ID")
	setStr(&cfg.Chain.StakeContract, "STAKESTORE_CHAIN_STAKE_CONTRACT")
	setStr(&cfg.Chain.Spender, "STAKESTORE_CHAIN_SPENDER")
	setDuration(&cfg.Chain.ConfirmTimeout, "STAKESTORE_CHAIN_CONFIRM_TIMEOUT")

	// ── Pendle ──
	setStr(&cfg.Pendle.BaseURL, "STAKESTORE_PENDLE_BASE_URL")

	// ── Database ──
	setStr(&cfg.Database.DSN, "STAKESTORE_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "STAKESTORE_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "STAKESTORE_DATABASE_HOST")
	setInt(&cfg.Database.Port, "STAKESTORE_DATABASE_PORT")
	setStr(&cfg.Database.Database, "STAKESTORE_DATABASE_NAME")
	setStr(&cfg.Database.User, "STAKESTORE_DATABASE_USER")
	setStr(&cfg.Database.Password, "STAKESTORE_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "STAKESTORE_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "STAKESTORE_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "STAKESTORE_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "STAKESTORE_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "STAKESTORE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "STAKESTORE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "STAKESTORE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "STAKESTORE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "STAKESTORE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "STAKESTORE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "STAKESTORE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "STAKESTORE_S3_REGION")
	setStr(&cfg.S3.Bucket, "STAKESTORE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "STAKESTORE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "STAKESTORE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "STAKESTORE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "STAKESTORE_S3_FORCE_PATH_STYLE")

	// ── Workflow ──
	setInt(&cfg.Workflow.MaxConcurrent, "STAKESTORE_WORKFLOW_MAX_CONCURRENT")
	setInt(&cfg.Workflow.IntakeBuffer, "STAKESTORE_WORKFLOW_INTAKE_BUFFER")
	setInt(&cfg.Workflow.QuoteRetries, "STAKESTORE_WORKFLOW_QUOTE_RETRIES")
	setDuration(&cfg.Workflow.RetryBackoff, "STAKESTORE_WORKFLOW_RETRY_BACKOFF")
	setDuration(&cfg.Workflow.LockTTL, "STAKESTORE_WORKFLOW_LOCK_TTL")
	setFloat64(&cfg.Workflow.DefaultSlippage, "STAKESTORE_WORKFLOW_DEFAULT_SLIPPAGE")
	setDuration(&cfg.Workflow.CatalogRefresh, "STAKESTORE_WORKFLOW_CATALOG_REFRESH")
	setInt(&cfg.Workflow.HoldingsConcurrency, "STAKESTORE_WORKFLOW_HOLDINGS_CONCURRENCY")
	setDuration(&cfg.Workflow.ArchiveInterval, "STAKESTORE_WORKFLOW_ARCHIVE_INTERVAL")
	setInt(&cfg.Workflow.ArchiveRetentionDays, "STAKESTORE_WORKFLOW_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "STAKESTORE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "STAKESTORE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "STAKESTORE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "STAKESTORE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "STAKESTORE_SERVER_RATE_LIMIT")
	setInt(&cfg.Server.RateWindowSecs, "STAKESTORE_SERVER_RATE_WINDOW_SECS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "STAKESTORE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "STAKESTORE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "STAKESTORE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "STAKESTORE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "STAKESTORE_MODE")
	setStr(&cfg.LogLevel, "STAKESTORE_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
