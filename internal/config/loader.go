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
// built-in defaults, applies CAUSEWAY_* environment variable overrides, and
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

// applyEnvOverrides reads well-known CAUSEWAY_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Signer ──
	setStr(&cfg.Signer.PrivateKey, "CAUSEWAY_SIGNER_PRIVATE_KEY")
	setStr(&cfg.Signer.EncryptedKeyPath, "CAUSEWAY_SIGNER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Signer.KeyPassword, "CAUSEWAY_SIGNER_KEY_PASSWORD")

	// ── Database ──
	setStr(&cfg.Database.DSN, "CAUSEWAY_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "CAUSEWAY_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "CAUSEWAY_DATABASE_HOST")
	setInt(&cfg.Database.Port, "CAUSEWAY_DATABASE_PORT")
	setStr(&cfg.Database.Database, "CAUSEWAY_DATABASE_NAME")
	setStr(&cfg.Database.User, "CAUSEWAY_DATABASE_USER")
	setStr(&cfg.Database.Password, "CAUSEWAY_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "CAUSEWAY_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "CAUSEWAY_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "CAUSEWAY_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "CAUSEWAY_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CAUSEWAY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CAUSEWAY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CAUSEWAY_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CAUSEWAY_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CAUSEWAY_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CAUSEWAY_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CAUSEWAY_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CAUSEWAY_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CAUSEWAY_S3_REGION")
	setStr(&cfg.S3.Bucket, "CAUSEWAY_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CAUSEWAY_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CAUSEWAY_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CAUSEWAY_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CAUSEWAY_S3_FORCE_PATH_STYLE")

	// ── Oracle ──
	setInt64(&cfg.Oracle.MinProposalStake, "CAUSEWAY_ORACLE_MIN_PROPOSAL_STAKE")
	setInt64(&cfg.Oracle.MinVoteStake, "CAUSEWAY_ORACLE_MIN_VOTE_STAKE")
	setDuration(&cfg.Oracle.ProposalWindow, "CAUSEWAY_ORACLE_PROPOSAL_WINDOW")
	setDuration(&cfg.Oracle.VotingWindow, "CAUSEWAY_ORACLE_VOTING_WINDOW")

	// ── Escrow ──
	setInt64(&cfg.Escrow.MinDonation, "CAUSEWAY_ESCROW_MIN_DONATION")

	// ── Worker ──
	setDuration(&cfg.Worker.SweepInterval, "CAUSEWAY_WORKER_SWEEP_INTERVAL")
	setDuration(&cfg.Worker.ArchiveInterval, "CAUSEWAY_WORKER_ARCHIVE_INTERVAL")
	setInt(&cfg.Worker.ArchiveRetentionDays, "CAUSEWAY_WORKER_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CAUSEWAY_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CAUSEWAY_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CAUSEWAY_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CAUSEWAY_SERVER_API_KEY")
	setBool(&cfg.Server.VerifySignatures, "CAUSEWAY_SERVER_VERIFY_SIGNATURES")
	setInt(&cfg.Server.RateLimit, "CAUSEWAY_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "CAUSEWAY_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CAUSEWAY_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CAUSEWAY_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CAUSEWAY_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CAUSEWAY_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CAUSEWAY_MODE")
	setStr(&cfg.LogLevel, "CAUSEWAY_LOG_LEVEL")
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
