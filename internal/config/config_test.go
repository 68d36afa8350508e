package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "dev" // dev needs no signer, database, or redis
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejects(t *testing.T) {
	t.Run("unknown mode", func(t *testing.T) {
		cfg := Defaults()
		cfg.Mode = "turbo"
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing signer outside dev", func(t *testing.T) {
		cfg := Defaults()
		cfg.Mode = "full"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "signer")
	})

	t.Run("non-positive oracle stake", func(t *testing.T) {
		cfg := Defaults()
		cfg.Mode = "dev"
		cfg.Oracle.MinProposalStake = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("s3 enabled without bucket", func(t *testing.T) {
		cfg := Defaults()
		cfg.Mode = "dev"
		cfg.S3.Enabled = true
		cfg.S3.Bucket = ""
		assert.Error(t, cfg.Validate())
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "dev"
log_level = "debug"

[server]
port = 9100

[oracle]
proposal_window = "12h"
min_proposal_stake = 25
`), 0o600))

	t.Setenv("CAUSEWAY_SERVER_PORT", "9200")
	t.Setenv("CAUSEWAY_REDIS_ADDR", "redis.internal:6379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)

	// TOML overrides defaults; env overrides TOML.
	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, 12*time.Hour, cfg.Oracle.ProposalWindow.Duration)
	assert.Equal(t, int64(25), cfg.Oracle.MinProposalStake)

	// Untouched defaults survive the merge.
	assert.Equal(t, 48*time.Hour, cfg.Oracle.VotingWindow.Duration)
	require.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Signer.PrivateKey = "deadbeef"
	cfg.Database.Password = "pg-secret"
	cfg.Server.APIKey = "op-key"
	cfg.Notify.TelegramToken = "tg-token"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Signer.PrivateKey)
	assert.Equal(t, "***", red.Database.Password)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// The original is untouched.
	assert.Equal(t, "deadbeef", cfg.Signer.PrivateKey)

	// Empty secrets stay empty instead of becoming "***".
	assert.Empty(t, red.Redis.Password)
}
