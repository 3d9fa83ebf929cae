package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	var cfg Config
	cfg.Services.GitHub.Enabled = true
	cfg.Services.GitHub.WebhookSecret = "secret"
	cfg.EncryptionSecret = "encryption-secret"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	t.Run("no services", func(t *testing.T) {
		cfg := validConfig()
		cfg.Services.GitHub.Enabled = false
		assert.ErrorIs(t, cfg.Validate(), ErrNoServicesEnabled)
	})

	t.Run("github without secret", func(t *testing.T) {
		cfg := validConfig()
		cfg.Services.GitHub.WebhookSecret = ""
		assert.ErrorIs(t, cfg.Validate(), ErrMissingGitHubSecret)
	})

	t.Run("slack without secret", func(t *testing.T) {
		cfg := validConfig()
		cfg.Services.Slack.Enabled = true
		assert.ErrorIs(t, cfg.Validate(), ErrMissingSlackSecret)
	})

	t.Run("no encryption secret", func(t *testing.T) {
		cfg := validConfig()
		cfg.EncryptionSecret = ""
		assert.ErrorIs(t, cfg.Validate(), ErrMissingEncryptionSecret)
	})

	t.Run("negative retention", func(t *testing.T) {
		cfg := validConfig()
		cfg.Pipeline.Retention = -time.Hour
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidRetention)
	})

	t.Run("zero retention is defaulted, not rejected", func(t *testing.T) {
		cfg := validConfig()
		cfg.Pipeline.Retention = 0
		assert.NoError(t, cfg.Validate())
	})
}

func TestConfig_SetDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	assert.Equal(t, 24*time.Hour, cfg.Pipeline.Retention)
	assert.Equal(t, 24*time.Hour, cfg.Pipeline.MaxNonterminalAge)
	assert.EqualValues(t, 100, cfg.Pipeline.ReaperScanBatch)
	assert.Equal(t, 100, cfg.Worker.PoolSize)
	assert.Equal(t, 5*time.Minute, cfg.Tasks.CleanupInterval)
	assert.Equal(t, 10*time.Minute, cfg.Tasks.HealthInterval)
	assert.Equal(t, time.Minute, cfg.Tasks.MetricsInterval)
}

func TestConfig_SetDefaults_KeepsExplicitValues(t *testing.T) {
	var cfg Config
	cfg.Pipeline.Retention = time.Hour
	cfg.Worker.PoolSize = 8
	cfg.SetDefaults()

	assert.Equal(t, time.Hour, cfg.Pipeline.Retention)
	assert.Equal(t, 8, cfg.Worker.PoolSize)
}
