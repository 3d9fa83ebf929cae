// Package config holds the application configuration loaded from YAML
// and environment variables.
package config

import (
	"time"

	"github.com/maxbolgarin/hookflow/internal/server"
)

// Config represents the main application configuration
type Config struct {
	Server   server.Config  `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Services ServicesConfig `yaml:"services"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Worker   WorkerConfig   `yaml:"worker"`
	Tasks    TasksConfig    `yaml:"tasks"`

	// Secret protecting stored connection credentials.
	EncryptionSecret string `yaml:"encryption_secret" env:"ENCRYPTION_SECRET"`

	EnableMetrics bool `yaml:"enable_metrics" env:"ENABLE_METRICS"`
}

// RedisConfig points at the store and queue backend. An empty address selects
// the in-memory backend, which is only meant for local runs and tests.
type RedisConfig struct {
	Address  string `yaml:"address" env:"REDIS_ADDRESS"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// ServicesConfig holds per-service webhook settings.
type ServicesConfig struct {
	GitHub GitHubConfig `yaml:"github"`
	Slack  SlackConfig  `yaml:"slack"`
}

// GitHubConfig configures GitHub webhook intake.
type GitHubConfig struct {
	Enabled       bool   `yaml:"enabled" env:"GITHUB_ENABLED"`
	WebhookSecret string `yaml:"webhook_secret" env:"GITHUB_WEBHOOK_SECRET"`
	// Optional API token for installation lookups.
	APIToken string `yaml:"api_token" env:"GITHUB_API_TOKEN"`
}

// SlackConfig configures Slack webhook intake.
type SlackConfig struct {
	Enabled       bool   `yaml:"enabled" env:"SLACK_ENABLED"`
	SigningSecret string `yaml:"signing_secret" env:"SLACK_SIGNING_SECRET"`
}

// PipelineConfig controls pipeline retention and reaping.
type PipelineConfig struct {
	// How long terminal pipelines stay queryable before the reaper expires them.
	Retention time.Duration `yaml:"retention" env:"PIPELINE_RETENTION"`
	// Pipelines stuck in a non-terminal state longer than this are force-failed.
	MaxNonterminalAge time.Duration `yaml:"max_nonterminal_age" env:"PIPELINE_MAX_NONTERMINAL_AGE"`
	ReaperScanBatch   int64         `yaml:"reaper_scan_batch" env:"PIPELINE_REAPER_SCAN_BATCH"`
}

// WorkerConfig controls the task runner.
type WorkerConfig struct {
	PoolSize int `yaml:"pool_size" env:"WORKER_POOL_SIZE"`
}

// TasksConfig controls the periodic task schedule.
type TasksConfig struct {
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"TASKS_CLEANUP_INTERVAL"`
	HealthInterval  time.Duration `yaml:"health_interval" env:"TASKS_HEALTH_INTERVAL"`
	MetricsInterval time.Duration `yaml:"metrics_interval" env:"TASKS_METRICS_INTERVAL"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !c.Services.GitHub.Enabled && !c.Services.Slack.Enabled {
		return ErrNoServicesEnabled
	}
	if c.Services.GitHub.Enabled && c.Services.GitHub.WebhookSecret == "" {
		return ErrMissingGitHubSecret
	}
	if c.Services.Slack.Enabled && c.Services.Slack.SigningSecret == "" {
		return ErrMissingSlackSecret
	}
	if c.EncryptionSecret == "" {
		return ErrMissingEncryptionSecret
	}
	if c.Pipeline.Retention < 0 {
		return ErrInvalidRetention
	}
	return nil
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Pipeline.Retention == 0 {
		c.Pipeline.Retention = 24 * time.Hour
	}
	if c.Pipeline.MaxNonterminalAge == 0 {
		c.Pipeline.MaxNonterminalAge = 24 * time.Hour
	}
	if c.Pipeline.ReaperScanBatch == 0 {
		c.Pipeline.ReaperScanBatch = 100
	}

	if c.Worker.PoolSize == 0 {
		c.Worker.PoolSize = 100
	}

	if c.Tasks.CleanupInterval == 0 {
		c.Tasks.CleanupInterval = 5 * time.Minute
	}
	if c.Tasks.HealthInterval == 0 {
		c.Tasks.HealthInterval = 10 * time.Minute
	}
	if c.Tasks.MetricsInterval == 0 {
		c.Tasks.MetricsInterval = time.Minute
	}
}
