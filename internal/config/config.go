// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"context"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// DataDir is the root directory for local store files.
	DataDir string `koanf:"data_dir"`

	// DataRepoURL points at the remote repository used to replicate store
	// files. Empty disables replication.
	DataRepoURL string `koanf:"data_repo_url"`

	// DataRepoBranch names the branch replicated store files live on.
	DataRepoBranch string `koanf:"data_repo_branch"`

	// DataRepoDir is the directory name of the local clone under DataDir.
	DataRepoDir string `koanf:"data_repo_dir"`

	// UseDataRepo toggles remote replication of store files.
	UseDataRepo bool `koanf:"use_data_repo"`

	// XPMin and XPMax bound the random XP gain for live activity.
	XPMin int `koanf:"xp_min"`
	XPMax int `koanf:"xp_max"`

	// BulkXPMin and BulkXPMax bound the random XP gain for historical
	// imports, where events are far less frequent.
	BulkXPMin int `koanf:"bulk_xp_min"`
	BulkXPMax int `koanf:"bulk_xp_max"`

	// CooldownSeconds is the minimum time between XP awards per user.
	CooldownSeconds int `koanf:"cooldown_seconds"`

	// MigrationBatchSize controls how many imported records are written
	// per store snapshot during bulk imports.
	MigrationBatchSize int `koanf:"migration_batch_size"`

	// Mee6BaseURL is the leaderboard API consulted by the Mee6 import.
	Mee6BaseURL string `koanf:"mee6_base_url"`

	// DiscordToken authenticates the Discord gateway session.
	DiscordToken string `koanf:"discord_token"`

	// SubredditName is the single forum the Reddit side of the bot is
	// bound to. The community id is resolved from it at startup.
	SubredditName string `koanf:"subreddit_name"`

	// SubredditID overrides resolution of SubredditName when set.
	SubredditID string `koanf:"subreddit_id"`

	// RedditClientID, RedditClientSecret, RedditUsername and RedditPassword
	// authenticate the Reddit API client. All empty means read-only mode.
	RedditClientID     string `koanf:"reddit_client_id"`
	RedditClientSecret string `koanf:"reddit_client_secret"`
	RedditUsername     string `koanf:"reddit_username"`
	RedditPassword     string `koanf:"reddit_password"`

	// MetricsAddr configures the Prometheus endpoint listen address.
	MetricsAddr string `koanf:"metrics_addr"`

	// SyncIntervalSeconds controls the periodic durable sync task.
	SyncIntervalSeconds int `koanf:"sync_interval_seconds"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention; it is reserved for future use.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		DataDir:             "data",
		DataRepoURL:         "",
		DataRepoBranch:      "master",
		DataRepoDir:         "rank-data",
		UseDataRepo:         false,
		XPMin:               15,
		XPMax:               25,
		BulkXPMin:           150,
		BulkXPMax:           250,
		CooldownSeconds:     60,
		MigrationBatchSize:  100,
		Mee6BaseURL:         "https://mee6.xyz/api/plugins/levels",
		MetricsAddr:         ":9090",
		SyncIntervalSeconds: 300,
	}
}
