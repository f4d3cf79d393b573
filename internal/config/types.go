package config

// Config is the root configuration for the announcement bot.
//
// The file may be JSON or YAML; both are decoded strictly (unknown fields
// are rejected). All durations are Go duration strings (e.g. "500ms", "72h").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`

	// Announce controls where drafts are reviewed and how sends present
	// themselves.
	Announce AnnounceConfig `json:"announce"`

	Dispatch  DispatchConfig   `json:"dispatch,omitempty"`
	Retention *RetentionConfig `json:"retention,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// PollTimeout is the long-poll timeout (Go duration string, default "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"` // trace|debug|info|warn|error
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Driver values:
//   - "sqlite": SQLite database file (default for deployments)
//   - "memory": in-process store (development, tests)
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// AnnounceConfig controls draft review defaults.
type AnnounceConfig struct {
	// ReviewChannel is the channel where previews are posted for approval.
	ReviewChannel string `json:"review_channel"`

	// Icon and Username optionally override how the announcement presents
	// itself when posted.
	Icon     string `json:"icon,omitempty"`
	Username string `json:"username,omitempty"`

	// SummaryLineBudget caps the per-outcome lines in the posted summary.
	// 0 means the platform default (48).
	SummaryLineBudget int `json:"summary_line_budget,omitempty"`
}

// DispatchConfig controls the fan-out send.
type DispatchConfig struct {
	// RatePerSec throttles outgoing posts across all destinations.
	// 0 means the default (10).
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// RetentionConfig controls the scheduled pruning of announcement audit
// records. If the whole section is omitted, retention is disabled and the
// audit trail grows unbounded.
type RetentionConfig struct {
	Enabled bool `json:"enabled"`

	// MaxAge is how long audit records are kept (default "2160h" = 90 days).
	MaxAge string `json:"max_age,omitempty"`

	// Schedule is a cron spec for the sweep (default "0 4 * * *").
	Schedule string `json:"schedule,omitempty"`
}
