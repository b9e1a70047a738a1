package config

// Config is the on-disk configuration (JSON or YAML).
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Telegram  TelegramConfig  `json:"telegram"`
	Storage   StorageConfig   `json:"storage"`

	// Notifier may be omitted; it then runs enabled with defaults.
	Notifier *NotifierConfig `json:"notifier,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the reminder tick.
//
// Interval and Retention are Go duration strings. ResyncInterval accepts a
// cron expression, a Go duration or a daily "HH:MM"; empty means "5m" and
// "off" disables resync.
type SchedulerConfig struct {
	Enabled        bool   `json:"enabled"`
	Interval       string `json:"interval,omitempty"`
	ResyncInterval string `json:"resync_interval,omitempty"`
	Retention      string `json:"retention,omitempty"`

	// Timezone is an IANA name used to render and compute due dates.
	Timezone string `json:"timezone,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type NotifierConfig struct {
	Enabled         bool    `json:"enabled"`
	Workers         int     `json:"workers"`
	QueueSize       int     `json:"queue_size"`
	RatePerSec      float64 `json:"rate_per_sec"`
	Burst           int     `json:"burst,omitempty"`
	RetryMax        int     `json:"retry_max"`
	RetryBase       string  `json:"retry_base"`
	RetryMaxDelay   string  `json:"retry_max_delay"`
	SendTimeout     string  `json:"send_timeout,omitempty"`
	DedupWindow     string  `json:"dedup_window"`
	DedupMaxEntries int     `json:"dedup_max_entries"`
	HistorySize     int     `json:"history_size,omitempty"`
}

// TelegramConfig selects the Telegram sender. An empty token falls back to
// logging reminders only.
type TelegramConfig struct {
	Token     string `json:"token"`
	ChatID    int64  `json:"chat_id"`
	ThreadID  int    `json:"thread_id,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
	// Timeout is a Go duration string for Bot API requests.
	Timeout string `json:"timeout,omitempty"`
	// URL overrides the Bot API endpoint (self-hosted API servers).
	URL string `json:"url,omitempty"`
}

// StorageConfig controls task persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/duebot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// NotifierOrDefault returns the notifier section, filling in the defaults
// when the section was omitted.
func (c *Config) NotifierOrDefault() NotifierConfig {
	if c == nil || c.Notifier == nil {
		return defaultNotifier
	}
	return *c.Notifier
}

var defaultNotifier = NotifierConfig{
	Enabled:         true,
	Workers:         2,
	QueueSize:       256,
	RatePerSec:      1,
	Burst:           3,
	RetryMax:        3,
	RetryBase:       "500ms",
	RetryMaxDelay:   "10s",
	SendTimeout:     "15s",
	DedupWindow:     "1m",
	DedupMaxEntries: 2000,
	HistorySize:     100,
}
