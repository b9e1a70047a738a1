package app

import (
	"fmt"
	"strings"
	"time"

	"duebot/internal/config"
	"duebot/internal/notifier"
	"duebot/internal/storage"
	"duebot/internal/task/scheduler"
	"duebot/internal/transport/telegram"
	"duebot/pkg/logx"
)

// DefaultStoragePath is used when storage.driver is omitted.
const DefaultStoragePath = "./data/duebot.db"

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	sc := cfg.Scheduler
	interval, err := config.ParseDurationOrDefault("scheduler.interval", sc.Interval, scheduler.DefaultInterval)
	if err != nil {
		return scheduler.Config{}, err
	}

	retention := scheduler.DefaultRetention
	if strings.TrimSpace(sc.Retention) != "" {
		if retention, err = config.ParseDurationField("scheduler.retention", sc.Retention); err != nil {
			return scheduler.Config{}, err
		}
	}

	resync := strings.TrimSpace(sc.ResyncInterval)
	switch strings.ToLower(resync) {
	case "":
		resync = scheduler.DefaultResync
	case "off", "none", "disabled":
		resync = ""
	}
	if resync != "" {
		if _, err := scheduler.ParseSchedule(resync, sc.Timezone); err != nil {
			return scheduler.Config{}, fmt.Errorf("scheduler.resync_interval: %w", err)
		}
	}

	return scheduler.Config{
		Enabled:   sc.Enabled,
		Interval:  interval,
		Resync:    resync,
		Retention: retention,
		Timezone:  strings.TrimSpace(sc.Timezone),
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.NotifierOrDefault()
	out := notifier.Config{
		Enabled:         n.Enabled,
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		Burst:           n.Burst,
		RetryMax:        n.RetryMax,
		DedupMaxEntries: n.DedupMaxEntries,
		HistorySize:     n.HistorySize,
	}
	var err error
	if n.Workers < 0 || n.QueueSize < 0 || n.RetryMax < 0 || n.RatePerSec < 0 {
		return notifier.Config{}, fmt.Errorf("notifier: negative values are not allowed")
	}
	if out.RetryBase, err = config.ParseDurationOrDefault("notifier.retry_base", n.RetryBase, 500*time.Millisecond); err != nil {
		return notifier.Config{}, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationOrDefault("notifier.retry_max_delay", n.RetryMaxDelay, 10*time.Second); err != nil {
		return notifier.Config{}, err
	}
	if out.SendTimeout, err = config.ParseDurationOrDefault("notifier.send_timeout", n.SendTimeout, 15*time.Second); err != nil {
		return notifier.Config{}, err
	}
	// "0s" disables dedup, so no default here.
	if out.DedupWindow, err = config.ParseDurationField("notifier.dedup_window", n.DedupWindow); err != nil {
		return notifier.Config{}, err
	}
	return out, nil
}

// mapTelegramConfig reports ok=false when no token is configured.
func mapTelegramConfig(cfg *config.Config) (telegram.Config, bool, error) {
	tc := cfg.Telegram
	if strings.TrimSpace(tc.Token) == "" {
		return telegram.Config{}, false, nil
	}
	timeout, err := config.ParseDurationOrDefault("telegram.timeout", tc.Timeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, false, err
	}
	return telegram.Config{
		Token:     strings.TrimSpace(tc.Token),
		ChatID:    tc.ChatID,
		ThreadID:  tc.ThreadID,
		ParseMode: strings.TrimSpace(tc.ParseMode),
		Timeout:   timeout,
		URL:       strings.TrimSpace(tc.URL),
	}, true, nil
}

func mapStorageConfig(cfg *config.Config, loc *time.Location) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	if driver == "" {
		driver = "file"
		if path == "" {
			path = DefaultStoragePath
		}
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	switch driver {
	case "file", "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
		}
	case "memory", "mem":
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", driver)
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: busy, Location: loc}, nil
}

// validateConfig rejects a reload that any service would refuse.
func validateConfig(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	if _, err := mapSchedulerConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapTelegramConfig(cfg); err != nil {
		return err
	}
	_, err = mapStorageConfig(cfg, loc)
	return err
}
