package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks what can be checked without building services.
// Every problem is reported, joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	dur := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	dur("scheduler.interval", cfg.Scheduler.Interval)
	dur("scheduler.retention", cfg.Scheduler.Retention)
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}

	n := cfg.NotifierOrDefault()
	dur("notifier.retry_base", n.RetryBase)
	dur("notifier.retry_max_delay", n.RetryMaxDelay)
	dur("notifier.send_timeout", n.SendTimeout)
	dur("notifier.dedup_window", n.DedupWindow)
	if n.Workers < 0 || n.QueueSize < 0 || n.RetryMax < 0 || n.RatePerSec < 0 {
		errs = append(errs, errors.New("notifier: workers, queue_size, retry_max and rate_per_sec must be >= 0"))
	}

	if strings.TrimSpace(cfg.Telegram.Token) != "" && cfg.Telegram.ChatID == 0 {
		errs = append(errs, errors.New("telegram.chat_id is required when a token is set"))
	}
	dur("telegram.timeout", cfg.Telegram.Timeout)

	switch d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d {
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for driver %q", d))
		}
	case "", "memory", "mem":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	dur("storage.busy_timeout", cfg.Storage.BusyTimeout)

	return errors.Join(errs...)
}

// Location resolves scheduler.timezone, defaulting to the local zone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Scheduler.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}
