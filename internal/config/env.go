package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment overrides. Secrets belong here, not in the config file.
const (
	EnvTelegramToken  = "DUEBOT_TELEGRAM_TOKEN"
	EnvTelegramChatID = "DUEBOT_TELEGRAM_CHAT_ID"
	EnvTimezone       = "DUEBOT_TIMEZONE"
)

// LoadDotEnv loads each existing file into the process environment.
// Variables already set win; missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return err
		}
	}
	return nil
}

// applyEnv overlays environment overrides onto cfg.
func applyEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv(EnvTelegramToken)); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(getenv(EnvTelegramChatID)); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errors.New(EnvTelegramChatID + ": not an integer")
		}
		cfg.Telegram.ChatID = id
	}
	if v := strings.TrimSpace(getenv(EnvTimezone)); v != "" {
		cfg.Scheduler.Timezone = v
	}
	return nil
}
