package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config keeps runtime settings for the tracker.
type Config struct {
	DatabaseURL   string
	MediaDir      string
	TelegramToken string
	GenerateTime  string
	ReminderTime  string
	BackfillDays  int
	Location      *time.Location
}

// Load reads configuration from environment variables with sane defaults.
// The Telegram token is optional: without it the tracker runs headless,
// with only the scheduled generation jobs active.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		MediaDir:      strings.TrimSpace(os.Getenv("MEDIA_DIR")),
		TelegramToken: strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		GenerateTime:  strings.TrimSpace(os.Getenv("GENERATE_TIME")),
		ReminderTime:  strings.TrimSpace(os.Getenv("REMINDER_TIME")),
		BackfillDays:  parseDays(strings.TrimSpace(os.Getenv("BACKFILL_DAYS")), 7),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "family_tasks.db"
	}
	if cfg.MediaDir == "" {
		cfg.MediaDir = "media"
	}
	if cfg.GenerateTime == "" {
		cfg.GenerateTime = "00:05"
	}
	if cfg.ReminderTime == "" {
		cfg.ReminderTime = "08:00"
	}

	loc := time.Local
	if tz := strings.TrimSpace(os.Getenv("TIMEZONE")); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return cfg, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
		}
		loc = parsed
	}
	cfg.Location = loc

	return cfg, nil
}

func parseDays(raw string, def int) int {
	if raw == "" {
		return def
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 0 {
		return def
	}
	return days
}
