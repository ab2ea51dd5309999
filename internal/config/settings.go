package config

import (
	"strings"
	"time"
)

// Typed views over validated string fields. They fall back to the default
// on empty or invalid input; Validate is what reports bad values.

func durationOr(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationOrDefault("", raw, def)
	if err != nil {
		return def
	}
	return d
}

func (c *Config) PollInterval() time.Duration { return durationOr(c.Poll.Interval, 600*time.Second) }

func (c *Config) RequestTimeout() time.Duration {
	return durationOr(c.Practicum.RequestTimeout, 30*time.Second)
}

func (c *Config) TelegramTimeout() time.Duration {
	return durationOr(c.Telegram.PollTimeout, 15*time.Second)
}

func (c *Config) RetryBase() time.Duration {
	return durationOr(c.Notifier.RetryBase, 500*time.Millisecond)
}

func (c *Config) RetryMaxDelay() time.Duration {
	return durationOr(c.Notifier.RetryMaxDelay, 10*time.Second)
}

func (c *Config) SendTimeout() time.Duration { return durationOr(c.Notifier.SendTimeout, 15*time.Second) }

func (c *Config) BusyTimeout() time.Duration { return durationOr(c.Storage.BusyTimeout, 0) }

func (c *Config) RetryMax() int {
	if c.Notifier.RetryMax == nil {
		return 3
	}
	return *c.Notifier.RetryMax
}

func (c *Config) ConsoleLogging() bool { return c.Logging.Console == nil || *c.Logging.Console }

// LogChatID is where the Telegram log sink writes.
func (c *Config) LogChatID() int64 {
	if c.Telegram.LogChatID != 0 {
		return c.Telegram.LogChatID
	}
	return c.Telegram.ChatID
}

// Location is the heartbeat timezone, time.Local when unset.
func (c *Config) Location() *time.Location {
	tz := strings.TrimSpace(c.Heartbeat.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}
