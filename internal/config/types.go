package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Config is the whole hwbot configuration. It is built once by Load and
// passed down explicitly; nothing below cmd/ reads the environment.
//
// Durations are Go duration strings ("30s", "10m").
type Config struct {
	Practicum PracticumConfig `json:"practicum"`
	Telegram  TelegramConfig  `json:"telegram"`
	Poll      PollConfig      `json:"poll"`
	Notifier  NotifierConfig  `json:"notifier"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	Status    StatusConfig    `json:"status"`
	Instance  InstanceConfig  `json:"instance"`
}

type PracticumConfig struct {
	Endpoint       string `json:"endpoint,omitempty"`
	Token          string `json:"token,omitempty"` // secret; usually from TOKEN_PRACTICUM
	RequestTimeout string `json:"request_timeout,omitempty"`
}

type TelegramConfig struct {
	Token     string `json:"token,omitempty"` // secret; usually from TOKEN_TELEGRAM
	ChatID    int64  `json:"chat_id,omitempty"`
	LogChatID int64  `json:"log_chat_id,omitempty"`
	// PollTimeout bounds a single Bot API request.
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// PollConfig controls the poll loop.
//
// Defaults:
//   - interval: "600s"
//   - start_from: "now"
type PollConfig struct {
	Interval  string    `json:"interval,omitempty"`
	StartFrom StartFrom `json:"start_from,omitempty"`
}

// StartFrom selects the initial cursor: "now", "zero" or unix seconds.
// Both 1700000000 and "1700000000" are accepted.
type StartFrom string

func (s *StartFrom) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = StartFrom(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("start_from: want \"now\", \"zero\" or an integer: %w", err)
	}
	*s = StartFrom(n.String())
	return nil
}

// Cursor resolves the initial cursor relative to now (unix seconds).
func (s StartFrom) Cursor(now int64) (int64, error) {
	v := strings.ToLower(strings.TrimSpace(string(s)))
	switch v {
	case "", "now":
		return now, nil
	case "zero":
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("poll.start_from: invalid value %q", string(s))
	}
	if n < 0 {
		return 0, fmt.Errorf("poll.start_from: must be >= 0")
	}
	return n, nil
}

// NotifierConfig controls delivery pacing and retries.
//
// Defaults: rate_per_sec 1, retry_max 3, retry_base "500ms",
// retry_max_delay "10s", send_timeout "15s".
type NotifierConfig struct {
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      *int   `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level,omitempty"`
	Console  *bool           `json:"console,omitempty"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// LoggingTelegram mirrors warnings and errors to telegram.log_chat_id
// (or telegram.chat_id when unset).
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the optional delivery journal.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/hwbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // none | file | sqlite
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// HeartbeatConfig schedules a periodic summary. An empty schedule disables it.
type HeartbeatConfig struct {
	Schedule string `json:"schedule,omitempty"` // cron spec, e.g. "0 9 * * *" or "@every 6h"
	Notify   bool   `json:"notify"`
	Timezone string `json:"timezone,omitempty"`
}

// StatusConfig enables the HTTP status server when Addr is set.
// Prefer a loopback address ("127.0.0.1:8080").
type StatusConfig struct {
	Addr string `json:"addr,omitempty"`
	// Pprof mounts net/http/pprof under /debug on the same listener.
	Pprof bool `json:"pprof,omitempty"`
}

type InstanceConfig struct {
	LockFile string `json:"lock_file,omitempty"`
}
