package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"hwbot/internal/heartbeat"
	logx "hwbot/pkg/logx"
)

// ErrMissingCredentials is returned (wrapped) by Load and Validate when any
// of the required secrets is absent. The message lists the missing names.
var ErrMissingCredentials = errors.New("missing required credentials")

// Environment variables overlaid on top of the file. The first name of each
// pair wins when both are set.
var (
	envPracticumToken = []string{"TOKEN_PRACTICUM", "PRACTICUM_TOKEN"}
	envTelegramToken  = []string{"TOKEN_TELEGRAM", "TELEGRAM_TOKEN"}
	envChatID         = []string{"CHAT_ID_TELEGRAM", "TELEGRAM_CHAT_ID"}
	envLogLevel       = []string{"HWBOT_LOG_LEVEL"}
)

const DefaultEnvFile = ".env"

type LoadOptions struct {
	// Path is the config file (.json, .yaml, .yml, .toml). Empty means
	// defaults plus environment only.
	Path string
	// EnvFile is a dotenv file read below the real environment. A missing
	// file is not an error.
	EnvFile string
	// Lookup reads the environment; nil means os.LookupEnv.
	Lookup func(string) (string, bool)
}

// Load builds the configuration: file, then dotenv, then environment, then
// defaults, then validation.
func Load(opts LoadOptions) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(opts.Path) != "" {
		c, err := ParseFile(opts.Path)
		if err != nil {
			return nil, err
		}
		cfg = c
	}

	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if opts.EnvFile != "" {
		dotenv, err := godotenv.Read(opts.EnvFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", opts.EnvFile, err)
		}
		lookup = layered(lookup, dotenv)
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseFile decodes a config file strictly: unknown keys and trailing data
// are errors.
func ParseFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	jb, format, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config %s (%s): %w", path, format, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("config %s: trailing data", path)
		}
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func layered(primary func(string) (string, bool), fallback map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		if v, ok := primary(k); ok {
			return v, true
		}
		v, ok := fallback[k]
		return v, ok
	}
}

func firstEnv(lookup func(string) (string, bool), names []string) (string, string, bool) {
	for _, n := range names {
		if v, ok := lookup(n); ok && strings.TrimSpace(v) != "" {
			return n, strings.TrimSpace(v), true
		}
	}
	return "", "", false
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if _, v, ok := firstEnv(lookup, envPracticumToken); ok {
		cfg.Practicum.Token = v
	}
	if _, v, ok := firstEnv(lookup, envTelegramToken); ok {
		cfg.Telegram.Token = v
	}
	if name, v, ok := firstEnv(lookup, envChatID); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid chat id %q", name, v)
		}
		cfg.Telegram.ChatID = id
	}
	if _, v, ok := firstEnv(lookup, envLogLevel); ok {
		cfg.Logging.Level = v
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Console == nil {
		on := true
		cfg.Logging.Console = &on
	}
	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = "none"
	}
	if cfg.Notifier.RatePerSec <= 0 {
		cfg.Notifier.RatePerSec = 1
	}
	if cfg.Notifier.RetryMax == nil {
		n := 3
		cfg.Notifier.RetryMax = &n
	}
	if strings.TrimSpace(string(cfg.Poll.StartFrom)) == "" {
		cfg.Poll.StartFrom = "now"
	}
}

// Validate checks a fully overlaid config. Missing secrets are reported
// first, all at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	var missing []string
	if strings.TrimSpace(cfg.Practicum.Token) == "" {
		missing = append(missing, envPracticumToken[0])
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		missing = append(missing, envTelegramToken[0])
	}
	if cfg.Telegram.ChatID == 0 {
		missing = append(missing, envChatID[0])
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}

	durations := []struct{ path, raw string }{
		{"practicum.request_timeout", cfg.Practicum.RequestTimeout},
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"poll.interval", cfg.Poll.Interval},
		{"notifier.retry_base", cfg.Notifier.RetryBase},
		{"notifier.retry_max_delay", cfg.Notifier.RetryMaxDelay},
		{"notifier.send_timeout", cfg.Notifier.SendTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}
	if _, err := cfg.Poll.StartFrom.Cursor(0); err != nil {
		return err
	}
	if cfg.Notifier.RetryMax != nil && *cfg.Notifier.RetryMax < 0 {
		return errors.New("notifier.retry_max: must be >= 0")
	}

	if !logx.ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if lvl := cfg.Logging.Telegram.MinLevel; lvl != "" && !logx.ValidLevel(lvl) {
		return fmt.Errorf("logging.telegram.min_level: unknown level %q", lvl)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "none":
	case "file", "sqlite":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return fmt.Errorf("storage.path: required for driver %q", cfg.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}

	if tz := strings.TrimSpace(cfg.Heartbeat.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("heartbeat.timezone: %w", err)
		}
	}
	if sched := strings.TrimSpace(cfg.Heartbeat.Schedule); sched != "" {
		if _, err := heartbeat.Parser().Parse(sched); err != nil {
			return fmt.Errorf("heartbeat.schedule %q: %w", sched, err)
		}
	}
	return nil
}

// Redacted returns a copy safe to print: secrets are masked.
func (c *Config) Redacted() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Practicum.Token = mask(c.Practicum.Token)
	out.Telegram.Token = mask(c.Telegram.Token)
	return &out
}

func mask(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "***"
}
