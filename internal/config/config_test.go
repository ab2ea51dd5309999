package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

var fullEnv = map[string]string{
	"TOKEN_PRACTICUM":  "practicum-secret",
	"TOKEN_TELEGRAM":   "123:telegram-secret",
	"CHAT_ID_TELEGRAM": "42",
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadEnvOnly(t *testing.T) {
	t.Parallel()
	cfg, err := Load(LoadOptions{Lookup: envMap(fullEnv)})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Practicum.Token != "practicum-secret" || cfg.Telegram.Token != "123:telegram-secret" || cfg.Telegram.ChatID != 42 {
		t.Fatalf("credentials not applied: %+v", cfg)
	}
	if cfg.PollInterval() != 600*time.Second {
		t.Fatalf("interval = %v, want 600s", cfg.PollInterval())
	}
	if cfg.Logging.Level != "info" || !cfg.ConsoleLogging() || cfg.Storage.Driver != "none" || cfg.RetryMax() != 3 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cur, _ := cfg.Poll.StartFrom.Cursor(1234); cur != 1234 {
		t.Fatalf("default start cursor = %d, want now", cur)
	}
}

func TestLoadMissingCredentials(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		env     map[string]string
		missing []string
	}{
		{"all", map[string]string{}, []string{"TOKEN_PRACTICUM", "TOKEN_TELEGRAM", "CHAT_ID_TELEGRAM"}},
		{"chat id", map[string]string{"TOKEN_PRACTICUM": "a", "TOKEN_TELEGRAM": "b"}, []string{"CHAT_ID_TELEGRAM"}},
		{"blank token", map[string]string{"TOKEN_PRACTICUM": "  ", "TOKEN_TELEGRAM": "b", "CHAT_ID_TELEGRAM": "1"}, []string{"TOKEN_PRACTICUM"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(LoadOptions{Lookup: envMap(tt.env)})
			if !errors.Is(err, ErrMissingCredentials) {
				t.Fatalf("err = %v, want ErrMissingCredentials", err)
			}
			for _, n := range tt.missing {
				if !strings.Contains(err.Error(), n) {
					t.Fatalf("error %q does not name %s", err, n)
				}
			}
		})
	}
}

func TestLoadAlternateEnvNames(t *testing.T) {
	t.Parallel()
	cfg, err := Load(LoadOptions{Lookup: envMap(map[string]string{
		"PRACTICUM_TOKEN":  "p",
		"TELEGRAM_TOKEN":   "t",
		"TELEGRAM_CHAT_ID": "-100",
		"HWBOT_LOG_LEVEL":  "debug",
	})})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.ChatID != -100 || cfg.Logging.Level != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadBadChatID(t *testing.T) {
	t.Parallel()
	env := map[string]string{"TOKEN_PRACTICUM": "p", "TOKEN_TELEGRAM": "t", "CHAT_ID_TELEGRAM": "abc"}
	if _, err := Load(LoadOptions{Lookup: envMap(env)}); err == nil || errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("err = %v, want parse error", err)
	}
}

func TestLoadDotenvBelowEnvironment(t *testing.T) {
	t.Parallel()
	dotenv := writeFile(t, ".env", "TOKEN_PRACTICUM=from-dotenv\nTOKEN_TELEGRAM=from-dotenv\nCHAT_ID_TELEGRAM=7\n")
	cfg, err := Load(LoadOptions{
		EnvFile: dotenv,
		Lookup:  envMap(map[string]string{"TOKEN_TELEGRAM": "from-env"}),
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Practicum.Token != "from-dotenv" || cfg.Telegram.Token != "from-env" || cfg.Telegram.ChatID != 7 {
		t.Fatalf("cfg = %+v", cfg)
	}

	// A missing dotenv file is fine.
	if _, err := Load(LoadOptions{EnvFile: filepath.Join(t.TempDir(), "nope"), Lookup: envMap(fullEnv)}); err != nil {
		t.Fatalf("missing dotenv: %v", err)
	}
}

func TestLoadFormats(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{"config.json", `{"poll":{"interval":"30s","start_from":0},"storage":{"driver":"file","path":"j.jsonl"}}`},
		{"config.yaml", "poll:\n  interval: 30s\n  start_from: 0\nstorage:\n  driver: file\n  path: j.jsonl\n"},
		{"config.toml", "[poll]\ninterval = \"30s\"\nstart_from = 0\n\n[storage]\ndriver = \"file\"\npath = \"j.jsonl\"\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, tt.name, tt.body)
			cfg, err := Load(LoadOptions{Path: path, Lookup: envMap(fullEnv)})
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.PollInterval() != 30*time.Second || cfg.Storage.Driver != "file" {
				t.Fatalf("cfg = %+v", cfg)
			}
			if cur, err := cfg.Poll.StartFrom.Cursor(999); err != nil || cur != 0 {
				t.Fatalf("start cursor = %d, %v", cur, err)
			}
		})
	}
}

func TestLoadRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", `{"pol":{}}`},
		{"trailing data", `{} {}`},
		{"bad duration", `{"poll":{"interval":"soon"}}`},
		{"negative duration", `{"notifier":{"retry_base":"-1s"}}`},
		{"bad start", `{"poll":{"start_from":"yesterday"}}`},
		{"bad level", `{"logging":{"level":"loud"}}`},
		{"bad driver", `{"storage":{"driver":"redis"}}`},
		{"driver without path", `{"storage":{"driver":"sqlite"}}`},
		{"negative retry", `{"notifier":{"retry_max":-1}}`},
		{"bad timezone", `{"heartbeat":{"timezone":"Mars/Olympus"}}`},
		{"bad heartbeat schedule", `{"heartbeat":{"schedule":"every day"}}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, "config.json", tt.body)
			if _, err := Load(LoadOptions{Path: path, Lookup: envMap(fullEnv)}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestStartFromCursor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   StartFrom
		want int64
		err  bool
	}{
		{"", 50, false},
		{"now", 50, false},
		{"NOW", 50, false},
		{"zero", 0, false},
		{"1700000000", 1700000000, false},
		{"-1", 0, true},
		{"x", 0, true},
	}
	for _, tt := range tests {
		got, err := tt.in.Cursor(50)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("Cursor(%q) = %d, %v", tt.in, got, err)
		}
	}
}

func TestRedacted(t *testing.T) {
	t.Parallel()
	cfg, err := Load(LoadOptions{Lookup: envMap(fullEnv)})
	if err != nil {
		t.Fatal(err)
	}
	r := cfg.Redacted()
	if strings.Contains(r.Practicum.Token, "secret") || strings.Contains(r.Telegram.Token, "secret") {
		t.Fatalf("secrets leaked: %+v", r)
	}
	if cfg.Practicum.Token != "practicum-secret" {
		t.Fatal("Redacted modified the original")
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	a, _ := Load(LoadOptions{Lookup: envMap(fullEnv)})
	b, _ := Load(LoadOptions{Lookup: envMap(fullEnv)})
	if changed, _ := SummarizeChange(a, b); len(changed) != 0 {
		t.Fatalf("identical configs changed = %v", changed)
	}
	b.Logging.Level = "debug"
	b.Poll.Interval = "1m"
	changed, attrs := SummarizeChange(a, b)
	if strings.Join(changed, ",") != "poll,logging" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs")
	}
}

func TestManagerWatchReloads(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"logging":{"level":"info"}}`)
	m := NewManager(LoadOptions{Path: path, Lookup: envMap(fullEnv)})
	m.debounce = 10 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher time to register before writing.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if err := os.WriteFile(path, []byte(`{"logging":{"level":"debug"}}`), 0o600); err != nil {
			t.Fatal(err)
		}
		select {
		case cfg := <-ch:
			if cfg.Logging.Level != "debug" || m.Get().Logging.Level != "debug" {
				t.Fatalf("reloaded level = %q", cfg.Logging.Level)
			}
			return
		case <-deadline:
			t.Fatal("no reload published")
		case <-tick.C:
		}
	}
}

func TestManagerRejectsInvalidReload(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{}`)
	m := NewManager(LoadOptions{Path: path, Lookup: envMap(fullEnv)})
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := os.WriteFile(path, []byte(`{"poll":{"interval":"never"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	m.reload()
	if m.Get().Poll.Interval != "" {
		t.Fatalf("invalid config was committed: %+v", m.Get().Poll)
	}
}
