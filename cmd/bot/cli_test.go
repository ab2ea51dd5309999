package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hwbot/internal/config"
	"hwbot/internal/poller"
)

// Not parallel: these tests set process environment.

var credentialEnv = []string{
	"TOKEN_PRACTICUM", "PRACTICUM_TOKEN",
	"TOKEN_TELEGRAM", "TELEGRAM_TOKEN",
	"CHAT_ID_TELEGRAM", "TELEGRAM_CHAT_ID",
	"HWBOT_LOG_LEVEL",
}

func setCredentials(t *testing.T, set bool) {
	t.Helper()
	for _, k := range credentialEnv {
		t.Setenv(k, "")
	}
	if set {
		t.Setenv("TOKEN_PRACTICUM", "practicum-secret-token")
		t.Setenv("TOKEN_TELEGRAM", "123456:telegram-secret")
		t.Setenv("CHAT_ID_TELEGRAM", "42")
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCheckConfigMasksSecrets(t *testing.T) {
	setCredentials(t, true)
	cfgPath := writeFile(t, "config.yaml", "poll:\n  interval: 5m\n")
	envPath := filepath.Join(t.TempDir(), "missing.env")

	out, err := runCLI(t, "check-config", "--config", cfgPath, "--env-file", envPath)
	if err != nil {
		t.Fatalf("check-config: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Fatalf("missing confirmation:\n%s", out)
	}
	if !strings.Contains(out, "poll.interval") || !strings.Contains(out, "5m") {
		t.Fatalf("poll.interval not listed:\n%s", out)
	}
	if strings.Contains(out, "practicum-secret-token") || strings.Contains(out, "telegram-secret") {
		t.Fatalf("secret leaked:\n%s", out)
	}
}

func TestCheckConfigJSON(t *testing.T) {
	setCredentials(t, true)
	envPath := filepath.Join(t.TempDir(), "missing.env")

	out, err := runCLI(t, "check-config", "--json", "--env-file", envPath)
	if err != nil {
		t.Fatalf("check-config --json: %v", err)
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("output is not config JSON: %v\n%s", err, out)
	}
	if cfg.Telegram.ChatID != 42 {
		t.Fatalf("chat_id = %d, want 42", cfg.Telegram.ChatID)
	}
	if cfg.Practicum.Token == "practicum-secret-token" {
		t.Fatal("practicum token not masked")
	}
}

func TestCheckConfigMissingCredentials(t *testing.T) {
	setCredentials(t, false)
	envPath := filepath.Join(t.TempDir(), "missing.env")

	_, err := runCLI(t, "check-config", "--env-file", envPath)
	if !errors.Is(err, config.ErrMissingCredentials) {
		t.Fatalf("err = %v, want ErrMissingCredentials", err)
	}
	for _, name := range []string{"TOKEN_PRACTICUM", "TOKEN_TELEGRAM", "CHAT_ID_TELEGRAM"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("error %q does not name %s", err, name)
		}
	}
}

func TestCheckConfigReadsDotenv(t *testing.T) {
	setCredentials(t, false)
	envPath := writeFile(t, ".env", "TOKEN_PRACTICUM=p\nTOKEN_TELEGRAM=t\nCHAT_ID_TELEGRAM=7\n")

	if _, err := runCLI(t, "check-config", "--env-file", envPath); err != nil {
		t.Fatalf("check-config with dotenv: %v", err)
	}
}

func TestOnceNoChange(t *testing.T) {
	setCredentials(t, true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "OAuth practicum-secret-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"homeworks":[],"current_date":1700000100}`))
	}))
	defer srv.Close()

	cfgPath := writeFile(t, "config.json", fmt.Sprintf(`{
  "practicum": {"endpoint": %q},
  "poll": {"start_from": 1700000000},
  "logging": {"level": "error", "console": false}
}`, srv.URL))
	envPath := filepath.Join(t.TempDir(), "missing.env")

	out, err := runCLI(t, "once", "--json", "--config", cfgPath, "--env-file", envPath)
	if err != nil {
		t.Fatalf("once: %v\n%s", err, out)
	}
	var rep poller.CycleReport
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if rep.Outcome != poller.OutcomeNoChange || rep.CursorBefore != 1700000000 || rep.CursorAfter != 1700000100 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestOnceTransportErrorFails(t *testing.T) {
	setCredentials(t, true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfgPath := writeFile(t, "config.json", fmt.Sprintf(`{
  "practicum": {"endpoint": %q},
  "logging": {"level": "error", "console": false}
}`, srv.URL))
	envPath := filepath.Join(t.TempDir(), "missing.env")

	out, err := runCLI(t, "once", "--config", cfgPath, "--env-file", envPath)
	if err == nil || !strings.Contains(err.Error(), string(poller.OutcomeTransportError)) {
		t.Fatalf("err = %v, want transport_error", err)
	}
	if !strings.Contains(out, "transport_error") {
		t.Fatalf("table missing outcome:\n%s", out)
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	t.Parallel()
	out := renderTable([]string{"A", "B"}, [][]string{{"only"}}, nil)
	if !strings.Contains(out, "only") || !strings.Contains(out, "A") {
		t.Fatalf("unexpected table:\n%s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("empty headers should render nothing")
	}
}
