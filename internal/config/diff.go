package config

import (
	"strings"

	logx "hwbot/pkg/logx"
)

// SummarizeChange returns the changed sections and safe structured attrs for
// logging. Secrets are never included; only whether they changed.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Practicum.Endpoint != newCfg.Practicum.Endpoint ||
		oldCfg.Practicum.RequestTimeout != newCfg.Practicum.RequestTimeout ||
		oldCfg.Practicum.Token != newCfg.Practicum.Token {
		changed = append(changed, "practicum")
		attrs = append(attrs, logx.Bool("practicum.token_changed", oldCfg.Practicum.Token != newCfg.Practicum.Token))
	}

	if oldCfg.Telegram.ChatID != newCfg.Telegram.ChatID ||
		oldCfg.Telegram.LogChatID != newCfg.Telegram.LogChatID ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		oldCfg.Telegram.Token != newCfg.Telegram.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int64("telegram.chat_id", newCfg.Telegram.ChatID),
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
		)
	}

	if oldCfg.Poll.Interval != newCfg.Poll.Interval || oldCfg.Poll.StartFrom != newCfg.Poll.StartFrom {
		changed = append(changed, "poll")
		attrs = append(attrs, logx.String("poll.interval", newCfg.Poll.Interval))
	}

	if oldCfg.Notifier.RatePerSec != newCfg.Notifier.RatePerSec ||
		oldCfg.RetryMax() != newCfg.RetryMax() ||
		oldCfg.Notifier.RetryBase != newCfg.Notifier.RetryBase ||
		oldCfg.Notifier.RetryMaxDelay != newCfg.Notifier.RetryMaxDelay ||
		oldCfg.Notifier.SendTimeout != newCfg.Notifier.SendTimeout {
		changed = append(changed, "notifier")
	}

	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.ConsoleLogging() != newCfg.ConsoleLogging() ||
		oldCfg.Logging.File != newCfg.Logging.File ||
		oldCfg.Logging.Telegram != newCfg.Logging.Telegram {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.ConsoleLogging()),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
	}
	if oldCfg.Heartbeat != newCfg.Heartbeat {
		changed = append(changed, "heartbeat")
	}
	if oldCfg.Status != newCfg.Status {
		changed = append(changed, "status")
	}
	if oldCfg.Instance != newCfg.Instance {
		changed = append(changed, "instance")
	}
	return changed, attrs
}

// LiveSections are applied without a restart.
var LiveSections = map[string]bool{"logging": true}
