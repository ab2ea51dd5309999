package telegram

import (
	"context"
	"strings"
	"testing"

	kit "hwbot/internal/transport"
	logx "hwbot/pkg/logx"
)

func TestSplitTelegramTextShort(t *testing.T) {
	t.Parallel()
	got := splitTelegramText("Работа взята на проверку ревьюером.", 100)
	if len(got) != 1 {
		t.Fatalf("chunks = %d, want 1", len(got))
	}
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	line := strings.Repeat("я", 40)
	text := strings.Join([]string{line, line, line, line}, "\n")

	got := splitTelegramText(text, 100)
	if len(got) < 2 {
		t.Fatalf("expected split, got %d chunk(s)", len(got))
	}
	for i, c := range got {
		if n := len([]rune(c)); n > 100 {
			t.Fatalf("chunk %d has %d runes, limit 100", i, n)
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk %d keeps boundary newline: %q", i, c)
		}
	}
	if strings.Join(got, "\n") != text {
		t.Fatalf("rejoined chunks differ from input")
	}
}

func TestSendTextRejectsEmptyTarget(t *testing.T) {
	t.Parallel()
	a, err := New(Config{Token: "123:abc"}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.SendText(context.Background(), kit.ChatTarget{}, "hi", nil); err == nil {
		t.Fatal("expected error for empty chat target")
	}
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Token: "  "}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}
