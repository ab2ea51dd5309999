package heartbeat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"hwbot/internal/eventbus"
	"hwbot/internal/notifier"
	"hwbot/internal/poller"
	"hwbot/internal/tracker"
	kit "hwbot/internal/transport"
	logx "hwbot/pkg/logx"
)

type staticSource tracker.Snapshot

func (s staticSource) Snapshot() tracker.Snapshot { return tracker.Snapshot(s) }

type recordSender struct {
	texts []string
	chats []int64
	err   error
}

func (r *recordSender) SendTo(_ context.Context, to kit.ChatTarget, text string) (notifier.Ack, error) {
	r.texts = append(r.texts, text)
	r.chats = append(r.chats, to.ChatID)
	return notifier.Ack{}, r.err
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleSnapshot() tracker.Snapshot {
	return tracker.Snapshot{
		StartedAt:           now.Add(-3 * time.Hour),
		Cycles:              1234,
		Outcomes:            map[string]uint64{"no_change": 1230, "notified": 1, "transport_error": 3},
		Cursor:              now.Add(-10 * time.Minute).Unix(),
		LastStatus:          "approved",
		LastNotifiedAt:      now.Add(-2 * time.Hour),
		Sent:                1,
		ConsecutiveFailures: 2,
		LastCycle:           &poller.CycleReport{Outcome: poller.OutcomeTransportError, Error: "homework api request: timeout"},
	}
}

func TestRender(t *testing.T) {
	t.Parallel()
	got := Render(sampleSnapshot(), now)
	for _, want := range []string{
		"up since 2026-03-01T09:00:00Z (3 hours ago)",
		"cycles: 1,234 (no_change 1230, notified 1, transport_error 3)",
		"(10 minutes ago)",
		"last status: approved, notified 2 hours ago",
		"deliveries: 1 sent, 0 failed",
		"consecutive failures: 2",
		"last error: homework api request: timeout",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}
}

func TestRenderEmpty(t *testing.T) {
	t.Parallel()
	got := Render(tracker.Snapshot{StartedAt: now}, now)
	if !strings.Contains(got, "last status: none") || !strings.Contains(got, "cursor: 0\n") {
		t.Fatalf("report:\n%s", got)
	}
	if strings.Contains(got, "last error") {
		t.Fatalf("unexpected error line:\n%s", got)
	}
}

func TestNewValidatesSchedule(t *testing.T) {
	t.Parallel()
	src := staticSource(sampleSnapshot())
	for _, spec := range []string{"0 9 * * *", "@hourly", "@every 6h", "*/30 * * * * *"} {
		if _, err := New(Config{Schedule: spec}, src, nil, logx.Nop(), nil); err != nil {
			t.Errorf("New(%q): %v", spec, err)
		}
	}
	if _, err := New(Config{Schedule: "every day"}, src, nil, logx.Nop(), nil); err == nil {
		t.Error("expected error for bad schedule")
	}
	if _, err := New(Config{Schedule: "@daily", Notify: true, Target: kit.ChatTarget{ChatID: 9}}, src, nil, logx.Nop(), nil); err == nil {
		t.Error("expected error for notify without sender")
	}
	if _, err := New(Config{Schedule: "@daily", Notify: true}, src, &recordSender{}, logx.Nop(), nil); err == nil {
		t.Error("expected error for notify without target")
	}
}

func TestBeat(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(1)
	defer unsub()
	snd := &recordSender{err: errors.New("down")}

	s, err := New(Config{Schedule: "@daily", Notify: true, Target: kit.ChatTarget{ChatID: 77}}, staticSource(sampleSnapshot()), snd, logx.Nop(), bus)
	if err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return now }

	text := s.Beat(context.Background())
	if len(snd.texts) != 1 || snd.texts[0] != text || snd.chats[0] != 77 {
		t.Fatalf("sent = %v to %v", snd.texts, snd.chats)
	}
	ev := <-ch
	if r, ok := ev.Data.(Report); ev.Type != eventbus.TypeHeartbeat || !ok || r.Text != text {
		t.Fatalf("event = %#v", ev)
	}
}

func TestRunStops(t *testing.T) {
	t.Parallel()
	s, err := New(Config{Schedule: "@every 1h"}, staticSource(sampleSnapshot()), nil, logx.Nop(), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("Run did not stop")
	}
}
