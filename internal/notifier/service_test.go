package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hwbot/internal/eventbus"
	"hwbot/internal/storage"
	kit "hwbot/internal/transport"
	logx "hwbot/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	fails int
	calls []string
	to    []kit.ChatTarget
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	f.to = append(f.to, to)
	if f.fails != 0 {
		if f.fails > 0 {
			f.fails--
		}
		return kit.MessageRef{}, errors.New("telegram unavailable")
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.calls)}, nil
}

type memStore struct {
	mu   sync.Mutex
	recs []storage.Delivery
}

func (m *memStore) AppendDelivery(_ context.Context, d storage.Delivery) error {
	m.mu.Lock()
	m.recs = append(m.recs, d)
	m.mu.Unlock()
	return nil
}

func (m *memStore) RecentDeliveries(context.Context, int) ([]storage.Delivery, error) { return nil, nil }
func (m *memStore) Close() error                                                      { return nil }

func testConfig() Config {
	return Config{
		Target:        kit.ChatTarget{ChatID: 42},
		RatePerSec:    100,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 2 * time.Millisecond,
		SendTimeout:   time.Second,
	}
}

func TestDeliverSuccess(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()
	st := &memStore{}

	s := New(testConfig(), snd, logx.Nop(), bus, st)
	ack, err := s.Deliver(context.Background(), Message{Text: "hello", Status: "approved", CycleID: "c1"})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if ack.Attempts != 1 || ack.Ref.MessageID != 1 {
		t.Fatalf("ack = %+v", ack)
	}
	if len(snd.to) != 1 || snd.to[0].ChatID != 42 {
		t.Fatalf("sent to %+v, want configured chat", snd.to)
	}

	ev := <-ch
	if ev.Type != eventbus.TypeNotifierSent {
		t.Fatalf("event type = %q", ev.Type)
	}
	if d, ok := ev.Data.(DeliveryEvent); !ok || d.CycleID != "c1" || d.Status != "approved" {
		t.Fatalf("event data = %#v", ev.Data)
	}
	if len(st.recs) != 1 || !st.recs[0].Delivered || st.recs[0].Text != "hello" {
		t.Fatalf("journal = %+v", st.recs)
	}
	if h := s.Snapshot(); len(h) != 1 || !h[0].Delivered {
		t.Fatalf("history = %+v", h)
	}
}

func TestDeliverRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{fails: 2}
	s := New(testConfig(), snd, logx.Nop(), nil, nil)

	ack, err := s.Send(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ack.Attempts != 3 || len(snd.calls) != 3 {
		t.Fatalf("attempts = %d, calls = %d; want 3", ack.Attempts, len(snd.calls))
	}
}

func TestDeliverFailure(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{fails: -1}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()
	st := &memStore{}

	s := New(testConfig(), snd, logx.Nop(), bus, st)
	_, err := s.Deliver(context.Background(), Message{Text: "hello"})

	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *DeliveryError", err)
	}
	if de.Attempts != 3 || de.Target.ChatID != 42 {
		t.Fatalf("delivery error = %+v", de)
	}
	if ev := <-ch; ev.Type != eventbus.TypeNotifierFailed {
		t.Fatalf("event type = %q", ev.Type)
	}
	if len(st.recs) != 1 || st.recs[0].Delivered || st.recs[0].Error == "" {
		t.Fatalf("journal = %+v", st.recs)
	}
}

func TestDeliverExplicitTarget(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{}
	s := New(testConfig(), snd, logx.Nop(), nil, nil)

	if _, err := s.SendTo(context.Background(), kit.ChatTarget{ChatID: 7, ThreadID: 3}, "x"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if snd.to[0] != (kit.ChatTarget{ChatID: 7, ThreadID: 3}) {
		t.Fatalf("target = %+v", snd.to[0])
	}
}

func TestDeliverEmpty(t *testing.T) {
	t.Parallel()
	s := New(testConfig(), &fakeSender{}, logx.Nop(), nil, nil)
	if _, err := s.Send(context.Background(), "  \n"); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v, want ErrEmptyMessage", err)
	}
}

func TestDeliverCancelled(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.RetryBase = time.Hour
	cfg.RetryMaxDelay = time.Hour
	s := New(cfg, &fakeSender{fails: -1}, logx.Nop(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := s.Send(ctx, "hello")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRetryDelayBounds(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	tests := []struct {
		attempt  int
		min, max time.Duration
	}{
		{1, 70 * time.Millisecond, 130 * time.Millisecond},
		{2, 140 * time.Millisecond, 260 * time.Millisecond},
		{10, 700 * time.Millisecond, time.Second},
	}
	for _, tt := range tests {
		for i := 0; i < 20; i++ {
			d := retryDelay(cfg, tt.attempt)
			if d < tt.min || d > tt.max {
				t.Fatalf("retryDelay(%d) = %v, want [%v,%v]", tt.attempt, d, tt.min, tt.max)
			}
		}
	}
}
