// Package tracker keeps running statistics about the poll loop.
//
// It is fed only by event bus copies (cycle reports and delivery events), so
// it can never disturb the loop's cursor or notification state.
package tracker

import (
	"context"
	"sync"
	"time"

	"hwbot/internal/eventbus"
	"hwbot/internal/notifier"
	"hwbot/internal/poller"
)

type Snapshot struct {
	StartedAt           time.Time               `json:"started_at"`
	Cycles              uint64                  `json:"cycles"`
	Outcomes            map[string]uint64       `json:"outcomes"`
	Cursor              int64                   `json:"cursor"`
	LastStatus          string                  `json:"last_status,omitempty"`
	LastCycle           *poller.CycleReport     `json:"last_cycle,omitempty"`
	LastAdvanceAt       time.Time               `json:"last_advance_at,omitempty"`
	LastNotifiedAt      time.Time               `json:"last_notified_at,omitempty"`
	ConsecutiveFailures int                     `json:"consecutive_failures"`
	Sent                uint64                  `json:"sent"`
	Failed              uint64                  `json:"failed"`
	LastDelivery        *notifier.DeliveryEvent `json:"last_delivery,omitempty"`
}

type Tracker struct {
	mu sync.Mutex
	s  Snapshot
}

func New(startedAt time.Time) *Tracker {
	return &Tracker{s: Snapshot{StartedAt: startedAt, Outcomes: map[string]uint64{}}}
}

// Run consumes bus events until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			t.Observe(ev)
		}
	}
}

func (t *Tracker) Observe(ev eventbus.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch d := ev.Data.(type) {
	case poller.CycleReport:
		t.s.Cycles++
		t.s.Outcomes[string(d.Outcome)]++
		t.s.Cursor = d.CursorAfter
		rep := d
		t.s.LastCycle = &rep
		if d.Outcome.Advances() {
			t.s.ConsecutiveFailures = 0
			t.s.LastAdvanceAt = d.Started
		} else {
			t.s.ConsecutiveFailures++
		}
		if d.Outcome == poller.OutcomeNotified {
			t.s.LastStatus = d.Status
			t.s.LastNotifiedAt = d.Started
		}
	case notifier.DeliveryEvent:
		switch ev.Type {
		case eventbus.TypeNotifierSent:
			t.s.Sent++
		case eventbus.TypeNotifierFailed:
			t.s.Failed++
		}
		de := d
		t.s.LastDelivery = &de
	}
}

// Snapshot returns a deep copy.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.s
	out.Outcomes = make(map[string]uint64, len(t.s.Outcomes))
	for k, v := range t.s.Outcomes {
		out.Outcomes[k] = v
	}
	if t.s.LastCycle != nil {
		c := *t.s.LastCycle
		out.LastCycle = &c
	}
	if t.s.LastDelivery != nil {
		d := *t.s.LastDelivery
		out.LastDelivery = &d
	}
	return out
}
