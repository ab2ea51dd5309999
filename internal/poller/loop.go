// Package poller runs the fetch, validate, extract and notify cycle on a
// fixed period.
//
// The Loop owns the cursor and the last notified status. Nothing else reads
// or writes them; observers get CycleReport copies through the event bus.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"hwbot/internal/eventbus"
	"hwbot/internal/homework"
	"hwbot/internal/metrics"
	"hwbot/internal/notifier"
	logx "hwbot/pkg/logx"
)

const DefaultInterval = 600 * time.Second

type Fetcher interface {
	Fetch(ctx context.Context, cursor int64) (any, error)
}

type Notifier interface {
	Deliver(ctx context.Context, m notifier.Message) (notifier.Ack, error)
}

type Config struct {
	Interval    time.Duration
	StartCursor int64
}

type Loop struct {
	interval time.Duration
	fetcher  Fetcher
	notifier Notifier
	log      logx.Logger
	bus      eventbus.Bus

	mu         sync.Mutex
	cursor     int64
	lastStatus string
	last       CycleReport
	cycles     uint64
}

func New(cfg Config, f Fetcher, n Notifier, log logx.Logger, bus eventbus.Bus) *Loop {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.StartCursor < 0 {
		cfg.StartCursor = 0
	}
	metrics.PollCursor.Set(float64(cfg.StartCursor))
	return &Loop{
		interval: cfg.Interval,
		fetcher:  f,
		notifier: n,
		log:      log,
		bus:      bus,
		cursor:   cfg.StartCursor,
	}
}

func (l *Loop) Interval() time.Duration { return l.interval }

func (l *Loop) Cursor() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor
}

// LastStatus is the status code of the last dispatched notification, or "".
func (l *Loop) LastStatus() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastStatus
}

// Last returns the most recent cycle report and whether any cycle ran.
func (l *Loop) Last() (CycleReport, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.cycles > 0
}

// Run executes cycles separated by the configured interval until ctx is
// cancelled. Cycle failures never stop it.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("poll loop started",
		logx.Duration("interval", l.interval),
		logx.Int64("cursor", l.Cursor()),
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.RunCycle(ctx)

		t := time.NewTimer(l.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			l.log.Info("poll loop stopped", logx.Int64("cursor", l.Cursor()))
			return ctx.Err()
		case <-t.C:
		}
	}
}

// RunCycle runs exactly one cycle without sleeping.
func (l *Loop) RunCycle(ctx context.Context) CycleReport {
	l.mu.Lock()
	rep := CycleReport{
		ID:           uuid.NewString(),
		Started:      time.Now(),
		Stage:        StageFetch,
		CursorBefore: l.cursor,
	}
	lastStatus := l.lastStatus
	l.mu.Unlock()

	log := l.log.With(logx.String("cycle", rep.ID))
	rep = l.cycle(ctx, log, rep, lastStatus)
	rep.Duration = time.Since(rep.Started)

	l.mu.Lock()
	if rep.Outcome.Advances() {
		l.cursor = rep.CursorAfter
	}
	if rep.Outcome == OutcomeNotified {
		l.lastStatus = rep.Status
	}
	rep.CursorAfter = l.cursor
	l.last = rep
	l.cycles++
	l.mu.Unlock()

	metrics.PollCycles.WithLabelValues(string(rep.Outcome)).Inc()
	metrics.PollCycleDuration.Observe(rep.Duration.Seconds())
	metrics.PollCursor.Set(float64(rep.CursorAfter))
	if l.bus != nil {
		l.bus.Publish(eventbus.Event{Type: eventbus.TypeCycle, Time: time.Now(), Data: rep})
	}
	return rep
}

// cycle fills rep through the stages. On an advancing outcome rep.CursorAfter
// holds the server's current_date; the caller commits it.
func (l *Loop) cycle(ctx context.Context, log logx.Logger, rep CycleReport, lastStatus string) CycleReport {
	raw, err := l.fetcher.Fetch(ctx, rep.CursorBefore)
	if err != nil {
		rep.Outcome, rep.Error = OutcomeTransportError, err.Error()
		log.Error("fetch failed", logx.Err(err), logx.Int64("cursor", rep.CursorBefore))
		return rep
	}

	rep.Stage = StageValidate
	resp, err := homework.Validate(raw)
	if err != nil {
		rep.Outcome, rep.Error = OutcomeSchemaError, err.Error()
		log.Error("unexpected response shape", logx.Err(err))
		return rep
	}

	rep.Stage = StageExtract
	ex, err := homework.Extract(resp)
	if err != nil {
		rep.Error = err.Error()
		var unrec *homework.UnrecognizedStatusError
		if errors.As(err, &unrec) {
			rep.Outcome = OutcomeUnrecognizedStatus
			rep.Status, rep.Name = unrec.Status, unrec.Name
			log.Error("unrecognized homework status", logx.String("status", unrec.Status), logx.String("homework", unrec.Name))
			return rep
		}
		rep.Outcome = OutcomeSchemaError
		log.Error("unexpected homework shape", logx.Err(err))
		return rep
	}

	rep.CursorAfter = resp.CurrentDate
	if ex.Kind == homework.NoChange {
		rep.Outcome = OutcomeNoChange
		log.Debug("no status change", logx.Int64("current_date", resp.CurrentDate))
		return rep
	}

	rep.Status, rep.Name = ex.Status, ex.Name
	if ex.Status == lastStatus {
		rep.Outcome = OutcomeDuplicate
		log.Debug("status unchanged since last notification", logx.String("status", ex.Status))
		return rep
	}

	rep.Stage = StageNotify
	rep.Outcome = OutcomeNotified
	ack, err := l.notifier.Deliver(ctx, notifier.Message{Text: ex.Message, Status: ex.Status, CycleID: rep.ID})
	rep.Attempts = ack.Attempts
	if err != nil {
		// Delivery failure does not hold back the cursor or the status.
		rep.Error = err.Error()
		log.Warn("status change not delivered", logx.String("status", ex.Status), logx.Err(err))
		return rep
	}
	rep.Delivered = true
	log.Info("status change notified", logx.String("status", ex.Status), logx.String("homework", ex.Name))
	return rep
}
