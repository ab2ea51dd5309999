package notifier

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"hwbot/internal/eventbus"
	"hwbot/internal/metrics"
	"hwbot/internal/storage"
	kit "hwbot/internal/transport"
	logx "hwbot/pkg/logx"
)

var ErrEmptyMessage = errors.New("notifier: empty message")

const historySize = 50

// Service is safe for concurrent use; the poll loop and the heartbeat both
// send through it.
type Service struct {
	cfg     Config
	limiter *rate.Limiter

	sender kit.Sender
	log    logx.Logger
	bus    eventbus.Bus
	store  storage.Store

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	return &Service{
		cfg: cfg,
		// Token bucket: burst = rate per sec, so short spikes don't block too hard.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		sender:  sender,
		log:     log,
		bus:     bus,
		store:   store,
	}
}

// Send delivers text to the configured chat.
func (s *Service) Send(ctx context.Context, text string) (Ack, error) {
	return s.Deliver(ctx, Message{Text: text})
}

// SendTo delivers text to an explicit chat.
func (s *Service) SendTo(ctx context.Context, to kit.ChatTarget, text string) (Ack, error) {
	return s.Deliver(ctx, Message{Target: to, Text: text})
}

// Deliver sends m with retries. Failure is logged here and returned as
// *DeliveryError for the caller's bookkeeping.
func (s *Service) Deliver(ctx context.Context, m Message) (Ack, error) {
	to := m.Target
	if to.IsZero() {
		to = s.cfg.Target
	}
	if strings.TrimSpace(m.Text) == "" {
		return Ack{}, ErrEmptyMessage
	}
	log := s.log.With(logx.Int64("chat_id", to.ChatID))
	if m.CycleID != "" {
		log = log.With(logx.String("cycle", m.CycleID))
	}

	start := time.Now()
	maxAttempts := 1 + s.cfg.RetryMax
	var (
		ref      kit.MessageRef
		lastErr  error
		attempts int
	)
	for attempts < maxAttempts {
		attempts++
		if err := s.limiter.Wait(ctx); err != nil {
			lastErr = err
			break
		}

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
		t0 := time.Now()
		r, err := s.sender.SendText(callCtx, to, m.Text, &kit.SendOptions{DisablePreview: true})
		cancel()
		if err == nil {
			metrics.NotificationSendDuration.WithLabelValues("sent").Observe(time.Since(t0).Seconds())
			ref, lastErr = r, nil
			break
		}
		metrics.NotificationSendDuration.WithLabelValues("failed").Observe(time.Since(t0).Seconds())
		lastErr = err
		log.Debug("notify send failed", logx.Err(err), logx.Int("attempt", attempts), logx.Int("max", maxAttempts))

		if attempts >= maxAttempts || ctx.Err() != nil {
			break
		}
		if !sleepCtx(ctx, retryDelay(s.cfg, attempts)) {
			lastErr = ctx.Err()
			break
		}
	}
	took := time.Since(start)

	ev := DeliveryEvent{
		ChatID:   to.ChatID,
		ThreadID: to.ThreadID,
		CycleID:  m.CycleID,
		Status:   m.Status,
		Attempts: attempts,
		Took:     took,
	}
	rec := storage.Delivery{
		At:        start,
		CycleID:   m.CycleID,
		ChatID:    to.ChatID,
		ThreadID:  to.ThreadID,
		Status:    m.Status,
		Text:      m.Text,
		Delivered: lastErr == nil,
		Attempts:  attempts,
		TookMS:    took.Milliseconds(),
	}
	s.appendHistory(HistoryItem{At: start, Status: m.Status, Text: m.Text, Delivered: lastErr == nil})

	if lastErr != nil {
		ev.Error = lastErr.Error()
		rec.Error = lastErr.Error()
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		s.publish(eventbus.TypeNotifierFailed, ev)
		s.journal(ctx, rec)
		log.Warn("notification not delivered", logx.Err(lastErr), logx.Int("attempts", attempts), logx.Duration("took", took))
		return Ack{Attempts: attempts, Took: took}, &DeliveryError{Target: to, Attempts: attempts, Err: lastErr}
	}

	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	s.publish(eventbus.TypeNotifierSent, ev)
	s.journal(ctx, rec)
	log.Info("notification delivered", logx.Int("message_id", ref.MessageID), logx.Int("attempts", attempts), logx.Duration("took", took))
	return Ack{Ref: ref, Attempts: attempts, Took: took}, nil
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(it HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, ev DeliveryEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}

// journal is best-effort; it runs even when ctx is already cancelled so a
// shutdown mid-delivery still leaves a record.
func (s *Service) journal(ctx context.Context, rec storage.Delivery) {
	if s.store == nil {
		return
	}
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.store.AppendDelivery(jctx, rec); err != nil {
		s.log.Debug("journal append failed", logx.Err(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1 (first attempt), delay is for the NEXT attempt.
	base := cfg.RetryBase
	maxD := cfg.RetryMaxDelay
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	// Jitter 0.7..1.3
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	d = time.Duration(float64(d) * (0.7 + rng.Float64()*0.6))
	if d > maxD {
		d = maxD
	}
	return d
}
