// Package heartbeat sends a periodic summary of poll loop health on a cron
// schedule. The summary is always logged; it is sent to the chat only when
// notify is enabled.
package heartbeat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"

	"hwbot/internal/eventbus"
	"hwbot/internal/notifier"
	"hwbot/internal/tracker"
	kit "hwbot/internal/transport"
	logx "hwbot/pkg/logx"
)

type Config struct {
	Schedule string
	Notify   bool
	// Target receives the report when Notify is set (telegram.log_chat_id).
	Target   kit.ChatTarget
	Location *time.Location
}

type Source interface {
	Snapshot() tracker.Snapshot
}

type Sender interface {
	SendTo(ctx context.Context, to kit.ChatTarget, text string) (notifier.Ack, error)
}

// Report is the bus payload for heartbeat.report.
type Report struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

type Service struct {
	cfg    Config
	parser cron.Parser
	src    Source
	send   Sender
	log    logx.Logger
	bus    eventbus.Bus
	now    func() time.Time
}

// Parser accepts five-field specs with an optional seconds field, plus
// descriptors such as "@hourly" and "@every 6h".
func Parser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

func New(cfg Config, src Source, send Sender, log logx.Logger, bus eventbus.Bus) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	p := Parser()
	if _, err := p.Parse(strings.TrimSpace(cfg.Schedule)); err != nil {
		return nil, fmt.Errorf("heartbeat.schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.Notify && send == nil {
		return nil, fmt.Errorf("heartbeat: notify enabled without a sender")
	}
	if cfg.Notify && cfg.Target.IsZero() {
		return nil, fmt.Errorf("heartbeat: notify enabled without a target chat")
	}
	return &Service{cfg: cfg, parser: p, src: src, send: send, log: log, bus: bus, now: time.Now}, nil
}

// Run starts the cron schedule and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(s.cfg.Location))
	if _, err := c.AddFunc(strings.TrimSpace(s.cfg.Schedule), func() { s.Beat(ctx) }); err != nil {
		return err
	}
	c.Start()
	s.log.Info("heartbeat scheduled", logx.String("schedule", s.cfg.Schedule), logx.String("tz", s.cfg.Location.String()))

	<-ctx.Done()
	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn("heartbeat stop timed out")
	}
	return nil
}

// Beat builds and emits one report.
func (s *Service) Beat(ctx context.Context) string {
	now := s.now()
	text := Render(s.src.Snapshot(), now)
	s.log.Info("heartbeat", logx.String("report", text))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeHeartbeat, Time: now, Data: Report{At: now, Text: text}})
	}
	if s.cfg.Notify && ctx.Err() == nil {
		if _, err := s.send.SendTo(ctx, s.cfg.Target, text); err != nil {
			s.log.Warn("heartbeat not delivered", logx.Err(err))
		}
	}
	return text
}

func Render(snap tracker.Snapshot, now time.Time) string {
	var b strings.Builder
	b.WriteString("hwbot heartbeat\n")
	fmt.Fprintf(&b, "up since %s (%s)\n", snap.StartedAt.Format(time.RFC3339), humanize.RelTime(snap.StartedAt, now, "ago", "from now"))

	fmt.Fprintf(&b, "cycles: %s", humanize.Comma(int64(snap.Cycles)))
	if len(snap.Outcomes) > 0 {
		keys := make([]string, 0, len(snap.Outcomes))
		for k := range snap.Outcomes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s %d", k, snap.Outcomes[k]))
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
	}
	b.WriteByte('\n')

	if snap.Cursor > 0 {
		fmt.Fprintf(&b, "cursor: %d (%s)\n", snap.Cursor, humanize.RelTime(time.Unix(snap.Cursor, 0), now, "ago", "from now"))
	} else {
		fmt.Fprintf(&b, "cursor: %d\n", snap.Cursor)
	}
	if snap.LastStatus != "" {
		fmt.Fprintf(&b, "last status: %s, notified %s\n", snap.LastStatus, humanize.RelTime(snap.LastNotifiedAt, now, "ago", "from now"))
	} else {
		b.WriteString("last status: none\n")
	}
	fmt.Fprintf(&b, "deliveries: %d sent, %d failed\n", snap.Sent, snap.Failed)
	fmt.Fprintf(&b, "consecutive failures: %d", snap.ConsecutiveFailures)
	if snap.ConsecutiveFailures > 0 && snap.LastCycle != nil && snap.LastCycle.Error != "" {
		fmt.Fprintf(&b, "\nlast error: %s", snap.LastCycle.Error)
	}
	return b.String()
}
