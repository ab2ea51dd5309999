package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"hwbot/internal/config"
	"hwbot/internal/eventbus"
	"hwbot/internal/heartbeat"
	"hwbot/internal/notifier"
	"hwbot/internal/poller"
	"hwbot/internal/practicum"
	"hwbot/internal/runtime/supervisor"
	"hwbot/internal/statusapi"
	"hwbot/internal/storage"
	"hwbot/internal/tracker"
	kit "hwbot/internal/transport"
	"hwbot/internal/transport/telegram"
	logx "hwbot/pkg/logx"
	"hwbot/pkg/systemd"
)

var ErrAlreadyRunning = errors.New("another hwbot instance is already running")

type Options struct {
	ConfigPath string
	EnvFile    string
	Version    string

	// Sender replaces the Telegram adapter (tests, dry runs).
	Sender kit.Sender
	// HTTPClient is used for the homework API.
	HTTPClient *http.Client
	// Lookup replaces os.LookupEnv for the config overlay.
	Lookup func(string) (string, bool)
}

type App struct {
	opts     Options
	endpoint string

	cfgm *config.Manager
	sup  *supervisor.Supervisor
	lock *flock.Flock

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	notif *notifier.Service
	loop  *poller.Loop
	track *tracker.Tracker
	beat  *heartbeat.Service
}

// New loads configuration and builds every component. Missing credentials
// surface here as config.ErrMissingCredentials, before anything runs.
func New(opts Options) (*App, error) {
	cfgm := config.NewManager(config.LoadOptions{Path: opts.ConfigPath, EnvFile: opts.EnvFile, Lookup: opts.Lookup})
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	sender := opts.Sender
	if sender == nil {
		bootLog := logx.NewConsole("info").With(logx.String("comp", "telegram"))
		ad, err := telegram.New(telegram.Config{
			Token:          cfg.Telegram.Token,
			RequestTimeout: cfg.TelegramTimeout(),
		}, bootLog)
		if err != nil {
			return nil, err
		}
		sender = ad
	}

	// Bootstrap with the Telegram sink off, set its target, then apply the
	// final config so Apply never runs with an enabled sink and no target.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, sender)
	logSvc.SetTelegramTarget(kit.ChatTarget{ChatID: cfg.LogChatID()})
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	store, err := storage.Open(mapStorageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	// Everything opened so far is released on a later construction error.
	fail := func(err error) (*App, error) {
		if store != nil {
			_ = store.Close()
		}
		_ = logSvc.Close()
		return nil, err
	}
	if store != nil {
		log.Info("journal enabled", logx.String("driver", cfg.Storage.Driver), logx.String("path", cfg.Storage.Path))
	}

	notif := notifier.New(mapNotifierConfig(cfg), sender, log.With(logx.String("comp", "notifier")), bus, store)

	clientOpts := []practicum.ClientOption{practicum.WithTimeout(cfg.RequestTimeout())}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, practicum.WithHTTPClient(opts.HTTPClient))
	}
	client := practicum.NewClient(cfg.Practicum.Endpoint, cfg.Practicum.Token, clientOpts...)

	start, err := cfg.Poll.StartFrom.Cursor(time.Now().Unix())
	if err != nil {
		return fail(err)
	}
	loop := poller.New(poller.Config{Interval: cfg.PollInterval(), StartCursor: start},
		client, notif, log.With(logx.String("comp", "poller")), bus)

	track := tracker.New(time.Now())

	var beat *heartbeat.Service
	if strings.TrimSpace(cfg.Heartbeat.Schedule) != "" {
		beat, err = heartbeat.New(heartbeat.Config{
			Schedule: cfg.Heartbeat.Schedule,
			Notify:   cfg.Heartbeat.Notify,
			Target:   kit.ChatTarget{ChatID: cfg.LogChatID()},
			Location: cfg.Location(),
		}, track, notif, log.With(logx.String("comp", "heartbeat")), bus)
		if err != nil {
			return fail(err)
		}
	}

	a := &App{
		opts:     opts,
		endpoint: client.Endpoint(),
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		notif:    notif,
		loop:     loop,
		track:    track,
		beat:     beat,
	}
	if lf := strings.TrimSpace(cfg.Instance.LockFile); lf != "" {
		a.lock = flock.New(lf)
	}
	return a, nil
}

func (a *App) Config() *config.Config { return a.cfgm.Get() }

func (a *App) Loop() *poller.Loop { return a.loop }

// Done is closed when the app supervisor context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) acquireLock() error {
	if a.lock == nil {
		return nil
	}
	ok, err := a.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, a.lock.Path())
	}
	return nil
}

func (a *App) releaseLock() {
	if a.lock == nil {
		return
	}
	if err := a.lock.Unlock(); err != nil {
		a.log.Warn("failed to release instance lock", logx.Err(err))
	}
}

// Start launches the poll loop and every supporting goroutine. Errors that
// should stop the process (lock held, status port busy) are returned before
// the loop starts; afterwards only the poller can end the run.
func (a *App) Start(ctx context.Context) error {
	if err := a.acquireLock(); err != nil {
		return err
	}
	cfg := a.cfgm.Get()

	var statusLn net.Listener
	if addr := strings.TrimSpace(cfg.Status.Addr); addr != "" {
		ln, err := statusapi.Listen(addr)
		if err != nil {
			a.releaseLock()
			return err
		}
		statusLn = ln
	}

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.sup.GoOptional("tracker", func(c context.Context) error { return a.track.Run(c, a.bus) })
	a.sup.GoRestart("poller", a.loop.Run, supervisor.WithRestartBackoff(time.Second, time.Minute))

	if a.beat != nil {
		a.sup.GoRestart("heartbeat", a.beat.Run)
	}

	if statusLn != nil {
		statusLog := a.log.With(logx.String("comp", "statusapi"))
		h := statusapi.NewRouter(statusapi.Deps{
			Version:       a.opts.Version,
			Tracker:       a.track,
			Journal:       a.store,
			Goroutines:    func() any { return a.sup.Snapshot() },
			Notifications: a.notif.Snapshot,
			BusDropped:    func() uint64 { return eventbus.Dropped(a.bus) },
			Log:           statusLog,
			Pprof:         cfg.Status.Pprof,
		})
		a.sup.GoOptional("statusapi", func(c context.Context) error {
			return statusapi.Serve(c, statusLn, h, statusLog)
		})
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.GoOptional("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(4)
	a.sup.GoOptional("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.GoOptional("config.watch", a.cfgm.Watch)

	a.sup.GoOptional("systemd.watchdog", func(c context.Context) error {
		return systemd.RunWatchdog(c, a.healthy, a.log.With(logx.String("comp", "systemd")))
	})
	systemd.Ready()
	systemd.Status("polling")

	a.log.Info("app started",
		logx.String("version", a.opts.Version),
		logx.String("endpoint", a.endpoint),
		logx.Int64("chat_id", cfg.Telegram.ChatID),
		logx.Duration("interval", a.loop.Interval()),
		logx.Int64("cursor", a.loop.Cursor()),
	)
	return nil
}

// healthy gates watchdog pings: a loop that has not finished a cycle for
// two intervals plus slack is considered wedged.
func (a *App) healthy() bool {
	last, ok := a.loop.Last()
	if !ok {
		return true
	}
	limit := 2*a.loop.Interval() + 5*time.Minute
	return time.Since(last.Started) < limit
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			sections, attrs := config.SummarizeChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}

			var restart []string
			for _, s := range sections {
				if !config.LiveSections[s] {
					restart = append(restart, s)
				}
			}
			a.logs.SetTelegramTarget(kit.ChatTarget{ChatID: newCfg.LogChatID()})
			a.logs.Apply(mapLogConfig(newCfg))

			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
			if len(restart) > 0 {
				a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
			}
		}
	}
}

// RunOnce runs a single cycle without starting background services.
func (a *App) RunOnce(ctx context.Context) (poller.CycleReport, error) {
	if err := a.acquireLock(); err != nil {
		return poller.CycleReport{}, err
	}
	defer a.releaseLock()
	return a.loop.RunCycle(ctx), nil
}

// Stop cancels everything and releases resources. Safe after RunOnce
// without Start.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	systemd.Stopping()

	// Run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- fn(stepCtx) }()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Err(stepCtx.Err()))
		}
	}

	var runErr error
	if a.sup != nil {
		a.sup.Cancel()
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		runErr = a.sup.Wait(wctx)
		cancel()
		if errors.Is(runErr, context.DeadlineExceeded) {
			a.log.Warn("supervised goroutines did not stop in time")
			runErr = nil
		}
		a.releaseLock()
	}
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped", logx.Int64("cursor", a.loop.Cursor()))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	return runErr
}
