// Package systemd wraps sd_notify for Type=notify units. Every call is a
// no-op when the process is not started by systemd.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "hwbot/pkg/logx"
)

// Ready tells systemd startup finished. It reports whether a notify socket
// was present.
func Ready() bool { return notify(daemon.SdNotifyReady) }

func Stopping() bool { return notify(daemon.SdNotifyStopping) }

func Status(s string) bool { return notify("STATUS=" + s) }

func notify(state string) bool {
	ok, err := daemon.SdNotify(false, state)
	return ok && err == nil
}

// WatchdogInterval is half of WATCHDOG_USEC, or 0 when the watchdog is off.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// RunWatchdog pings the watchdog until ctx is cancelled. alive gates each
// ping so a wedged process stops petting the dog.
func RunWatchdog(ctx context.Context, alive func() bool, log logx.Logger) error {
	every := WatchdogInterval()
	if every <= 0 {
		<-ctx.Done()
		return nil
	}
	log.Debug("systemd watchdog enabled", logx.Duration("every", every))
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if alive != nil && !alive() {
				log.Warn("skipping watchdog ping: not healthy")
				continue
			}
			notify(daemon.SdNotifyWatchdog)
		}
	}
}
