// Package statusapi serves a small read-only HTTP surface for operators:
// liveness, a JSON status snapshot, recent deliveries and Prometheus metrics.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hwbot/internal/notifier"
	"hwbot/internal/storage"
	"hwbot/internal/tracker"
	logx "hwbot/pkg/logx"
)

type Tracker interface {
	Snapshot() tracker.Snapshot
}

// Deps are the read-only sources behind the handlers. Everything except
// Tracker may be nil. Pprof mounts the profiler under /debug.
type Deps struct {
	Version       string
	Tracker       Tracker
	Journal       storage.Store
	Goroutines    func() any
	Notifications func() []notifier.HistoryItem
	BusDropped    func() uint64
	Log           logx.Logger
	Pprof         bool
}

type statusResponse struct {
	Version       string                 `json:"version,omitempty"`
	Now           time.Time              `json:"now"`
	Tracker       tracker.Snapshot       `json:"tracker"`
	Goroutines    any                    `json:"goroutines,omitempty"`
	Notifications []notifier.HistoryItem `json:"notifications,omitempty"`
	BusDropped    uint64                 `json:"bus_dropped"`
}

func NewRouter(d Deps) http.Handler {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	if d.Pprof {
		r.Mount("/debug", middleware.Profiler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		resp := statusResponse{Version: d.Version, Now: time.Now()}
		if d.Tracker != nil {
			resp.Tracker = d.Tracker.Snapshot()
		}
		if d.Goroutines != nil {
			resp.Goroutines = d.Goroutines()
		}
		if d.Notifications != nil {
			resp.Notifications = d.Notifications()
		}
		if d.BusDropped != nil {
			resp.BusDropped = d.BusDropped()
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Get("/deliveries", func(w http.ResponseWriter, req *http.Request) {
		if d.Journal == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "journal disabled"})
			return
		}
		limit := 20
		if s := req.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 500 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be 1..500"})
				return
			}
			limit = n
		}
		items, err := d.Journal.RecentDeliveries(req.Context(), limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if items == nil {
			items = []storage.Delivery{}
		}
		writeJSON(w, http.StatusOK, items)
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", ww.Status()),
				logx.Duration("took", time.Since(start)),
				logx.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// Listen binds addr. It is separate from Serve so a busy port fails
// startup instead of a running process.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("status server: %w", err)
	}
	return ln, nil
}

// Serve accepts on ln until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, ln net.Listener, h http.Handler, log logx.Logger) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	log.Info("status server listening", logx.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	log.Info("status server stopped")
	return nil
}
