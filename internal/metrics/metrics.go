package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hwbot_poll_cycles_total",
			Help: "Poll cycles by outcome.",
		},
		[]string{"outcome"},
	)
	PollCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hwbot_poll_cycle_duration_seconds",
			Help:    "Duration of one fetch-validate-extract-notify cycle, sleep excluded.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	PollCursor = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hwbot_poll_cursor_seconds",
			Help: "Current from_date cursor (unix seconds).",
		},
	)
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hwbot_notifications_total",
			Help: "Notification send attempts by status.",
		},
		[]string{"status"},
	)
	NotificationSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hwbot_notification_send_duration_seconds",
			Help:    "Duration of Telegram send calls.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"},
	)
)
