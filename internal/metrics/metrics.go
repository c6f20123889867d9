package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Commands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sia_commands_total",
			Help: "Transcripts interpreted, by matched rule",
		},
		[]string{"rule"},
	)

	CaptureErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sia_capture_errors_total",
			Help: "Recognition errors, by error code",
		},
		[]string{"code"},
	)

	AlarmsFired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sia_alarms_fired_total",
			Help: "Alarms announced by the sweeper",
		},
	)

	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "sia_fetch_latency_seconds",
			Help: "Weather and news lookup latency in seconds",
		},
		[]string{"kind"},
	)

	FeedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sia_feed_clients",
			Help: "Connected transcript feed clients",
		},
	)
)
