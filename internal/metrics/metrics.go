package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "btcpulse",
			Name:      "events_handled_total",
			Help:      "Stream events handled by type",
		},
		[]string{"type"},
	)
	SnapshotUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "btcpulse",
		Name:      "snapshot_updates_total",
		Help:      "Mini ticker updates applied to the snapshot",
	})
	LastPrice = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "btcpulse",
		Name:      "last_price",
		Help:      "Last price seen on the mini ticker stream",
	})

	ChatRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "btcpulse",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Chat replies by outcome",
		},
		[]string{"status"},
	)
	ChatLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "btcpulse",
		Subsystem: "chat",
		Name:      "generate_seconds",
		Help:      "Text generation latency",
		Buckets:   []float64{.25, .5, 1, 2, 4, 8, 16, 32},
	})

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "btcpulse",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code",
		},
		[]string{"route", "method", "code"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "btcpulse",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

var registerOnce sync.Once

// Register registers the application collectors once.
func Register(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			EventsHandled,
			SnapshotUpdates,
			LastPrice,
			ChatRequests,
			ChatLatency,
			HTTPRequests,
			HTTPDuration,
		)
	})
}
