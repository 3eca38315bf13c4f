package binance

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	connectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "btcpulse",
			Subsystem: "binance_ws",
			Name:      "connects_total",
			Help:      "Connection attempts by status",
		},
		[]string{"status"},
	)
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "btcpulse",
			Subsystem: "binance_ws",
			Name:      "frames_total",
			Help:      "Decoded frames by event type",
		},
		[]string{"type"},
	)
	decodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "btcpulse",
			Subsystem: "binance_ws",
			Name:      "decode_errors_total",
			Help:      "Discarded frames by reason",
		},
		[]string{"kind"},
	)
	pingsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "btcpulse",
		Subsystem: "binance_ws",
		Name:      "pings_total",
		Help:      "Ping control frames answered",
	})
	connectionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "btcpulse",
		Subsystem: "binance_ws",
		Name:      "state",
		Help:      "Connection state (0 disconnected, 1 connecting, 2 open, 3 closing)",
	})

	registerOnce sync.Once
)

// RegisterMetrics registers the stream collectors once.
func RegisterMetrics(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(connectsTotal, framesTotal, decodeErrorsTotal, pingsTotal, connectionState)
	})
}
