package main

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus-side process metrics. Pipeline and detection metrics are
// emitted through the OpenTelemetry registry; these cover the resources
// the process itself holds, sampled at scrape time.

// registerPoolMetrics exposes the pgx pool's live counters.
func registerPoolMetrics(pool *pgxpool.Pool) {
	poolGauge := func(state string, read func(*pgxpool.Stat) float64) {
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "exmon",
			Subsystem:   "pgxpool",
			Name:        "connections",
			Help:        "Current number of connections in the pool",
			ConstLabels: prometheus.Labels{"state": state},
		}, func() float64 { return read(pool.Stat()) })
	}

	poolGauge("acquired", func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) })
	poolGauge("idle", func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) })
	poolGauge("total", func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) })

	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "exmon",
		Subsystem: "pgxpool",
		Name:      "max_conns",
		Help:      "Maximum number of connections in the pool",
	}, func() float64 { return float64(pool.Stat().MaxConns()) })

	promauto.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "exmon",
		Subsystem: "pgxpool",
		Name:      "acquire_count",
		Help:      "Total number of connection acquisitions",
	}, func() float64 { return float64(pool.Stat().AcquireCount()) })
}

// registerAlertMetrics exposes the live WebSocket subscriber count.
func registerAlertMetrics(count func() int) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "exmon",
		Subsystem: "alerts",
		Name:      "websocket_subscribers",
		Help:      "Connected alert WebSocket subscribers",
	}, func() float64 { return float64(count()) })
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
