// Package metrics exposes wallwatch's Prometheus registry: detector
// lifecycle events, stream throughput, and notifier delivery outcomes.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/histogram/gauge wallwatch exports.
type Metrics struct {
	WallEvents   *prometheus.CounterVec
	AlertsEmitted *prometheus.CounterVec

	SnapshotsProcessed *prometheus.CounterVec
	ProcessingLatency  *prometheus.HistogramVec

	StreamConnected   *prometheus.GaugeVec
	StreamReconnects  *prometheus.CounterVec
	TrackedInstruments *prometheus.GaugeVec

	NotifyDeliveries *prometheus.CounterVec
	NotifyQueueDepth prometheus.Gauge

	server *http.Server
}

// New constructs the metrics and registers them on the default Prometheus
// registry, so a second call in the same process panics.
func New() *Metrics {
	m := &Metrics{
		WallEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallwatch_wall_events_total",
				Help: "Total wall lifecycle events emitted, by symbol/event/side.",
			},
			[]string{"symbol", "event", "side"},
		),
		AlertsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallwatch_alerts_total",
				Help: "Total confirm/consume alerts emitted, by symbol/kind.",
			},
			[]string{"symbol", "kind"},
		),
		SnapshotsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallwatch_snapshots_processed_total",
				Help: "Total order book snapshots processed by the detector.",
			},
			[]string{"symbol"},
		),
		ProcessingLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wallwatch_processing_latency_seconds",
				Help:    "Per-snapshot detector processing latency.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
			[]string{"symbol"},
		),
		StreamConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wallwatch_stream_connected",
				Help: "1 if the market-data stream is connected, else 0.",
			},
			[]string{"symbol"},
		),
		StreamReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallwatch_stream_reconnects_total",
				Help: "Total reconnect attempts by the market-data manager.",
			},
			[]string{"reason"},
		),
		TrackedInstruments: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wallwatch_tracked_instruments",
				Help: "Number of instruments currently tracked by the detector.",
			},
			[]string{},
		),
		NotifyDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallwatch_notify_deliveries_total",
				Help: "Total outbound notification attempts, by outcome.",
			},
			[]string{"outcome"},
		),
		NotifyQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wallwatch_notify_queue_depth",
				Help: "Current depth of the outbound notification queue.",
			},
		),
	}

	prometheus.MustRegister(
		m.WallEvents, m.AlertsEmitted, m.SnapshotsProcessed, m.ProcessingLatency,
		m.StreamConnected, m.StreamReconnects, m.TrackedInstruments,
		m.NotifyDeliveries, m.NotifyQueueDepth,
	)
	return m
}

// Serve starts the /metrics HTTP exporter on addr. It blocks until ctx is
// canceled, then shuts the server down gracefully.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	m.server = &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return m.server.Shutdown(shutdownCtx)
	}
}
