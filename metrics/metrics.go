// Package metrics exposes Prometheus collectors for the simulator and a
// small standalone metrics server.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RoundsTotal counts completed communication rounds.
	RoundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gcfl_rounds_total",
		Help: "Completed communication rounds (one server step each).",
	})

	// CompressRatio is the ratio measured at the end of the last epoch.
	CompressRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gcfl_compress_ratio",
		Help: "Raw bits over encoded bits for the last epoch.",
	})

	// TestAccuracy is the test accuracy after the last epoch.
	TestAccuracy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gcfl_test_accuracy",
		Help: "Test accuracy of the global model after the last epoch.",
	})

	// LocalStepDuration observes per-client local step latency.
	LocalStepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gcfl_local_step_duration_seconds",
		Help:    "Duration of one simulated client local step including gather.",
		Buckets: prometheus.ExponentialBuckets(100e-6, 4, 10),
	})
)

// MetricsServer serves the Prometheus scrape endpoint.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server on addr. The name is kept in the landing
// response so multiple services on one host are tellable apart.
func New(name, addr string) (*MetricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s metrics: see /metrics\n", name)
	})
	return &MetricsServer{
		srv: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 5 * time.Second,
		},
	}, nil
}

// ListenAndServe blocks serving scrapes until Shutdown.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
