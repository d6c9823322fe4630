// Package metrics exposes export attempt counters and timings. The pipeline
// treats these as write-only sinks.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	ExportSucceeded *prometheus.CounterVec
	ExportFailed    *prometheus.CounterVec
	ExportDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ExportSucceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "export_succeeded_total",
			Help: "Total number of successful export attempts.",
		}, []string{"type"}),
		ExportFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "export_failed_total",
			Help: "Total number of failed export attempts.",
		}, []string{"type"}),
		ExportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "export_duration_seconds",
			Help:    "Export attempt duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
	}

	registry.MustRegister(
		m.ExportSucceeded,
		m.ExportFailed,
		m.ExportDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics until the context is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
