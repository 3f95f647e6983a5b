// Package metrics provides the operational visibility the foreground
// filesystem process and the uploader expose: one counter/histogram per
// filesystem operation, one per uploader scan outcome. Exposed on an
// optional HTTP listener, never a required dependency of correctness.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector tracks s3fs operation counts and latencies. A nil *Collector is
// valid and a no-op, so components can be constructed without a listener
// and still call every method unconditionally.
type Collector struct {
	registry *prometheus.Registry

	opCounter    *prometheus.CounterVec
	opErrors     *prometheus.CounterVec
	opDuration   *prometheus.HistogramVec
	uploadCycles *prometheus.CounterVec

	server *http.Server
}

// New creates a Collector backed by its own Prometheus registry.
func New() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		opCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "s3fs",
			Subsystem: "dispatcher",
			Name:      "operations_total",
			Help:      "Filesystem operations handled by the dispatcher, by operation name.",
		}, []string{"operation"}),
		opErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "s3fs",
			Subsystem: "dispatcher",
			Name:      "operation_errors_total",
			Help:      "Filesystem operations that returned a non-OK errno, by operation name.",
		}, []string{"operation"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "s3fs",
			Subsystem: "dispatcher",
			Name:      "operation_duration_seconds",
			Help:      "Latency of dispatcher operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		uploadCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "s3fs",
			Subsystem: "uploader",
			Name:      "sidecars_total",
			Help:      "Sidecars processed by the uploader scan loop, by outcome.",
		}, []string{"outcome"}),
	}

	registry.MustRegister(c.opCounter, c.opErrors, c.opDuration, c.uploadCycles)
	return c
}

// ObserveOp records that operation ran once.
func (c *Collector) ObserveOp(operation string) {
	if c == nil {
		return
	}
	c.opCounter.WithLabelValues(operation).Inc()
}

// ObserveError records that operation returned a non-OK errno.
func (c *Collector) ObserveError(operation string) {
	if c == nil {
		return
	}
	c.opErrors.WithLabelValues(operation).Inc()
}

// Timer returns a function that records the elapsed duration for operation
// when called, meant to be deferred at the top of an operation handler.
func (c *Collector) Timer(operation string) func() {
	if c == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		c.opDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// Upload outcomes recorded by the uploader scan loop.
const (
	OutcomeUploaded = "uploaded"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// RecordUploadOutcome records one sidecar's disposition during a scan.
func (c *Collector) RecordUploadOutcome(outcome string) {
	if c == nil {
		return
	}
	c.uploadCycles.WithLabelValues(outcome).Inc()
}

// Serve starts the Prometheus HTTP handler on addr and blocks until ctx is
// done, then shuts the server down. Callers run it in its own goroutine.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	if c == nil {
		<-ctx.Done()
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))

	c.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return c.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
