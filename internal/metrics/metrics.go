// Package metrics exposes processing statistics in the Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records the progress of processing runs. Every Collector has
// its own registry, so independent runs never share counters.
type Collector struct {
	registry *prometheus.Registry

	filesProcessed *prometheus.CounterVec
	filesFailed    *prometheus.CounterVec
	fileLatency    *prometheus.HistogramVec
	batches        prometheus.Counter
	recoveries     prometheus.Counter
	workers        prometheus.Gauge
	inFlight       prometheus.Gauge
}

// NewCollector creates a Collector with all metrics registered
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		filesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lcquant_files_processed_total",
			Help: "Total number of files processed successfully",
		}, []string{"kind"}),
		filesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lcquant_files_failed_total",
			Help: "Total number of files that failed to process",
		}, []string{"kind"}),
		fileLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lcquant_file_duration_seconds",
			Help:    "Time to process one file in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lcquant_batches_total",
			Help: "Total number of batches dispatched",
		}),
		recoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lcquant_batch_recoveries_total",
			Help: "Total number of batches processed sequentially after an executor failure",
		}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lcquant_workers",
			Help: "Number of workers of the current run",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lcquant_files_in_flight",
			Help: "Current number of files being processed",
		}),
	}
	c.registry.MustRegister(
		c.filesProcessed,
		c.filesFailed,
		c.fileLatency,
		c.batches,
		c.recoveries,
		c.workers,
		c.inFlight,
	)
	return c
}

// RecordStarted marks the start of processing one file
func (c *Collector) RecordStarted() {
	c.inFlight.Inc()
}

// RecordCompleted records a successfully processed file
func (c *Collector) RecordCompleted(kind string, latency time.Duration) {
	c.inFlight.Dec()
	c.filesProcessed.WithLabelValues(kind).Inc()
	c.fileLatency.WithLabelValues(kind).Observe(latency.Seconds())
}

// RecordFailed records a file that could not be processed
func (c *Collector) RecordFailed(kind string, latency time.Duration) {
	c.inFlight.Dec()
	c.filesFailed.WithLabelValues(kind).Inc()
	c.fileLatency.WithLabelValues(kind).Observe(latency.Seconds())
}

func (c *Collector) RecordBatch() {
	c.batches.Inc()
}

func (c *Collector) RecordRecovery() {
	c.recoveries.Inc()
}

func (c *Collector) SetWorkers(n int) {
	c.workers.Set(float64(n))
}

// Handler serves the metrics of this Collector
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// StartServer serves /metrics on addr until ctx is cancelled
func (c *Collector) StartServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
