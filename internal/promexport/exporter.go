// Package promexport exposes live ping counters on a Prometheus /metrics
// endpoint.
package promexport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torosent/crankping/internal/metrics"
	"github.com/torosent/crankping/internal/procstats"
	"github.com/torosent/crankping/internal/result"
	"github.com/torosent/crankping/internal/runner"
)

const namespace = "crankping"

// Exporter owns a private registry so tests and embedding programs never
// collide with the global one.
type Exporter struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	latency       prometheus.Histogram
	inFlight      prometheus.Gauge
	rounds        prometheus.Counter
	roundDuration prometheus.Histogram
	workers       prometheus.Gauge
}

// New registers the request metrics. When sampler is non-nil the process
// CPU and RSS gauges read its latest sample.
func New(sampler *procstats.Sampler) *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Finished requests, labeled by outcome and status code or error kind.",
			},
			[]string{"outcome", "code"},
		),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request latency including the response body read.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 13),
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "Requests currently waiting for a response.",
		}),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Completed dispatch rounds.",
		}),
		roundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_duration_seconds",
			Help:      "Wall time of a round, bounded by its slowest request.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "round_workers",
			Help:      "Workers started in the current round.",
		}),
	}

	e.registry.MustRegister(e.requests, e.latency, e.inFlight, e.rounds, e.roundDuration, e.workers)
	e.registry.MustRegister(collectors.NewGoCollector())

	if sampler != nil {
		e.registry.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "process_cpu_percent",
				Help:      "CPU use of the driver process between samples.",
			}, func() float64 { return sampler.Last().CPUPercent }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "process_rss_mebibytes",
				Help:      "Resident memory of the driver process.",
			}, func() float64 { return sampler.Last().RSSMiB }),
		)
	}
	return e
}

// Registry returns the exporter's registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Wrap counts every record next produces and tracks requests in flight.
func (e *Exporter) Wrap(next runner.Executor) runner.Executor {
	return runner.ExecutorFunc(func(ctx context.Context, job runner.Job) result.Record {
		e.inFlight.Inc()
		defer e.inFlight.Dec()

		rec := next.Execute(ctx, job)
		e.Observe(rec)
		return rec
	})
}

// Observe records one finished request.
func (e *Exporter) Observe(rec result.Record) {
	outcome := rec.Outcome
	if outcome == "" {
		outcome = result.OutcomeError
	}
	e.requests.WithLabelValues(string(outcome), metrics.BucketCode(rec)).Inc()
	if rec.Latency > 0 {
		e.latency.Observe(rec.Latency.Seconds())
	}
}

// RoundStarted implements runner.RoundObserver.
func (e *Exporter) RoundStarted(_ int64, workers int) {
	e.workers.Set(float64(workers))
}

// RoundFinished implements runner.RoundObserver.
func (e *Exporter) RoundFinished(_ int64, elapsed time.Duration) {
	e.rounds.Inc()
	e.roundDuration.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}

// Listen binds addr and serves /metrics until ctx is done. It returns the
// bound address and a channel that yields the server's exit error.
func (e *Exporter) Listen(ctx context.Context, addr string) (net.Addr, <-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errc <- err
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return ln.Addr(), errc, nil
}
