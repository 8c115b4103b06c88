// Package metrics exposes Prometheus collectors for the matching core.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	Namespace string
	Subsystem string
}

func DefaultConfig() Config {
	return Config{
		Namespace: "exchange",
		Subsystem: "core",
	}
}

type Recorder struct {
	registry *prometheus.Registry

	matchedPairs  *prometheus.CounterVec
	bookDepth     *prometheus.GaugeVec
	flushes       *prometheus.CounterVec
	flushDuration *prometheus.HistogramVec
	rowsWritten   *prometheus.CounterVec
	bufferedItems *prometheus.GaugeVec
	breakerState  *prometheus.GaugeVec
	retryAttempts *prometheus.CounterVec
}

func New(cfg Config) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,

		matchedPairs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "matched_pairs_total",
			Help:      "Matched buy/sell pairs per trading pair.",
		}, []string{"pair"}),
		bookDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "book_orders",
			Help:      "Live orders indexed in the book.",
		}, []string{"pair"}),
		flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "buffer_flushes_total",
			Help:      "Write buffer flushes by outcome.",
		}, []string{"pair", "result"}),
		flushDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "buffer_flush_duration_seconds",
			Help:      "Wall clock duration of write buffer flushes.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5, 30},
		}, []string{"pair"}),
		rowsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "buffer_rows_written_total",
			Help:      "Rows written to the backing store by kind.",
		}, []string{"pair", "kind"}),
		bufferedItems: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "buffer_pending_items",
			Help:      "Mutations waiting in the write buffer.",
		}, []string{"pair"}),
		breakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
		}, []string{"name"}),
		retryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "retry_attempts_total",
			Help:      "Retries performed by retry policies.",
		}, []string{"name"}),
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) MatchedPair(pair string) {
	if r == nil {
		return
	}
	r.matchedPairs.WithLabelValues(pair).Inc()
}

func (r *Recorder) BookDepth(pair string, orders int) {
	if r == nil {
		return
	}
	r.bookDepth.WithLabelValues(pair).Set(float64(orders))
}

// Flush records one flush outcome. written maps kind to row count.
func (r *Recorder) Flush(pair string, success bool, d time.Duration, written map[string]int) {
	if r == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	r.flushes.WithLabelValues(pair, result).Inc()
	r.flushDuration.WithLabelValues(pair).Observe(d.Seconds())
	for kind, n := range written {
		r.rowsWritten.WithLabelValues(pair, kind).Add(float64(n))
	}
}

func (r *Recorder) BufferedItems(pair string, n int) {
	if r == nil {
		return
	}
	r.bufferedItems.WithLabelValues(pair).Set(float64(n))
}

// BreakerState takes the numeric breaker state so this package stays free
// of resilience imports.
func (r *Recorder) BreakerState(name string, state int) {
	if r == nil {
		return
	}
	r.breakerState.WithLabelValues(name).Set(float64(state))
}

func (r *Recorder) RetryAttempt(name string) {
	if r == nil {
		return
	}
	r.retryAttempts.WithLabelValues(name).Inc()
}

// StartMetricsServer serves the recorder's registry on addr in the background.
func StartMetricsServer(addr string, r *Recorder) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
