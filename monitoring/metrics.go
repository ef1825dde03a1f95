package monitoring

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ll97dash/cascade"
)

// Prediction outcomes used as metric labels.
const (
	OutcomeNotFined    = "not_fined"
	OutcomeFinedPaid   = "fined_paid"
	OutcomeFinedUnpaid = "fined_unpaid"
)

// Metrics 预测服务指标. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	predictions      *prometheus.CounterVec
	predictionErrors *prometheus.CounterVec
	duration         prometheus.Histogram
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ll97_predictions_total",
			Help: "Completed predictions by outcome.",
		}, []string{"outcome"}),
		predictionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ll97_prediction_errors_total",
			Help: "Failed predictions by stage (validation, fined, paid).",
		}, []string{"stage"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ll97_prediction_duration_seconds",
			Help:    "Time spent in the decision cascade.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ll97_cache_hits_total",
			Help: "Predictions served from the result cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ll97_cache_misses_total",
			Help: "Predictions that ran the classifiers.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.predictions,
		m.predictionErrors,
		m.duration,
		m.cacheHits,
		m.cacheMisses,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Outcome names the branch a result took.
func Outcome(r cascade.PredictionResult) string {
	switch {
	case !r.WillBeFined:
		return OutcomeNotFined
	case r.WillPayIfFined != nil && *r.WillPayIfFined:
		return OutcomeFinedPaid
	default:
		return OutcomeFinedUnpaid
	}
}

// ObservePrediction records a finished cascade run.
func (m *Metrics) ObservePrediction(r cascade.PredictionResult, took time.Duration) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(Outcome(r)).Inc()
	m.duration.Observe(took.Seconds())
}

// ObserveError records a failed prediction. stage is "validation", "fined" or "paid".
func (m *Metrics) ObserveError(stage string) {
	if m == nil {
		return
	}
	m.predictionErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// Hijack is needed by the websocket upgrader.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// WrapHandler counts requests for route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
