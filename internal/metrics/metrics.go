package metrics

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

// Metrics 汇总 HTTP 与排班引擎的 Prometheus 指标
type Metrics struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	runsStarted        *prometheus.CounterVec
	runsFinished       *prometheus.CounterVec
	activeRuns         prometheus.Gauge
	runDuration        *prometheus.HistogramVec
	generationDuration prometheus.Histogram
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	runsStarted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_runs_started_total",
		Help: "Total number of optimisation runs that started evolving",
	}, []string{"scope"})

	runsFinished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_runs_finished_total",
		Help: "Total number of optimisation runs by terminal status",
	}, []string{"scope", "status"})

	activeRuns := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_runs_active",
		Help: "Number of optimisation runs currently evolving",
	})

	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timetable_run_duration_seconds",
		Help:    "Wall-clock duration of optimisation runs",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"scope"})

	generationDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timetable_generation_duration_seconds",
		Help:    "Time spent evaluating one generation",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, runsStarted, runsFinished, activeRuns, runDuration, generationDuration, goroutines)

	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		runsStarted:        runsStarted,
		runsFinished:       runsFinished,
		activeRuns:         activeRuns,
		runDuration:        runDuration,
		generationDuration: generationDuration,
	}
}

func (m *Metrics) Handler() http.Handler {
	return m.handler
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	labels := prometheus.Labels{"method": method, "route": route, "status": strconv.Itoa(status)}
	m.requestDuration.With(labels).Observe(d.Seconds())
	m.requestTotal.With(labels).Inc()
}

func (m *Metrics) RunStarted(scope domain.RunScope) {
	m.runsStarted.WithLabelValues(string(scope)).Inc()
	m.activeRuns.Inc()
}

func (m *Metrics) RunFinished(scope domain.RunScope, status domain.RunStatus, elapsed time.Duration) {
	m.runsFinished.WithLabelValues(string(scope), string(status)).Inc()
	m.activeRuns.Dec()
	m.runDuration.WithLabelValues(string(scope)).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveGeneration(d time.Duration) {
	m.generationDuration.Observe(d.Seconds())
}
