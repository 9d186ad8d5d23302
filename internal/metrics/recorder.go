package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "infrawatch"

// Recorder owns the process metrics. A nil *Recorder records nothing, which
// keeps tests and tools free of registry plumbing.
type Recorder struct {
	reg *prometheus.Registry

	checkRuns      *prometheus.CounterVec
	checkLatency   *prometheus.HistogramVec
	checkFailures  *prometheus.CounterVec
	alertsOpened   prometheus.Counter
	alertsClosed   prometheus.Counter
	notifyFailures prometheus.Counter
	dispatched     prometheus.Counter
	dispatchFailed *prometheus.CounterVec
	queueDepth     prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		reg: reg,
		checkRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "check_runs_total",
			Help:      "Check executions by kind and result.",
		}, []string{"kind", "result"}),
		checkLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_latency_ms",
			Help:      "Measured probe latency in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"kind"}),
		checkFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "check_failures_total",
			Help:      "Failed check executions by kind and error class.",
		}, []string{"kind", "class"}),
		alertsOpened: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_opened_total",
			Help:      "Alerts created.",
		}),
		alertsClosed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_closed_total",
			Help:      "Alerts resolved.",
		}),
		notifyFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Notification attempts that failed.",
		}),
		dispatched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Checks handed to the work queue.",
		}),
		dispatchFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_failures_total",
			Help:      "Checks the scheduler could not enqueue.",
		}, []string{"reason"}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Checks waiting for a worker.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "path", "status"}),
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being served",
		}),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Recorder) CheckRun(kind string, ok bool, latencyMS *float64, class string) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "fail"
		r.checkFailures.WithLabelValues(kind, class).Inc()
	}
	r.checkRuns.WithLabelValues(kind, result).Inc()
	if latencyMS != nil {
		r.checkLatency.WithLabelValues(kind).Observe(*latencyMS)
	}
}

func (r *Recorder) AlertOpened() {
	if r != nil {
		r.alertsOpened.Inc()
	}
}

func (r *Recorder) AlertsClosed(n int) {
	if r != nil && n > 0 {
		r.alertsClosed.Add(float64(n))
	}
}

func (r *Recorder) NotifyFailed() {
	if r != nil {
		r.notifyFailures.Inc()
	}
}

func (r *Recorder) Dispatched() {
	if r != nil {
		r.dispatched.Inc()
	}
}

func (r *Recorder) DispatchFailed(reason string) {
	if r != nil {
		r.dispatchFailed.WithLabelValues(reason).Inc()
	}
}

func (r *Recorder) QueueDepth(n int) {
	if r != nil {
		r.queueDepth.Set(float64(n))
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and durations by chi route pattern.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		r.httpInFlight.Inc()
		defer r.httpInFlight.Dec()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, req)

		route := "unknown"
		if rc := chi.RouteContext(req.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := strconv.Itoa(sw.status)
		r.httpRequests.WithLabelValues(req.Method, route, status).Inc()
		r.httpDuration.WithLabelValues(req.Method, route, status).Observe(time.Since(start).Seconds())
	})
}
