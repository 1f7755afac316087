// Package metrics exposes the process's Prometheus collectors: HTTP request
// counters, provisioning-phase timing, provider adapter call outcomes, and
// dunning escalations. Grounded on the teacher's internal/metrics package,
// trimmed from its Chainlink-service-wide collector set (price feeds, CCIP,
// VRF, datastreams, confidential computing) down to the counters this
// orchestrator's own components actually emit.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector this process registers.
var Registry = prometheus.NewRegistry()

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "beacon",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "path", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "beacon",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "path"})

	phaseTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "provisioning",
		Name:      "phase_transitions_total",
		Help:      "Total number of provisioning jobs entering each phase.",
	}, []string{"phase", "outcome"})

	phaseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "beacon",
		Subsystem: "provisioning",
		Name:      "phase_duration_seconds",
		Help:      "Duration spent executing each provisioning phase.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~14m
	}, []string{"phase"})

	providerCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "provider",
		Name:      "calls_total",
		Help:      "Total number of VPS provider adapter calls, by outcome.",
	}, []string{"provider", "operation", "outcome"})

	dunningEscalations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beacon",
		Subsystem: "dunning",
		Name:      "escalations_total",
		Help:      "Total number of dunning escalations by stage.",
	}, []string{"stage"})

	jobsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "beacon",
		Subsystem: "provisioning",
		Name:      "jobs_active",
		Help:      "Current number of jobs being actively provisioned.",
	})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		phaseTransitions,
		phaseDuration,
		providerCalls,
		dunningEscalations,
		jobsActive,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps next with HTTP request counters and latency
// histograms, skipping the metrics endpoint itself.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordPhaseTransition records a job entering phase with the given outcome
// ("started", "completed", "failed", "skipped").
func RecordPhaseTransition(phase, outcome string) {
	phaseTransitions.WithLabelValues(phase, outcome).Inc()
}

// RecordPhaseDuration records how long a phase took to execute.
func RecordPhaseDuration(phase string, d time.Duration) {
	phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordProviderCall records the outcome of a single VPS provider adapter call.
func RecordProviderCall(provider, operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	providerCalls.WithLabelValues(provider, operation, outcome).Inc()
}

// RecordDunningEscalation records a dunning engine stage transition.
func RecordDunningEscalation(stage string) {
	dunningEscalations.WithLabelValues(stage).Inc()
}

// SetActiveJobs reports the current in-flight provisioning job count.
func SetActiveJobs(n int) {
	jobsActive.Set(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses path parameters so cardinality stays bounded:
// /api/provision/<id>/status becomes /api/provision/:id/status.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	parts := strings.Split(trimmed, "/")
	for i, p := range parts {
		if i == 2 && len(parts) >= 4 && parts[0] == "api" && parts[1] == "provision" {
			parts[i] = ":id"
			_ = p
		}
	}
	return "/" + strings.Join(parts, "/")
}
