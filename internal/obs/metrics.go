package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service reports ready, 0 otherwise.",
	})

	requestsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "access_requests_created_total",
		Help: "Access requests created.",
	})

	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_request_decisions_total",
			Help: "Decision calls that changed request state.",
		},
		[]string{"outcome"},
	)

	assessmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_assessments_total",
			Help: "Advisory risk assessments produced.",
		},
		[]string{"level"},
	)
)

// Init registers metrics in the default registry. Call once at startup.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		ready,
		requestsCreated,
		decisionsTotal,
		assessmentsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady publishes readiness as a gauge for alerting.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// IncRequestCreated counts a newly created access request.
func IncRequestCreated() { requestsCreated.Inc() }

// IncDecision counts a state-changing decision by outcome label.
func IncDecision(outcome string) { decisionsTotal.WithLabelValues(outcome).Inc() }

// IncAssessment counts an advisory assessment by risk level.
func IncAssessment(level string) { assessmentsTotal.WithLabelValues(level).Inc() }

// Instrument measures RPS, latency, and in-flight requests for the wrapped
// handler. Paths are canonicalized so identifiers do not explode label
// cardinality.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses per-entity path segments to :id placeholders.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) >= 4 && parts[1] == "v1" && parts[2] == "access-requests" && parts[3] != "":
		if len(parts) == 4 {
			return "/v1/access-requests/:id"
		}
		if len(parts) == 5 && (parts[4] == "decision" || parts[4] == "assessment") {
			return "/v1/access-requests/:id/" + parts[4]
		}
	case len(parts) >= 4 && parts[1] == "v1" && parts[2] == "users" && parts[3] != "":
		if len(parts) == 5 && parts[4] == "access-requests" {
			return "/v1/users/:id/access-requests"
		}
	}
	return path
}

// statusWriter captures the response code for labeling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
