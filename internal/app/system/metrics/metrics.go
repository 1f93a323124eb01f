// internal/app/system/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "maishoras"

// Enrollment outcomes.
const (
	EnrollAdmitted     = "admitted"
	EnrollDuplicate    = "duplicate"
	EnrollFullOrClosed = "full_or_closed"
	EnrollError        = "error"
)

// Certificate issuance sources.
const (
	SourceFinish    = "finish"
	SourceManual    = "manual"
	SourceReconcile = "reconcile"
)

var (
	enrollments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "enrollments_total",
		Help:      "Enrollment attempts by outcome.",
	}, []string{"outcome"})

	attendance = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "attendance_decisions_total",
		Help:      "Attendance decisions recorded, by decision.",
	}, []string{"decision"})

	transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "transitions_total",
		Help:      "Activity status transitions, by target status.",
	}, []string{"to"})

	conflictRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lifecycle",
		Name:      "conflict_retries_total",
		Help:      "Conditional writes that lost a race and were re-evaluated.",
	}, []string{"operation"})

	certificates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "certify",
		Name:      "certificates_issued_total",
		Help:      "Certificates issued, by issuing path.",
	}, []string{"source"})

	repairs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconciler",
		Name:      "repairs_total",
		Help:      "Derived-state repairs applied by the reconciler, by kind.",
	}, []string{"kind"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

func init() {
	prometheus.MustRegister(enrollments, attendance, transitions, conflictRetries,
		certificates, repairs, requestDuration)
}

// RecordEnrollment counts an enrollment attempt.
func RecordEnrollment(outcome string) {
	enrollments.WithLabelValues(outcome).Inc()
}

// RecordAttendance counts an attendance decision.
func RecordAttendance(decision string) {
	attendance.WithLabelValues(decision).Inc()
}

// RecordTransition counts a status change.
func RecordTransition(to string) {
	transitions.WithLabelValues(to).Inc()
}

// RecordConflictRetry counts a lost compare-and-set.
func RecordConflictRetry(operation string) {
	conflictRetries.WithLabelValues(operation).Inc()
}

// RecordCertificates adds n issued certificates.
func RecordCertificates(source string, n int) {
	if n <= 0 {
		return
	}
	certificates.WithLabelValues(source).Add(float64(n))
}

// RecordRepairs adds n reconciler repairs of one kind.
func RecordRepairs(kind string, n int) {
	if n <= 0 {
		return
	}
	repairs.WithLabelValues(kind).Add(float64(n))
}

// Middleware observes request latency labelled by the matched chi route.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		requestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
