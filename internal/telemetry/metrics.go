package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Booking outcomes.
const (
	OutcomeCreated  = "created"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var (
	bookingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "booking",
		Name:      "requests_total",
		Help:      "Booking create and reschedule attempts by operation and outcome.",
	}, []string{"operation", "outcome"})

	statusChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "booking",
		Name:      "status_changes_total",
		Help:      "Appointment status transitions.",
	}, []string{"from", "to"})

	availabilityDays = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "booking",
		Name:      "availability_days_computed_total",
		Help:      "Business days for which availability was computed.",
	})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "booking",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

func RecordBooking(operation, outcome string) {
	bookingsTotal.WithLabelValues(operation, outcome).Inc()
}

func RecordStatusChange(from, to string) {
	statusChangesTotal.WithLabelValues(from, to).Inc()
}

func RecordAvailabilityDays(n int) {
	availabilityDays.Add(float64(n))
}

func ObserveHTTP(method, route string, status int, d time.Duration) {
	httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
