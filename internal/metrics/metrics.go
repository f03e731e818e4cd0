package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carelink",
			Name:      "booking_created_total",
			Help:      "Count of booking submissions by outcome.",
		},
		[]string{"outcome"},
	)

	bookingCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "carelink",
			Name:      "booking_cancelled_total",
			Help:      "Count of appointments cancelled by patients.",
		},
	)

	availabilityFetch = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carelink",
			Name:      "availability_fetch_total",
			Help:      "Count of availability lookups by outcome.",
		},
		[]string{"outcome"},
	)

	exportGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "carelink",
			Name:      "export_generated_total",
			Help:      "Count of appointment exports generated.",
		},
	)

	remindersSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carelink",
			Name:      "reminders_sent_total",
			Help:      "Count of appointment reminders by outcome.",
		},
		[]string{"outcome"},
	)

	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "carelink",
			Name:      "api_request_duration_seconds",
			Help:      "Latency of portal API requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingCreated, bookingCancelled,
			availabilityFetch, exportGenerated, remindersSent, apiRequestDuration)
	})
}

func IncBookingCreated(outcome string) {
	bookingCreated.WithLabelValues(outcome).Inc()
}

func IncBookingCancelled() {
	bookingCancelled.Inc()
}

// IncAvailabilityFetch records a lookup outcome: "hit" (cache), "slots",
// "empty", or "error".
func IncAvailabilityFetch(outcome string) {
	availabilityFetch.WithLabelValues(outcome).Inc()
}

func IncExportGenerated() {
	exportGenerated.Inc()
}

// IncReminderSent records a reminder attempt: "sent", "skipped", or "error".
func IncReminderSent(outcome string) {
	remindersSent.WithLabelValues(outcome).Inc()
}

func ObserveAPIRequest(method, status string, d time.Duration) {
	apiRequestDuration.WithLabelValues(method, status).Observe(d.Seconds())
}
