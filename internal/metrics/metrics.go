package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "daimaescape"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by route.",
		},
		[]string{"route"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API latency by route and status class.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_created_total",
			Help:      "Count of bookings created by initial status.",
		},
		[]string{"status"},
	)

	bookingRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_rejected_total",
			Help:      "Count of booking attempts rejected by reason.",
		},
		[]string{"reason"},
	)

	bookingTransition = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transition_total",
			Help:      "Count of booking status changes.",
		},
		[]string{"from", "to"},
	)

	overlapBackstop = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_overlap_backstop_total",
			Help:      "Count of inserts refused by the storage overlap guard.",
		},
	)

	paymentsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_recorded_total",
			Help:      "Count of payments recorded by method.",
		},
		[]string{"method"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Count of notifications by kind, channel and result.",
		},
		[]string{"kind", "channel", "result"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Count of room cache lookups by result.",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			bookingCreated, bookingRejected, bookingTransition, overlapBackstop,
			paymentsRecorded, notifications, cacheLookups,
		)
	})
}

func IncHTTP(route string) {
	httpRequests.WithLabelValues(route).Inc()
}

func ObserveHTTP(route, status string, d time.Duration) {
	httpDuration.WithLabelValues(route, status).Observe(d.Seconds())
}

func IncBookingCreated(status string) {
	bookingCreated.WithLabelValues(status).Inc()
}

func IncBookingRejected(reason string) {
	bookingRejected.WithLabelValues(reason).Inc()
}

func IncTransition(from, to string) {
	bookingTransition.WithLabelValues(from, to).Inc()
}

func IncOverlapBackstop() {
	overlapBackstop.Inc()
}

func IncPayment(method string) {
	paymentsRecorded.WithLabelValues(method).Inc()
}

func IncNotification(kind, channel, result string) {
	notifications.WithLabelValues(kind, channel, result).Inc()
}

func IncCache(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}
