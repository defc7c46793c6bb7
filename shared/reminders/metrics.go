package reminders

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the reminder counters. A nil *Metrics records nothing.
type Metrics struct {
	// RemindersSentTotal counts reminder outcomes: sent, failed, skipped.
	RemindersSentTotal *prometheus.CounterVec

	// RemindersDue is the number of bookings found due on the last check.
	RemindersDue prometheus.Gauge

	ReminderSendDuration prometheus.Histogram
	ReminderRetries      prometheus.Counter
	RateLimitWaits       prometheus.Counter
}

// NewMetrics creates and registers reminder metrics on the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers reminder metrics on reg.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RemindersSentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminders_total",
				Help:      "Check-in reminders by outcome",
			},
			[]string{"status"},
		),

		RemindersDue: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reminders_due",
				Help:      "Bookings due a reminder at the last check",
			},
		),

		ReminderSendDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reminder_send_duration_seconds",
				Help:      "Time to deliver a reminder, retries included",
				Buckets:   []float64{.05, .1, .5, 1, 2, 5, 15, 60},
			},
		),

		ReminderRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminder_retries_total",
				Help:      "Total number of retry attempts",
			},
		),

		RateLimitWaits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reminder_rate_limit_waits_total",
				Help:      "Sends that had to wait for the rate limiter",
			},
		),
	}
}

func (m *Metrics) IncOutcome(status string) {
	if m == nil {
		return
	}
	m.RemindersSentTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) SetDue(n int) {
	if m == nil {
		return
	}
	m.RemindersDue.Set(float64(n))
}

func (m *Metrics) ObserveSendDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.ReminderSendDuration.Observe(d.Seconds())
}

func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.ReminderRetries.Inc()
}

func (m *Metrics) IncRateLimitWaits() {
	if m == nil {
		return
	}
	m.RateLimitWaits.Inc()
}
