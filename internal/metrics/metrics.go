package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics exposes counters/histograms for the booking flow.
type BookingMetrics struct {
	bookingAttempts      *prometheus.CounterVec
	bookingLatency       *prometheus.HistogramVec
	statusTransitions    *prometheus.CounterVec
	compensationFailures prometheus.Counter
	slotsReconciled      prometheus.Counter
	slotsGenerated       prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		bookingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "latency_seconds",
			Help:      "Latency of the booking transaction",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
		statusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "status_transitions_total",
			Help:      "Appointment status transitions",
		}, []string{"to"}),
		compensationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "compensation_failures_total",
			Help:      "Slots left unavailable without an appointment after a failed revert",
		}),
		slotsReconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "slots_reconciled_total",
			Help:      "Stranded slots returned to available by the reconcile worker",
		}),
		slotsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "slots_generated_total",
			Help:      "Slots created by day generation",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.bookingAttempts,
		m.bookingLatency,
		m.statusTransitions,
		m.compensationFailures,
		m.slotsReconciled,
		m.slotsGenerated,
	)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome, path string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.bookingAttempts.WithLabelValues(outcome).Inc()
	m.bookingLatency.WithLabelValues(path).Observe(elapsed.Seconds())
}

func (m *BookingMetrics) ObserveTransition(to string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(to).Inc()
}

func (m *BookingMetrics) CompensationFailed() {
	if m == nil {
		return
	}
	m.compensationFailures.Inc()
}

func (m *BookingMetrics) SlotReconciled() {
	if m == nil {
		return
	}
	m.slotsReconciled.Inc()
}

func (m *BookingMetrics) SlotsGenerated(n int) {
	if m == nil {
		return
	}
	m.slotsGenerated.Add(float64(n))
}
