package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBookingMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveBooking("booked", "atomic", 12*time.Millisecond)
	m.ObserveBooking("slot_unavailable", "atomic", 3*time.Millisecond)
	m.ObserveBooking("slot_unavailable", "atomic", 4*time.Millisecond)
	m.CompensationFailed()
	m.SlotsGenerated(15)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.bookingAttempts.WithLabelValues("booked")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookingAttempts.WithLabelValues("slot_unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.compensationFailures))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.slotsGenerated))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *BookingMetrics
	m.ObserveBooking("booked", "atomic", time.Second)
	m.ObserveTransition("confirmed")
	m.CompensationFailed()
	m.SlotReconciled()
	m.SlotsGenerated(3)
}

func TestHTTPMetricsUseRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.Observe("POST", "/appointments", 201, 5*time.Millisecond)
	m.Observe("POST", "/appointments", 409, 2*time.Millisecond)
	m.Observe("GET", "", 404, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", "/appointments", "201")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", "/appointments", "409")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404")))

	var nilMetrics *HTTPMetrics
	nilMetrics.Observe("GET", "/", 200, time.Millisecond)
}
