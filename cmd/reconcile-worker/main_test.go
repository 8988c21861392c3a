package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-slot-booking/internal/booking"
	"github.com/hackgods/clinic-slot-booking/internal/metrics"
	redisclient "github.com/hackgods/clinic-slot-booking/internal/redis"
)

func TestRunOnceReleasesStrandedSlotAndExportsMetric(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := booking.NewMemoryStore()
	reg := prometheus.NewRegistry()
	resolver := booking.NewResolver(store, redisclient.NewDatesCache(client, time.Minute), time.UTC, zerolog.Nop())
	svc := booking.NewService(store, resolver, redisclient.NewRedisLocker(client, 5*time.Second),
		booking.DefaultDayTemplate(), metrics.NewBookingMetrics(reg), zerolog.Nop())

	start := time.Date(2030, 6, 3, 9, 0, 0, 0, time.UTC)
	slots, err := store.InsertSlots(ctx, []booking.Slot{{
		DoctorID:    uuid.New(),
		StartTime:   start,
		EndTime:     start.Add(30 * time.Minute),
		IsAvailable: true,
	}})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	slotID := slots[0].ID

	ok, err := store.ConditionalMarkUnavailable(ctx, slotID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store.InsertEvent(ctx, booking.EventLog{
		EventType: booking.EventSlotCompensationFailed,
		SlotID:    &slotID,
	}))

	runOnce(ctx, svc, zerolog.Nop())

	slot, err := store.GetSlot(ctx, slotID)
	require.NoError(t, err)
	assert.True(t, slot.IsAvailable)

	pending, err := store.FindUnresolvedEvents(ctx, booking.EventSlotCompensationFailed, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	srv := newMetricsServer("9091", reg)
	assert.Equal(t, ":9091", srv.Addr)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "clinic_booking_slots_reconciled_total 1")
}
