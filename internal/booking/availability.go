package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Resolver answers "what may a patient pick". Its output is advisory: the
// booking path re-checks availability atomically at commit time.
type Resolver struct {
	store  SlotStore
	cache  AvailabilityCache
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

func NewResolver(store SlotStore, cache AvailabilityCache, loc *time.Location, logger zerolog.Logger) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{
		store:  store,
		cache:  cache,
		loc:    loc,
		now:    time.Now,
		logger: logger.With().Str("component", "availability").Logger(),
	}
}

// AvailableSlots lists bookable slots starting at or after notBefore (never
// before now). No slots is an empty slice, not an error.
func (r *Resolver) AvailableSlots(ctx context.Context, doctorID uuid.UUID, notBefore time.Time) ([]Slot, error) {
	if doctorID == uuid.Nil {
		return nil, &ValidationError{Field: "doctor_id", Reason: "is required"}
	}

	from := notBefore
	if now := r.now(); from.Before(now) {
		from = now
	}

	slots, err := r.store.ListAvailableSlots(ctx, doctorID, from)
	if err != nil {
		return nil, persistence("list available slots", err)
	}
	if slots == nil {
		slots = []Slot{}
	}
	return slots, nil
}

// AvailableSlotsOn limits AvailableSlots to one local calendar day.
func (r *Resolver) AvailableSlotsOn(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]Slot, error) {
	start := r.midnight(day)
	end := start.AddDate(0, 0, 1)

	slots, err := r.AvailableSlots(ctx, doctorID, start)
	if err != nil {
		return nil, err
	}

	out := slots[:0]
	for _, s := range slots {
		if s.StartTime.Before(end) {
			out = append(out, s)
		}
	}
	return out, nil
}

// AvailableDates drives calendar highlighting only; it may be stale by up
// to the cache TTL.
func (r *Resolver) AvailableDates(ctx context.Context, doctorID uuid.UUID) ([]time.Time, error) {
	if doctorID == uuid.Nil {
		return nil, &ValidationError{Field: "doctor_id", Reason: "is required"}
	}

	if r.cache != nil {
		dates, ok, err := r.cache.GetDates(ctx, doctorID)
		if err != nil {
			r.logger.Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("available dates cache read failed")
		} else if ok {
			return dates, nil
		}
	}

	dates, err := r.store.ListAvailableDates(ctx, doctorID, r.now(), r.loc)
	if err != nil {
		return nil, persistence("list available dates", err)
	}
	if dates == nil {
		dates = []time.Time{}
	}

	if r.cache != nil {
		if err := r.cache.SetDates(ctx, doctorID, dates); err != nil {
			r.logger.Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("available dates cache write failed")
		}
	}
	return dates, nil
}

// Invalidate drops the cached dates for a doctor. Failures are logged only.
func (r *Resolver) Invalidate(ctx context.Context, doctorID uuid.UUID) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, doctorID); err != nil {
		r.logger.Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("available dates cache invalidate failed")
	}
}

func (r *Resolver) Location() *time.Location { return r.loc }

func (r *Resolver) midnight(t time.Time) time.Time {
	y, m, d := t.In(r.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, r.loc)
}
