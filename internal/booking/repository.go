package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SlotStore owns the availability flag. The application never caches it;
// every mutation goes through the store's own atomic primitives.
type SlotStore interface {
	// InsertSlots creates the batch in one transaction. Any overlap with an
	// existing slot of the same doctor fails the whole batch with ErrSlotOverlap.
	InsertSlots(ctx context.Context, slots []Slot) ([]Slot, error)
	ListSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Slot, error)
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)

	// ConditionalMarkUnavailable flips the flag to false only if it is true,
	// in a single statement, and reports whether it did.
	ConditionalMarkUnavailable(ctx context.Context, slotID uuid.UUID) (bool, error)
	MarkAvailable(ctx context.Context, slotID uuid.UUID) error

	// SetAvailability is the doctor override. It ignores appointment state.
	SetAvailability(ctx context.Context, doctorID uuid.UUID, ids []uuid.UUID, available bool) (int64, error)
	// DeleteSlots removes only slots no active appointment references.
	DeleteSlots(ctx context.Context, doctorID uuid.UUID, ids []uuid.UUID) (int64, error)

	// ListAvailableSlots filters inside the store: flag set, start >= from,
	// no active appointment. Ordered by start.
	ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, from time.Time) ([]Slot, error)
	// ListAvailableDates returns distinct local dates (midnight in loc) with
	// at least one available slot starting at or after from.
	ListAvailableDates(ctx context.Context, doctorID uuid.UUID, from time.Time, loc *time.Location) ([]time.Time, error)
}

type AppointmentStore interface {
	InsertAppointment(ctx context.Context, appt Appointment) (*Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetActiveAppointmentForSlot(ctx context.Context, slotID uuid.UUID) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error)

	// UpdateAppointmentStatus moves from -> to only if the row is still in from.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
	// CancelAppointment sets cancelled (only from one of from) and releases
	// the slot in the same transaction.
	CancelAppointment(ctx context.Context, id uuid.UUID, from []Status) (*Appointment, error)
	// DeleteAppointment removes the row and releases the slot in the same transaction.
	DeleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
}

type EventStore interface {
	InsertEvent(ctx context.Context, ev EventLog) error
	FindUnresolvedEvents(ctx context.Context, eventType string, limit int) ([]EventLog, error)
	ResolveEvent(ctx context.Context, id int64) error
}

// Repository contains all store interactions needed by the service.
type Repository interface {
	SlotStore
	AppointmentStore
	EventStore
}

// AtomicBooker is implemented by stores that reserve the slot and insert the
// appointment in one server-side transaction. The service prefers it over
// the two-step path, which then needs no compensation.
type AtomicBooker interface {
	BookSlot(ctx context.Context, req BookingRequest) (*Appointment, error)
}

// AvailabilityCache holds the advisory available-dates list.
type AvailabilityCache interface {
	GetDates(ctx context.Context, doctorID uuid.UUID) ([]time.Time, bool, error)
	SetDates(ctx context.Context, doctorID uuid.UUID, dates []time.Time) error
	Invalidate(ctx context.Context, doctorID uuid.UUID) error
}

// Locker serialises slot generation per doctor and day.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
