package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether an appointment may move from s to next.
// completed and cancelled are terminal.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Active reports whether the status still holds its slot.
func (s Status) Active() bool {
	return s != StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Actor is the authenticated caller as asserted by the identity provider.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

type Slot struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	StartTime   time.Time
	EndTime     time.Time
	IsAvailable bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s Slot) Validate() error {
	if s.DoctorID == uuid.Nil {
		return &ValidationError{Field: "doctor_id", Reason: "is required"}
	}
	if !s.StartTime.Before(s.EndTime) {
		return &ValidationError{Field: "end_time", Reason: "must be after start_time"}
	}
	return nil
}

func (s Slot) overlaps(o Slot) bool {
	return s.DoctorID == o.DoctorID && s.StartTime.Before(o.EndTime) && o.StartTime.Before(s.EndTime)
}

// Appointment copies start/end from the slot at booking time; it never
// joins them live. SlotID is nil for appointments without a declared slot.
type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	SlotID    *uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Status    Status
	Notes     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type BookingRequest struct {
	SlotID    uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Notes     string
}

const maxNotesLength = 2000

func (r BookingRequest) Validate(now time.Time) error {
	switch {
	case r.SlotID == uuid.Nil:
		return &ValidationError{Field: "slot_id", Reason: "is required"}
	case r.PatientID == uuid.Nil:
		return &ValidationError{Field: "patient_id", Reason: "is required"}
	case r.DoctorID == uuid.Nil:
		return &ValidationError{Field: "doctor_id", Reason: "is required"}
	case r.StartTime.IsZero() || r.EndTime.IsZero():
		return &ValidationError{Field: "start_time", Reason: "start_time and end_time are required"}
	case !r.StartTime.Before(r.EndTime):
		return &ValidationError{Field: "end_time", Reason: "must be after start_time"}
	case r.StartTime.Before(now):
		return &ValidationError{Field: "start_time", Reason: "is in the past"}
	case len(r.Notes) > maxNotesLength:
		return &ValidationError{Field: "notes", Reason: "is too long"}
	}
	return nil
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	SlotID        *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
	ResolvedAt    *time.Time
}
