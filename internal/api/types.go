package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-booking/internal/address"
	"github.com/hackgods/clinic-slot-booking/internal/booking"
	"github.com/hackgods/clinic-slot-booking/internal/session"
)

type BookAppointmentRequest struct {
	SlotID    string    `json:"slot_id" validate:"required,uuid"`
	DoctorID  string    `json:"doctor_id" validate:"required,uuid"`
	PatientID string    `json:"patient_id,omitempty" validate:"omitempty,uuid"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required"`
	Notes     string    `json:"notes,omitempty" validate:"max=2000"`
}

type GenerateSlotsRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

type SlotAvailabilityRequest struct {
	SlotIDs   []string `json:"slot_ids" validate:"required,min=1,max=500,dive,uuid"`
	Available *bool    `json:"available" validate:"required"`
}

type DeleteSlotsRequest struct {
	SlotIDs []string `json:"slot_ids" validate:"required,min=1,max=500,dive,uuid"`
}

type StartSessionRequest struct {
	CalleeID      string          `json:"callee_id" validate:"required,uuid"`
	AppointmentID string          `json:"appointment_id,omitempty" validate:"omitempty,uuid"`
	Offer         json.RawMessage `json:"offer" validate:"required"`
}

type SignalRequest struct {
	Data json.RawMessage `json:"data" validate:"required"`
}

type SlotResponse struct {
	ID          uuid.UUID `json:"id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	IsAvailable bool      `json:"is_available"`
}

type AppointmentResponse struct {
	ID        uuid.UUID  `json:"id"`
	PatientID uuid.UUID  `json:"patient_id"`
	DoctorID  uuid.UUID  `json:"doctor_id"`
	SlotID    *uuid.UUID `json:"slot_id,omitempty"`
	StartTime time.Time  `json:"start_time"`
	EndTime   time.Time  `json:"end_time"`
	Status    string     `json:"status"`
	Notes     *string    `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type AvailableDatesResponse struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Timezone string    `json:"timezone"`
	Dates    []string  `json:"dates"`
}

type CountResponse struct {
	Affected int64 `json:"affected"`
}

type SessionResponse struct {
	ID            uuid.UUID         `json:"id"`
	RoomID        string            `json:"room_id"`
	CallerID      uuid.UUID         `json:"caller_id"`
	CalleeID      uuid.UUID         `json:"callee_id"`
	AppointmentID *uuid.UUID        `json:"appointment_id,omitempty"`
	Status        string            `json:"status"`
	Offer         json.RawMessage   `json:"offer,omitempty"`
	Answer        json.RawMessage   `json:"answer,omitempty"`
	Candidates    []json.RawMessage `json:"candidates"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	EndedAt       *time.Time        `json:"ended_at,omitempty"`
}

type AddressResponse struct {
	Zip          string `json:"zip"`
	State        string `json:"state"`
	City         string `json:"city"`
	Street       string `json:"street"`
	Neighborhood string `json:"neighborhood"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toSlotResponses(slots []booking.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotResponse{
			ID:          s.ID,
			DoctorID:    s.DoctorID,
			StartTime:   s.StartTime,
			EndTime:     s.EndTime,
			IsAvailable: s.IsAvailable,
		})
	}
	return out
}

func toAppointmentResponse(a booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		SlotID:    a.SlotID,
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		Status:    string(a.Status),
		Notes:     a.Notes,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toAppointmentResponses(appts []booking.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}

func toSessionResponse(s session.Session) SessionResponse {
	candidates := s.Candidates
	if candidates == nil {
		candidates = []json.RawMessage{}
	}
	return SessionResponse{
		ID:            s.ID,
		RoomID:        s.RoomID,
		CallerID:      s.CallerID,
		CalleeID:      s.CalleeID,
		AppointmentID: s.AppointmentID,
		Status:        string(s.Status),
		Offer:         s.Offer,
		Answer:        s.Answer,
		Candidates:    candidates,
		StartedAt:     s.StartedAt,
		EndedAt:       s.EndedAt,
	}
}

func toAddressResponse(a address.Address) AddressResponse {
	return AddressResponse{
		Zip:          a.Zip,
		State:        a.State,
		City:         a.City,
		Street:       a.Street,
		Neighborhood: a.Neighborhood,
	}
}

func parseUUIDs(raw []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		// validated by the request tags
		out = append(out, uuid.MustParse(s))
	}
	return out
}
