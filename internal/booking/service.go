package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/clinic-slot-booking/internal/metrics"
	redisclient "github.com/hackgods/clinic-slot-booking/internal/redis"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentDeleted     = "APPOINTMENT_DELETED"
	EventSlotsGenerated         = "SLOTS_GENERATED"
	EventSlotsOverridden        = "SLOTS_OVERRIDDEN"
	EventSlotCompensationFailed = "SLOT_COMPENSATION_FAILED"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	reconcileBatch   = 100
)

var tracer = otel.Tracer("clinic.internal.booking")

type Service struct {
	repo     Repository
	resolver *Resolver
	locker   Locker
	template DayTemplate
	metrics  *metrics.BookingMetrics
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, resolver *Resolver, locker Locker, template DayTemplate, m *metrics.BookingMetrics, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		resolver: resolver,
		locker:   locker,
		template: template,
		metrics:  m,
		logger:   logger.With().Str("component", "booking").Logger(),
		now:      time.Now,
	}
}

func (s *Service) Resolver() *Resolver { return s.resolver }

// Book converts a slot into a pending appointment for exactly one caller.
// Concurrent attempts on the same slot get ErrSlotUnavailable, never a
// second appointment.
func (s *Service) Book(ctx context.Context, actor Actor, req BookingRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "booking.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.slot_id", req.SlotID.String()),
		attribute.String("clinic.doctor_id", req.DoctorID.String()),
	)

	started := s.now()

	if err := req.Validate(started); err != nil {
		s.metrics.ObserveBooking("invalid", "none", 0)
		return nil, err
	}
	if !actor.canBookFor(req) {
		s.metrics.ObserveBooking("forbidden", "none", 0)
		return nil, ErrForbidden
	}

	var (
		appt *Appointment
		err  error
		path string
	)
	if atomic, ok := s.repo.(AtomicBooker); ok {
		path = "atomic"
		appt, err = atomic.BookSlot(ctx, req)
	} else {
		path = "two_step"
		appt, err = s.bookTwoStep(ctx, req)
	}

	s.metrics.ObserveBooking(bookingOutcome(err), path, time.Since(started))

	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logEvent(ctx, EventAppointmentBooked, &appt.ID, appt.SlotID, map[string]any{
		"patient_id": appt.PatientID.String(),
		"doctor_id":  appt.DoctorID.String(),
		"start_time": appt.StartTime,
	})
	s.resolver.Invalidate(ctx, appt.DoctorID)

	return appt, nil
}

// bookTwoStep is used when the store cannot run the whole booking in one
// transaction. A failed insert must give the slot back.
func (s *Service) bookTwoStep(ctx context.Context, req BookingRequest) (*Appointment, error) {
	slot, err := s.repo.GetSlot(ctx, req.SlotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, persistence("load slot", err)
	}
	// doctor, start and end never change after a slot is created, so this
	// check cannot go stale before the reservation below.
	if err := matchesSlot(*slot, req); err != nil {
		return nil, err
	}

	reserved, err := s.repo.ConditionalMarkUnavailable(ctx, req.SlotID)
	if err != nil {
		return nil, persistence("reserve slot", err)
	}
	if !reserved {
		return nil, ErrSlotUnavailable
	}

	slotID := slot.ID
	var notes *string
	if req.Notes != "" {
		notes = &req.Notes
	}

	appt, insertErr := s.repo.InsertAppointment(ctx, Appointment{
		ID:        uuid.New(),
		PatientID: req.PatientID,
		DoctorID:  slot.DoctorID,
		SlotID:    &slotID,
		StartTime: slot.StartTime,
		EndTime:   slot.EndTime,
		Status:    StatusPending,
		Notes:     notes,
	})
	if insertErr == nil {
		return appt, nil
	}

	if revertErr := s.repo.MarkAvailable(ctx, slotID); revertErr != nil {
		return nil, s.compensationFailed(ctx, slotID, insertErr, revertErr)
	}

	if errors.Is(insertErr, ErrSlotUnavailable) {
		return nil, ErrSlotUnavailable
	}
	return nil, persistence("insert appointment", insertErr)
}

func (s *Service) compensationFailed(ctx context.Context, slotID uuid.UUID, insertErr, revertErr error) error {
	s.metrics.CompensationFailed()
	s.logger.Error().
		Str("inconsistency", "stranded_slot").
		Str("slot_id", slotID.String()).
		AnErr("insert_error", insertErr).
		AnErr("revert_error", revertErr).
		Msg("slot reserved without appointment and could not be released")

	s.logEvent(ctx, EventSlotCompensationFailed, nil, &slotID, map[string]any{
		"insert_error": insertErr.Error(),
		"revert_error": revertErr.Error(),
	})

	return &CompensationFailure{SlotID: slotID, InsertErr: insertErr, RevertErr: revertErr}
}

func matchesSlot(slot Slot, req BookingRequest) error {
	switch {
	case slot.DoctorID != req.DoctorID:
		return &ValidationError{Field: "doctor_id", Reason: "does not own this slot"}
	case !slot.StartTime.Equal(req.StartTime) || !slot.EndTime.Equal(req.EndTime):
		return &ValidationError{Field: "start_time", Reason: "does not match the slot"}
	}
	return nil
}

func bookingOutcome(err error) string {
	var (
		ve *ValidationError
		cf *CompensationFailure
	)
	switch {
	case err == nil:
		return "booked"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrSlotNotFound):
		return "slot_not_found"
	case errors.As(err, &ve):
		return "invalid"
	case errors.As(err, &cf):
		return "compensation_failed"
	default:
		return "error"
	}
}

func (s *Service) Confirm(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, StatusConfirmed, EventAppointmentConfirmed)
}

func (s *Service) Complete(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, StatusCompleted, EventAppointmentCompleted)
}

func (s *Service) transition(ctx context.Context, actor Actor, id uuid.UUID, to Status, event string) (*Appointment, error) {
	appt, err := s.loadAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.managesAppointment(*appt) {
		return nil, ErrForbidden
	}
	if !appt.Status.CanTransition(to) {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, appt.Status, to)
	if err != nil {
		// the row left appt.Status between the read and the update
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, persistence("update appointment status", err)
	}

	s.metrics.ObserveTransition(string(to))
	s.logEvent(ctx, event, &updated.ID, updated.SlotID, map[string]any{
		"from":     string(appt.Status),
		"actor_id": actor.UserID.String(),
	})
	return updated, nil
}

// Cancel marks the appointment cancelled and releases its slot. Patients may
// only cancel while pending.
func (s *Service) Cancel(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "booking.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.appointment_id", id.String()))

	appt, err := s.loadAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	var from []Status
	switch {
	case actor.managesAppointment(*appt):
		from = []Status{StatusPending, StatusConfirmed}
	case actor.Role == RolePatient && actor.UserID == appt.PatientID:
		if appt.Status == StatusConfirmed {
			return nil, ErrForbidden
		}
		from = []Status{StatusPending}
	default:
		return nil, ErrForbidden
	}
	if !appt.Status.CanTransition(StatusCancelled) {
		return nil, ErrInvalidStatusTransition
	}

	cancelled, err := s.repo.CancelAppointment(ctx, id, from)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, persistence("cancel appointment", err)
	}

	s.metrics.ObserveTransition(string(StatusCancelled))
	s.logEvent(ctx, EventAppointmentCancelled, &cancelled.ID, cancelled.SlotID, map[string]any{
		"from":     string(appt.Status),
		"actor_id": actor.UserID.String(),
	})
	s.resolver.Invalidate(ctx, cancelled.DoctorID)
	return cancelled, nil
}

// Delete removes the appointment and returns its slot to available.
func (s *Service) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	appt, err := s.loadAppointment(ctx, id)
	if err != nil {
		return err
	}
	if !actor.managesAppointment(*appt) {
		return ErrForbidden
	}

	deleted, err := s.repo.DeleteAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return err
		}
		return persistence("delete appointment", err)
	}

	s.logEvent(ctx, EventAppointmentDeleted, &deleted.ID, deleted.SlotID, map[string]any{
		"status":   string(deleted.Status),
		"actor_id": actor.UserID.String(),
	})
	s.resolver.Invalidate(ctx, deleted.DoctorID)
	return nil
}

func (s *Service) Get(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.loadAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.managesAppointment(*appt) && actor.UserID != appt.PatientID {
		return nil, ErrForbidden
	}
	return appt, nil
}

func (s *Service) ListForPatient(ctx context.Context, actor Actor, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if actor.Role != RoleAdmin && actor.UserID != patientID {
		return nil, ErrForbidden
	}
	limit, offset = clampPage(limit, offset)

	appts, err := s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, persistence("list appointments by patient", err)
	}
	return appts, nil
}

func (s *Service) ListForDoctor(ctx context.Context, actor Actor, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if !actor.managesDoctor(doctorID) {
		return nil, ErrForbidden
	}
	limit, offset = clampPage(limit, offset)

	appts, err := s.repo.ListAppointmentsByDoctor(ctx, doctorID, limit, offset)
	if err != nil {
		return nil, persistence("list appointments by doctor", err)
	}
	return appts, nil
}

func (s *Service) loadAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	if id == uuid.Nil {
		return nil, &ValidationError{Field: "id", Reason: "is required"}
	}
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, persistence("load appointment", err)
	}
	return appt, nil
}

// GenerateDaySlots lays out the configured workday for one doctor. Two
// generations for the same doctor and day never run at once.
func (s *Service) GenerateDaySlots(ctx context.Context, actor Actor, doctorID uuid.UUID, day time.Time) ([]Slot, error) {
	if doctorID == uuid.Nil {
		return nil, &ValidationError{Field: "doctor_id", Reason: "is required"}
	}
	if !actor.managesDoctor(doctorID) {
		return nil, ErrForbidden
	}

	loc := s.resolver.Location()
	today := s.resolver.midnight(s.now())
	if s.resolver.midnight(day).Before(today) {
		return nil, &ValidationError{Field: "date", Reason: "is in the past"}
	}

	slots := s.template.Slots(doctorID, day, loc)
	if err := validateBatch(slots); err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return []Slot{}, nil
	}

	key := fmt.Sprintf("lock:slotgen:%s:%s", doctorID, day.In(loc).Format(time.DateOnly))

	var created []Slot
	err := s.locker.WithLock(ctx, key, func(lockCtx context.Context) error {
		var err error
		created, err = s.repo.InsertSlots(lockCtx, slots)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			return nil, ErrGenerationInProgress
		case errors.Is(err, ErrSlotOverlap):
			return nil, err
		default:
			return nil, persistence("insert slots", err)
		}
	}

	s.metrics.SlotsGenerated(len(created))
	s.logEvent(ctx, EventSlotsGenerated, nil, nil, map[string]any{
		"doctor_id": doctorID.String(),
		"date":      day.In(loc).Format(time.DateOnly),
		"count":     len(created),
	})
	s.resolver.Invalidate(ctx, doctorID)
	return created, nil
}

// validateBatch rejects batches whose windows are malformed or overlap each other.
func validateBatch(slots []Slot) error {
	for i, a := range slots {
		if err := a.Validate(); err != nil {
			return err
		}
		for _, b := range slots[i+1:] {
			if a.overlaps(b) {
				return ErrSlotOverlap
			}
		}
	}
	return nil
}

func (s *Service) ListSlots(ctx context.Context, actor Actor, doctorID uuid.UUID, from, to time.Time) ([]Slot, error) {
	if !actor.managesDoctor(doctorID) {
		return nil, ErrForbidden
	}
	if !from.Before(to) {
		return nil, &ValidationError{Field: "to", Reason: "must be after from"}
	}

	slots, err := s.repo.ListSlots(ctx, doctorID, from, to)
	if err != nil {
		return nil, persistence("list slots", err)
	}
	if slots == nil {
		slots = []Slot{}
	}
	return slots, nil
}

// OverrideAvailability is the doctor's manual switch. Closing a booked slot
// is allowed; later booking attempts then see ErrSlotUnavailable.
func (s *Service) OverrideAvailability(ctx context.Context, actor Actor, doctorID uuid.UUID, ids []uuid.UUID, available bool) (int64, error) {
	if !actor.managesDoctor(doctorID) {
		return 0, ErrForbidden
	}
	if len(ids) == 0 {
		return 0, &ValidationError{Field: "slot_ids", Reason: "must not be empty"}
	}

	n, err := s.repo.SetAvailability(ctx, doctorID, ids, available)
	if err != nil {
		return 0, persistence("set slot availability", err)
	}

	s.logEvent(ctx, EventSlotsOverridden, nil, nil, map[string]any{
		"doctor_id": doctorID.String(),
		"available": available,
		"requested": len(ids),
		"updated":   n,
	})
	s.resolver.Invalidate(ctx, doctorID)
	return n, nil
}

// DeleteSlots removes unreferenced slots; referenced ones are skipped and
// not counted.
func (s *Service) DeleteSlots(ctx context.Context, actor Actor, doctorID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if !actor.managesDoctor(doctorID) {
		return 0, ErrForbidden
	}
	if len(ids) == 0 {
		return 0, &ValidationError{Field: "slot_ids", Reason: "must not be empty"}
	}

	n, err := s.repo.DeleteSlots(ctx, doctorID, ids)
	if err != nil {
		return 0, persistence("delete slots", err)
	}
	s.resolver.Invalidate(ctx, doctorID)
	return n, nil
}

// ReconcileStrandedSlots releases slots recorded by failed compensations
// when no active appointment holds them. Intended for the worker.
func (s *Service) ReconcileStrandedSlots(ctx context.Context) (int, error) {
	events, err := s.repo.FindUnresolvedEvents(ctx, EventSlotCompensationFailed, reconcileBatch)
	if err != nil {
		return 0, fmt.Errorf("find stranded slot events: %w", err)
	}

	released := 0
	for _, ev := range events {
		if ev.SlotID != nil {
			_, err := s.repo.GetActiveAppointmentForSlot(ctx, *ev.SlotID)
			switch {
			case err == nil:
				// held legitimately by a later booking
			case errors.Is(err, ErrAppointmentNotFound):
				if err := s.repo.MarkAvailable(ctx, *ev.SlotID); err != nil {
					s.logger.Error().Err(err).Str("slot_id", ev.SlotID.String()).Msg("failed to release stranded slot")
					continue
				}
				released++
				s.metrics.SlotReconciled()
				if slot, err := s.repo.GetSlot(ctx, *ev.SlotID); err == nil {
					s.resolver.Invalidate(ctx, slot.DoctorID)
				}
				s.logger.Info().Str("slot_id", ev.SlotID.String()).Msg("released stranded slot")
			default:
				s.logger.Error().Err(err).Str("slot_id", ev.SlotID.String()).Msg("failed to check stranded slot")
				continue
			}
		}

		if err := s.repo.ResolveEvent(ctx, ev.ID); err != nil {
			s.logger.Error().Err(err).Int64("event_id", ev.ID).Msg("failed to resolve event")
		}
	}

	return released, nil
}

func (s *Service) logEvent(ctx context.Context, eventType string, appointmentID, slotID *uuid.UUID, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		SlotID:        slotID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to insert event log")
	}
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (a Actor) managesDoctor(doctorID uuid.UUID) bool {
	return a.Role == RoleAdmin || (a.Role == RoleDoctor && a.UserID == doctorID)
}

func (a Actor) managesAppointment(appt Appointment) bool {
	return a.managesDoctor(appt.DoctorID)
}

func (a Actor) canBookFor(req BookingRequest) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleDoctor:
		return a.UserID == req.DoctorID
	case RolePatient:
		return a.UserID == req.PatientID
	}
	return false
}
