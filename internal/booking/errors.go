package booking

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrSlotUnavailable is a business outcome, not a fault: someone else
	// holds the slot or the doctor closed it. Callers re-fetch availability.
	ErrSlotUnavailable = errors.New("this time is no longer available, please choose another")

	ErrSlotNotFound            = errors.New("slot not found")
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrForbidden               = errors.New("not allowed for this user")
	ErrSlotOverlap             = errors.New("slot overlaps an existing slot for this doctor")
	ErrGenerationInProgress    = errors.New("slots for this day are already being generated")
)

// ValidationError rejects input before the store is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError marks a transient store failure. Resubmitting the same
// booking is safe: a second attempt on a taken slot yields ErrSlotUnavailable.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// CompensationFailure means a slot was reserved, the appointment insert
// failed and releasing the slot failed too. The slot is stranded until the
// reconcile worker picks it up.
type CompensationFailure struct {
	SlotID    uuid.UUID
	InsertErr error
	RevertErr error
}

func (e *CompensationFailure) Error() string {
	return fmt.Sprintf("slot %s stranded: insert failed (%v), revert failed (%v)", e.SlotID, e.InsertErr, e.RevertErr)
}

func (e *CompensationFailure) Unwrap() []error { return []error{e.InsertErr, e.RevertErr} }

func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsRetryable reports whether the caller may resubmit the identical request.
func IsRetryable(err error) bool {
	var pe *PersistenceError
	var cf *CompensationFailure
	return errors.As(err, &pe) || errors.As(err, &cf)
}
