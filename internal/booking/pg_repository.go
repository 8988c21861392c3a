package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLSTATEs raised by book_slot_and_create_appointment and by constraints.
const (
	codeSlotUnavailable    = "BK001"
	codeSlotNotFound       = "BK002"
	codeSlotMismatch       = "BK003"
	codeUniqueViolation    = "23505"
	codeExclusionViolation = "23P01"
)

// pgxQuerier is the slice of pgxpool.Pool the repository uses, so tests can
// hand in a pgxmock pool.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	pool pgxQuerier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	if pool == nil {
		panic("booking: pgx pool required")
	}
	return &PgRepository{pool: pool}
}

func newPgRepositoryWithQuerier(q pgxQuerier) *PgRepository {
	return &PgRepository{pool: q}
}

const slotColumns = `id, doctor_id, start_time, end_time, is_available, created_at, updated_at`

const appointmentColumns = `id, patient_id, doctor_id, slot_id, start_time, end_time, status, notes, created_at, updated_at`

// Helpers

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.StartTime,
		&s.EndTime,
		&s.IsAvailable,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var slotID *uuid.UUID
	var notes *string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&slotID,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.SlotID = slotID
	a.Notes = notes
	return &a, nil
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()

	result := []Slot{}
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// Slot store

func (r *PgRepository) InsertSlots(ctx context.Context, slots []Slot) ([]Slot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, persistence("begin insert slots", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	created := make([]Slot, 0, len(slots))
	for _, s := range slots {
		id := s.ID
		if id == uuid.Nil {
			id = uuid.New()
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO availability_slots (id, doctor_id, start_time, end_time, is_available, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
			RETURNING `+slotColumns,
			id, s.DoctorID, s.StartTime, s.EndTime, s.IsAvailable)

		slot, err := scanSlot(row)
		if err != nil {
			switch pgCode(err) {
			case codeExclusionViolation, codeUniqueViolation:
				return nil, ErrSlotOverlap
			}
			return nil, persistence("insert slot", err)
		}
		created = append(created, *slot)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, persistence("commit insert slots", err)
	}
	return created, nil
}

func (r *PgRepository) ListSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE doctor_id = $1
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time
	`, doctorID, from, to)
	if err != nil {
		return nil, persistence("list slots", err)
	}
	return collectSlots(rows)
}

func (r *PgRepository) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM availability_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ConditionalMarkUnavailable(ctx context.Context, slotID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE availability_slots
		SET is_available = false,
		    updated_at = now()
		WHERE id = $1
		  AND is_available
	`, slotID)
	if err != nil {
		return false, persistence("mark slot unavailable", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) MarkAvailable(ctx context.Context, slotID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE availability_slots
		SET is_available = true,
		    updated_at = now()
		WHERE id = $1
	`, slotID)
	if err != nil {
		return persistence("mark slot available", err)
	}
	return nil
}

// SetAvailability never reopens a slot that an active appointment holds.
func (r *PgRepository) SetAvailability(ctx context.Context, doctorID uuid.UUID, ids []uuid.UUID, available bool) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE availability_slots s
		SET is_available = $3,
		    updated_at = now()
		WHERE s.doctor_id = $1
		  AND s.id = ANY($2)
		  AND (NOT $3 OR NOT EXISTS (
		      SELECT 1 FROM appointments a
		      WHERE a.slot_id = s.id AND a.status <> 'cancelled'
		  ))
	`, doctorID, ids, available)
	if err != nil {
		return 0, persistence("set slot availability", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) DeleteSlots(ctx context.Context, doctorID uuid.UUID, ids []uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM availability_slots s
		WHERE s.doctor_id = $1
		  AND s.id = ANY($2)
		  AND NOT EXISTS (
		      SELECT 1 FROM appointments a
		      WHERE a.slot_id = s.id AND a.status <> 'cancelled'
		  )
	`, doctorID, ids)
	if err != nil {
		return 0, persistence("delete slots", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, from time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM get_truly_available_slots($1, $2)
	`, doctorID, from)
	if err != nil {
		return nil, persistence("list available slots", err)
	}
	return collectSlots(rows)
}

func (r *PgRepository) ListAvailableDates(ctx context.Context, doctorID uuid.UUID, from time.Time, loc *time.Location) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT day FROM get_doctor_available_dates($1, $2, $3)
	`, doctorID, from, loc.String())
	if err != nil {
		return nil, persistence("list available dates", err)
	}
	defer rows.Close()

	result := []time.Time{}
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		y, m, d := day.Date()
		result = append(result, time.Date(y, m, d, 0, 0, 0, 0, loc))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// BookSlot runs the whole booking inside Postgres; there is no window
// between the availability check and the insert.
func (r *PgRepository) BookSlot(ctx context.Context, req BookingRequest) (*Appointment, error) {
	var notes *string
	if req.Notes != "" {
		notes = &req.Notes
	}

	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM book_slot_and_create_appointment($1, $2, $3, $4, $5, $6)
	`, req.SlotID, req.PatientID, req.DoctorID, req.StartTime, req.EndTime, notes)

	appt, err := scanAppointment(row)
	if err != nil {
		switch pgCode(err) {
		case codeSlotUnavailable, codeUniqueViolation:
			return nil, ErrSlotUnavailable
		case codeSlotNotFound:
			return nil, ErrSlotNotFound
		case codeSlotMismatch:
			return nil, &ValidationError{Field: "slot_id", Reason: "does not match the requested doctor or times"}
		}
		return nil, persistence("book slot", err)
	}
	return appt, nil
}

// Appointment store

func (r *PgRepository) InsertAppointment(ctx context.Context, appt Appointment) (*Appointment, error) {
	id := appt.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, slot_id, start_time, end_time, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+appointmentColumns,
		id, appt.PatientID, appt.DoctorID, appt.SlotID, appt.StartTime, appt.EndTime, appt.Status, appt.Notes)

	created, err := scanAppointment(row)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return nil, ErrSlotUnavailable
		}
		return nil, persistence("insert appointment", err)
	}
	return created, nil
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetActiveAppointmentForSlot(ctx context.Context, slotID uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE slot_id = $1 AND status <> 'cancelled'
	`, slotID)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, persistence("list appointments by patient", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY start_time DESC
		LIMIT $2 OFFSET $3
	`, doctorID, limit, offset)
	if err != nil {
		return nil, persistence("list appointments by doctor", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) CancelAppointment(ctx context.Context, id uuid.UUID, from []Status) (*Appointment, error) {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}

	return r.withReleasedSlot(ctx, "cancel appointment", func(tx pgx.Tx) pgx.Row {
		return tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = 'cancelled',
			    updated_at = now()
			WHERE id = $1
			  AND status = ANY($2)
			RETURNING `+appointmentColumns,
			id, allowed)
	})
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.withReleasedSlot(ctx, "delete appointment", func(tx pgx.Tx) pgx.Row {
		return tx.QueryRow(ctx, `
			DELETE FROM appointments
			WHERE id = $1
			RETURNING `+appointmentColumns,
			id)
	})
}

// withReleasedSlot runs stmt and frees the returned appointment's slot in
// the same transaction.
func (r *PgRepository) withReleasedSlot(ctx context.Context, op string, stmt func(tx pgx.Tx) pgx.Row) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, persistence("begin "+op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := scanAppointment(stmt(tx))
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, persistence(op, err)
	}

	if appt.SlotID != nil {
		_, err := tx.Exec(ctx, `
			UPDATE availability_slots
			SET is_available = true,
			    updated_at = now()
			WHERE id = $1
		`, *appt.SlotID)
		if err != nil {
			return nil, persistence("release slot", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, persistence("commit "+op, err)
	}
	return appt, nil
}

// Event log

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, slot_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.SlotID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func (r *PgRepository) FindUnresolvedEvents(ctx context.Context, eventType string, limit int) ([]EventLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_type, appointment_id, slot_id, payload, created_at, resolved_at
		FROM event_logs
		WHERE event_type = $1
		  AND resolved_at IS NULL
		ORDER BY id
		LIMIT $2
	`, eventType, limit)
	if err != nil {
		return nil, fmt.Errorf("find unresolved events: %w", err)
	}
	defer rows.Close()

	var result []EventLog
	for rows.Next() {
		var ev EventLog
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.AppointmentID, &ev.SlotID, &ev.Payload, &ev.CreatedAt, &ev.ResolvedAt); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) ResolveEvent(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE event_logs SET resolved_at = now() WHERE id = $1 AND resolved_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("resolve event: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
