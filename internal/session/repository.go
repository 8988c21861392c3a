package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, s Session) (*Session, error)
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	// Accept moves a ringing session to active. ErrSessionNotFound means the
	// session is gone or no longer ringing.
	Accept(ctx context.Context, id uuid.UUID, answer json.RawMessage, at time.Time) (*Session, error)
	AppendCandidate(ctx context.Context, id uuid.UUID, candidate json.RawMessage) error
	// End is idempotent; ended_at keeps its first value.
	End(ctx context.Context, id uuid.UUID, at time.Time) (*Session, error)
	ListRingingForCallee(ctx context.Context, calleeID uuid.UUID) ([]Session, error)
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool pgxQuerier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	if pool == nil {
		panic("session: pgx pool required")
	}
	return &PgRepository{pool: pool}
}

const sessionColumns = `id, room_id, caller_id, callee_id, appointment_id, status, offer, answer, ice_candidates, started_at, ended_at, created_at`

func scanSession(row pgx.Row) (*Session, error) {
	var (
		s                    Session
		offer, answer, cands []byte
	)
	err := row.Scan(
		&s.ID,
		&s.RoomID,
		&s.CallerID,
		&s.CalleeID,
		&s.AppointmentID,
		&s.Status,
		&offer,
		&answer,
		&cands,
		&s.StartedAt,
		&s.EndedAt,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	s.Offer = offer
	s.Answer = answer
	if len(cands) > 0 {
		if err := json.Unmarshal(cands, &s.Candidates); err != nil {
			return nil, fmt.Errorf("decode ice candidates: %w", err)
		}
	}
	return &s, nil
}

func (r *PgRepository) Create(ctx context.Context, s Session) (*Session, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO video_sessions (id, room_id, caller_id, callee_id, appointment_id, status, offer)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
		RETURNING `+sessionColumns,
		s.ID, s.RoomID, s.CallerID, s.CalleeID, s.AppointmentID, s.Status, string(s.Offer))

	created, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return created, nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM video_sessions
		WHERE id = $1
	`, id)
	return scanSession(row)
}

func (r *PgRepository) Accept(ctx context.Context, id uuid.UUID, answer json.RawMessage, at time.Time) (*Session, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE video_sessions
		SET status = 'active',
		    answer = $2::jsonb,
		    started_at = $3
		WHERE id = $1
		  AND status = 'ringing'
		RETURNING `+sessionColumns,
		id, string(answer), at)
	return scanSession(row)
}

func (r *PgRepository) AppendCandidate(ctx context.Context, id uuid.UUID, candidate json.RawMessage) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE video_sessions
		SET ice_candidates = ice_candidates || jsonb_build_array($2::jsonb)
		WHERE id = $1
		  AND status <> 'ended'
	`, id, string(candidate))
	if err != nil {
		return fmt.Errorf("append ice candidate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *PgRepository) End(ctx context.Context, id uuid.UUID, at time.Time) (*Session, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE video_sessions
		SET status = 'ended',
		    ended_at = COALESCE(ended_at, $2)
		WHERE id = $1
		RETURNING `+sessionColumns,
		id, at)
	return scanSession(row)
}

func (r *PgRepository) ListRingingForCallee(ctx context.Context, calleeID uuid.UUID) ([]Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM video_sessions
		WHERE callee_id = $1
		  AND status = 'ringing'
		ORDER BY created_at DESC
	`, calleeID)
	if err != nil {
		return nil, fmt.Errorf("list ringing sessions: %w", err)
	}
	defer rows.Close()

	result := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
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
