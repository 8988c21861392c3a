package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Publisher relays signals to whoever is listening on a session.
type Publisher interface {
	Publish(ctx context.Context, sessionID uuid.UUID, payload []byte) error
}

type Service struct {
	repo   Repository
	relay  Publisher
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, relay Publisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		relay:  relay,
		logger: logger.With().Str("component", "session").Logger(),
		now:    time.Now,
	}
}

// Start opens a ringing session from caller to callee carrying the caller's offer.
func (s *Service) Start(ctx context.Context, callerID, calleeID uuid.UUID, offer json.RawMessage, appointmentID *uuid.UUID) (*Session, error) {
	if callerID == uuid.Nil || calleeID == uuid.Nil || callerID == calleeID {
		return nil, ErrNotParticipant
	}
	if !isObject(offer) {
		return nil, ErrInvalidPayload
	}

	id := uuid.New()
	created, err := s.repo.Create(ctx, Session{
		ID:            id,
		RoomID:        "room-" + id.String()[:8],
		CallerID:      callerID,
		CalleeID:      calleeID,
		AppointmentID: appointmentID,
		Status:        StatusRinging,
		Offer:         offer,
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, created.ID, SignalOffer, callerID, offer)
	return created, nil
}

// Answer is only valid for the callee of a ringing session.
func (s *Service) Answer(ctx context.Context, userID, id uuid.UUID, answer json.RawMessage) (*Session, error) {
	if !isObject(answer) {
		return nil, ErrInvalidPayload
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.CalleeID != userID {
		return nil, ErrNotParticipant
	}
	if current.Status != StatusRinging {
		return nil, ErrInvalidState
	}

	accepted, err := s.repo.Accept(ctx, id, answer, s.now())
	if err != nil {
		// ended or answered between Get and Accept
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrInvalidState
		}
		return nil, fmt.Errorf("accept session: %w", err)
	}

	s.publish(ctx, id, SignalAnswer, userID, answer)
	return accepted, nil
}

func (s *Service) AddCandidate(ctx context.Context, userID, id uuid.UUID, candidate json.RawMessage) error {
	if !isObject(candidate) {
		return ErrInvalidPayload
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !current.hasParticipant(userID) {
		return ErrNotParticipant
	}
	if current.Status == StatusEnded {
		return ErrInvalidState
	}

	if err := s.repo.AppendCandidate(ctx, id, candidate); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return ErrInvalidState
		}
		return err
	}

	s.publish(ctx, id, SignalCandidate, userID, candidate)
	return nil
}

// End may be called by either party any number of times.
func (s *Service) End(ctx context.Context, userID, id uuid.UUID) (*Session, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.hasParticipant(userID) {
		return nil, ErrNotParticipant
	}

	ended, err := s.repo.End(ctx, id, s.now())
	if err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}

	if current.Status != StatusEnded {
		s.publish(ctx, id, SignalEnded, userID, nil)
	}
	return ended, nil
}

func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*Session, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.hasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return current, nil
}

// Incoming lists calls currently ringing for the user.
func (s *Service) Incoming(ctx context.Context, userID uuid.UUID) ([]Session, error) {
	return s.repo.ListRingingForCallee(ctx, userID)
}

// publish is best effort; the stored session stays the source of truth.
func (s *Service) publish(ctx context.Context, id uuid.UUID, kind string, from uuid.UUID, data json.RawMessage) {
	if s.relay == nil {
		return
	}

	payload, err := json.Marshal(Signal{
		Type:      kind,
		SessionID: id,
		From:      from,
		Data:      data,
		SentAt:    s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", id.String()).Msg("failed to encode signal")
		return
	}

	if err := s.relay.Publish(ctx, id, payload); err != nil {
		s.logger.Warn().Err(err).Str("session_id", id.String()).Str("signal", kind).Msg("failed to publish signal")
	}
}

func isObject(raw json.RawMessage) bool {
	var v map[string]any
	return len(raw) > 0 && json.Unmarshal(raw, &v) == nil && v != nil
}
