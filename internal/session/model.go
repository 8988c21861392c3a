package session

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusRinging Status = "ringing"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotParticipant  = errors.New("not a participant of this session")
	ErrInvalidState    = errors.New("session is not in a state that allows this")
	ErrInvalidPayload  = errors.New("signaling payload must be a JSON object")
)

// Session is an ad-hoc call between two users. It is not tied to slot
// availability; AppointmentID is informational only.
type Session struct {
	ID            uuid.UUID
	RoomID        string
	CallerID      uuid.UUID
	CalleeID      uuid.UUID
	AppointmentID *uuid.UUID
	Status        Status
	Offer         json.RawMessage
	Answer        json.RawMessage
	Candidates    []json.RawMessage
	StartedAt     *time.Time
	EndedAt       *time.Time
	CreatedAt     time.Time
}

func (s Session) hasParticipant(userID uuid.UUID) bool {
	return s.CallerID == userID || s.CalleeID == userID
}

// Signal types published on the session channel.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
	SignalEnded     = "ended"
)

// Signal is the message relayed to subscribers of a session.
type Signal struct {
	Type      string          `json:"type"`
	SessionID uuid.UUID       `json:"session_id"`
	From      uuid.UUID       `json:"from"`
	Data      json.RawMessage `json:"data,omitempty"`
	SentAt    time.Time       `json:"sent_at"`
}
