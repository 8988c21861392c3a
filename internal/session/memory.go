package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps sessions in process.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[uuid.UUID]Session)}
}

func (m *MemoryRepository) Create(ctx context.Context, s Session) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	m.sessions[s.ID] = s
	return &s, nil
}

func (m *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (m *MemoryRepository) Accept(ctx context.Context, id uuid.UUID, answer json.RawMessage, at time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status != StatusRinging {
		return nil, ErrSessionNotFound
	}
	s.Status, s.Answer, s.StartedAt = StatusActive, answer, &at
	m.sessions[id] = s
	return &s, nil
}

func (m *MemoryRepository) AppendCandidate(ctx context.Context, id uuid.UUID, candidate json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Status == StatusEnded {
		return ErrSessionNotFound
	}
	s.Candidates = append(append([]json.RawMessage(nil), s.Candidates...), candidate)
	m.sessions[id] = s
	return nil
}

func (m *MemoryRepository) End(ctx context.Context, id uuid.UUID, at time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.Status = StatusEnded
	if s.EndedAt == nil {
		s.EndedAt = &at
	}
	m.sessions[id] = s
	return &s, nil
}

func (m *MemoryRepository) ListRingingForCallee(ctx context.Context, calleeID uuid.UUID) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Session{}
	for _, s := range m.sessions {
		if s.CalleeID == calleeID && s.Status == StatusRinging {
			out = append(out, s)
		}
	}
	return out, nil
}
