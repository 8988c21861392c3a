package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/hackgods/clinic-slot-booking/internal/redis"
)

type recordingPublisher struct {
	mu      sync.Mutex
	signals []Signal
	err     error
}

func (p *recordingPublisher) Publish(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	var sig Signal
	if err := json.Unmarshal(payload, &sig); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, sig)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, s := range p.signals {
		out = append(out, s.Type)
	}
	return out
}

var (
	offer     = json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	answer    = json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	candidate = json.RawMessage(`{"candidate":"candidate:1 1 udp 2122260223 10.0.0.1 54400 typ host"}`)
)

func TestSessionLifecycle(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewService(NewMemoryRepository(), pub, zerolog.Nop())
	ctx := context.Background()
	caller, callee := uuid.New(), uuid.New()

	s, err := svc.Start(ctx, caller, callee, offer, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusRinging, s.Status)
	assert.NotEmpty(t, s.RoomID)

	incoming, err := svc.Incoming(ctx, callee)
	require.NoError(t, err)
	assert.Len(t, incoming, 1)

	active, err := svc.Answer(ctx, callee, s.ID, answer)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, active.Status)
	require.NotNil(t, active.StartedAt)

	require.NoError(t, svc.AddCandidate(ctx, caller, s.ID, candidate))
	require.NoError(t, svc.AddCandidate(ctx, callee, s.ID, candidate))

	ended, err := svc.End(ctx, caller, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, ended.Status)
	firstEnd := *ended.EndedAt

	again, err := svc.End(ctx, callee, s.ID)
	require.NoError(t, err)
	assert.Equal(t, firstEnd, *again.EndedAt)

	assert.Equal(t, []string{SignalOffer, SignalAnswer, SignalCandidate, SignalCandidate, SignalEnded}, pub.types())

	got, err := svc.Get(ctx, callee, s.ID)
	require.NoError(t, err)
	assert.Len(t, got.Candidates, 2)
}

func TestSessionGuards(t *testing.T) {
	svc := NewService(NewMemoryRepository(), &recordingPublisher{}, zerolog.Nop())
	ctx := context.Background()
	caller, callee, stranger := uuid.New(), uuid.New(), uuid.New()

	_, err := svc.Start(ctx, caller, caller, offer, nil)
	assert.ErrorIs(t, err, ErrNotParticipant)
	_, err = svc.Start(ctx, caller, callee, json.RawMessage(`"sdp"`), nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	s, err := svc.Start(ctx, caller, callee, offer, nil)
	require.NoError(t, err)

	_, err = svc.Answer(ctx, caller, s.ID, answer)
	assert.ErrorIs(t, err, ErrNotParticipant, "caller cannot answer their own call")
	_, err = svc.Answer(ctx, callee, s.ID, json.RawMessage(`null`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	assert.ErrorIs(t, svc.AddCandidate(ctx, stranger, s.ID, candidate), ErrNotParticipant)
	_, err = svc.End(ctx, stranger, s.ID)
	assert.ErrorIs(t, err, ErrNotParticipant)
	_, err = svc.Get(ctx, stranger, s.ID)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = svc.End(ctx, callee, s.ID)
	require.NoError(t, err)
	_, err = svc.Answer(ctx, callee, s.ID, answer)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, svc.AddCandidate(ctx, caller, s.ID, candidate), ErrInvalidState)

	_, err = svc.Get(ctx, caller, uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("redis down")}
	svc := NewService(NewMemoryRepository(), pub, zerolog.Nop())

	s, err := svc.Start(context.Background(), uuid.New(), uuid.New(), offer, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusRinging, s.Status)
}

func TestSignalsReachRedisSubscribers(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	relay := redisclient.NewSignalRelay(client)
	svc := NewService(NewMemoryRepository(), relay, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	caller, callee := uuid.New(), uuid.New()

	s, err := svc.Start(ctx, caller, callee, offer, nil)
	require.NoError(t, err)

	msgs, err := relay.Subscribe(ctx, s.ID)
	require.NoError(t, err)

	_, err = svc.Answer(ctx, callee, s.ID, answer)
	require.NoError(t, err)

	select {
	case raw := <-msgs:
		var sig Signal
		require.NoError(t, json.Unmarshal(raw, &sig))
		assert.Equal(t, SignalAnswer, sig.Type)
		assert.Equal(t, callee, sig.From)
		assert.JSONEq(t, string(answer), string(sig.Data))
	case <-ctx.Done():
		t.Fatal("answer signal not delivered")
	}
}
