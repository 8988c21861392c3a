package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-booking/internal/session"
)

// SignalSubscriber streams raw signals for one session until ctx ends.
type SignalSubscriber interface {
	Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan []byte, error)
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func startSessionHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())

		var req StartSessionRequest
		if !decodeBody(w, r, &req) {
			return
		}

		var appointmentID *uuid.UUID
		if req.AppointmentID != "" {
			id := uuid.MustParse(req.AppointmentID)
			appointmentID = &id
		}

		s, err := svc.Start(r.Context(), actor.UserID, uuid.MustParse(req.CalleeID), req.Offer, appointmentID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toSessionResponse(*s))
	}
}

func incomingSessionsHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())

		sessions, err := svc.Incoming(r.Context(), actor.UserID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		out := make([]SessionResponse, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, toSessionResponse(s))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getSessionHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		id, ok := urlUUID(w, r, "id", "invalid_session_id")
		if !ok {
			return
		}

		s, err := svc.Get(r.Context(), actor.UserID, id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionResponse(*s))
	}
}

func answerSessionHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		id, ok := urlUUID(w, r, "id", "invalid_session_id")
		if !ok {
			return
		}

		var req SignalRequest
		if !decodeBody(w, r, &req) {
			return
		}

		s, err := svc.Answer(r.Context(), actor.UserID, id, req.Data)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionResponse(*s))
	}
}

func addCandidateHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		id, ok := urlUUID(w, r, "id", "invalid_session_id")
		if !ok {
			return
		}

		var req SignalRequest
		if !decodeBody(w, r, &req) {
			return
		}

		if err := svc.AddCandidate(r.Context(), actor.UserID, id, req.Data); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func endSessionHandler(svc *session.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		id, ok := urlUUID(w, r, "id", "invalid_session_id")
		if !ok {
			return
		}

		s, err := svc.End(r.Context(), actor.UserID, id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionResponse(*s))
	}
}

// sessionEventsHandler forwards relayed signals to a websocket. Messages
// published while the client is disconnected are lost.
func sessionEventsHandler(svc *session.Service, relay SignalSubscriber) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		id, ok := urlUUID(w, r, "id", "invalid_session_id")
		if !ok {
			return
		}
		if _, err := svc.Get(r.Context(), actor.UserID, id); err != nil {
			writeServiceError(w, r, err)
			return
		}

		logger := zerolog.Ctx(r.Context()).With().Str("session_id", id.String()).Logger()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		signals, err := relay.Subscribe(ctx, id)
		if err != nil {
			logger.Error().Err(err).Msg("subscribe to session signals failed")
			writeError(w, http.StatusServiceUnavailable, "signals_unavailable", "signal relay is unavailable")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		go readPump(conn, cancel)

		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-signals:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					logger.Debug().Err(err).Msg("websocket write failed")
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}
}

// readPump discards client frames and cancels when the peer goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
