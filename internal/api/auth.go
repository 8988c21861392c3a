package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-booking/internal/booking"
)

const actorKey contextKey = "actor"

// Claims is the token shape issued by the identity provider. The role may
// live in app_role or in user_metadata.role.
type Claims struct {
	AppRole      string         `json:"app_role,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

func (c Claims) role() booking.Role {
	role := c.AppRole
	if role == "" {
		if v, ok := c.UserMetadata["role"].(string); ok {
			role = v
		}
	}
	return booking.Role(strings.ToLower(role))
}

// Authenticator verifies HS256 bearer tokens. With no secret configured it
// trusts X-User-ID and X-User-Role instead; that mode is only allowed in dev.
type Authenticator struct {
	secret       []byte
	trustHeaders bool
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{
		secret:       []byte(secret),
		trustHeaders: secret == "",
	}
}

var errUnauthenticated = errors.New("missing or invalid credentials")

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := a.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (booking.Actor, error) {
	if a.trustHeaders {
		return actorFromHeaders(r)
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" || token == r.Header.Get("Authorization") {
		// browsers cannot set headers on websocket upgrades
		token = r.URL.Query().Get("access_token")
	}
	if token == "" {
		return booking.Actor{}, errUnauthenticated
	}
	return a.parseToken(token)
}

func (a *Authenticator) parseToken(raw string) (booking.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return booking.Actor{}, errUnauthenticated
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return booking.Actor{}, errUnauthenticated
	}
	role := claims.role()
	if !validRole(role) {
		return booking.Actor{}, errors.New("token carries no usable role")
	}
	return booking.Actor{UserID: userID, Role: role}, nil
}

func actorFromHeaders(r *http.Request) (booking.Actor, error) {
	userID, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		return booking.Actor{}, errUnauthenticated
	}
	role := booking.Role(strings.ToLower(r.Header.Get("X-User-Role")))
	if !validRole(role) {
		return booking.Actor{}, errors.New("X-User-Role must be patient, doctor or admin")
	}
	return booking.Actor{UserID: userID, Role: role}, nil
}

func validRole(role booking.Role) bool {
	switch role {
	case booking.RolePatient, booking.RoleDoctor, booking.RoleAdmin:
		return true
	}
	return false
}

// ActorFromContext returns the authenticated caller.
func ActorFromContext(ctx context.Context) (booking.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(booking.Actor)
	return actor, ok
}
