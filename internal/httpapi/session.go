package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/safar/storefront-checkout/internal/apperr"
	"github.com/safar/storefront-checkout/internal/cart"
)

const (
	HeaderUserID  = "X-User-ID"
	HeaderGuestID = "X-Guest-ID"
	HeaderRole    = "X-Role"

	RoleOperator = "operator"
)

type sessionKey struct{}

// Session is what the surrounding auth layer tells us about the caller. It
// is trusted as given.
type Session struct {
	UserID   int64
	GuestID  uuid.UUID
	Operator bool
}

func (s Session) Authenticated() bool {
	return s.UserID > 0
}

func (s Session) Owner() cart.Owner {
	return cart.Owner{UserID: s.UserID, GuestID: s.GuestID}
}

func sessionFrom(ctx context.Context) Session {
	s, _ := ctx.Value(sessionKey{}).(Session)
	return s
}

// withSession reads the user id from the X-User-ID header or the userId
// query parameter, the guest cart id from X-Guest-ID and the caller's role
// from X-Role.
func withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var s Session

		raw := r.Header.Get(HeaderUserID)
		if raw == "" {
			raw = r.URL.Query().Get("userId")
		}
		if raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				respondWithError(w, r, apperr.Validation("session", "user id must be a positive integer"))
				return
			}
			s.UserID = id
		}

		if raw := r.Header.Get(HeaderGuestID); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				respondWithError(w, r, apperr.Validation("session", "guest id must be a UUID"))
				return
			}
			s.GuestID = id
		}

		s.Operator = s.Authenticated() && r.Header.Get(HeaderRole) == RoleOperator

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, s)))
	})
}

// requireUser rejects requests without an authenticated user.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sessionFrom(r.Context()).Authenticated() {
			respondWithJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required", Kind: "unauthenticated"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireOperator lets through authenticated operators only.
func requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sessionFrom(r.Context()).Operator {
			respondWithError(w, r, apperr.Forbidden("session", "operator role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ensureGuest gives an anonymous caller a guest cart id and echoes it back
// so the client can present it on later requests.
func ensureGuest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r.Context())
		if !s.Authenticated() && s.GuestID == uuid.Nil {
			s.GuestID = uuid.New()
			r = r.WithContext(context.WithValue(r.Context(), sessionKey{}, s))
		}
		if s.GuestID != uuid.Nil {
			w.Header().Set(HeaderGuestID, s.GuestID.String())
		}
		next.ServeHTTP(w, r)
	})
}
