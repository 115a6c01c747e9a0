package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/ledgerly/sentinel/binding"
	"github.com/ledgerly/sentinel/helper"
)

// Errors the business layer returns through the Authenticator and UserFinder
// interfaces. Anything else is treated as an internal failure.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrAccountLocked      = errors.New("account temporarily locked")
)

// User is the principal attached to authenticated requests. The business
// layer owns the full user model; the auth gate only needs identity.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Authenticator verifies primary credentials. Implemented by the business
// layer's user service.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*User, error)
}

// UserFinder resolves a validated token subject to a live user account.
type UserFinder interface {
	FindUserByID(ctx context.Context, id string) (*User, error)
}

type contextKey int

const (
	userContextKey contextKey = iota
	claimsContextKey
)

// UserFromContext returns the authenticated user attached by RequireAuth.
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userContextKey).(*User)
	return user, ok
}

// ClaimsFromContext returns the validated token claims attached by RequireAuth.
func ClaimsFromContext(ctx context.Context) (*binding.BoundClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*binding.BoundClaims)
	return claims, ok
}

// bearerToken extracts the Bearer credential from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ""
}

// clientContext captures the connection metadata validation binds against.
// A request id is minted locally when the handler runs outside the listener
// middleware chain.
func clientContext(r *http.Request) binding.ClientContext {
	reqID := middleware.GetReqID(r.Context())
	if reqID == "" {
		reqID = helper.GenerateRequestID()
	}

	return binding.ClientContext{
		IP:        helper.ClientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: reqID,
	}
}

// requireAuth gates a handler behind bound-token authentication. The legacy
// blacklist is consulted before binding validation so tokens revoked through
// the old path stay dead.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "Not authorized to access this route")
			return
		}

		if h.store.IsTokenBlacklisted(r.Context(), token) {
			respondError(w, http.StatusUnauthorized, "Token has been revoked")
			return
		}

		result := h.bindings.ValidateBoundToken(r.Context(), token, clientContext(r))
		if !result.IsValid {
			respondErrorReason(w, http.StatusUnauthorized, "Token validation failed", result.Reason)
			return
		}

		user, err := h.users.FindUserByID(r.Context(), result.Payload.UserID)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "User not found")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		ctx = context.WithValue(ctx, claimsContextKey, result.Payload)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
