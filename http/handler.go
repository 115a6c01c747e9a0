package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ledgerly/sentinel/binding"
	"github.com/ledgerly/sentinel/csrf"
	"github.com/ledgerly/sentinel/jwtsec"
	"github.com/ledgerly/sentinel/logger"
	"github.com/ledgerly/sentinel/store"
)

// HandlerProperties contains configuration for the HTTP handler.
type HandlerProperties struct {
	Store    *store.ResilientStore
	Bindings *binding.Service
	JWT      *jwtsec.Config
	Auth     Authenticator
	Users    UserFinder
	Logger   logger.Logger
}

// Handler serves the session endpoints and the authentication gate the
// business layer mounts its own routes behind.
type Handler struct {
	store    *store.ResilientStore
	bindings *binding.Service
	jwtCfg   *jwtsec.Config
	auth     Authenticator
	users    UserFinder
	logger   logger.Logger
}

// NewHandler creates and returns the main HTTP handler.
func NewHandler(props *HandlerProperties) http.Handler {
	h := &Handler{
		store:    props.Store,
		bindings: props.Bindings,
		jwtCfg:   props.JWT,
		auth:     props.Auth,
		users:    props.Users,
		logger:   props.Logger.WithSubsystem("http"),
	}

	mux := http.NewServeMux()
	protect := csrf.Protect(h.logger)

	mux.HandleFunc("POST /v1/auth/login", h.handleLogin)
	mux.HandleFunc("POST /v1/auth/refresh", h.handleRefresh)
	mux.Handle("POST /v1/auth/logout", protect(h.requireAuth(http.HandlerFunc(h.handleLogout))))
	mux.Handle("POST /v1/auth/logout-all", protect(h.requireAuth(http.HandlerFunc(h.handleLogoutAll))))
	mux.Handle("GET /v1/auth/security-info", h.requireAuth(http.HandlerFunc(h.handleSecurityInfo)))
	mux.HandleFunc("GET /v1/auth/csrf-token", csrf.ProvideToken)
	mux.HandleFunc("GET /v1/sys/health", h.handleHealth)

	return wrapGenericHandler(mux)
}

// wrapGenericHandler rejects anything outside the versioned API surface.
func wrapGenericHandler(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/") {
			respondError(w, http.StatusNotFound, "path must begin with /v1/")
			return
		}

		handler.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	User         *User  `json:"user"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "All fields are required")
		return
	}

	user, err := h.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrAccountLocked):
			respondError(w, http.StatusLocked, "Account temporarily locked due to too many failed login attempts. Please try again later.")
		case errors.Is(err, ErrInvalidCredentials):
			respondError(w, http.StatusUnauthorized, "Invalid email or password")
		default:
			respondError(w, http.StatusInternalServerError, "Authentication system temporarily unavailable")
		}
		return
	}

	h.issueSession(w, r, user)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, "Refresh token is required")
		return
	}

	userID, ok := h.store.ValidateRefreshToken(r.Context(), req.RefreshToken)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}

	user, err := h.users.FindUserByID(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusNotFound, "User not found")
		return
	}

	// Rotation: the presented refresh token dies the moment it is used.
	if err := h.store.RevokeRefreshToken(r.Context(), req.RefreshToken); err != nil {
		respondError(w, http.StatusInternalServerError, "Authentication system temporarily unavailable")
		return
	}

	h.issueSession(w, r, user)
}

// issueSession mints a bound access/refresh pair, registers both jtis and
// persists the refresh record for later rotation.
func (h *Handler) issueSession(w http.ResponseWriter, r *http.Request, user *User) {
	ctx := r.Context()
	cc := clientContext(r)

	access, err := h.bindings.CreateBoundAccessToken(ctx, user.ID, cc)
	if err != nil {
		h.logger.Error("failed to issue access token", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Authentication system temporarily unavailable")
		return
	}

	refresh, err := h.bindings.CreateBoundRefreshToken(ctx, user.ID, cc)
	if err != nil {
		h.logger.Error("failed to issue refresh token", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Authentication system temporarily unavailable")
		return
	}

	if err := h.bindings.AddTokenToUserRegistry(ctx, user.ID, access.JTI); err != nil {
		h.logger.Warn("failed to register access token", logger.Err(err))
	}
	if err := h.bindings.AddTokenToUserRegistry(ctx, user.ID, refresh.JTI); err != nil {
		h.logger.Warn("failed to register refresh token", logger.Err(err))
	}

	refreshExpiry := time.Now().Add(h.jwtCfg.RefreshTTL)
	if err := h.store.StoreRefreshToken(ctx, refresh.Token, user.ID, refreshExpiry); err != nil {
		h.logger.Warn("failed to persist refresh record", logger.Err(err))
	}

	setSessionCookie(w, r, "token", access.Token, h.jwtCfg.AccessTTL)
	setSessionCookie(w, r, "refreshToken", refresh.Token, h.jwtCfg.RefreshTTL)

	respondOk(w, &sessionResponse{
		Token:        access.Token,
		RefreshToken: refresh.Token,
		User:         user,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if claims, ok := ClaimsFromContext(ctx); ok {
		if err := h.bindings.RevokeTokenBinding(ctx, claims.ID); err != nil {
			h.logger.Warn("failed to revoke token binding", logger.Err(err))
		}
	}

	// Backup path for gates that only know the blacklist.
	if token := bearerToken(r); token != "" {
		expiry := time.Now().Add(h.jwtCfg.AccessTTL)
		if err := h.store.BlacklistToken(ctx, token, expiry); err != nil {
			h.logger.Warn("failed to blacklist token", logger.Err(err))
		}
	}

	if cookie, err := r.Cookie("refreshToken"); err == nil && cookie.Value != "" {
		if err := h.store.RevokeRefreshToken(ctx, cookie.Value); err != nil {
			h.logger.Warn("failed to revoke refresh token", logger.Err(err))
		}
	}

	clearSessionCookie(w, r, "token")
	clearSessionCookie(w, r, "refreshToken")

	respondOk(w, map[string]string{"message": "Logged out successfully"})
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, _ := UserFromContext(ctx)

	if err := h.bindings.RevokeAllUserTokens(ctx, user.ID); err != nil {
		h.logger.Warn("failed to revoke user tokens", logger.Err(err))
	}
	if err := h.store.RevokeAllUserRefreshTokens(ctx, user.ID); err != nil {
		h.logger.Warn("failed to revoke user refresh tokens", logger.Err(err))
	}

	// The invoking session gets a fresh token so it alone survives.
	access, err := h.bindings.CreateBoundAccessToken(ctx, user.ID, clientContext(r))
	if err != nil {
		respondOk(w, map[string]string{
			"message": "All sessions have been terminated. Please log in again.",
		})
		return
	}
	if err := h.bindings.AddTokenToUserRegistry(ctx, user.ID, access.JTI); err != nil {
		h.logger.Warn("failed to register access token", logger.Err(err))
	}

	setSessionCookie(w, r, "token", access.Token, h.jwtCfg.AccessTTL)

	respondOk(w, map[string]string{
		"message":  "All other sessions have been terminated",
		"newToken": access.Token,
	})
}

func (h *Handler) handleSecurityInfo(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	info, err := h.bindings.GetClientSecurityInfo(r.Context(), user.ID, clientContext(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load security info")
		return
	}

	respondOk(w, map[string]any{
		"userId":        user.ID,
		"activeTokens":  info.ActiveTokens,
		"recentDevices": info.RecentDevices,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected, fallbackActive := h.store.Status(r.Context())

	respondOk(w, map[string]any{
		"status":   "ok",
		"store":    map[string]bool{"connected": connected, "fallback": fallbackActive},
		"bindings": h.bindings.GetMetrics(),
	})
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}
