package csrf

import (
	"net/http"
	"strings"

	"github.com/ledgerly/sentinel/helper"
	"github.com/ledgerly/sentinel/logger"
)

const (
	// HeaderName carries the presented token on mutating requests.
	HeaderName = "X-CSRF-Token"

	// CookieName holds the per-session secret, HttpOnly so scripts can
	// never read it.
	CookieName = "csrf-token"
)

// Protect enforces the double-submit pattern on mutating requests. Safe
// methods pass through untouched, as do requests carrying a Bearer token:
// header-based credentials cannot be attached by a cross-site form.
func Protect(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}

			token := r.Header.Get(HeaderName)

			var secret string
			if cookie, err := r.Cookie(CookieName); err == nil {
				secret = cookie.Value
			}

			if !VerifyToken(token, secret) {
				log.Warn("csrf verification failed",
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path))
				helper.JSONResponse(w, http.StatusForbidden, map[string]string{
					"error": "Invalid CSRF token",
					"code":  "CSRF_INVALID",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ProvideToken issues a CSRF token to the client. The secret rides in an
// HttpOnly cookie; the token itself goes back in the response body for the
// client to echo in the X-CSRF-Token header.
func ProvideToken(w http.ResponseWriter, r *http.Request) {
	var secret string
	if cookie, err := r.Cookie(CookieName); err == nil {
		secret = cookie.Value
	}

	minted, err := GenerateToken(secret)
	if err != nil {
		helper.JSONResponse(w, http.StatusInternalServerError, map[string]string{
			"error": "Failed to generate CSRF token",
		})
		return
	}

	if secret == "" {
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    minted.Secret,
			Path:     "/",
			MaxAge:   int(maxTokenAge.Seconds()),
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteStrictMode,
		})
	}

	helper.JSONResponse(w, http.StatusOK, map[string]string{
		"csrfToken": minted.Token,
	})
}
