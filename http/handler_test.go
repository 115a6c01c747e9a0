package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ledgerly/sentinel/binding"
	"github.com/ledgerly/sentinel/jwtsec"
	"github.com/ledgerly/sentinel/logger"
	"github.com/ledgerly/sentinel/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "Vq3tXz9mKpLr2WsYbNf8cDgHj4QaZeU60MoTiR5vnE7hC1xPwJuG"
	testPassword = "correct-horse-battery-staple"
	testAgent    = "Mozilla/5.0 (Macintosh)"
)

func testLogger() logger.Logger {
	return logger.NewZerologLogger(&logger.Config{
		Level:   logger.ErrorLevel,
		Format:  logger.JSONFormat,
		Outputs: []io.Writer{io.Discard},
	})
}

// fakeDirectory stands in for the business layer's user service.
type fakeDirectory struct {
	users map[string]*User
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users: map[string]*User{
			"user-1": {ID: "user-1", Name: "Ada", Email: "ada@example.com"},
			"user-2": {ID: "user-2", Name: "Grace", Email: "grace@example.com"},
		},
	}
}

func (d *fakeDirectory) Authenticate(ctx context.Context, email, password string) (*User, error) {
	if password != testPassword {
		return nil, ErrInvalidCredentials
	}
	for _, u := range d.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, ErrInvalidCredentials
}

func (d *fakeDirectory) FindUserByID(ctx context.Context, id string) (*User, error) {
	if u, ok := d.users[id]; ok {
		return u, nil
	}
	return nil, ErrUserNotFound
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()

	st, err := store.NewResilientStore(nil, testLogger(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	jwtCfg := &jwtsec.Config{
		Secret:     testSecret,
		AccessTTL:  jwtsec.DefaultAccessTTL,
		RefreshTTL: jwtsec.DefaultRefreshTTL,
		Issuer:     jwtsec.DefaultIssuer,
		Audience:   jwtsec.DefaultAudience,
	}

	directory := newFakeDirectory()

	return NewHandler(&HandlerProperties{
		Store:    st,
		Bindings: binding.NewService(st, jwtCfg, testLogger()),
		JWT:      jwtCfg,
		Auth:     directory,
		Users:    directory,
		Logger:   testLogger(),
	})
}

func doRequest(handler http.Handler, method, path, body, bearer string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, path, reader)
	r.Header.Set("User-Agent", testAgent)
	if bearer != "" {
		r.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func login(t *testing.T, handler http.Handler) sessionResponse {
	t.Helper()

	w := doRequest(handler, http.MethodPost, "/v1/auth/login",
		`{"email":"ada@example.com","password":"`+testPassword+`"}`, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var session sessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	require.NotEmpty(t, session.Token)
	require.NotEmpty(t, session.RefreshToken)

	return session
}

func TestLogin_Success(t *testing.T) {
	handler := newTestHandler(t)

	session := login(t, handler)
	assert.Equal(t, "user-1", session.User.ID)
	assert.NotEqual(t, session.Token, session.RefreshToken)
}

func TestLogin_SetsSessionCookies(t *testing.T) {
	handler := newTestHandler(t)

	w := doRequest(handler, http.MethodPost, "/v1/auth/login",
		`{"email":"ada@example.com","password":"`+testPassword+`"}`, "")
	require.Equal(t, http.StatusOK, w.Code)

	names := map[string]bool{}
	for _, c := range w.Result().Cookies() {
		names[c.Name] = c.HttpOnly
	}
	assert.True(t, names["token"])
	assert.True(t, names["refreshToken"])
}

func TestLogin_InvalidCredentials(t *testing.T) {
	handler := newTestHandler(t)

	w := doRequest(handler, http.MethodPost, "/v1/auth/login",
		`{"email":"ada@example.com","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin_MissingFields(t *testing.T) {
	handler := newTestHandler(t)

	w := doRequest(handler, http.MethodPost, "/v1/auth/login", `{"email":"ada@example.com"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(handler, http.MethodPost, "/v1/auth/login", "not json", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequireAuth_NoToken(t *testing.T) {
	handler := newTestHandler(t)

	w := doRequest(handler, http.MethodGet, "/v1/auth/security-info", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_ValidToken(t *testing.T) {
	handler := newTestHandler(t)
	session := login(t, handler)

	w := doRequest(handler, http.MethodGet, "/v1/auth/security-info", "", session.Token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		UserID       string `json:"userId"`
		ActiveTokens int    `json:"activeTokens"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "user-1", body.UserID)
	assert.Equal(t, 2, body.ActiveTokens)
}

func TestRequireAuth_FingerprintMismatch(t *testing.T) {
	handler := newTestHandler(t)
	session := login(t, handler)

	r := httptest.NewRequest(http.MethodGet, "/v1/auth/security-info", nil)
	r.Header.Set("User-Agent", "curl/8.0")
	r.Header.Set("Authorization", "Bearer "+session.Token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "FINGERPRINT_MISMATCH")
}

func TestLogout_InvalidatesToken(t *testing.T) {
	handler := newTestHandler(t)
	session := login(t, handler)

	w := doRequest(handler, http.MethodPost, "/v1/auth/logout", "", session.Token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doRequest(handler, http.MethodGet, "/v1/auth/security-info", "", session.Token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefresh_RotatesTokens(t *testing.T) {
	handler := newTestHandler(t)
	session := login(t, handler)

	w := doRequest(handler, http.MethodPost, "/v1/auth/refresh",
		`{"refreshToken":"`+session.RefreshToken+`"}`, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var renewed sessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &renewed))
	assert.NotEmpty(t, renewed.Token)
	assert.NotEqual(t, session.RefreshToken, renewed.RefreshToken)

	// The used refresh token is dead.
	w = doRequest(handler, http.MethodPost, "/v1/auth/refresh",
		`{"refreshToken":"`+session.RefreshToken+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// The new access token authenticates.
	w = doRequest(handler, http.MethodGet, "/v1/auth/security-info", "", renewed.Token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRefresh_MissingToken(t *testing.T) {
	handler := newTestHandler(t)

	w := doRequest(handler, http.MethodPost, "/v1/auth/refresh", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefresh_UnknownToken(t *testing.T) {
	handler := newTestHandler(t)

	w := doRequest(handler, http.MethodPost, "/v1/auth/refresh",
		`{"refreshToken":"never-issued"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutAll_TerminatesOtherSessions(t *testing.T) {
	handler := newTestHandler(t)

	first := login(t, handler)
	second := login(t, handler)

	w := doRequest(handler, http.MethodPost, "/v1/auth/logout-all", "", first.Token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		NewToken string `json:"newToken"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.NewToken)

	// Every pre-existing token is dead; the replacement works.
	w = doRequest(handler, http.MethodGet, "/v1/auth/security-info", "", first.Token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = doRequest(handler, http.MethodGet, "/v1/auth/security-info", "", second.Token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = doRequest(handler, http.MethodGet, "/v1/auth/security-info", "", body.NewToken)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCSRFTokenEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	w := doRequest(handler, http.MethodGet, "/v1/auth/csrf-token", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "csrfToken")
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	w := doRequest(handler, http.MethodGet, "/v1/sys/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"connected":false`)
}

func TestUnversionedPathRejected(t *testing.T) {
	handler := newTestHandler(t)

	w := doRequest(handler, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
