package core

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobtrail/internal/config"
	"jobtrail/internal/types"
)

type stubAuthenticator struct {
	actor types.Actor
	err   error
}

func (a *stubAuthenticator) Authenticate(ctx context.Context, token string) (types.Actor, error) {
	if a.err != nil {
		return types.Actor{}, a.err
	}
	return a.actor, nil
}

func newTestServer(t *testing.T, auth Authenticator) *Server {
	t.Helper()
	cfg := &config.Config{Service: "jobtrail"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := NewServer(cfg, logger, auth)
	require.NoError(t, err)
	return s
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIErrorResponse {
	t.Helper()
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}

func TestRequestID_HonorsInboundHeader(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req_upstream_1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "req_upstream_1", seen)
}

func TestRecoverer_ConvertsPanicTo500(t *testing.T) {
	s := newTestServer(t, nil)
	handler := s.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), resp.Error.Code)
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	s := newTestServer(t, &stubAuthenticator{})
	handler := s.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without credentials")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/quota", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(types.ErrCodeAuthTokenMissing), decodeError(t, rec).Error.Code)
}

func TestRequireAuth_NonBearerHeader(t *testing.T) {
	s := newTestServer(t, &stubAuthenticator{})
	handler := s.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without credentials")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/quota", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(types.ErrCodeAuthTokenInvalid), decodeError(t, rec).Error.Code)
}

func TestRequireAuth_InjectsActor(t *testing.T) {
	want := types.Actor{ID: "user_123", Role: types.RoleUser}
	s := newTestServer(t, &stubAuthenticator{actor: want})

	var got types.Actor
	handler := s.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = types.GetActor(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/quota", nil)
	req.Header.Set("Authorization", "Bearer tok_abc")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, want, got)
}

func TestRequireAuth_RejectsInvalidToken(t *testing.T) {
	s := newTestServer(t, &stubAuthenticator{
		err: types.NewAppError(types.ErrCodeAuthTokenInvalid, "token not recognized", nil),
	})
	handler := s.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run with an invalid token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/quota", nil)
	req.Header.Set("Authorization", "Bearer tok_bad")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdmin(t *testing.T) {
	s := newTestServer(t, nil)
	handler := s.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	// Regular user is rejected.
	req := httptest.NewRequest(http.MethodPut, "/v1/admin/tier-limits", nil)
	req = req.WithContext(types.WithActor(req.Context(), types.Actor{ID: "u1", Role: types.RoleUser}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Admin passes.
	req = httptest.NewRequest(http.MethodPut, "/v1/admin/tier-limits", nil)
	req = req.WithContext(types.WithActor(req.Context(), types.Actor{ID: "a1", Role: types.RoleAdmin}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
