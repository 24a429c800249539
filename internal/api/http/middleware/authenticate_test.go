package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpctx "github.com/capsulevault/capsule-server/internal/api/http/context"
	"github.com/capsulevault/capsule-server/internal/testutil"
	"github.com/capsulevault/capsule-server/internal/token"
)

func TestAuthenticate_MissingHeader(t *testing.T) {
	m := NewAuthenticate(token.NewJWT("secret"), httpctx.NewManager(), testutil.MakeNoopLogger())

	called := false
	handler := m.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/capsules", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestAuthenticate_NonBearerHeader(t *testing.T) {
	m := NewAuthenticate(token.NewJWT("secret"), httpctx.NewManager(), testutil.MakeNoopLogger())

	handler := m.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/v1/capsules", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	m := NewAuthenticate(token.NewJWT("secret"), httpctx.NewManager(), testutil.MakeNoopLogger())

	handler := m.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/v1/capsules", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticate_ValidTokenInjectsUsername(t *testing.T) {
	tokens := token.NewJWT("secret")
	ctxMgr := httpctx.NewManager()
	m := NewAuthenticate(tokens, ctxMgr, testutil.MakeNoopLogger())

	tokenString, err := tokens.GenerateSessionToken("alice")
	require.NoError(t, err)

	var gotUsername string
	handler := m.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUsername, _ = ctxMgr.GetUsernameFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/capsules", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", gotUsername)
}
