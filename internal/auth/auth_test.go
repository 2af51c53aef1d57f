package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	tok, err := svc.IssueJWT("user-1", RoleStudent)
	require.NoError(t, err)

	claims, err := svc.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Sub)
	assert.Equal(t, RoleStudent, claims.Role)

	_, err = NewService("other-secret", time.Hour).Parse(tok)
	assert.Error(t, err, "wrong key must not verify")
}

func TestParseExpired(t *testing.T) {
	svc := NewService("test-secret", -time.Minute)
	tok, err := svc.IssueJWT("user-1", RoleStudent)
	require.NoError(t, err)
	_, err = svc.Parse(tok)
	assert.Error(t, err)
}

func TestMiddlewareAndRoles(t *testing.T) {
	svc := NewService("test-secret", time.Hour)
	var gotSub string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub = SubjectFromContext(r.Context())
		w.WriteHeader(200)
	})
	protected := Middleware(svc)(inner)
	adminOnly := Middleware(svc)(RequireRole(RoleAdmin)(inner))

	// No token.
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Garbage token.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer nonsense")
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid student token.
	tok, err := svc.IssueJWT("user-1", RoleStudent)
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	protected.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "user-1", gotSub)

	// Student hitting an admin route.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	adminOnly.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Admin passes.
	admTok, err := svc.IssueJWT("admin-1", RoleAdmin)
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+admTok)
	adminOnly.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
}
