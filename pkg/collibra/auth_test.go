package collibra

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dqbridge/dq-connector/pkg/catalog"
	"github.com/dqbridge/dq-connector/pkg/collibra/collibratest"
)

func newTestAdapter(t *testing.T, srv *collibratest.Server) *Adapter {
	t.Helper()
	return NewAdapter(Options{
		BaseURL:      srv.URL,
		Username:     "dq",
		Password:     "secret",
		Logger:       logr.Discard(),
		PollInterval: 5 * time.Millisecond,
		MaxPolls:     10,
	})
}

func authenticated(t *testing.T, srv *collibratest.Server) *Adapter {
	t.Helper()
	a := newTestAdapter(t, srv)
	require.NoError(t, a.Authenticate(context.Background()))
	return a
}

func TestAuthenticate(t *testing.T) {
	srv := collibratest.New(t)
	a := newTestAdapter(t, srv)
	assert.Equal(t, Unauthenticated, a.Session().State())

	require.NoError(t, a.Authenticate(context.Background()))
	assert.Equal(t, Authenticated, a.Session().State())
	assert.Equal(t, 1, srv.SignIns())
	assert.Equal(t, collibratest.SessionCookie+"=session-dq", a.Session().cookie)
	assert.Equal(t, "csrf-token", a.Session().csrf)
}

func TestAuthenticateConflictRetriesOnce(t *testing.T) {
	srv := collibratest.New(t)
	srv.ConflictOnce = true
	a := newTestAdapter(t, srv)

	require.NoError(t, a.Authenticate(context.Background()))
	assert.Equal(t, 2, srv.SignIns())
	assert.Equal(t, 1, srv.Calls("DELETE /rest/2.0/auth/sessions/current"))
	assert.Equal(t, Authenticated, a.Session().State())
}

func TestAuthenticateRejected(t *testing.T) {
	srv := collibratest.New(t)
	srv.RejectAuth = true
	a := newTestAdapter(t, srv)

	err := a.Authenticate(context.Background())
	require.Error(t, err)
	assert.True(t, catalog.IsAuthentication(err))

	var ae *catalog.AuthenticationError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusUnauthorized, ae.Status)
	assert.Equal(t, "dq", ae.User)
	assert.Equal(t, 1, srv.SignIns())
	assert.Zero(t, srv.Calls("DELETE /rest/2.0/auth/sessions/current"))
	assert.Equal(t, Unauthenticated, a.Session().State())
}

func TestAuthenticateUnreachable(t *testing.T) {
	a := NewAdapter(Options{BaseURL: "http://127.0.0.1:1", Logger: logr.Discard()})
	err := a.Authenticate(context.Background())
	require.Error(t, err)
	assert.True(t, catalog.IsAuthentication(err))
}

func TestSignInFailureConflict(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"conflict status", http.StatusConflict, "", true},
		{"session already exists", http.StatusBadRequest, "A session already exists", true},
		{"session exist lower case", http.StatusUnprocessableEntity, "session exists for user", true},
		{"unauthorized never conflicts", http.StatusUnauthorized, "session already exists", false},
		{"forbidden never conflicts", http.StatusForbidden, "session already exists", false},
		{"unrelated bad request", http.StatusBadRequest, "malformed body", false},
		{"server error", http.StatusInternalServerError, "session already exists", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := &signInFailure{status: tc.status, body: tc.body}
			assert.Equal(t, tc.want, f.conflict())
		})
	}
}

func TestRequestsCarrySessionHeaders(t *testing.T) {
	srv := collibratest.New(t)
	a := newTestAdapter(t, srv)

	_, err := a.Engine().GetOrCreateCommunity(context.Background(), "DQ", "")
	require.Error(t, err, "requests before sign in are rejected")
	re, ok := catalog.AsRemoteError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, re.Status)

	require.NoError(t, a.Authenticate(context.Background()))
	_, err = a.Engine().GetOrCreateCommunity(context.Background(), "DQ", "")
	require.NoError(t, err)
}
