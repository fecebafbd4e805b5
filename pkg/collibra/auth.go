package collibra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dqbridge/dq-connector/pkg/catalog"
)

// AuthState is the authentication state of a session.
type AuthState int

const (
	Unauthenticated AuthState = iota
	Authenticating
	Authenticated
)

func (s AuthState) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// State returns the current authentication state.
func (s *Session) State() AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(st AuthState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

type signInResponse struct {
	CSRFToken string `json:"csrfToken"`
}

type signInFailure struct {
	status int
	body   string
}

func (f *signInFailure) Error() string {
	return fmt.Sprintf("server returned %d: %s", f.status, f.body)
}

// conflict reports whether the failure means another session is already
// open for the user.
func (f *signInFailure) conflict() bool {
	if f.status == http.StatusConflict {
		return true
	}
	if f.status < 400 || f.status > 499 || f.status == http.StatusUnauthorized || f.status == http.StatusForbidden {
		return false
	}
	body := strings.ToLower(f.body)
	return strings.Contains(body, "session") && (strings.Contains(body, "already") || strings.Contains(body, "exist"))
}

// Authenticate opens a session. When the catalog reports a conflicting
// session, the current session is deleted and sign-in is retried exactly
// once. The session cookie is attached to every later request.
func (s *Session) Authenticate(ctx context.Context) error {
	s.setState(Authenticating)

	err := s.signIn(ctx)
	if err == nil {
		s.setState(Authenticated)
		s.logger.Info("sign in successful", "user", s.username)
		return nil
	}

	fail, ok := err.(*signInFailure)
	if !ok || !fail.conflict() {
		s.setState(Unauthenticated)
		return s.authError(err)
	}

	s.logger.Info("session already found, deleting", "user", s.username)
	if err := s.doJSON(ctx, catalog.OpDelete, http.MethodDelete, "/auth/sessions/current", nil, nil, nil); err != nil {
		s.setState(Unauthenticated)
		return s.authError(fmt.Errorf("delete current session: %w", err))
	}

	s.logger.Info("session deleted, retrying sign in", "user", s.username)
	if err := s.signIn(ctx); err != nil {
		s.setState(Unauthenticated)
		return s.authError(err)
	}
	s.setState(Authenticated)
	s.logger.Info("sign in successful", "user", s.username)
	return nil
}

func (s *Session) authError(err error) error {
	ae := &catalog.AuthenticationError{User: s.username, Err: err}
	if f, ok := err.(*signInFailure); ok {
		ae.Status, ae.Body, ae.Err = f.status, f.body, nil
	}
	return ae
}

func (s *Session) signIn(ctx context.Context) error {
	data, err := json.Marshal(map[string]string{"username": s.username, "password": s.password})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+apiPrefix+"/auth/sessions", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("sign in request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &signInFailure{status: resp.StatusCode, body: string(body)}
	}

	cookies := resp.Cookies()
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}

	var out signInResponse
	if len(body) > 0 {
		_ = json.Unmarshal(body, &out)
	}

	s.mu.Lock()
	s.cookie = strings.Join(parts, "; ")
	s.csrf = out.CSRFToken
	s.mu.Unlock()
	return nil
}
