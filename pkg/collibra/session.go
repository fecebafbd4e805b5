// Package collibra talks to the governance catalog REST API: it
// authenticates a session, upserts communities, domains, assets,
// attributes and relations, and drives bulk import jobs.
package collibra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/dqbridge/dq-connector/pkg/cache"
	"github.com/dqbridge/dq-connector/pkg/catalog"
)

const apiPrefix = "/rest/2.0"

// Options configures a Session.
type Options struct {
	BaseURL  string
	Username string
	Password string
	// HTTPClient defaults to a client without timeout.
	HTTPClient *http.Client
	Logger     logr.Logger
	// PollInterval is the delay between import job polls. Default 1s.
	PollInterval time.Duration
	// MaxPolls bounds the number of job polls. Default 600.
	MaxPolls int
}

// Session holds everything scoped to one connector run: the
// authentication cookie, the identity cache and the ledger of submitted
// import jobs. Nothing is shared between sessions.
type Session struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	logger   logr.Logger

	mu     sync.RWMutex
	state  AuthState
	cookie string
	csrf   string

	jobsMu sync.Mutex
	jobs   map[string][]byte

	cache *cache.Identity
}

// NewSession creates an unauthenticated session.
func NewSession(opts Options) *Session {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Session{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		username: opts.Username,
		password: opts.Password,
		http:     hc,
		logger:   opts.Logger,
		jobs:     make(map[string][]byte),
		cache:    cache.NewIdentity(),
	}
}

// Cache returns the session identity cache.
func (s *Session) Cache() *cache.Identity {
	return s.cache
}

// recordJob remembers the payload submitted for a job id.
func (s *Session) recordJob(id string, payload []byte) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	s.jobs[id] = payload
}

// JobPayload returns the payload submitted for job id.
func (s *Session) JobPayload(id string) ([]byte, bool) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	p, ok := s.jobs[id]
	return p, ok
}

// JobCount returns the number of jobs submitted in this session.
func (s *Session) JobCount() int {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	return len(s.jobs)
}

func (s *Session) decorate(req *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cookie != "" {
		req.Header.Set("Cookie", s.cookie)
	}
	if s.csrf != "" {
		req.Header.Set("X-CSRF-TOKEN", s.csrf)
	}
}

// doJSON sends body as JSON and decodes the response into out.
func (s *Session) doJSON(ctx context.Context, op catalog.Op, method, path string, query url.Values, body, out any) error {
	var rdr io.Reader
	args := any(query)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
		args = body
	}
	contentType := ""
	if rdr != nil {
		contentType = "application/json"
	}
	return s.do(ctx, op, method, path, query, contentType, rdr, args, out)
}

// do performs one request against the catalog API. Non-2xx responses and
// transport failures become *catalog.RemoteError carrying args.
func (s *Session) do(ctx context.Context, op catalog.Op, method, path string, query url.Values, contentType string, body io.Reader, args, out any) error {
	u := s.baseURL + apiPrefix + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	s.decorate(req)

	s.logger.V(1).Info("catalog request", "method", method, "url", u)
	resp, err := s.http.Do(req)
	if err != nil {
		return &catalog.RemoteError{Op: op, Method: method, URL: u, Args: args, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		s.logger.Error(nil, "catalog request failed", "op", op, "method", method, "url", u,
			"status", resp.StatusCode, "args", args)
		return &catalog.RemoteError{
			Op: op, Method: method, URL: u, Status: resp.StatusCode, Body: string(data), Args: args,
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return &catalog.RemoteError{
			Op: op, Method: method, URL: u, Status: resp.StatusCode, Args: args,
			Err: fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

// paged is the envelope of catalog list endpoints.
type paged[T any] struct {
	Total   int `json:"total"`
	Offset  int `json:"offset"`
	Limit   int `json:"limit"`
	Results []T `json:"results"`
}
