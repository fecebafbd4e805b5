// Package collibratest provides an in-memory catalog REST server for tests.
package collibratest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/dqbridge/dq-connector/pkg/catalog"
)

// SessionCookie is the cookie issued on sign-in.
const SessionCookie = "JSESSIONID"

// Object is a stored catalog object.
type Object struct {
	ID     string
	Fields map[string]any
}

// Job is a submitted import job.
type Job struct {
	ID        string
	BatchSize string
	FileName  string
	Entities  []catalog.ImportEntity
	states    []string
	polls     int
}

// Polls returns how many times the job was polled.
func (j *Job) Polls() int { return j.polls }

// Server is a fake catalog. Configure the exported fields before use.
type Server struct {
	*httptest.Server

	// ConflictOnce makes the first sign-in fail with 409.
	ConflictOnce bool
	// RejectAuth makes every sign-in fail with 401.
	RejectAuth bool
	// JobStates is the sequence of states reported for each new job; the
	// last state repeats. Default: RUNNING, COMPLETED.
	JobStates []string
	// FailRoutes maps "METHOD /route/pattern" to a status code to return.
	FailRoutes map[string]int

	mu      sync.Mutex
	seq     int
	calls   map[string]int
	objects map[string]map[string]*Object // kind → id → object
	types   map[string]map[string]string  // kind → name → id
	jobs    []*Job
	signIns int
}

// New starts a fake catalog server, closed when t finishes.
func New(t testing.TB) *Server {
	s := &Server{
		JobStates:  []string{"RUNNING", catalog.JobCompleted},
		FailRoutes: map[string]int{},
		calls:      map[string]int{},
		objects:    map[string]map[string]*Object{},
		types:      map[string]map[string]string{},
	}
	for _, kind := range []string{"communities", "domains", "assets", "attributes", "relations", "relationTypes"} {
		s.objects[kind] = map[string]*Object{}
	}
	s.seedTypes()

	r := chi.NewRouter()
	r.Use(s.count)
	r.Route("/rest/2.0", func(r chi.Router) {
		r.Post("/auth/sessions", s.signIn)
		r.Delete("/auth/sessions/current", s.signOut)
		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			for _, kind := range []string{"communities", "domains", "assets", "attributes", "relations", "relationTypes"} {
				kind := kind
				r.Get("/"+kind, s.list(kind))
				r.Post("/"+kind, s.create(kind))
				r.Delete("/"+kind+"/{id}", s.remove(kind))
			}
			r.Patch("/assets/{id}", s.patchAsset)
			r.Post("/assets/{id}/tags", s.addTags)
			for _, kind := range []string{"assetTypes", "domainTypes", "attributeTypes", "statuses"} {
				r.Get("/"+kind, s.listTypes(kind))
			}
			r.Post("/import/json-job", s.importJob)
			r.Get("/jobs/{id}", s.job)
		})
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Server.Close)
	return s
}

func (s *Server) seedTypes() {
	seed := map[string][]string{
		"assetTypes": {
			catalog.DatabaseType, catalog.TableType, catalog.ColumnType,
			catalog.MetricType, catalog.DimensionType, catalog.RuleType,
		},
		"domainTypes": {catalog.DataAssetDomainType, catalog.GovernanceDomainType, catalog.RulebookType},
		"attributeTypes": {
			"Threshold", "Description", "Descriptive Example", "Loaded Rows", "Rows Passed",
			"Conformity Score", "Rows Failed", "Non Conformity Score", "Result", "Passing Fraction",
			"Last Sync Date", "Row Count", "Empty Values Count", "Number of distinct values", "Data Type",
			"Technical Data Type", "Standard Deviation", "Mode", "Minimum Value", "Minimum Text Length",
			"Mean", "Maximum Value", "Maximum Text Length", "Is Primary Key", "Is Nullable",
			"Column Position", "Original Name",
		},
		"statuses": {catalog.DefaultStatus, "Approved"},
	}
	for kind, names := range seed {
		s.types[kind] = map[string]string{}
		for _, n := range names {
			s.types[kind][n] = s.nextID()
		}
	}
}

func (s *Server) nextID() string {
	s.seq++
	return fmt.Sprintf("00000000-0000-0000-0001-%012d", s.seq)
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		if rc := chi.RouteContext(r.Context()); rc != nil {
			s.mu.Lock()
			s.calls[r.Method+" "+rc.RoutePattern()]++
			s.mu.Unlock()
		}
	})
}

func (s *Server) failed(w http.ResponseWriter, r *http.Request) bool {
	rc := chi.RouteContext(r.Context())
	s.mu.Lock()
	status, ok := s.FailRoutes[r.Method+" "+rc.RoutePattern()]
	s.mu.Unlock()
	if ok {
		http.Error(w, `{"errorMessage":"injected failure"}`, status)
	}
	return ok
}

// SetFailure makes route answer with status; status 0 clears it. Safe
// while requests are in flight.
func (s *Server) SetFailure(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.FailRoutes, route)
		return
	}
	s.FailRoutes[route] = status
}

// Calls returns how many requests hit "METHOD /route/pattern", for example
// "POST /rest/2.0/communities" or "DELETE /rest/2.0/attributes/{id}".
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// SignIns returns the number of sign-in attempts.
func (s *Server) SignIns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signIns
}

// Objects returns the stored objects of a kind whose fields match filter.
func (s *Server) Objects(kind string, filter map[string]any) []*Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Object
	for _, o := range s.objects[kind] {
		if matches(o, filter) {
			out = append(out, o)
		}
	}
	return out
}

// TypeID returns the seeded id of a type name.
func (s *Server) TypeID(kind, name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.types[kind][name]
}

// Jobs returns the submitted import jobs.
func (s *Server) Jobs() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Job(nil), s.jobs...)
}

func matches(o *Object, filter map[string]any) bool {
	for k, v := range filter {
		if fmt.Sprint(o.Fields[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.signIns++
	n := s.signIns
	s.mu.Unlock()

	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)
	switch {
	case s.RejectAuth:
		http.Error(w, `{"errorMessage":"invalid credentials"}`, http.StatusUnauthorized)
		return
	case s.ConflictOnce && n == 1:
		http.Error(w, `{"errorMessage":"a session already exists for this user"}`, http.StatusConflict)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "session-" + body["username"], Path: "/"})
	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": "csrf-token", "user": body["username"]})
}

func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(SessionCookie); err != nil || c.Value == "" {
			http.Error(w, `{"errorMessage":"not authenticated"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// listFilters maps query parameters to stored field names per kind.
var listFilters = map[string]map[string]string{
	"communities":   {"name": "name"},
	"domains":       {"name": "name", "communityId": "communityId"},
	"assets":        {"name": "name", "domainId": "domainId"},
	"attributes":    {"assetId": "assetId", "typeIds": "typeId"},
	"relations":     {"sourceId": "sourceId", "targetId": "targetId", "relationTypeId": "typeId"},
	"relationTypes": {"coRole": "coRole", "role": "role", "sourceTypeId": "sourceTypeId", "targetTypeId": "targetTypeId"},
}

func (s *Server) list(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.failed(w, r) {
			return
		}
		filter := map[string]any{}
		for param, field := range listFilters[kind] {
			if v := r.URL.Query().Get(param); v != "" {
				filter[field] = v
			}
		}
		objs := s.Objects(kind, filter)
		results := make([]map[string]any, 0, len(objs))
		for _, o := range objs {
			results = append(results, render(o))
		}
		writeJSON(w, http.StatusOK, map[string]any{"total": len(results), "offset": 0, "limit": 0, "results": results})
	}
}

func render(o *Object) map[string]any {
	out := map[string]any{"id": o.ID}
	for k, v := range o.Fields {
		out[k] = v
	}
	return out
}

func (s *Server) create(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.failed(w, r) {
			return
		}
		var fields map[string]any
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		o := &Object{ID: s.nextID(), Fields: fields}
		s.objects[kind][o.ID] = o
		s.mu.Unlock()
		writeJSON(w, http.StatusCreated, render(o))
	}
}

func (s *Server) remove(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.failed(w, r) {
			return
		}
		id := chi.URLParam(r, "id")
		s.mu.Lock()
		_, ok := s.objects[kind][id]
		delete(s.objects[kind], id)
		s.mu.Unlock()
		if !ok {
			http.Error(w, `{"errorMessage":"not found"}`, http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) patchAsset(w http.ResponseWriter, r *http.Request) {
	if s.failed(w, r) {
		return
	}
	var fields map[string]any
	_ = json.NewDecoder(r.Body).Decode(&fields)
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects["assets"][chi.URLParam(r, "id")]
	if !ok {
		http.Error(w, `{"errorMessage":"not found"}`, http.StatusNotFound)
		return
	}
	for k, v := range fields {
		if k != "id" {
			o.Fields[k] = v
		}
	}
	writeJSON(w, http.StatusOK, render(o))
}

func (s *Server) addTags(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TagNames []string `json:"tagNames"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects["assets"][chi.URLParam(r, "id")]
	if !ok {
		http.Error(w, `{"errorMessage":"not found"}`, http.StatusNotFound)
		return
	}
	o.Fields["tags"] = strings.Join(body.TagNames, ",")
	writeJSON(w, http.StatusOK, []any{})
}

func (s *Server) listTypes(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		s.mu.Lock()
		id, ok := s.types[kind][name]
		s.mu.Unlock()
		results := []map[string]string{}
		if ok {
			results = append(results, map[string]string{"id": id, "name": name})
		}
		writeJSON(w, http.StatusOK, map[string]any{"total": len(results), "results": results})
	}
}

func (s *Server) importJob(w http.ResponseWriter, r *http.Request) {
	if s.failed(w, r) {
		return
	}
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var entities []catalog.ImportEntity
	if err := json.Unmarshal(data, &entities); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	job := &Job{
		ID:        s.nextID(),
		BatchSize: r.FormValue("batchSize"),
		FileName:  r.FormValue("fileName"),
		Entities:  entities,
		states:    append([]string(nil), s.JobStates...),
	}
	s.jobs = append(s.jobs, job)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"id": job.ID, "state": "WAITING"})
}

func (s *Server) job(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	var job *Job
	for _, j := range s.jobs {
		if j.ID == id {
			job = j
		}
	}
	if job == nil {
		s.mu.Unlock()
		http.Error(w, `{"errorMessage":"no such job"}`, http.StatusNotFound)
		return
	}
	i := job.polls
	if i >= len(job.states) {
		i = len(job.states) - 1
	}
	job.polls++
	state := job.states[i]
	s.mu.Unlock()

	resp := map[string]any{"id": id, "state": state}
	if state == catalog.JobError {
		resp["message"] = "import failed: unknown asset type"
	}
	writeJSON(w, http.StatusOK, resp)
}
