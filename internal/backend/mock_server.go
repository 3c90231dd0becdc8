// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// MockServer provides a configurable StoryVerse backend for tests and demos.
type MockServer struct {
	*httptest.Server
	mu sync.Mutex

	jobs        map[string]*mockJob
	nextJob     int
	defaultPlan []RenderStatus

	experiences map[string]ArExperience
	books       map[string]LibraryBook
	catalog     map[string]LibraryBook
	batches     [][]ArEvent
	events      []ArEvent

	failures  map[string][]int // queued failure statuses per route
	delay     map[string]time.Duration
	token     string
	requests  []RecordedRequest
	fetchHits map[string]int
}

type mockJob struct {
	job  RenderJob
	plan []RenderStatus
	next int
}

// RecordedRequest is a request as seen by the mock, kept for contract checks.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// NewMockServer starts a mock backend serving the /v1 API.
func NewMockServer() *MockServer {
	m := &MockServer{}
	m.Reset()

	r := chi.NewRouter()
	r.Use(m.record)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/renders/previews", m.handleCreatePreview)
		r.Get("/renders/{jobID}", m.handleGetJob)
		r.Get("/ar/resolve", m.handleResolve)
		r.Post("/ar/events", m.handleEvent)
		r.Post("/ar/events/batch", m.handleEventBatch)
		r.Get("/library", m.handleLibrary)
		r.Post("/library/{bookID}/viewed", m.handleViewed)
		r.Post("/library/{bookID}/unlock", m.handleUnlock)
	})

	m.Server = httptest.NewServer(r)
	return m
}

// Reset restores the default data set and clears recorded traffic.
func (m *MockServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.jobs = make(map[string]*mockJob)
	m.nextJob = 0
	m.defaultPlan = []RenderStatus{RenderPending, RenderProcessing, RenderCompleted}
	m.experiences = map[string]ArExperience{
		"book-moon": {
			BookID: "book-moon", Title: "Goodnight Moonbeam",
			TargetURL: "https://cdn.example.test/targets/moon.png", VideoURL: "https://cdn.example.test/videos/ios/moon.mp4",
			PhysicalWidth: 0.2, PhysicalHeight: 0.3, Theme: "night",
		},
		"book-sea": {
			BookID: "book-sea", Title: "The Tidal Library",
			TargetURL: "https://cdn.example.test/targets/sea.png", VideoURL: "https://cdn.example.test/videos/ios/sea.mp4",
			PhysicalWidth: 0.21, PhysicalHeight: 0.297, Theme: "ocean",
		},
	}
	m.catalog = map[string]LibraryBook{
		"book-moon": {BookID: "book-moon", Title: "Goodnight Moonbeam", CoverURL: "https://cdn.example.test/covers/moon.jpg", Theme: "night"},
		"book-sea":  {BookID: "book-sea", Title: "The Tidal Library", CoverURL: "https://cdn.example.test/covers/sea.jpg", Theme: "ocean"},
	}
	m.books = make(map[string]LibraryBook)
	m.batches = nil
	m.events = nil
	m.failures = make(map[string][]int)
	m.delay = make(map[string]time.Duration)
	m.token = ""
	m.requests = nil
	m.fetchHits = make(map[string]int)
}

// SetDefaultPlan sets the status sequence new jobs walk through.
func (m *MockServer) SetDefaultPlan(plan ...RenderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultPlan = append([]RenderStatus(nil), plan...)
}

// AddJob registers a job whose successive fetches return plan in order;
// the last status repeats.
func (m *MockServer) AddJob(jobID string, plan ...RenderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[jobID] = &mockJob{
		job:  RenderJob{JobID: jobID, BookID: "book-moon", CreatedAt: time.Now().UTC().Truncate(time.Second)},
		plan: append([]RenderStatus(nil), plan...),
	}
}

// FailNext makes the next len(statuses) requests to route answer with those
// statuses. route is "METHOD /path" using chi patterns, e.g. "GET /renders/{jobID}".
func (m *MockServer) FailNext(route string, statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[route] = append(m.failures[route], statuses...)
}

// SetDelay delays every response on route.
func (m *MockServer) SetDelay(route string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay[route] = d
}

// RequireToken rejects requests without the bearer token.
func (m *MockServer) RequireToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// Batches returns the delivered event batches in arrival order.
func (m *MockServer) Batches() [][]ArEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]ArEvent, len(m.batches))
	copy(out, m.batches)
	return out
}

// Events returns individually delivered events.
func (m *MockServer) Events() []ArEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ArEvent(nil), m.events...)
}

// Requests returns every request received so far.
func (m *MockServer) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// Fetches returns how many times a job's status was fetched.
func (m *MockServer) Fetches(jobID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchHits[jobID]
}

func (m *MockServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()

		m.mu.Lock()
		m.requests = append(m.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   body,
		})
		token := m.token
		m.mu.Unlock()

		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token")
			return
		}

		r.Body = io.NopCloser(bytesReader(body))
		next.ServeHTTP(w, r)
	})
}

// intercept applies configured delays and failures. It returns true when
// the response was already written.
func (m *MockServer) intercept(w http.ResponseWriter, r *http.Request) bool {
	route := r.Method + " " + trimVersion(chi.RouteContext(r.Context()).RoutePattern())

	m.mu.Lock()
	d := m.delay[route]
	status := 0
	if queued := m.failures[route]; len(queued) > 0 {
		status = queued[0]
		m.failures[route] = queued[1:]
	}
	m.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return true
		}
	}
	if status != 0 {
		writeError(w, status, "INJECTED", fmt.Sprintf("injected failure %d", status))
		return true
	}
	return false
}

func (m *MockServer) handleCreatePreview(w http.ResponseWriter, r *http.Request) {
	if m.intercept(w, r) {
		return
	}
	var req CreatePreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BookID == "" || req.ChildName == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "bookId and childName are required")
		return
	}

	m.mu.Lock()
	m.nextJob++
	id := fmt.Sprintf("job-%03d", m.nextJob)
	j := &mockJob{
		job:  RenderJob{JobID: id, BookID: req.BookID, Status: RenderPending, CreatedAt: time.Now().UTC().Truncate(time.Second)},
		plan: append([]RenderStatus(nil), m.defaultPlan...),
	}
	m.jobs[id] = j
	job := j.job
	m.mu.Unlock()

	writeJSON(w, http.StatusCreated, job)
}

func (m *MockServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if m.intercept(w, r) {
		return
	}
	id := chi.URLParam(r, "jobID")

	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		writeError(w, http.StatusNotFound, "JOB_NOT_FOUND", "render job not found")
		return
	}
	m.fetchHits[id]++
	job := j.job
	if len(j.plan) > 0 {
		idx := j.next
		if idx >= len(j.plan) {
			idx = len(j.plan) - 1
		}
		job.Status = j.plan[idx]
		j.next++
	}
	if job.Status == RenderCompleted {
		done := job.CreatedAt.Add(2 * time.Second)
		job.CompletedAt = &done
		job.PreviewURL = "https://cdn.example.test/previews/" + id + ".mp4"
	}
	if job.Status == RenderFailed {
		done := job.CreatedAt.Add(2 * time.Second)
		job.CompletedAt = &done
		job.ErrorMessage = "render farm rejected the job"
	}
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, job)
}

func (m *MockServer) handleResolve(w http.ResponseWriter, r *http.Request) {
	if m.intercept(w, r) {
		return
	}
	bookID := r.URL.Query().Get("bookId")

	m.mu.Lock()
	exp, ok := m.experiences[bookID]
	m.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "BOOK_NOT_FOUND", "no AR experience for book")
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (m *MockServer) handleEvent(w http.ResponseWriter, r *http.Request) {
	if m.intercept(w, r) {
		return
	}
	var ev ArEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (m *MockServer) handleEventBatch(w http.ResponseWriter, r *http.Request) {
	if m.intercept(w, r) {
		return
	}
	var batch ArEventBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	m.mu.Lock()
	m.batches = append(m.batches, batch.Events)
	m.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (m *MockServer) handleLibrary(w http.ResponseWriter, r *http.Request) {
	if m.intercept(w, r) {
		return
	}
	m.mu.Lock()
	resp := LibraryResponse{Books: make([]LibraryBook, 0, len(m.books))}
	for _, b := range m.books {
		resp.Books = append(resp.Books, b)
	}
	m.mu.Unlock()
	sortBooks(resp.Books)
	resp.TotalCount = len(resp.Books)
	writeJSON(w, http.StatusOK, resp)
}

func (m *MockServer) handleViewed(w http.ResponseWriter, r *http.Request) {
	if m.intercept(w, r) {
		return
	}
	id := chi.URLParam(r, "bookID")

	m.mu.Lock()
	b, ok := m.books[id]
	if ok {
		now := time.Now().UTC().Truncate(time.Second)
		b.LastViewedAt = &now
		b.IsNew = false
		m.books[id] = b
	}
	m.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "BOOK_NOT_FOUND", "book not in library")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *MockServer) handleUnlock(w http.ResponseWriter, r *http.Request) {
	if m.intercept(w, r) {
		return
	}
	id := chi.URLParam(r, "bookID")

	m.mu.Lock()
	b, ok := m.books[id]
	if !ok {
		var known bool
		b, known = m.catalog[id]
		if !known {
			m.mu.Unlock()
			writeError(w, http.StatusNotFound, "BOOK_NOT_FOUND", "unknown book")
			return
		}
		b.UnlockedAt = time.Now().UTC().Truncate(time.Second)
		b.IsNew = true
		m.books[id] = b
	}
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Message: message, Code: code})
}
