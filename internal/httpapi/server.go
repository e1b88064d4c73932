// Package httpapi exposes the daemon's observability surface: liveness,
// current sync status, and the recent run history.
package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/SERVIR/IMERG-30Min-ETL/internal/imerg"
)

// maxStoredRuns bounds the in-memory run history.
const maxStoredRuns = 50

// Status is the aggregate view served at /status.
type Status struct {
	Running     bool       `json:"running"`
	LastStarted *time.Time `json:"lastStarted,omitempty"`
	LastRunID   string     `json:"lastRunId,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
	TotalRuns   int        `json:"totalRuns"`
	FailedRuns  int        `json:"failedRuns"`
}

type Server struct {
	router *mux.Router

	mu         sync.Mutex
	running    bool
	current    string
	started    time.Time
	totalRuns  int
	failedRuns int
	history    []imerg.RunReport
}

func NewServer() *Server {
	s := &Server{router: mux.NewRouter()}
	s.router.HandleFunc("/health", s.health).Methods("GET")
	s.router.HandleFunc("/status", s.status).Methods("GET")
	s.router.HandleFunc("/runs", s.listRuns).Methods("GET")
	s.router.HandleFunc("/runs/{id}", s.getRun).Methods("GET")
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RecordStart marks a run as in flight. The run's identifier becomes known
// only when the run finishes and RecordResult is called.
func (s *Server) RecordStart(started time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.started = started
}

// RecordResult appends a finished run to the history, evicting the oldest
// entry past the cap.
func (s *Server) RecordResult(report imerg.RunReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.current = report.RunID
	s.started = report.Started
	s.totalRuns++
	if report.Error != "" {
		s.failedRuns++
	}
	s.history = append(s.history, report)
	if len(s.history) > maxStoredRuns {
		s.history = s.history[len(s.history)-maxStoredRuns:]
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	status := Status{
		Running:    s.running,
		LastRunID:  s.current,
		TotalRuns:  s.totalRuns,
		FailedRuns: s.failedRuns,
	}
	if !s.started.IsZero() {
		started := s.started
		status.LastStarted = &started
	}
	if n := len(s.history); n > 0 {
		status.LastError = s.history[n-1].Error
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) listRuns(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	runs := make([]imerg.RunReport, len(s.history))
	copy(runs, s.history)
	s.mu.Unlock()
	// Newest first.
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	var found *imerg.RunReport
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].RunID == id {
			report := s.history[i]
			found = &report
			break
		}
	}
	s.mu.Unlock()
	if found == nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, *found)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
