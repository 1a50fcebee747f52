// Package diag exposes the core's /health, /ready, and /status HTTP
// endpoints, adapted from the teacher's health/web server (minus its
// dashboard/websocket surface, which the spec excludes).
package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/homevolt/energy-core/internal/planner"
	"github.com/homevolt/energy-core/internal/resilience"
)

// StatusSource is queried on every /status request; the caller (the
// control loop) supplies a live snapshot without the diag server
// reaching back into loop internals.
type StatusSource interface {
	LoopHealth() LoopHealth
}

// LoopHealth is the control loop's self-reported snapshot.
type LoopHealth struct {
	IsRunning       bool
	LastTickAt      time.Time
	ActivePlan      *planner.Plan
	ResilienceLevel resilience.Level
	CurrentSOC      float64
}

// Server serves the diagnostics endpoints.
type Server struct {
	source    StatusSource
	server    *http.Server
	startTime time.Time
}

// NewServer creates a diag Server bound to port. Returns nil if port is
// not positive, matching the teacher's "disabled by non-positive port"
// convention.
func NewServer(source StatusSource, port int) *Server {
	if port <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	s := &Server{
		source:    source,
		startTime: time.Now(),
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/ready", s.readyHandler)
	mux.HandleFunc("/status", s.statusHandler)
	return s
}

// Start runs the HTTP server in a background goroutine.
func (s *Server) Start() error {
	if s == nil {
		return nil
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("diag: server error: %v\n", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	health := s.source.LoopHealth()
	if !health.IsRunning {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// StatusResponse is the full /status payload.
type StatusResponse struct {
	Status    string       `json:"status"`
	Timestamp string       `json:"timestamp"`
	Loop      LoopStatus   `json:"loop"`
	System    SystemStatus `json:"system"`
}

// LoopStatus mirrors the teacher's SchedulerHealth, generalised to the
// control loop's own fields.
type LoopStatus struct {
	IsRunning       bool      `json:"is_running"`
	LastTickAt      time.Time `json:"last_tick_at,omitempty"`
	PlanVersion     int       `json:"plan_version,omitempty"`
	ResilienceLevel string    `json:"resilience_level"`
	CurrentSOC      float64   `json:"current_soc"`
}

// SystemStatus mirrors the teacher's SystemHealth.
type SystemStatus struct {
	Uptime     string `json:"uptime"`
	Goroutines int    `json:"goroutines"`
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	health := s.source.LoopHealth()

	resp := StatusResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Loop: LoopStatus{
			IsRunning:       health.IsRunning,
			LastTickAt:      health.LastTickAt,
			ResilienceLevel: string(health.ResilienceLevel),
			CurrentSOC:      health.CurrentSOC,
		},
		System: SystemStatus{
			Uptime:     time.Since(s.startTime).String(),
			Goroutines: runtime.NumGoroutine(),
		},
	}
	if health.ActivePlan != nil {
		resp.Loop.PlanVersion = health.ActivePlan.Version
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
