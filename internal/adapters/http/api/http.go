// Package api serves the control surface of the animation core over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/cadence/internal/domain/dedupe"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/types"
)

// Dependencies required by HTTP handlers. Handlers never touch avatar state
// directly: writes become queue events and reads come from snapshots.
type Dependencies interface {
	dedupe.Deduper

	// Enqueue pushes an event to the avatar loop. Returns false on backpressure.
	Enqueue(ctx context.Context, e model.Event) bool

	// Stats returns the latest state snapshot.
	Stats(ctx context.Context) types.Stats

	// Luck returns the current luck vector of the active pool.
	Luck(ctx context.Context) map[string]float64

	// HasScenario reports whether a scenario is configured.
	HasScenario(name string) bool
}

// Server wires HTTP routes for the control API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	controlHandler *ControlHandler
	luckHandler    *LuckHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(deps),
		controlHandler: NewControlHandler(deps),
		luckHandler:    NewLuckHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/clips/finished", MetricsMiddleware(s.controlHandler.HandleFinished, "clips_finished"))
	mux.HandleFunc("/audio", MetricsMiddleware(s.controlHandler.HandleAudio, "audio"))
	mux.HandleFunc("/scheduler", MetricsMiddleware(s.controlHandler.HandleScheduler, "scheduler"))
	mux.HandleFunc("/scenario", MetricsMiddleware(s.controlHandler.HandleScenario, "scenario"))
	mux.HandleFunc("/gaze", MetricsMiddleware(s.controlHandler.HandleGaze, "gaze"))
	mux.HandleFunc("/luck", MetricsMiddleware(s.luckHandler.HandleLuck, "luck"))
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
}

// decode reads a JSON body, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
