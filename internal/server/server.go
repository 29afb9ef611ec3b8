// Package server is the HTTP front door that triggers pipeline runs and
// exposes health and metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loghook/loghook/authcache"
	"github.com/loghook/loghook/checkpoint"
	"github.com/loghook/loghook/consumer"
	"github.com/loghook/loghook/internal/config"
	"github.com/loghook/loghook/pipeline"
	"github.com/loghook/loghook/source"
)

// Runner is what the trigger handler drives; satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context) (*pipeline.RunResult, error)
}

type errorResponse struct {
	Kind    string `json:"error"`
	Message string `json:"message"`
}

// Server serializes trigger requests: the pipeline assumes at most one run
// active at a time against its checkpoint.
type Server struct {
	runner Runner
	mu     sync.Mutex
}

func New(runner Runner) *Server {
	return &Server{runner: runner}
}

// Router mounts the trigger (both accepted methods), health, and metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/run", s.handleTrigger)
	r.Post("/run", s.handleTrigger)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.runner.Run(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"run":    result,
	})
}

// writeError maps the error taxonomy onto the response surface: missing
// settings → 400, checkpoint-store failures → their own 500 kind, every
// other pipeline failure → 500. Credentials never appear in a payload.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var missingErr *config.MissingSettingsError
	var storeErr *checkpoint.StoreError
	var acqErr *authcache.AcquisitionError
	var fetchErr *source.FetchError
	var delErr *consumer.DeliveryError

	switch {
	case errors.As(err, &missingErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Kind: "missing_settings", Message: missingErr.Error()})
	case errors.As(err, &storeErr):
		writeJSON(w, http.StatusInternalServerError, errorResponse{Kind: "checkpoint_store", Message: storeErr.Error()})
	case errors.As(err, &acqErr):
		writeJSON(w, http.StatusInternalServerError, errorResponse{Kind: "auth_acquisition", Message: acqErr.Error()})
	case errors.As(err, &fetchErr):
		writeJSON(w, http.StatusInternalServerError, errorResponse{Kind: "source_fetch", Message: fetchErr.Error()})
	case errors.As(err, &delErr):
		writeJSON(w, http.StatusInternalServerError, errorResponse{Kind: "delivery", Message: delErr.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Kind: "pipeline", Message: err.Error()})
	}
	log.Printf("Run request failed: %v", err)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}
