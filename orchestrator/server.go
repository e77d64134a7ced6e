// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"agentic/orchestrator/llm"
	"agentic/shared/logger"
)

const maxRequestBytes = 1 << 20

// ModelLister lists the models a server exposes. *llm.Gateway implements it.
type ModelLister interface {
	Models() []llm.ModelInfo
}

// DecisionRequest is the body of POST /api/v1/decisions.
type DecisionRequest struct {
	Question        string                 `json:"question"`
	Framework       Framework              `json:"framework"`
	FrameworkConfig map[string]interface{} `json:"framework_config"`
}

// DecisionResponse is returned for a completed task.
type DecisionResponse struct {
	Success bool            `json:"success"`
	Task    *DecisionTask   `json:"task"`
	Result  *DecisionResult `json:"result"`
}

// ErrorResponse is returned for any failed request.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   string       `json:"error"`
	Class   FailureClass `json:"class,omitempty"`
	Field   string       `json:"field,omitempty"`
	TaskID  string       `json:"task_id,omitempty"`
}

// Server exposes the engine over HTTP.
type Server struct {
	engine *Engine
	models ModelLister
	log    *logger.Logger
	router *mux.Router
}

// NewServer wires the API routes. models may be nil.
func NewServer(engine *Engine, models ModelLister, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	s := &Server{engine: engine, models: models, log: log, router: mux.NewRouter()}

	s.router.HandleFunc("/health", s.healthHandler).Methods("GET")
	s.router.Handle("/prometheus", promhttp.Handler()).Methods("GET")
	s.router.HandleFunc("/api/v1/decisions", s.decisionHandler).Methods("POST")
	s.router.HandleFunc("/api/v1/models", s.modelsHandler).Methods("GET")
	return s
}

// Router returns the route table.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the router wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(s.router)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
// In-flight decision tasks are canceled through their request contexts.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("", "", "Decision API listening", map[string]interface{}{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("", "", "Shutting down decision API", nil)
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	models := 0
	if s.models != nil {
		models = len(s.models.Models())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"service":    "agentic",
		"timestamp":  time.Now().UTC(),
		"frameworks": Frameworks(),
		"models":     models,
	})
}

func (s *Server) modelsHandler(w http.ResponseWriter, r *http.Request) {
	models := []llm.ModelInfo{}
	if s.models != nil {
		models = s.models.Models()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"models": models,
		"count":  len(models),
	})
}

func (s *Server) decisionHandler(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Class: FailureConfiguration,
		})
		return
	}

	task := NewDecisionTask(req.Question, req.Framework, req.FrameworkConfig)
	result, err := s.engine.Run(r.Context(), task)
	if err != nil {
		status, resp := errorResponse(err)
		resp.TaskID = task.ID
		writeJSON(w, status, resp)
		return
	}

	writeJSON(w, http.StatusOK, DecisionResponse{Success: true, Task: task, Result: result})
}

// StatusForError maps a run failure to an HTTP status code.
func StatusForError(err error) int {
	switch Classify(err) {
	case FailureConfiguration:
		return http.StatusBadRequest
	case FailureTransient:
		if errors.Is(err, llm.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	case FailureCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func errorResponse(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Error: err.Error(), Class: Classify(err)}
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		resp.Field = cfgErr.Field
	}
	return StatusForError(err), resp
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
