package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"mediacms/internal/core"
	"mediacms/internal/generation"
)

const maxRequestBody = 1 << 20

// HealthResponse is the /health body
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// GenerateResponse is returned when an article was committed
type GenerateResponse struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	Slug            string           `json:"slug"`
	MetaTitle       string           `json:"metaTitle"`
	MetaDescription string           `json:"metaDescription"`
	IsPublished     bool             `json:"isPublished"`
	IsScheduled     bool             `json:"isScheduled"`
	Stats           generation.Stats `json:"stats"`
}

// ErrorBody is the payload of every error response
type ErrorBody struct {
	Status  int    `json:"status"`
	Type    string `json:"type"`
	Message string `json:"message"`
	// Stack is the stack of the handler goroutine at the time the error is
	// written. It names the route that failed, not where err was created.
	Stack string `json:"stack,omitempty"`
}

// handleHealth handles the /health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Warn("Health check failed", "error", err)
		checks["database"] = "error"
		s.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Checks: checks})
		return
	}

	checks["database"] = "ok"
	s.respondJSON(w, http.StatusOK, HealthResponse{Status: "ok", Checks: checks})
}

// handleGenerateArticle handles POST /api/articles/generate
func (s *Server) handleGenerateArticle(w http.ResponseWriter, r *http.Request) {
	var req core.GenerationRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		reason := "must be a JSON object"
		if errors.Is(err, io.EOF) {
			reason = "is empty"
		}
		s.respondErr(w, &core.ValidationError{Field: "body", Reason: reason})
		return
	}

	result, err := s.generator.Generate(r.Context(), req)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	a := result.Article
	s.respondJSON(w, http.StatusCreated, GenerateResponse{
		ID:              a.ID,
		Title:           a.Title,
		Slug:            a.Slug,
		MetaTitle:       a.MetaTitle,
		MetaDescription: a.MetaDescription,
		IsPublished:     a.IsPublished,
		IsScheduled:     a.IsScheduled,
		Stats:           result.Stats,
	})
}

// handleGetArticle handles GET /api/articles/{id}
func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	article, err := s.store.GetArticle(r.Context(), id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, article)
}

// handleScheduledGeneration handles POST /api/cron/scheduled-generation
func (s *Server) handleScheduledGeneration(w http.ResponseWriter, r *http.Request) {
	// The wait can outlast the server's write timeout when many schedules are due.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	summary, err := s.trigger.Run(r.Context(), s.now())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, summary)
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to encode JSON response", "error", err)
	}
}

// respondError writes an error envelope with an explicit status
func (s *Server) respondError(w http.ResponseWriter, status int, errType, message string) {
	s.respondJSON(w, status, map[string]ErrorBody{
		"error": {Status: status, Type: errType, Message: message},
	})
}

// respondErr maps err onto its status and type. Stacks are only exposed
// outside production.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := core.HTTPStatus(err)
	body := ErrorBody{
		Status:  status,
		Type:    core.ErrorType(err),
		Message: err.Error(),
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("Request failed", "status", status, "error_type", body.Type, "error", err)
	}
	if !s.production {
		body.Stack = string(debug.Stack())
	}
	s.respondJSON(w, status, map[string]ErrorBody{"error": body})
}
