package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mshogin/reasonguard/internal/application/services"
	"github.com/mshogin/reasonguard/internal/domain/models"
	"github.com/mshogin/reasonguard/internal/infrastructure/config"
	"github.com/mshogin/reasonguard/internal/infrastructure/logging"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Handler handles HTTP requests for the task API.
type Handler struct {
	orchestrator *services.Orchestrator
	config       *config.Config
	logger       *logging.StructuredLogger
}

// NewHandler creates a new Handler instance.
func NewHandler(orchestrator *services.Orchestrator, cfg *config.Config, logger *logging.StructuredLogger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		config:       cfg,
		logger:       logger,
	}
}

// CreateTask handles POST /tasks. With ?stream=true progress is sent as
// Server-Sent Events.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTaskRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.config.Performance.TaskTimeout)
	defer cancel()

	if r.URL.Query().Get("stream") == "true" {
		h.streamTask(ctx, w, &req)
		return
	}

	report, err := h.orchestrator.CreateAndRun(ctx, req.Prompt, req.NumAgents)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusCreated, report)
}

// streamTask handles streaming SSE responses.
func (h *Handler) streamTask(ctx context.Context, w http.ResponseWriter, req *models.CreateTaskRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.sendErrorResponse(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	events, err := h.orchestrator.Stream(ctx, req.Prompt, req.NumAgents)
	if err != nil {
		h.sendErrorResponse(w, statusFor(err), err.Error())
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for event := range events {
		sse, err := event.ToSSE()
		if err != nil {
			h.logger.Error("failed to encode stream event", err, map[string]interface{}{"event": event.Type})
			continue
		}
		if _, err := w.Write([]byte(sse)); err != nil {
			// Client went away; drain so the producer can finish.
			for range events {
			}
			return
		}
		flusher.Flush()
	}
}

// ListTasks handles GET /tasks.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	tasks, err := h.orchestrator.ListTasks(r.Context(), limit)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

// GetTask handles GET /tasks/{id}.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	report, err := h.orchestrator.Report(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusOK, report)
}

// GetRuns handles GET /tasks/{id}/runs.
func (h *Handler) GetRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.orchestrator.Runs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// GetFamilies handles GET /tasks/{id}/families.
func (h *Handler) GetFamilies(w http.ResponseWriter, r *http.Request) {
	families, err := h.orchestrator.Families(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusOK, map[string]interface{}{"families": families})
}

// ResumeTask handles POST /tasks/{id}/resume.
func (h *Handler) ResumeTask(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.config.Performance.TaskTimeout)
	defer cancel()

	report, err := h.orchestrator.Resume(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusOK, report)
}

// OverrideTask handles POST /tasks/{id}/override.
func (h *Handler) OverrideTask(w http.ResponseWriter, r *http.Request) {
	var req models.OverrideRequest
	if !h.decode(w, r, &req) {
		return
	}
	task, err := h.orchestrator.Override(r.Context(), chi.URLParam(r, "id"), req.Confirmation)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusOK, task)
}

// Analyze handles the stateless POST /analyze.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req models.AnalyzeRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.sendJSON(w, http.StatusOK, h.orchestrator.Analyze(req.Runs, req.Strict || h.orchestrator.Strict()))
}

// FragilePatterns handles GET /patterns.
func (h *Handler) FragilePatterns(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.limit(w, r)
	if !ok {
		return
	}
	patterns, err := h.orchestrator.FragilePatterns(r.Context(), limit)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendJSON(w, http.StatusOK, map[string]interface{}{"patterns": patterns})
}

// Health handles GET /health endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"generation": h.orchestrator.CanGenerate(),
		"strict":     h.orchestrator.Strict(),
	})
}

// decode parses and validates a JSON body, answering 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.sendErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := models.ValidateStruct(v); err != nil {
		h.sendErrorResponse(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) limit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxListLimit {
		h.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxListLimit))
		return 0, false
	}
	return limit, true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidRequest),
		errors.Is(err, models.ErrMissingPrompt),
		errors.Is(err, models.ErrConfirmationRequired):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNoGateDecision):
		return http.StatusConflict
	case errors.Is(err, models.ErrGenerationDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// sendError logs server-side failures and writes the mapped status.
func (h *Handler) sendError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", err, map[string]interface{}{
			"request_id": requestID(r),
			"path":       r.URL.Path,
			"status":     status,
		})
	}
	h.sendErrorResponse(w, status, err.Error())
}

func (h *Handler) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", err)
	}
}

// sendErrorResponse sends an error response.
func (h *Handler) sendErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
