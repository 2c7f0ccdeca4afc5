// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menuline/survey-platform/internal/middleware"
	"github.com/menuline/survey-platform/internal/model"
	"github.com/menuline/survey-platform/internal/registry"
	"github.com/menuline/survey-platform/pkg/logger"
)

// PollHandler handles poll registration and configuration endpoints.
type PollHandler struct {
	registry         *registry.Manager
	defaultBatchSize int
	logger           *logger.Logger
}

// NewPollHandler creates a new poll handler. defaultBatchSize applies to
// configurations registered without a batch_size field; an explicit zero
// still means unlimited.
func NewPollHandler(reg *registry.Manager, defaultBatchSize int, log *logger.Logger) *PollHandler {
	return &PollHandler{
		registry:         reg,
		defaultBatchSize: defaultBatchSize,
		logger:           log,
	}
}

// Register handles POST /api/v1/polls and PUT /api/v1/polls/{id}. A POST
// without an id generates one. The body is a poll configuration; the
// response carries the content-addressed version uid.
func (h *PollHandler) Register(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "id")
	if pollID == "" {
		pollID = uuid.New().String()
	}
	if err := middleware.ValidatePollID(pollID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	cfg, err := model.ParsePollConfig(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var probe struct {
		BatchSize *int `json:"batch_size"`
	}
	if err := json.Unmarshal(body, &probe); err == nil && probe.BatchSize == nil {
		cfg.BatchSize = h.defaultBatchSize
	}

	p, err := h.registry.Register(r.Context(), pollID, cfg)
	if err != nil {
		h.logger.Error("failed to register poll",
			zap.String("poll_id", pollID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to register poll")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"poll_id": p.PollID,
		"uid":     p.UID,
	})
}

// GetConfig handles GET /api/v1/polls/{id}?uid=... The latest version is
// returned when uid is omitted or unknown; an empty object when the poll id
// has no versions.
func (h *PollHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "id")
	if err := middleware.ValidatePollID(pollID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg, err := h.registry.GetConfig(r.Context(), pollID, r.URL.Query().Get("uid"))
	if err != nil {
		h.logger.Error("failed to load poll config",
			zap.String("poll_id", pollID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load poll config")
		return
	}
	if cfg == nil {
		writeJSON(w, http.StatusOK, json.RawMessage("{}"))
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// Exists handles GET /api/v1/polls/{id}/exists
func (h *PollHandler) Exists(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "id")
	if err := middleware.ValidatePollID(pollID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	exists, err := h.registry.Exists(r.Context(), pollID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check poll")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}
