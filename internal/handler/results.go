package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/menuline/survey-platform/internal/middleware"
	"github.com/menuline/survey-platform/internal/registry"
	"github.com/menuline/survey-platform/pkg/logger"
)

// ResultsHandler serves the read-side dashboard: tallies, per-user answers,
// and CSV exports.
type ResultsHandler struct {
	registry *registry.Manager
	logger   *logger.Logger
}

// NewResultsHandler creates a new results handler.
func NewResultsHandler(reg *registry.Manager, log *logger.Logger) *ResultsHandler {
	return &ResultsHandler{
		registry: reg,
		logger:   log,
	}
}

// Results handles GET /api/v1/polls/{id}/results
func (h *ResultsHandler) Results(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "id")
	if err := middleware.ValidatePollID(pollID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := h.registry.Tally().Results(r.Context(), pollID)
	if err != nil {
		h.logger.Error("failed to load results",
			zap.String("poll_id", pollID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load results")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// QuestionResults handles GET /api/v1/polls/{id}/results/question?q=...
func (h *ResultsHandler) QuestionResults(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "id")
	if err := middleware.ValidatePollID(pollID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	question := r.URL.Query().Get("q")
	if question == "" {
		writeError(w, http.StatusBadRequest, "q parameter is required")
		return
	}

	counts, err := h.registry.Tally().ResultsForQuestion(r.Context(), pollID, question)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load results")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// ResultsCSV handles GET /api/v1/polls/{id}/results.csv
func (h *ResultsHandler) ResultsCSV(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "id")
	if err := middleware.ValidatePollID(pollID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := h.registry.Tally().ResultsAsCSV(r.Context(), pollID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to export results")
		return
	}
	writeCSV(w, pollID+"-results.csv", data)
}

// UsersCSV handles GET /api/v1/polls/{id}/users.csv
func (h *ResultsHandler) UsersCSV(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "id")
	if err := middleware.ValidatePollID(pollID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := h.registry.Tally().UsersAsCSV(r.Context(), pollID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to export users")
		return
	}
	writeCSV(w, pollID+"-users.csv", data)
}

// Export handles GET /api/v1/polls/{id}/export: per-user answers joined
// with session timestamps.
func (h *ResultsHandler) Export(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "id")
	if err := middleware.ValidatePollID(pollID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	exports, err := h.registry.ExportUserData(r.Context(), pollID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to export user data")
		return
	}
	writeJSON(w, http.StatusOK, exports)
}

// ExportCSV handles GET /api/v1/polls/{id}/export.csv
func (h *ResultsHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "id")
	if err := middleware.ValidatePollID(pollID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := h.registry.ExportUserDataAsCSV(r.Context(), pollID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to export user data")
		return
	}
	writeCSV(w, pollID+"-export.csv", data)
}
