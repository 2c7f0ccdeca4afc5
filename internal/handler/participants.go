package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/menuline/survey-platform/internal/middleware"
	"github.com/menuline/survey-platform/internal/registry"
	"github.com/menuline/survey-platform/pkg/logger"
)

// ParticipantHandler serves participant session inspection endpoints.
type ParticipantHandler struct {
	registry *registry.Manager
	logger   *logger.Logger
}

// NewParticipantHandler creates a new participant handler.
func NewParticipantHandler(reg *registry.Manager, log *logger.Logger) *ParticipantHandler {
	return &ParticipantHandler{
		registry: reg,
		logger:   log,
	}
}

// participantView is the JSON projection of a session.
type participantView struct {
	UserID                string            `json:"user_id"`
	PollID                string            `json:"poll_id,omitempty"`
	UID                   string            `json:"uid,omitempty"`
	Interactions          int               `json:"interactions"`
	HasUnansweredQuestion bool              `json:"has_unanswered_question"`
	UpdatedAt             float64           `json:"updated_at"`
	Labels                map[string]string `json:"labels"`
}

// Active handles GET /api/v1/polls/{id}/participants: currently live
// sessions with an active/inactive breakdown.
func (h *ParticipantHandler) Active(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "id")
	if err := middleware.ValidatePollID(pollID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	active, err := h.registry.ActiveParticipants(r.Context(), pollID)
	if err != nil {
		h.logger.Error("failed to list participants",
			zap.String("poll_id", pollID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list participants")
		return
	}
	inactive, err := h.registry.InactiveParticipantUserIDs(r.Context(), pollID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list participants")
		return
	}

	views := make([]participantView, 0, len(active))
	for _, p := range active {
		views = append(views, participantView{
			UserID:                p.UserID,
			PollID:                p.PollID(),
			UID:                   p.PollUID(),
			Interactions:          p.Interactions,
			HasUnansweredQuestion: p.HasUnansweredQuestion,
			UpdatedAt:             p.UpdatedAt,
			Labels:                p.Labels,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active":         views,
		"active_count":   len(views),
		"inactive_count": len(inactive),
	})
}

// Archive handles GET /api/v1/polls/{id}/participants/{user_id}/archive:
// the user's historical sessions, most recent first.
func (h *ParticipantHandler) Archive(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "id")
	if err := middleware.ValidatePollID(pollID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID := chi.URLParam(r, "user_id")
	if err := middleware.ValidateUserID(userID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	archived, err := h.registry.GetArchive(r.Context(), pollID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load archive")
		return
	}

	views := make([]participantView, 0, len(archived))
	for _, p := range archived {
		views = append(views, participantView{
			UserID:                p.UserID,
			PollID:                p.PollID(),
			UID:                   p.PollUID(),
			Interactions:          p.Interactions,
			HasUnansweredQuestion: p.HasUnansweredQuestion,
			UpdatedAt:             p.UpdatedAt,
			Labels:                p.Labels,
		})
	}
	writeJSON(w, http.StatusOK, views)
}
