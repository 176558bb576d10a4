package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/lalithlochan/tandem/internal/db"
	"github.com/lalithlochan/tandem/internal/directory"
	"github.com/lalithlochan/tandem/internal/survey"
)

type checkpointRequest struct {
	CheckpointNumber int             `json:"checkpoint_number"`
	Payload          json.RawMessage `json:"payload"`
}

type connectionRequest struct {
	WorkspaceID string `json:"workspace_id"`
}

// PendingSurvey handles GET /v1/me/surveys/pending
func (h *Handler) PendingSurvey(w http.ResponseWriter, r *http.Request) {
	email, _ := EmailFromContext(r.Context())

	obligation, ok, err := h.surveys.Next(r.Context(), email)
	if err != nil {
		h.logger.Error("failed to resolve pending survey", zap.Error(err), zap.String("email", email))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to resolve pending survey", "")
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, obligation)
}

// SubmitSurvey handles POST /v1/me/surveys
func (h *Handler) SubmitSurvey(w http.ResponseWriter, r *http.Request) {
	email, _ := EmailFromContext(r.Context())

	var req survey.SubmissionInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	sub, err := h.surveys.Submit(r.Context(), email, req)
	switch {
	case errors.Is(err, survey.ErrInvalidSubmission):
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid survey submission", err.Error())
		return
	case errors.Is(err, survey.ErrAlreadySubmitted):
		h.writeError(w, http.StatusConflict, "already_submitted", "Survey already submitted", "")
		return
	case err != nil:
		h.logger.Error("failed to submit survey", zap.Error(err), zap.String("email", email))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to submit survey", "")
		return
	}

	writeJSON(w, http.StatusCreated, sub)
}

// RecordCheckpoint handles POST /v1/me/checkpoints
func (h *Handler) RecordCheckpoint(w http.ResponseWriter, r *http.Request) {
	email, _ := EmailFromContext(r.Context())

	var req checkpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	cp, err := h.surveys.RecordCheckpoint(r.Context(), email, req.CheckpointNumber, req.Payload)
	switch {
	case errors.Is(err, survey.ErrInvalidCheckpoint):
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid checkpoint", err.Error())
		return
	case errors.Is(err, survey.ErrCheckpointExists):
		h.writeError(w, http.StatusConflict, "already_recorded", "Checkpoint already recorded", "")
		return
	case err != nil:
		h.logger.Error("failed to record checkpoint", zap.Error(err), zap.String("email", email))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to record checkpoint", "")
		return
	}

	writeJSON(w, http.StatusCreated, cp)
}

// ListCheckpoints handles GET /v1/me/checkpoints
func (h *Handler) ListCheckpoints(w http.ResponseWriter, r *http.Request) {
	email, _ := EmailFromContext(r.Context())

	cps, err := h.surveys.Checkpoints(r.Context(), email)
	if err != nil {
		h.logger.Error("failed to list checkpoints", zap.Error(err), zap.String("email", email))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list checkpoints", "")
		return
	}
	if cps == nil {
		cps = []db.Checkpoint{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  cps,
		"count": len(cps),
	})
}

// LinkSlack handles POST /v1/me/slack/connection
func (h *Handler) LinkSlack(w http.ResponseWriter, r *http.Request) {
	email, _ := EmailFromContext(r.Context())

	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.WorkspaceID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing workspace_id", "workspace_id is required")
		return
	}

	conn, err := h.directory.Link(r.Context(), email, req.WorkspaceID)
	if err != nil {
		if errors.Is(err, directory.ErrNoInstallation) {
			h.writeError(w, http.StatusNotFound, "not_installed", "Slack app is not installed in this workspace", "")
			return
		}
		h.logger.Error("failed to link slack", zap.Error(err), zap.String("email", email))
		h.writeError(w, http.StatusBadGateway, "slack_error", "Failed to link Slack account", "")
		return
	}

	h.logger.Info("slack connection linked",
		zap.String("email", email),
		zap.String("workspace_id", req.WorkspaceID),
	)
	writeJSON(w, http.StatusOK, conn)
}

// UpdatePreferences handles PUT /v1/me/slack/preferences
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	email, _ := EmailFromContext(r.Context())

	var req db.Preferences
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	prefs, err := h.directory.UpdatePreferences(r.Context(), email, req)
	switch {
	case errors.Is(err, directory.ErrInvalidPreferences):
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid preferences", err.Error())
		return
	case errors.Is(err, directory.ErrNotConnected):
		h.writeError(w, http.StatusNotFound, "not_connected", "Slack is not linked", "")
		return
	case err != nil:
		h.logger.Error("failed to update preferences", zap.Error(err), zap.String("email", email))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to update preferences", "")
		return
	}

	writeJSON(w, http.StatusOK, prefs)
}

// ListNudges handles GET /v1/me/nudges?limit=20&offset=0
func (h *Handler) ListNudges(w http.ResponseWriter, r *http.Request) {
	email, _ := EmailFromContext(r.Context())

	limit := 20
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	nudges, err := h.nudges.ListNudgesByEmployee(r.Context(), email, limit, offset)
	if err != nil {
		h.logger.Error("failed to list nudges", zap.Error(err), zap.String("email", email))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list nudges", "")
		return
	}
	if nudges == nil {
		nudges = []*db.Nudge{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":   nudges,
		"limit":  limit,
		"offset": offset,
		"count":  len(nudges),
	})
}
