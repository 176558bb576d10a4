package api

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/lalithlochan/tandem/internal/nudge"
	"github.com/lalithlochan/tandem/internal/worker"
)

// Slack rejects payloads larger than this, so anything bigger is not from it.
const maxCallbackBytes = 1 << 20

// Dispatch handles POST /v1/nudges/dispatch. The body is ignored.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	summary, err := h.runner.Run(r.Context(), worker.TriggerHTTP)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "dispatch_failed", "Dispatch cycle failed", err.Error())
		return
	}

	h.logger.Info("manual dispatch finished", zap.Int("sent", summary.Sent()))
	writeJSON(w, http.StatusOK, summary)
}

// Interactions handles POST /slack/interactions. Anything that passes
// signature verification is acknowledged with 200 so Slack does not retry.
func (h *Handler) Interactions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Unreadable body", "")
		return
	}

	if err := h.callbacks.Handle(r.Context(), r.Header, body); err != nil {
		if errors.Is(err, nudge.ErrUnauthenticated) {
			h.writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid Slack signature", "")
			return
		}
		h.logger.Error("interaction handling failed", zap.Error(err))
	}

	w.WriteHeader(http.StatusOK)
}
