package httpapi

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/SirClappington/rightsguard/internal/domain"
	"github.com/SirClappington/rightsguard/internal/settlement"
)

const maxWebhookBytes = 1 << 20

// billingWebhook acknowledges an event only once it is applied or safely
// ignored. Store failures answer 500 so the sender redelivers.
func (h *Handler) billingWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "could not read body")
		return
	}
	out, err := h.webhooks.Handle(r.Context(), payload, r.Header.Get(settlement.SignatureHeader))
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUnauthentic):
		writeError(w, http.StatusBadRequest, "invalid_signature", "signature verification failed")
		return
	default:
		h.writeDomainError(w, r, err)
		return
	}

	if out.Ignored != "" {
		h.logger.Info("Billing webhook ignored",
			zap.String("event_id", out.EventID), zap.String("reason", out.Ignored))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"received": true,
		"event_id": out.EventID,
		"kind":     out.Kind.String(),
		"applied":  out.Applied,
		"ignored":  out.Ignored,
	})
}
