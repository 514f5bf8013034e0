package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SirClappington/rightsguard/internal/domain"
	"github.com/SirClappington/rightsguard/internal/licensing"
)

type issueRequest struct {
	TrackID          uuid.UUID       `json:"track_id"`
	AlertID          *uuid.UUID      `json:"alert_id"`
	Licensee         domain.Licensee `json:"licensee"`
	Fee              decimal.Decimal `json:"license_fee"`
	Currency         string          `json:"currency"`
	Territory        string          `json:"territory"`
	Duration         string          `json:"duration"`
	Exclusivity      string          `json:"exclusivity"`
	SendNotification bool            `json:"send_notification"`
}

func licensingReview(req reviewRequest) licensing.Review {
	return licensing.Review{
		Status:     domain.AlertStatus(req.Status),
		ReviewedBy: req.ReviewedBy,
		Notes:      req.Notes,
	}
}

// issueLicense answers 201 even when collaborators failed; the warnings list
// tells the caller which parts are missing.
func (h *Handler) issueLicense(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())
	var req issueRequest
	if err := decode(w, r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	res, err := h.licenses.Issue(r.Context(), licensing.IssueRequest{
		OwnerID:  owner,
		TrackID:  req.TrackID,
		AlertID:  req.AlertID,
		Licensee: req.Licensee,
		Fee:      req.Fee,
		Currency: req.Currency,
		Terms: domain.Terms{
			Territory:   req.Territory,
			Duration:    req.Duration,
			Exclusivity: domain.Exclusivity(req.Exclusivity),
		},
		SendNotification: req.SendNotification,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	warnings := make([]string, 0, len(res.Warnings))
	for _, wn := range res.Warnings {
		warnings = append(warnings, string(wn))
	}
	writeSuccess(w, http.StatusCreated, map[string]any{
		"license":  toLicenseView(res.License),
		"warnings": warnings,
	})
}

func (h *Handler) listLicenses(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())
	q := r.URL.Query()
	ls, err := h.licenses.List(r.Context(), owner, parseIntOrDefault(q.Get("limit"), 50), parseIntOrDefault(q.Get("offset"), 0))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]licenseView, 0, len(ls))
	for i := range ls {
		out = append(out, toLicenseView(&ls[i]))
	}
	writeSuccess(w, http.StatusOK, map[string]any{"licenses": out})
}

func (h *Handler) getLicense(w http.ResponseWriter, r *http.Request) {
	h.withLicense(w, r, h.licenses.Get)
}

func (h *Handler) voidLicense(w http.ResponseWriter, r *http.Request) {
	h.withLicense(w, r, h.licenses.Void)
}

func (h *Handler) withLicense(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id, ownerID uuid.UUID) (*domain.License, error)) {
	id, err := pathUUID(r, "licenseID")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	l, err := op(r.Context(), id, ownerFromContext(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, toLicenseView(l))
}
