package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/SirClappington/rightsguard/internal/domain"
	"github.com/SirClappington/rightsguard/internal/queue"
)

type jobRequest struct {
	Enabled     *bool    `json:"enabled"`
	Frequency   *string  `json:"frequency"`
	Platforms   []string `json:"platforms"`
	SearchTerms []string `json:"search_terms"`
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", domain.ErrInvalidInput, name)
	}
	return id, nil
}

// decode reads a JSON body. An empty body leaves v at its zero value.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid json: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// requestScan registers the track if needed and queues an immediate scan for
// the scheduler runner.
func (h *Handler) requestScan(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())
	trackID, err := pathUUID(r, "trackID")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	job, err := h.jobs.CreateJob(r.Context(), domain.NewJobParams{TrackID: trackID, OwnerID: owner})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	req := queue.ScanRequest{TrackID: trackID, OwnerID: owner, RequestedAt: time.Now().UTC()}
	if err := h.scans.Enqueue(r.Context(), req, time.Time{}); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusAccepted, map[string]any{"queued": true, "job": toJobView(job)})
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())
	trackID, err := pathUUID(r, "trackID")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var req jobRequest
	if err := decode(w, r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	p := domain.NewJobParams{TrackID: trackID, OwnerID: owner, Platforms: req.Platforms, SearchTerms: req.SearchTerms}
	if req.Frequency != nil {
		p.Frequency = domain.Frequency(*req.Frequency)
	}
	job, err := h.jobs.CreateJob(r.Context(), p)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, toJobView(job))
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	trackID, err := pathUUID(r, "trackID")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	job, err := h.jobs.GetJob(r.Context(), trackID, ownerFromContext(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, toJobView(job))
}

func (h *Handler) updateJob(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())
	trackID, err := pathUUID(r, "trackID")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var req jobRequest
	if err := decode(w, r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	u := domain.JobUpdate{Enabled: req.Enabled, Platforms: req.Platforms, SearchTerms: req.SearchTerms}
	if req.Frequency != nil {
		f := domain.Frequency(*req.Frequency)
		u.Frequency = &f
	}
	job, err := h.jobs.UpdateJob(r.Context(), trackID, owner, u)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, toJobView(job))
}

func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())
	trackID, err := pathUUID(r, "trackID")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	q := r.URL.Query()
	alerts, err := h.licenses.ListAlerts(r.Context(), trackID, owner, domain.AlertFilter{
		Status: domain.AlertStatus(q.Get("status")),
		Limit:  parseIntOrDefault(q.Get("limit"), 50),
		Offset: parseIntOrDefault(q.Get("offset"), 0),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]alertView, 0, len(alerts))
	for i := range alerts {
		out = append(out, toAlertView(&alerts[i]))
	}
	writeSuccess(w, http.StatusOK, map[string]any{"alerts": out})
}

type reviewRequest struct {
	Status     string `json:"status"`
	ReviewedBy string `json:"reviewed_by"`
	Notes      string `json:"notes"`
}

func (h *Handler) reviewAlert(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())
	alertID, err := pathUUID(r, "alertID")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var req reviewRequest
	if err := decode(w, r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	a, err := h.licenses.ReviewAlert(r.Context(), alertID, owner, licensingReview(req))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, toAlertView(a))
}

type confidenceRequest struct {
	Score     *float64 `json:"confidence_score"`
	MatchType string   `json:"match_type"`
}

func (h *Handler) setConfidence(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromContext(r.Context())
	alertID, err := pathUUID(r, "alertID")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	var req confidenceRequest
	if err := decode(w, r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if req.Score == nil {
		h.writeDomainError(w, r, fmt.Errorf("%w: confidence_score is required", domain.ErrInvalidInput))
		return
	}
	a, err := h.licenses.SetConfidence(r.Context(), alertID, owner, *req.Score, domain.MatchType(req.MatchType))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, toAlertView(a))
}

func (h *Handler) getQuota(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	used, err := h.quota.QuotaUsage(r.Context(), now)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"date":      now.Format(time.DateOnly),
		"used":      used,
		"limit":     h.quotaLimit,
		"remaining": max(h.quotaLimit-used, 0),
	})
}

func parseIntOrDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
