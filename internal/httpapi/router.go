// Package httpapi exposes the rights-monitoring service over HTTP: job
// settings, on-demand scans, alert review, license issuance and the billing
// webhook.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SirClappington/rightsguard/internal/domain"
	"github.com/SirClappington/rightsguard/internal/licensing"
	"github.com/SirClappington/rightsguard/internal/queue"
	"github.com/SirClappington/rightsguard/internal/settlement"
)

type Jobs interface {
	CreateJob(ctx context.Context, p domain.NewJobParams) (*domain.MonitoringJob, error)
	GetJob(ctx context.Context, trackID, ownerID uuid.UUID) (*domain.MonitoringJob, error)
	UpdateJob(ctx context.Context, trackID, ownerID uuid.UUID, u domain.JobUpdate) (*domain.MonitoringJob, error)
}

type ScanQueue interface {
	Enqueue(ctx context.Context, req queue.ScanRequest, runAt time.Time) error
}

type Licenses interface {
	Issue(ctx context.Context, req licensing.IssueRequest) (licensing.IssueResult, error)
	Get(ctx context.Context, id, ownerID uuid.UUID) (*domain.License, error)
	List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.License, error)
	Void(ctx context.Context, id, ownerID uuid.UUID) (*domain.License, error)
	ListAlerts(ctx context.Context, trackID, ownerID uuid.UUID, f domain.AlertFilter) ([]domain.MonitoringAlert, error)
	ReviewAlert(ctx context.Context, alertID, ownerID uuid.UUID, r licensing.Review) (*domain.MonitoringAlert, error)
	SetConfidence(ctx context.Context, alertID, ownerID uuid.UUID, score float64, mt domain.MatchType) (*domain.MonitoringAlert, error)
}

type Webhooks interface {
	Handle(ctx context.Context, payload []byte, signature string) (settlement.Outcome, error)
}

type Quota interface {
	QuotaUsage(ctx context.Context, at time.Time) (int64, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	jobs       Jobs
	scans      ScanQueue
	licenses   Licenses
	webhooks   Webhooks
	quota      Quota
	quotaLimit int64
	health     []Pinger
	logger     *zap.Logger
}

type Deps struct {
	Jobs       Jobs
	Scans      ScanQueue
	Licenses   Licenses
	Webhooks   Webhooks
	Quota      Quota
	QuotaLimit int64
	Health     []Pinger
}

func NewHandler(d Deps, logger *zap.Logger) *Handler {
	return &Handler{
		jobs:       d.Jobs,
		scans:      d.Scans,
		licenses:   d.Licenses,
		webhooks:   d.Webhooks,
		quota:      d.Quota,
		quotaLimit: d.QuotaLimit,
		health:     d.Health,
		logger:     logger.Named("http"),
	}
}

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/webhooks/billing", h.billingWebhook)

		r.Group(func(r chi.Router) {
			r.Use(ownerMiddleware)
			r.Post("/tracks/{trackID}/scan", h.requestScan)
			r.Post("/tracks/{trackID}/job", h.createJob)
			r.Get("/tracks/{trackID}/job", h.getJob)
			r.Patch("/tracks/{trackID}/job", h.updateJob)
			r.Get("/tracks/{trackID}/alerts", h.listAlerts)
			r.Post("/alerts/{alertID}/review", h.reviewAlert)
			r.Put("/alerts/{alertID}/confidence", h.setConfidence)
			r.Post("/licenses", h.issueLicense)
			r.Get("/licenses", h.listLicenses)
			r.Get("/licenses/{licenseID}", h.getLicense)
			r.Post("/licenses/{licenseID}/void", h.voidLicense)
			r.Get("/quota", h.getQuota)
		})
	})
	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for _, p := range h.health {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Health check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "unavailable", "dependency unavailable")
			return
		}
	}
	writeSuccess(w, http.StatusOK, "ok")
}
