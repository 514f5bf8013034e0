package licensing

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SirClappington/rightsguard/internal/domain"
)

type Review struct {
	Status     domain.AlertStatus
	ReviewedBy string
	Notes      string
}

func (i *Issuer) ListAlerts(ctx context.Context, trackID, ownerID uuid.UUID, f domain.AlertFilter) ([]domain.MonitoringAlert, error) {
	switch f.Status {
	case "", domain.AlertNew, domain.AlertReviewed, domain.AlertVerified, domain.AlertDismissed, domain.AlertLicensed:
	default:
		return nil, fmt.Errorf("%w: unknown alert status %q", domain.ErrInvalidInput, f.Status)
	}
	return i.store.ListAlerts(ctx, trackID, ownerID, f)
}

// ReviewAlert records a human decision on an alert. Licensed is reserved for
// issuance and is terminal.
func (i *Issuer) ReviewAlert(ctx context.Context, alertID, ownerID uuid.UUID, r Review) (*domain.MonitoringAlert, error) {
	if !r.Status.Reviewable() {
		return nil, fmt.Errorf("%w: cannot review alert into %q", domain.ErrInvalidInput, r.Status)
	}
	if r.ReviewedBy == "" {
		r.ReviewedBy = ownerID.String()
	}
	a, err := i.store.ReviewAlert(ctx, alertID, ownerID, r.Status, r.ReviewedBy, r.Notes, i.now())
	if err != nil {
		return nil, err
	}
	i.logger.Info("Alert reviewed",
		zap.String("alert_id", alertID.String()),
		zap.String("status", string(r.Status)))
	return a, nil
}

// SetConfidence stores a score from the audio matcher. An empty match type
// keeps the current one.
func (i *Issuer) SetConfidence(ctx context.Context, alertID, ownerID uuid.UUID, score float64, mt domain.MatchType) (*domain.MonitoringAlert, error) {
	if math.IsNaN(score) || score < 0 || score > 1 {
		return nil, fmt.Errorf("%w: confidence must be within [0,1]", domain.ErrInvalidInput)
	}
	switch mt {
	case "", domain.MatchPotential, domain.MatchVerified:
	default:
		return nil, fmt.Errorf("%w: unknown match type %q", domain.ErrInvalidInput, mt)
	}
	return i.store.SetAlertConfidence(ctx, alertID, ownerID, score, mt)
}
