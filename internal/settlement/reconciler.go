// Package settlement applies billing webhook events to licenses. Every
// write is a conditional update keyed on the license's current state, so
// redelivered, concurrent and out-of-order events converge on the same
// result and never move a license backwards.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SirClappington/rightsguard/internal/domain"
	"github.com/SirClappington/rightsguard/internal/events"
)

type Store interface {
	SettlePaid(ctx context.Context, u domain.PaymentUpdate) (domain.Settlement, error)
	SettleFailed(ctx context.Context, u domain.PaymentUpdate) (domain.Settlement, error)
	RecordInvoiceFinalized(ctx context.Context, u domain.PaymentUpdate) (domain.Settlement, error)
	RecordInvoiceSent(ctx context.Context, u domain.PaymentUpdate) (domain.Settlement, error)
}

// Outcome describes what happened to one delivery. Ignored carries the
// reason an authentic event was discarded; such deliveries are still
// acknowledged so the sender stops retrying.
type Outcome struct {
	EventID string
	Kind    Kind
	Applied bool
	Ignored string
	Result  domain.Settlement
}

const (
	IgnoredUnrecognized   = "unrecognized event type"
	IgnoredNoLicense      = "no license id in metadata"
	IgnoredUnknownLicense = "unknown license"
)

type Reconciler struct {
	store    Store
	verifier *Verifier
	events   events.Publisher
	logger   *zap.Logger
	now      func() time.Time
}

func NewReconciler(store Store, verifier *Verifier, pub events.Publisher, logger *zap.Logger) *Reconciler {
	if pub == nil {
		pub = events.Noop{}
	}
	return &Reconciler{
		store:    store,
		verifier: verifier,
		events:   pub,
		logger:   logger.Named("settlement"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle verifies and applies one webhook delivery. It returns
// domain.ErrUnauthentic without touching the store when the signature does
// not verify, and a plain error when the store failed and the delivery
// should be retried.
func (r *Reconciler) Handle(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	if err := r.verifier.Verify(payload, signature, r.now()); err != nil {
		r.logger.Warn("Rejected billing event", zap.Error(err))
		return Outcome{}, err
	}
	ev, err := Parse(payload)
	if err != nil {
		return Outcome{}, err
	}
	return r.Apply(ctx, ev)
}

// Apply routes an authenticated event to its state transition.
func (r *Reconciler) Apply(ctx context.Context, ev Event) (Outcome, error) {
	out := Outcome{EventID: ev.ID, Kind: ev.Kind}
	log := r.logger.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))

	if ev.Kind == Unrecognized {
		log.Debug("Ignoring billing event")
		out.Ignored = IgnoredUnrecognized
		return out, nil
	}
	if ev.Update.LicenseID == uuid.Nil {
		log.Warn("Billing event without license id, discarded")
		out.Ignored = IgnoredNoLicense
		return out, nil
	}
	log = log.With(zap.String("license_id", ev.Update.LicenseID.String()))

	var (
		res domain.Settlement
		err error
	)
	switch ev.Kind {
	case Paid:
		res, err = r.store.SettlePaid(ctx, ev.Update)
	case PaymentFailed:
		res, err = r.store.SettleFailed(ctx, ev.Update)
	case Finalized:
		res, err = r.store.RecordInvoiceFinalized(ctx, ev.Update)
	case Sent:
		res, err = r.store.RecordInvoiceSent(ctx, ev.Update)
	default:
		return out, fmt.Errorf("unhandled event kind %s", ev.Kind)
	}
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn("Billing event for unknown license, discarded")
		out.Ignored = IgnoredUnknownLicense
		return out, nil
	}
	if err != nil {
		log.Error("Failed to apply billing event", zap.Error(err))
		return out, fmt.Errorf("apply %s event %s: %w", ev.Kind, ev.ID, err)
	}

	out.Applied = res.Applied
	out.Result = res
	if !res.Applied {
		log.Info("Billing event already reflected, no change", zap.String("kind", ev.Kind.String()))
		return out, nil
	}
	log.Info("Billing event applied",
		zap.String("kind", ev.Kind.String()),
		zap.String("payment_status", string(res.License.PaymentStatus)),
		zap.String("status", string(res.License.Status)))

	if ev.Kind == Paid && res.Revenue != nil {
		r.publishPaid(ctx, log, res)
	}
	return out, nil
}

func (r *Reconciler) publishPaid(ctx context.Context, log *zap.Logger, res domain.Settlement) {
	err := r.events.Publish(ctx, events.Event{
		Type:       events.LicensePaid,
		Key:        res.License.ID.String(),
		OccurredAt: res.Revenue.Date,
		Data: map[string]any{
			"license_id": res.License.ID,
			"owner_id":   res.License.OwnerID,
			"track_id":   res.License.TrackID,
			"amount":     res.Revenue.Amount,
			"currency":   res.Revenue.Currency,
		},
	})
	if err != nil {
		log.Warn("Failed to publish license paid event", zap.Error(err))
	}
}
