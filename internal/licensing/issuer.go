// Package licensing turns detected uses of a track into license offers and
// manages their lifecycle up to the point where billing takes over.
//
// Issuance is a chain of best-effort external steps (artifact rendering,
// artifact storage, invoice registration, notification) around one durable
// write. Only validation and lookup failures abort it; every external
// failure degrades the result and is reported as a Warning.
package licensing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/SirClappington/rightsguard/internal/domain"
	"github.com/SirClappington/rightsguard/internal/events"
)

// Document is everything the artifact renderer needs to lay out one
// license agreement.
type Document struct {
	LicenseID     uuid.UUID       `json:"license_id"`
	IssuedAt      time.Time       `json:"issued_at"`
	Licensor      string          `json:"licensor"`
	LicensorEmail string          `json:"licensor_email"`
	TrackTitle    string          `json:"track_title"`
	ArtistName    string          `json:"artist_name"`
	Licensee      domain.Licensee `json:"licensee"`
	VideoURL      string          `json:"video_url,omitempty"`
	Fee           decimal.Decimal `json:"fee"`
	Currency      string          `json:"currency"`
	Territory     string          `json:"territory"`
	Duration      string          `json:"duration"`
	Exclusivity   string          `json:"exclusivity"`
}

type Payer struct {
	Name  string
	Email string
}

type LineItem struct {
	Description string
	Amount      decimal.Decimal
	Currency    string
}

type Invoice struct {
	ID        string
	HostedURL string
}

type Message struct {
	To         string
	Subject    string
	Body       string
	Attachment string
}

type Renderer interface {
	Render(ctx context.Context, doc Document) ([]byte, error)
}

type BlobStore interface {
	Put(ctx context.Context, data []byte, keyHint string) (string, error)
	SignedURL(ctx context.Context, ref string, ttl time.Duration) (string, error)
}

type InvoiceGateway interface {
	CreateInvoice(ctx context.Context, payer Payer, item LineItem, metadata map[string]string) (Invoice, error)
}

type Notifier interface {
	Send(ctx context.Context, msg Message) (bool, error)
}

type Store interface {
	GetTrack(ctx context.Context, id uuid.UUID) (*domain.Track, error)
	GetProfile(ctx context.Context, id uuid.UUID) (*domain.Profile, error)
	GetAlert(ctx context.Context, id uuid.UUID) (*domain.MonitoringAlert, error)
	ListAlerts(ctx context.Context, trackID, ownerID uuid.UUID, f domain.AlertFilter) ([]domain.MonitoringAlert, error)
	ReviewAlert(ctx context.Context, alertID, ownerID uuid.UUID, status domain.AlertStatus, reviewedBy, notes string, at time.Time) (*domain.MonitoringAlert, error)
	SetAlertConfidence(ctx context.Context, alertID, ownerID uuid.UUID, score float64, mt domain.MatchType) (*domain.MonitoringAlert, error)
	MarkAlertLicensed(ctx context.Context, alertID uuid.UUID) error
	InsertLicense(ctx context.Context, l *domain.License) error
	GetLicense(ctx context.Context, id uuid.UUID) (*domain.License, error)
	ListLicenses(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.License, error)
	MarkLicenseSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	VoidLicense(ctx context.Context, id, ownerID uuid.UUID) (*domain.License, error)
}

// Collaborators are the external services issuance talks to.
type Collaborators struct {
	Renderer Renderer
	Blobs    BlobStore
	Invoices InvoiceGateway
	Notifier Notifier
}

type Warning string

const (
	WarnArtifactUnavailable Warning = "artifact_unavailable"
	WarnInvoiceUnavailable  Warning = "invoice_unavailable"
	WarnNotificationSkipped Warning = "notification_skipped"
	WarnNotificationFailed  Warning = "notification_failed"
	WarnAlertNotUpdated     Warning = "alert_not_updated"
)

type IssueResult struct {
	License  *domain.License
	Warnings []Warning
}

func (r *IssueResult) warn(w Warning) { r.Warnings = append(r.Warnings, w) }

type Issuer struct {
	store   Store
	ext     Collaborators
	events  events.Publisher
	linkTTL time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

func NewIssuer(store Store, ext Collaborators, pub events.Publisher, linkTTL time.Duration, logger *zap.Logger) *Issuer {
	if pub == nil {
		pub = events.Noop{}
	}
	if linkTTL <= 0 {
		linkTTL = 7 * 24 * time.Hour
	}
	return &Issuer{
		store:   store,
		ext:     ext,
		events:  pub,
		linkTTL: linkTTL,
		logger:  logger.Named("licensing"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Issue creates a license. The returned error is non-nil only for invalid
// input, unknown or foreign track/alert, or a failed insert; all other
// problems leave a draft license and are listed in IssueResult.Warnings.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (IssueResult, error) {
	req, err := req.normalize()
	if err != nil {
		return IssueResult{}, err
	}

	track, err := i.store.GetTrack(ctx, req.TrackID)
	if err != nil {
		return IssueResult{}, err
	}
	if track.OwnerID != req.OwnerID {
		return IssueResult{}, fmt.Errorf("track %s: %w", req.TrackID, domain.ErrNotFound)
	}
	owner, err := i.store.GetProfile(ctx, req.OwnerID)
	if err != nil {
		return IssueResult{}, err
	}
	var alert *domain.MonitoringAlert
	if req.AlertID != nil {
		if alert, err = i.sourceAlert(ctx, *req.AlertID, track); err != nil {
			return IssueResult{}, err
		}
		if req.Licensee.Platform == "" {
			req.Licensee.Platform = alert.Platform
		}
		if req.Licensee.Channel == "" {
			req.Licensee.Channel = alert.ChannelName
		}
	}

	now := i.now()
	lic := &domain.License{
		ID:            uuid.New(),
		OwnerID:       req.OwnerID,
		TrackID:       track.ID,
		AlertID:       req.AlertID,
		Licensee:      req.Licensee,
		Fee:           req.Fee,
		Currency:      req.Currency,
		Terms:         req.Terms,
		Status:        domain.LicenseDraft,
		PaymentStatus: domain.PaymentPending,
	}
	log := i.logger.With(zap.String("license_id", lic.ID.String()), zap.String("track_id", track.ID.String()))
	res := IssueResult{License: lic}

	doc := Document{
		LicenseID:     lic.ID,
		IssuedAt:      now,
		Licensor:      owner.DisplayName,
		LicensorEmail: owner.Email,
		TrackTitle:    track.Title,
		ArtistName:    track.ArtistName,
		Licensee:      lic.Licensee,
		Fee:           lic.Fee,
		Currency:      lic.Currency,
		Territory:     lic.Terms.Territory,
		Duration:      lic.Terms.Duration,
		Exclusivity:   string(lic.Terms.Exclusivity),
	}
	if alert != nil {
		doc.VideoURL = alert.VideoURL
	}
	if ref, err := i.storeArtifact(ctx, doc); err != nil {
		log.Warn("License artifact unavailable", zap.Error(err))
		res.warn(WarnArtifactUnavailable)
	} else {
		lic.PDFRef = &ref
	}

	inv, err := i.ext.Invoices.CreateInvoice(ctx,
		Payer{Name: lic.Licensee.Name, Email: lic.Licensee.Email},
		LineItem{
			Description: fmt.Sprintf("License: %s by %s", track.Title, track.ArtistName),
			Amount:      lic.Fee,
			Currency:    lic.Currency,
		},
		map[string]string{"licenseId": lic.ID.String()})
	if err != nil {
		log.Warn("Invoice registration failed, license stays without invoice", zap.Error(err))
		res.warn(WarnInvoiceUnavailable)
	} else {
		lic.ExternalInvoiceRef = &inv.ID
		if inv.HostedURL != "" {
			lic.InvoiceURL = &inv.HostedURL
		}
	}

	// the store allows one license per alert, so a concurrent issue for the
	// same alert fails here with ErrConflict
	if err := i.store.InsertLicense(ctx, lic); err != nil {
		return IssueResult{}, fmt.Errorf("persist license: %w", err)
	}

	if req.SendNotification {
		i.notify(ctx, log, lic, track, owner, &res)
	}

	if alert != nil {
		if err := i.store.MarkAlertLicensed(ctx, alert.ID); err != nil {
			log.Error("Failed to mark source alert licensed", zap.String("alert_id", alert.ID.String()), zap.Error(err))
			res.warn(WarnAlertNotUpdated)
		}
	}

	if err := i.events.Publish(ctx, events.Event{
		Type:       events.LicenseIssued,
		Key:        lic.ID.String(),
		OccurredAt: now,
		Data:       licensePayload(lic),
	}); err != nil {
		log.Warn("Failed to publish license event", zap.Error(err))
	}

	log.Info("License issued",
		zap.String("status", string(lic.Status)),
		zap.String("fee", lic.Fee.String()),
		zap.String("currency", lic.Currency),
		zap.Int("warnings", len(res.Warnings)))
	return res, nil
}

// sourceAlert loads the alert a license is issued for. It must belong to the
// same track, and a licensed alert cannot be licensed again.
func (i *Issuer) sourceAlert(ctx context.Context, id uuid.UUID, track *domain.Track) (*domain.MonitoringAlert, error) {
	alert, err := i.store.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.TrackID != track.ID || alert.OwnerID != track.OwnerID {
		return nil, fmt.Errorf("alert %s on track %s: %w", id, track.ID, domain.ErrNotFound)
	}
	if alert.Status == domain.AlertLicensed {
		return nil, fmt.Errorf("alert %s already licensed: %w", id, domain.ErrConflict)
	}
	return alert, nil
}

func (i *Issuer) storeArtifact(ctx context.Context, doc Document) (string, error) {
	pdf, err := i.ext.Renderer.Render(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	ref, err := i.ext.Blobs.Put(ctx, pdf, fmt.Sprintf("licenses/%s.pdf", doc.LicenseID))
	if err != nil {
		return "", fmt.Errorf("store artifact: %w", err)
	}
	return ref, nil
}

// notify sends the agreement to the licensee and moves the license to sent
// once delivery is confirmed. A license without an artifact is never sent.
func (i *Issuer) notify(ctx context.Context, log *zap.Logger, lic *domain.License, track *domain.Track, owner *domain.Profile, res *IssueResult) {
	if lic.PDFRef == nil {
		log.Info("Notification skipped, no license artifact")
		res.warn(WarnNotificationSkipped)
		return
	}
	link, err := i.ext.Blobs.SignedURL(ctx, *lic.PDFRef, i.linkTTL)
	if err != nil {
		log.Warn("Could not sign artifact link, notification skipped", zap.Error(err))
		res.warn(WarnNotificationSkipped)
		return
	}

	delivered, err := i.ext.Notifier.Send(ctx, Message{
		To:         lic.Licensee.Email,
		Subject:    fmt.Sprintf("License offer for %q by %s", track.Title, track.ArtistName),
		Body:       messageBody(lic, track, owner),
		Attachment: link,
	})
	if err != nil || !delivered {
		log.Warn("License notification not delivered", zap.Bool("delivered", delivered), zap.Error(err))
		res.warn(WarnNotificationFailed)
		return
	}

	at := i.now()
	moved, err := i.store.MarkLicenseSent(ctx, lic.ID, at)
	if err != nil {
		log.Error("Notification delivered but license not marked sent", zap.Error(err))
		res.warn(WarnNotificationFailed)
		return
	}
	if moved {
		lic.Status = domain.LicenseSent
		lic.SentAt = &at
	}
}

func messageBody(lic *domain.License, track *domain.Track, owner *domain.Profile) string {
	body := fmt.Sprintf("Hello %s,\n\n%s offers you a license to use %q by %s.\n\nFee: %s %s\nTerritory: %s\nDuration: %s\n",
		lic.Licensee.Name, owner.DisplayName, track.Title, track.ArtistName,
		lic.Fee.StringFixed(2), lic.Currency, lic.Terms.Territory, lic.Terms.Duration)
	if lic.InvoiceURL != nil {
		body += fmt.Sprintf("\nPay online: %s\n", *lic.InvoiceURL)
	}
	return body
}

func licensePayload(l *domain.License) map[string]any {
	return map[string]any{
		"license_id":     l.ID,
		"owner_id":       l.OwnerID,
		"track_id":       l.TrackID,
		"alert_id":       l.AlertID,
		"fee":            l.Fee,
		"currency":       l.Currency,
		"status":         l.Status,
		"payment_status": l.PaymentStatus,
		"has_invoice":    l.ExternalInvoiceRef != nil,
	}
}
