package httpapi

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SirClappington/rightsguard/internal/domain"
)

type jobView struct {
	ID                uuid.UUID  `json:"id"`
	TrackID           uuid.UUID  `json:"track_id"`
	Enabled           bool       `json:"enabled"`
	Frequency         string     `json:"frequency"`
	Platforms         []string   `json:"platforms"`
	SearchTerms       []string   `json:"search_terms"`
	Status            string     `json:"status"`
	LastRunAt         *time.Time `json:"last_run_at"`
	NextRunAt         *time.Time `json:"next_run_at"`
	ErrorCount        int        `json:"error_count"`
	LastError         *string    `json:"last_error,omitempty"`
	TotalRuns         int        `json:"total_runs"`
	TotalMatchesFound int        `json:"total_matches_found"`
}

func toJobView(j *domain.MonitoringJob) jobView {
	return jobView{
		ID:                j.ID,
		TrackID:           j.TrackID,
		Enabled:           j.Enabled,
		Frequency:         string(j.Frequency),
		Platforms:         j.Platforms,
		SearchTerms:       j.SearchTerms,
		Status:            string(j.Status),
		LastRunAt:         j.LastRunAt,
		NextRunAt:         j.NextRunAt,
		ErrorCount:        j.ErrorCount,
		LastError:         j.LastError,
		TotalRuns:         j.TotalRuns,
		TotalMatchesFound: j.TotalMatchesFound,
	}
}

type alertView struct {
	ID              uuid.UUID  `json:"id"`
	TrackID         uuid.UUID  `json:"track_id"`
	Platform        string     `json:"platform"`
	ExternalVideoID string     `json:"external_video_id"`
	VideoURL        string     `json:"video_url"`
	Title           string     `json:"title"`
	ChannelName     string     `json:"channel_name"`
	ChannelURL      string     `json:"channel_url"`
	ThumbnailURL    string     `json:"thumbnail_url,omitempty"`
	ViewCount       int64      `json:"view_count"`
	LikeCount       int64      `json:"like_count"`
	CommentCount    int64      `json:"comment_count"`
	PublishedAt     *time.Time `json:"published_at"`
	MatchType       string     `json:"match_type"`
	ConfidenceScore float64    `json:"confidence_score"`
	Status          string     `json:"status"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	ReviewedBy      *string    `json:"reviewed_by,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toAlertView(a *domain.MonitoringAlert) alertView {
	return alertView{
		ID:              a.ID,
		TrackID:         a.TrackID,
		Platform:        a.Platform,
		ExternalVideoID: a.ExternalVideoID,
		VideoURL:        a.VideoURL,
		Title:           a.Title,
		ChannelName:     a.ChannelName,
		ChannelURL:      a.ChannelURL,
		ThumbnailURL:    a.ThumbnailURL,
		ViewCount:       a.ViewCount,
		LikeCount:       a.LikeCount,
		CommentCount:    a.CommentCount,
		PublishedAt:     a.PublishedAt,
		MatchType:       string(a.MatchType),
		ConfidenceScore: a.ConfidenceScore,
		Status:          string(a.Status),
		ReviewedAt:      a.ReviewedAt,
		ReviewedBy:      a.ReviewedBy,
		Notes:           a.Notes,
		CreatedAt:       a.CreatedAt,
	}
}

type licenseView struct {
	ID            uuid.UUID       `json:"id"`
	TrackID       uuid.UUID       `json:"track_id"`
	AlertID       *uuid.UUID      `json:"alert_id,omitempty"`
	Licensee      domain.Licensee `json:"licensee"`
	Fee           decimal.Decimal `json:"license_fee"`
	Currency      string          `json:"currency"`
	Territory     string          `json:"territory"`
	Duration      string          `json:"duration"`
	Exclusivity   string          `json:"exclusivity"`
	HasArtifact   bool            `json:"has_artifact"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	InvoiceRef    *string         `json:"external_invoice_ref"`
	InvoiceURL    *string         `json:"invoice_url"`
	PaymentRef    *string         `json:"external_payment_ref"`
	SentAt        *time.Time      `json:"sent_at"`
	PaidAt        *time.Time      `json:"paid_at"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toLicenseView(l *domain.License) licenseView {
	return licenseView{
		ID:            l.ID,
		TrackID:       l.TrackID,
		AlertID:       l.AlertID,
		Licensee:      l.Licensee,
		Fee:           l.Fee,
		Currency:      l.Currency,
		Territory:     l.Terms.Territory,
		Duration:      l.Terms.Duration,
		Exclusivity:   string(l.Terms.Exclusivity),
		HasArtifact:   l.PDFRef != nil,
		Status:        string(l.Status),
		PaymentStatus: string(l.PaymentStatus),
		InvoiceRef:    l.ExternalInvoiceRef,
		InvoiceURL:    l.InvoiceURL,
		PaymentRef:    l.ExternalPaymentRef,
		SentAt:        l.SentAt,
		PaidAt:        l.PaidAt,
		CreatedAt:     l.CreatedAt,
	}
}
