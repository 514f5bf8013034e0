package domain

import (
	"time"

	"github.com/google/uuid"
)

type AlertStatus string

const (
	AlertNew       AlertStatus = "new"
	AlertReviewed  AlertStatus = "reviewed"
	AlertVerified  AlertStatus = "verified"
	AlertDismissed AlertStatus = "dismissed"
	AlertLicensed  AlertStatus = "licensed"
)

// Reviewable reports whether a human review may move an alert into s.
// AlertLicensed is reserved for license issuance.
func (s AlertStatus) Reviewable() bool {
	switch s {
	case AlertReviewed, AlertVerified, AlertDismissed:
		return true
	}
	return false
}

type MatchType string

const (
	MatchPotential MatchType = "potential"
	MatchVerified  MatchType = "verified"
)

// InitialConfidence is assigned to every new alert until the audio matcher
// reports a score.
const InitialConfidence = 0.5

type MonitoringAlert struct {
	ID              uuid.UUID
	TrackID         uuid.UUID
	JobID           uuid.UUID
	OwnerID         uuid.UUID
	Platform        string
	ExternalVideoID string
	VideoURL        string
	Title           string
	ChannelName     string
	ChannelURL      string
	ThumbnailURL    string
	ViewCount       int64
	LikeCount       int64
	CommentCount    int64
	PublishedAt     *time.Time
	MatchType       MatchType
	ConfidenceScore float64
	Status          AlertStatus
	ReviewedAt      *time.Time
	ReviewedBy      *string
	Notes           *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type AlertFilter struct {
	Status AlertStatus
	Limit  int
	Offset int
}
