package domain

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobActive JobStatus = "active"
	JobError  JobStatus = "error"
)

// MaxConsecutiveFailures is the number of failed runs after which a job is
// parked in JobError and no longer selected by the scheduler.
const MaxConsecutiveFailures = 3

// DefaultLookback bounds the first scan of a track that has never run.
const DefaultLookback = 7 * 24 * time.Hour

type Frequency string

const (
	Hourly Frequency = "hourly"
	Daily  Frequency = "daily"
	Weekly Frequency = "weekly"
)

func (f Frequency) Valid() bool {
	switch f {
	case Hourly, Daily, Weekly:
		return true
	}
	return false
}

// Interval is the delay between two runs. Unknown values fall back to weekly.
func (f Frequency) Interval() time.Duration {
	switch f {
	case Hourly:
		return time.Hour
	case Daily:
		return 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

const PlatformYouTube = "youtube"

type MonitoringJob struct {
	ID                uuid.UUID
	TrackID           uuid.UUID
	OwnerID           uuid.UUID
	Enabled           bool
	Frequency         Frequency
	Platforms         []string
	SearchTerms       []string
	LastRunAt         *time.Time
	NextRunAt         *time.Time
	ClaimedUntil      *time.Time
	Status            JobStatus
	ErrorCount        int
	TotalRuns         int
	TotalMatchesFound int
	LastError         *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Watermark is the publishedAfter boundary for the next scan.
func (j *MonitoringJob) Watermark(now time.Time) time.Time {
	if j.LastRunAt != nil {
		return *j.LastRunAt
	}
	return now.Add(-DefaultLookback)
}

// NewJobParams seeds a job on first monitor request or explicit creation.
// Empty fields take defaults derived from the track.
type NewJobParams struct {
	TrackID     uuid.UUID
	OwnerID     uuid.UUID
	Frequency   Frequency
	Platforms   []string
	SearchTerms []string
}

// WithDefaults fills search terms (title, artist), platforms and frequency.
func (p NewJobParams) WithDefaults(track *Track) NewJobParams {
	if len(p.SearchTerms) == 0 && track != nil {
		p.SearchTerms = DefaultSearchTerms(track)
	}
	if len(p.Platforms) == 0 {
		p.Platforms = []string{PlatformYouTube}
	}
	if !p.Frequency.Valid() {
		p.Frequency = Weekly
	}
	return p
}

func DefaultSearchTerms(t *Track) []string {
	terms := make([]string, 0, 2)
	if t.Title != "" {
		terms = append(terms, t.Title)
	}
	if t.ArtistName != "" {
		terms = append(terms, t.ArtistName)
	}
	return terms
}

// JobUpdate carries optional settings changes. Nil fields are left alone.
type JobUpdate struct {
	Enabled     *bool
	Frequency   *Frequency
	Platforms   []string
	SearchTerms []string
}
