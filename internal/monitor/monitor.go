// Package monitor runs one scan of one tracked work: it queries the
// platform search APIs, drops self-uploads, and records every new candidate
// as an alert. Re-running a scan over unchanged results only advances the
// job's timestamps and counters.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/SirClappington/rightsguard/internal/domain"
	"github.com/SirClappington/rightsguard/internal/events"
	"github.com/SirClappington/rightsguard/internal/platform"
)

type Searcher interface {
	Search(ctx context.Context, q platform.Query) (platform.SearchResult, error)
	Statistics(ctx context.Context, ids []string) (platform.StatsResult, error)
}

type Store interface {
	GetTrack(ctx context.Context, id uuid.UUID) (*domain.Track, error)
	UpsertJob(ctx context.Context, p domain.NewJobParams) (*domain.MonitoringJob, error)
	InsertAlert(ctx context.Context, a *domain.MonitoringAlert) error
	CompleteRun(ctx context.Context, jobID uuid.UUID, at time.Time, newMatches int) (*domain.MonitoringJob, error)
	FailRun(ctx context.Context, jobID uuid.UUID, msg string, newMatches int) (*domain.MonitoringJob, error)
}

// Result summarizes one scan.
type Result struct {
	TrackID     uuid.UUID
	JobID       uuid.UUID
	Candidates  int
	SelfUploads int
	Known       int
	NewAlerts   int
	QuotaUnits  int64
	Job         *domain.MonitoringJob
}

type Monitor struct {
	store     Store
	searchers map[string]Searcher
	events    events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func New(store Store, searchers map[string]Searcher, pub events.Publisher, logger *zap.Logger) *Monitor {
	if pub == nil {
		pub = events.Noop{}
	}
	return &Monitor{
		store:     store,
		searchers: searchers,
		events:    pub,
		logger:    logger.Named("monitor"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Monitor scans one track. Any failure after the job is loaded is recorded
// on the job (parking it in error status after repeated failures) and
// returned to the caller. The result carries the quota units spent even when
// the scan fails.
func (m *Monitor) Monitor(ctx context.Context, trackID, ownerID uuid.UUID) (Result, error) {
	res := Result{TrackID: trackID}

	track, err := m.store.GetTrack(ctx, trackID)
	if err != nil {
		return res, err
	}
	if track.OwnerID != ownerID {
		return res, fmt.Errorf("track %s: %w", trackID, domain.ErrNotFound)
	}

	job, err := m.store.UpsertJob(ctx, domain.NewJobParams{TrackID: track.ID, OwnerID: ownerID}.WithDefaults(track))
	if err != nil {
		return res, err
	}
	res.JobID = job.ID

	now := m.now()
	if err := m.scan(ctx, track, job, now, &res); err != nil {
		failed, ferr := m.store.FailRun(ctx, job.ID, err.Error(), res.NewAlerts)
		if ferr != nil {
			m.logger.Error("Failed to record monitor failure",
				zap.String("job_id", job.ID.String()), zap.Error(ferr))
		} else {
			res.Job = failed
			if failed.Status == domain.JobError {
				m.logger.Warn("Monitoring job parked after repeated failures",
					zap.String("job_id", job.ID.String()),
					zap.String("track_id", trackID.String()),
					zap.Int("error_count", failed.ErrorCount))
			}
		}
		return res, fmt.Errorf("monitor track %s: %w", trackID, err)
	}

	done, err := m.store.CompleteRun(ctx, job.ID, now, res.NewAlerts)
	if err != nil {
		return res, err
	}
	res.Job = done

	m.logger.Info("Track scanned",
		zap.String("track_id", trackID.String()),
		zap.Int("candidates", res.Candidates),
		zap.Int("self_uploads", res.SelfUploads),
		zap.Int("known", res.Known),
		zap.Int("new_alerts", res.NewAlerts),
		zap.Int64("quota_units", res.QuotaUnits))
	return res, nil
}

func (m *Monitor) scan(ctx context.Context, track *domain.Track, job *domain.MonitoringJob, now time.Time, res *Result) error {
	terms := job.SearchTerms
	if len(terms) == 0 {
		terms = domain.DefaultSearchTerms(track)
	}
	q := platform.Query{
		Text:           BuildQuery(terms),
		PublishedAfter: job.Watermark(now),
		Order:          platform.OrderDate,
	}
	if q.Text == "" {
		return fmt.Errorf("%w: no search terms for track", domain.ErrInvalidInput)
	}

	scanned := 0
	// alerts inserted before a failure are still announced
	var fresh []events.Event
	defer func() { m.publishAlerts(ctx, fresh) }()
	for _, name := range job.Platforms {
		s, ok := m.searchers[name]
		if !ok {
			m.logger.Warn("No search client for platform", zap.String("platform", name))
			continue
		}
		scanned++

		found, err := s.Search(ctx, q)
		res.QuotaUnits += found.Units
		if err != nil {
			return fmt.Errorf("%s search: %w: %v", name, domain.ErrExternalUnavailable, err)
		}
		res.Candidates += len(found.Items)
		if len(found.Items) == 0 {
			continue
		}

		ids := make([]string, 0, len(found.Items))
		for _, it := range found.Items {
			ids = append(ids, it.ExternalID)
		}
		stats, err := s.Statistics(ctx, ids)
		res.QuotaUnits += stats.Units
		if err != nil {
			return fmt.Errorf("%s statistics: %w: %v", name, domain.ErrExternalUnavailable, err)
		}

		for _, it := range found.Items {
			if IsSelfUpload(it.ChannelName, track.ArtistName) {
				res.SelfUploads++
				continue
			}
			alert := newAlert(track, job, name, it, stats.Stats[it.ExternalID])
			err := m.store.InsertAlert(ctx, alert)
			if errors.Is(err, domain.ErrAlreadyKnown) {
				res.Known++
				continue
			}
			if err != nil {
				return err
			}
			res.NewAlerts++
			fresh = append(fresh, events.Event{
				Type:       events.AlertDetected,
				Key:        track.ID.String(),
				OccurredAt: now,
				Data:       alertPayload(alert),
			})
		}
	}
	if scanned == 0 {
		return fmt.Errorf("%w: no supported platform in %v", domain.ErrInvalidInput, job.Platforms)
	}
	return nil
}

func (m *Monitor) publishAlerts(ctx context.Context, fresh []events.Event) {
	if len(fresh) == 0 {
		return
	}
	if err := m.events.Publish(ctx, fresh...); err != nil {
		m.logger.Warn("Failed to publish alert events", zap.Int("count", len(fresh)), zap.Error(err))
	}
}

func newAlert(track *domain.Track, job *domain.MonitoringJob, name string, it platform.Item, st platform.Stats) *domain.MonitoringAlert {
	a := &domain.MonitoringAlert{
		ID:              uuid.New(),
		TrackID:         track.ID,
		JobID:           job.ID,
		OwnerID:         track.OwnerID,
		Platform:        name,
		ExternalVideoID: it.ExternalID,
		VideoURL:        it.URL,
		Title:           it.Title,
		ChannelName:     it.ChannelName,
		ChannelURL:      it.ChannelURL,
		ThumbnailURL:    it.ThumbnailURL,
		ViewCount:       st.ViewCount,
		LikeCount:       st.LikeCount,
		CommentCount:    st.CommentCount,
		MatchType:       domain.MatchPotential,
		ConfidenceScore: domain.InitialConfidence,
		Status:          domain.AlertNew,
	}
	if !it.PublishedAt.IsZero() {
		p := it.PublishedAt
		a.PublishedAt = &p
	}
	return a
}

func alertPayload(a *domain.MonitoringAlert) map[string]any {
	return map[string]any{
		"alert_id":     a.ID,
		"track_id":     a.TrackID,
		"owner_id":     a.OwnerID,
		"platform":     a.Platform,
		"video_url":    a.VideoURL,
		"channel_name": a.ChannelName,
	}
}

// BuildQuery quotes the first term (the title) and appends the rest:
// ["Neon Nights", "DJ Orbit"] -> `"Neon Nights" DJ Orbit`.
func BuildQuery(terms []string) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(strings.Trim(t, `"`))
		if t == "" {
			continue
		}
		if len(parts) == 0 {
			t = `"` + t + `"`
		}
		parts = append(parts, t)
	}
	return strings.Join(parts, " ")
}

// IsSelfUpload reports whether the channel name contains the artist name
// under Unicode case folding. Substring matching both over- and
// under-filters; there is no better identity signal available.
func IsSelfUpload(channel, artist string) bool {
	artist = strings.TrimSpace(artist)
	if artist == "" {
		return false
	}
	fold := cases.Fold()
	return strings.Contains(fold.String(channel), fold.String(artist))
}
