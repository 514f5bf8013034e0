package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SirClappington/rightsguard/internal/domain"
)

// CreateJob registers a track for monitoring. Calling it again for the same
// track returns the existing job unchanged.
func (s *Scheduler) CreateJob(ctx context.Context, p domain.NewJobParams) (*domain.MonitoringJob, error) {
	if p.Frequency != "" && !p.Frequency.Valid() {
		return nil, fmt.Errorf("%w: unknown frequency %q", domain.ErrInvalidInput, p.Frequency)
	}
	if err := validatePlatforms(p.Platforms); err != nil {
		return nil, err
	}
	track, err := s.store.GetTrack(ctx, p.TrackID)
	if err != nil {
		return nil, err
	}
	if track.OwnerID != p.OwnerID {
		return nil, fmt.Errorf("track %s: %w", p.TrackID, domain.ErrNotFound)
	}
	p.SearchTerms = cleanTerms(p.SearchTerms)
	job, err := s.store.UpsertJob(ctx, p.WithDefaults(track))
	if err != nil {
		return nil, err
	}
	s.logger.Info("Monitoring job registered",
		zap.String("job_id", job.ID.String()),
		zap.String("track_id", job.TrackID.String()),
		zap.String("frequency", string(job.Frequency)))
	return job, nil
}

// GetJob returns the job registered for a track. Jobs of other owners are
// reported as missing.
func (s *Scheduler) GetJob(ctx context.Context, trackID, ownerID uuid.UUID) (*domain.MonitoringJob, error) {
	job, err := s.store.GetJobByTrack(ctx, trackID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, fmt.Errorf("job for track %s: %w", trackID, domain.ErrNotFound)
	}
	return job, nil
}

// UpdateJob changes a job's settings. Re-enabling a parked job returns it to
// the active rotation.
func (s *Scheduler) UpdateJob(ctx context.Context, trackID, ownerID uuid.UUID, u domain.JobUpdate) (*domain.MonitoringJob, error) {
	if u.Frequency != nil && !u.Frequency.Valid() {
		return nil, fmt.Errorf("%w: unknown frequency %q", domain.ErrInvalidInput, *u.Frequency)
	}
	if err := validatePlatforms(u.Platforms); err != nil {
		return nil, err
	}
	u.SearchTerms = cleanTerms(u.SearchTerms)
	return s.store.UpdateJob(ctx, trackID, ownerID, u)
}

func validatePlatforms(platforms []string) error {
	for _, p := range platforms {
		if p != domain.PlatformYouTube {
			return fmt.Errorf("%w: unsupported platform %q", domain.ErrInvalidInput, p)
		}
	}
	return nil
}

func cleanTerms(terms []string) []string {
	out := terms[:0:0]
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
