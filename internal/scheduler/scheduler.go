package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SirClappington/rightsguard/internal/domain"
	"github.com/SirClappington/rightsguard/internal/monitor"
)

type Store interface {
	GetTrack(ctx context.Context, id uuid.UUID) (*domain.Track, error)
	UpsertJob(ctx context.Context, p domain.NewJobParams) (*domain.MonitoringJob, error)
	GetJobByTrack(ctx context.Context, trackID uuid.UUID) (*domain.MonitoringJob, error)
	UpdateJob(ctx context.Context, trackID, ownerID uuid.UUID, u domain.JobUpdate) (*domain.MonitoringJob, error)
	ClaimDueJobs(ctx context.Context, now time.Time, limit int, ttl time.Duration) ([]domain.MonitoringJob, error)
	ClaimJob(ctx context.Context, jobID uuid.UUID, now time.Time, ttl time.Duration) (*domain.MonitoringJob, error)
	FailRun(ctx context.Context, jobID uuid.UUID, msg string, newMatches int) (*domain.MonitoringJob, error)
	AddQuotaUsage(ctx context.Context, at time.Time, units int64) error
}

type TrackMonitor interface {
	Monitor(ctx context.Context, trackID, ownerID uuid.UUID) (monitor.Result, error)
}

// BatchResult summarizes one RunDueJobs pass. Err aggregates the per-job
// failures; it never aborts the batch.
type BatchResult struct {
	Claimed    int
	Succeeded  int
	Failed     int
	NewAlerts  int
	QuotaUnits int64
	Err        error
}

type Scheduler struct {
	store       Store
	monitor     TrackMonitor
	logger      *zap.Logger
	concurrency int
	claimTTL    time.Duration
	now         func() time.Time
}

type Options struct {
	Concurrency int
	ClaimTTL    time.Duration
}

func New(store Store, m TrackMonitor, opts Options, logger *zap.Logger) *Scheduler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = 10 * time.Minute
	}
	return &Scheduler{
		store:       store,
		monitor:     m,
		logger:      logger.Named("scheduler"),
		concurrency: opts.Concurrency,
		claimTTL:    opts.ClaimTTL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RunDueJobs claims up to batchSize due jobs (never-run first, then oldest
// next_run_at) and monitors them on a bounded pool. Distinct tracks run in
// parallel; a claimed job is never handed to a second runner.
func (s *Scheduler) RunDueJobs(ctx context.Context, batchSize int) (BatchResult, error) {
	now := s.now()
	jobs, err := s.store.ClaimDueJobs(ctx, now, batchSize, s.claimTTL)
	if err != nil {
		return BatchResult{}, fmt.Errorf("claim due jobs: %w", err)
	}
	res := BatchResult{Claimed: len(jobs)}
	if len(jobs) == 0 {
		return res, nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.concurrency)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			out, err := s.run(ctx, &job)
			mu.Lock()
			defer mu.Unlock()
			res.QuotaUnits += out.QuotaUnits
			if err != nil {
				res.Failed++
				res.Err = multierr.Append(res.Err, err)
				return nil
			}
			res.Succeeded++
			res.NewAlerts += out.NewAlerts
			return nil
		})
	}
	_ = g.Wait()

	s.recordQuota(ctx, now, res.QuotaUnits)
	s.logger.Info("Due jobs processed",
		zap.Int("claimed", res.Claimed),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("new_alerts", res.NewAlerts),
		zap.Int64("quota_units", res.QuotaUnits))
	return res, nil
}

// RunForTrack runs an on-demand scan, bypassing the due-time check. The job
// is created if the track has none yet. Returns domain.ErrConflict while a
// scheduled run of the same track is in flight.
func (s *Scheduler) RunForTrack(ctx context.Context, trackID, ownerID uuid.UUID) (monitor.Result, error) {
	track, err := s.store.GetTrack(ctx, trackID)
	if err != nil {
		return monitor.Result{}, err
	}
	if track.OwnerID != ownerID {
		return monitor.Result{}, fmt.Errorf("track %s: %w", trackID, domain.ErrNotFound)
	}
	job, err := s.store.UpsertJob(ctx, domain.NewJobParams{TrackID: trackID, OwnerID: ownerID}.WithDefaults(track))
	if err != nil {
		return monitor.Result{}, err
	}
	now := s.now()
	job, err = s.store.ClaimJob(ctx, job.ID, now, s.claimTTL)
	if err != nil {
		return monitor.Result{}, err
	}

	out, err := s.run(ctx, job)
	s.recordQuota(ctx, now, out.QuotaUnits)
	return out, err
}

// run monitors one claimed job. When the monitor fails before it could
// record the failure itself, the job's failure streak is updated here so the
// claim is released and the error still counts.
func (s *Scheduler) run(ctx context.Context, job *domain.MonitoringJob) (monitor.Result, error) {
	out, err := s.monitor.Monitor(ctx, job.TrackID, job.OwnerID)
	if err == nil {
		return out, nil
	}
	s.logger.Error("Monitoring job failed",
		zap.String("job_id", job.ID.String()),
		zap.String("track_id", job.TrackID.String()),
		zap.Error(err))
	if out.Job == nil {
		if _, ferr := s.store.FailRun(ctx, job.ID, err.Error(), out.NewAlerts); ferr != nil {
			s.logger.Error("Failed to record job failure", zap.String("job_id", job.ID.String()), zap.Error(ferr))
		}
	}
	return out, fmt.Errorf("job %s: %w", job.ID, err)
}

func (s *Scheduler) recordQuota(ctx context.Context, at time.Time, units int64) {
	if units <= 0 {
		return
	}
	if err := s.store.AddQuotaUsage(ctx, at, units); err != nil {
		s.logger.Warn("Failed to record search quota usage", zap.Int64("units", units), zap.Error(err))
	}
}
