package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/SirClappington/rightsguard/internal/domain"
	"github.com/SirClappington/rightsguard/internal/queue"
)

type Lease interface {
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

type ScanQueue interface {
	MoveDue(ctx context.Context, now int64, batch int64) error
	Pop(ctx context.Context, n int) ([]queue.ScanRequest, error)
}

// Runner drives the scheduler from a ticker. Only the instance holding the
// lease works a tick; job claims keep the work exactly-once even if leases
// overlap.
type Runner struct {
	sched     *Scheduler
	lease     Lease
	scans     ScanQueue
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

const defaultInterval = 5 * time.Minute

func NewRunner(s *Scheduler, lease Lease, scans ScanQueue, interval time.Duration, batchSize int, logger *zap.Logger) *Runner {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Runner{
		sched:     s,
		lease:     lease,
		scans:     scans,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger.Named("runner"),
	}
}

func (r *Runner) Run(ctx context.Context) error {
	tick := time.NewTicker(r.interval)
	defer tick.Stop()

	r.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			if err := r.lease.Release(context.WithoutCancel(ctx)); err != nil {
				r.logger.Warn("Failed to release scheduler lease", zap.Error(err))
			}
			return nil
		case <-tick.C:
			r.Tick(ctx)
		}
	}
}

// Tick runs one scheduling round: pending on-demand scans first, then the
// due batch.
func (r *Runner) Tick(ctx context.Context) {
	// a lease slightly longer than the interval lets the holder renew it
	// before any other instance sees it free
	ok, err := r.lease.Acquire(ctx, r.interval+r.interval/2)
	if err != nil {
		r.logger.Error("Lease error", zap.Error(err))
		return
	}
	if !ok {
		r.logger.Debug("Another scheduler holds the lease")
		return
	}

	r.drainScans(ctx)

	if _, err := r.sched.RunDueJobs(ctx, r.batchSize); err != nil {
		r.logger.Error("Scheduling round failed", zap.Error(err))
	}
}

func (r *Runner) drainScans(ctx context.Context) {
	if err := r.scans.MoveDue(ctx, time.Now().UTC().Unix(), int64(r.batchSize)); err != nil {
		r.logger.Warn("Failed to promote delayed scans", zap.Error(err))
	}
	reqs, err := r.scans.Pop(ctx, r.batchSize)
	if err != nil {
		r.logger.Warn("Failed to read scan requests", zap.Error(err))
		return
	}
	for _, req := range reqs {
		_, err := r.sched.RunForTrack(ctx, req.TrackID, req.OwnerID)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrConflict):
			r.logger.Info("Scan request skipped, track already being scanned",
				zap.String("track_id", req.TrackID.String()))
		default:
			r.logger.Warn("On-demand scan failed",
				zap.String("track_id", req.TrackID.String()), zap.Error(err))
		}
	}
}
