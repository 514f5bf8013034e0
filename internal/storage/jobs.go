package storage

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/SirClappington/rightsguard/internal/domain"
)

const jobColumns = `id, track_id, owner_id, enabled, frequency, platforms, search_terms,
       last_run_at, next_run_at, claimed_until, status, error_count, total_runs,
       total_matches_found, last_error, created_at, updated_at`

func scanJob(row pgx.Row) (*domain.MonitoringJob, error) {
	var j domain.MonitoringJob
	err := row.Scan(&j.ID, &j.TrackID, &j.OwnerID, &j.Enabled, &j.Frequency, &j.Platforms,
		&j.SearchTerms, &j.LastRunAt, &j.NextRunAt, &j.ClaimedUntil, &j.Status, &j.ErrorCount,
		&j.TotalRuns, &j.TotalMatchesFound, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// UpsertJob returns the job for p.TrackID, creating it when absent. The
// unique constraint on track_id makes concurrent first requests converge on
// a single row.
func (s *Store) UpsertJob(ctx context.Context, p domain.NewJobParams) (*domain.MonitoringJob, error) {
	row := s.db.QueryRow(ctx, `
insert into monitoring_jobs (id, track_id, owner_id, frequency, platforms, search_terms)
values ($1, $2, $3, $4, $5, $6)
on conflict (track_id) do update set track_id = excluded.track_id
returning `+jobColumns,
		uuid.New(), p.TrackID, p.OwnerID, p.Frequency, p.Platforms, p.SearchTerms)
	j, err := scanJob(row)
	if err != nil {
		return nil, errors.Wrap(err, "upsert job")
	}
	return j, nil
}

func (s *Store) GetJobByTrack(ctx context.Context, trackID uuid.UUID) (*domain.MonitoringJob, error) {
	j, err := scanJob(s.db.QueryRow(ctx, `select `+jobColumns+` from monitoring_jobs where track_id = $1`, trackID))
	if err != nil {
		return nil, notFound(err, "get job")
	}
	return j, nil
}

// intervalSQL maps a frequency expression onto its run interval.
func intervalSQL(expr string) string {
	return `case ` + expr + ` when 'hourly' then interval '1 hour' when 'daily' then interval '1 day' else interval '7 days' end`
}

// UpdateJob applies settings. Re-enabling a job also clears an error status
// so the scheduler picks it up again. A frequency change reschedules the next
// run from the last one.
func (s *Store) UpdateJob(ctx context.Context, trackID, ownerID uuid.UUID, u domain.JobUpdate) (*domain.MonitoringJob, error) {
	var platforms, terms any
	if len(u.Platforms) > 0 {
		platforms = u.Platforms
	}
	if len(u.SearchTerms) > 0 {
		terms = u.SearchTerms
	}
	row := s.db.QueryRow(ctx, `
update monitoring_jobs
   set enabled      = coalesce($3, enabled),
       frequency    = coalesce($4, frequency),
       next_run_at  = case when $4::text is not null and $4::text <> frequency and last_run_at is not null
                           then last_run_at + `+intervalSQL("$4::text")+`
                           else next_run_at end,
       platforms    = coalesce($5::text[], platforms),
       search_terms = coalesce($6::text[], search_terms),
       status       = case when $3 is true then 'active' else status end,
       error_count  = case when $3 is true then 0 else error_count end,
       updated_at   = now()
 where track_id = $1 and owner_id = $2
returning `+jobColumns, trackID, ownerID, u.Enabled, u.Frequency, platforms, terms)
	j, err := scanJob(row)
	if err != nil {
		return nil, notFound(err, "update job")
	}
	return j, nil
}

// ClaimDueJobs atomically selects and claims up to limit due jobs. A claimed
// job is invisible to other claimers until its claim is released or expires,
// so overlapping ticks never run one job twice.
func (s *Store) ClaimDueJobs(ctx context.Context, now time.Time, limit int, ttl time.Duration) ([]domain.MonitoringJob, error) {
	rows, err := s.db.Query(ctx, `
update monitoring_jobs
   set claimed_until = $3, updated_at = now()
 where id in (
     select id from monitoring_jobs
      where enabled
        and status <> 'error'
        and (next_run_at is null or next_run_at <= $1)
        and (claimed_until is null or claimed_until < $1)
      order by next_run_at asc nulls first
      limit $2
      for update skip locked)
returning `+jobColumns, now, limit, now.Add(ttl))
	if err != nil {
		return nil, errors.Wrap(err, "claim due jobs")
	}
	defer rows.Close()

	var out []domain.MonitoringJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan job")
		}
		out = append(out, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "claim due jobs")
	}
	// update ... returning does not preserve the subquery order
	sort.SliceStable(out, func(a, b int) bool {
		na, nb := out[a].NextRunAt, out[b].NextRunAt
		switch {
		case na == nil:
			return nb != nil
		case nb == nil:
			return false
		default:
			return na.Before(*nb)
		}
	})
	return out, nil
}

// ClaimJob claims one job regardless of its due time. Returns ErrConflict
// when another run holds the claim.
func (s *Store) ClaimJob(ctx context.Context, jobID uuid.UUID, now time.Time, ttl time.Duration) (*domain.MonitoringJob, error) {
	j, err := scanJob(s.db.QueryRow(ctx, `
update monitoring_jobs
   set claimed_until = $3, updated_at = now()
 where id = $1 and (claimed_until is null or claimed_until < $2)
returning `+jobColumns, jobID, now, now.Add(ttl)))
	if err == nil {
		return j, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(err, "claim job")
	}
	ok, err := exists(ctx, s.db, "monitoring_jobs", jobID)
	if err != nil {
		return nil, errors.Wrap(err, "claim job")
	}
	if !ok {
		return nil, errors.Wrap(domain.ErrNotFound, "claim job")
	}
	return nil, errors.Wrap(domain.ErrConflict, "job already running")
}

// CompleteRun records a successful pass: timestamps advance, counters grow,
// the failure streak resets and the claim is released.
func (s *Store) CompleteRun(ctx context.Context, jobID uuid.UUID, at time.Time, newMatches int) (*domain.MonitoringJob, error) {
	row := s.db.QueryRow(ctx, `
update monitoring_jobs
   set last_run_at         = $2,
       next_run_at         = $2 + `+intervalSQL("frequency")+`,
       total_runs          = total_runs + 1,
       total_matches_found = total_matches_found + $3,
       error_count         = 0,
       status              = 'active',
       last_error          = null,
       claimed_until       = null,
       updated_at          = now()
 where id = $1
returning `+jobColumns, jobID, at, newMatches)
	j, err := scanJob(row)
	if err != nil {
		return nil, notFound(err, "complete run")
	}
	return j, nil
}

// FailRun records a failed pass. Alerts stored before the failure still
// count as matches. The job flips to error status once the failure streak
// reaches domain.MaxConsecutiveFailures.
func (s *Store) FailRun(ctx context.Context, jobID uuid.UUID, msg string, newMatches int) (*domain.MonitoringJob, error) {
	row := s.db.QueryRow(ctx, `
update monitoring_jobs
   set error_count         = error_count + 1,
       last_error          = $2,
       status              = case when error_count + 1 >= $3 then 'error' else status end,
       total_matches_found = total_matches_found + $4,
       claimed_until       = null,
       updated_at          = now()
 where id = $1
returning `+jobColumns, jobID, msg, domain.MaxConsecutiveFailures, newMatches)
	j, err := scanJob(row)
	if err != nil {
		return nil, notFound(err, "fail run")
	}
	return j, nil
}
