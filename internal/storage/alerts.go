package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/SirClappington/rightsguard/internal/domain"
)

const alertColumns = `id, track_id, job_id, owner_id, platform, external_video_id, video_url, title,
       channel_name, channel_url, thumbnail_url, view_count, like_count, comment_count,
       published_at, match_type, confidence_score, status, reviewed_at, reviewed_by, notes,
       created_at, updated_at`

func scanAlert(row pgx.Row) (*domain.MonitoringAlert, error) {
	var a domain.MonitoringAlert
	err := row.Scan(&a.ID, &a.TrackID, &a.JobID, &a.OwnerID, &a.Platform, &a.ExternalVideoID,
		&a.VideoURL, &a.Title, &a.ChannelName, &a.ChannelURL, &a.ThumbnailURL, &a.ViewCount,
		&a.LikeCount, &a.CommentCount, &a.PublishedAt, &a.MatchType, &a.ConfidenceScore,
		&a.Status, &a.ReviewedAt, &a.ReviewedBy, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// InsertAlert stores a new alert. Re-discovery of the same (track, url) pair
// returns domain.ErrAlreadyKnown and leaves the existing row untouched.
func (s *Store) InsertAlert(ctx context.Context, a *domain.MonitoringAlert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := s.db.QueryRow(ctx, `
insert into monitoring_alerts (
    id, track_id, job_id, owner_id, platform, external_video_id, video_url, title,
    channel_name, channel_url, thumbnail_url, view_count, like_count, comment_count,
    published_at, match_type, confidence_score, status)
values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
on conflict (track_id, video_url) do nothing
returning created_at, updated_at`,
		a.ID, a.TrackID, a.JobID, a.OwnerID, a.Platform, a.ExternalVideoID, a.VideoURL, a.Title,
		a.ChannelName, a.ChannelURL, a.ThumbnailURL, a.ViewCount, a.LikeCount, a.CommentCount,
		a.PublishedAt, a.MatchType, a.ConfidenceScore, a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrAlreadyKnown
	}
	return errors.Wrap(err, "insert alert")
}

func (s *Store) GetAlert(ctx context.Context, id uuid.UUID) (*domain.MonitoringAlert, error) {
	a, err := scanAlert(s.db.QueryRow(ctx, `select `+alertColumns+` from monitoring_alerts where id = $1`, id))
	if err != nil {
		return nil, notFound(err, "get alert")
	}
	return a, nil
}

func (s *Store) ListAlerts(ctx context.Context, trackID, ownerID uuid.UUID, f domain.AlertFilter) ([]domain.MonitoringAlert, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var status any
	if f.Status != "" {
		status = string(f.Status)
	}
	rows, err := s.db.Query(ctx, `
select `+alertColumns+`
  from monitoring_alerts
 where track_id = $1 and owner_id = $2 and ($3::text is null or status = $3)
 order by created_at desc
 limit $4 offset $5`, trackID, ownerID, status, limit, max(f.Offset, 0))
	if err != nil {
		return nil, errors.Wrap(err, "list alerts")
	}
	defer rows.Close()

	out := []domain.MonitoringAlert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan alert")
		}
		out = append(out, *a)
	}
	return out, errors.Wrap(rows.Err(), "list alerts")
}

// ReviewAlert records a human decision. Licensed alerts are terminal and
// return ErrConflict.
func (s *Store) ReviewAlert(ctx context.Context, alertID, ownerID uuid.UUID, status domain.AlertStatus, reviewedBy, notes string, at time.Time) (*domain.MonitoringAlert, error) {
	var n any
	if notes != "" {
		n = notes
	}
	a, err := scanAlert(s.db.QueryRow(ctx, `
update monitoring_alerts
   set status = $3, reviewed_by = $4, reviewed_at = $5, notes = coalesce($6, notes), updated_at = now()
 where id = $1 and owner_id = $2 and status <> 'licensed'
returning `+alertColumns, alertID, ownerID, status, reviewedBy, at, n))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(err, "review alert")
	}
	return nil, s.alertMissOrConflict(ctx, alertID, ownerID, "review alert")
}

// SetAlertConfidence is the hook for the external audio matcher. An empty
// match type leaves the current one in place.
func (s *Store) SetAlertConfidence(ctx context.Context, alertID, ownerID uuid.UUID, score float64, mt domain.MatchType) (*domain.MonitoringAlert, error) {
	var match any
	if mt != "" {
		match = string(mt)
	}
	a, err := scanAlert(s.db.QueryRow(ctx, `
update monitoring_alerts
   set confidence_score = $3, match_type = coalesce($4::text, match_type), updated_at = now()
 where id = $1 and owner_id = $2
returning `+alertColumns, alertID, ownerID, score, match))
	if err != nil {
		return nil, notFound(err, "set alert confidence")
	}
	return a, nil
}

// MarkAlertLicensed moves an alert to its terminal licensed status.
func (s *Store) MarkAlertLicensed(ctx context.Context, alertID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
update monitoring_alerts set status = 'licensed', updated_at = now()
 where id = $1 and status <> 'licensed'`, alertID)
	return errors.Wrap(err, "mark alert licensed")
}

func (s *Store) alertMissOrConflict(ctx context.Context, alertID, ownerID uuid.UUID, what string) error {
	var owner uuid.UUID
	err := s.db.QueryRow(ctx, `select owner_id from monitoring_alerts where id = $1`, alertID).Scan(&owner)
	if err != nil || owner != ownerID {
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return errors.Wrap(err, what)
		}
		return errors.Wrap(domain.ErrNotFound, what)
	}
	return errors.Wrap(domain.ErrConflict, "alert already licensed")
}
