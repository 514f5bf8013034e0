package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// AddQuotaUsage adds search API units to the counter for the UTC day of at.
func (s *Store) AddQuotaUsage(ctx context.Context, at time.Time, units int64) error {
	if units <= 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `
insert into search_quota_usage (day, units) values ($1::date, $2)
on conflict (day) do update set units = search_quota_usage.units + excluded.units`,
		at.UTC().Format(time.DateOnly), units)
	return errors.Wrap(err, "add quota usage")
}

func (s *Store) QuotaUsage(ctx context.Context, at time.Time) (int64, error) {
	var units int64
	err := s.db.QueryRow(ctx, `select units from search_quota_usage where day = $1::date`,
		at.UTC().Format(time.DateOnly)).Scan(&units)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return units, errors.Wrap(err, "get quota usage")
}
