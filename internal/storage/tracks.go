package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/SirClappington/rightsguard/internal/domain"
)

func (s *Store) GetTrack(ctx context.Context, id uuid.UUID) (*domain.Track, error) {
	var t domain.Track
	err := s.db.QueryRow(ctx, `
select id, owner_id, title, artist_name, total_revenue
  from tracks where id = $1`, id).
		Scan(&t.ID, &t.OwnerID, &t.Title, &t.ArtistName, &t.TotalRevenue)
	if err != nil {
		return nil, notFound(err, "get track")
	}
	return &t, nil
}

func (s *Store) GetProfile(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	var p domain.Profile
	err := s.db.QueryRow(ctx, `select id, display_name, email from profiles where id = $1`, id).
		Scan(&p.ID, &p.DisplayName, &p.Email)
	if err != nil {
		return nil, notFound(err, "get profile")
	}
	return &p, nil
}
