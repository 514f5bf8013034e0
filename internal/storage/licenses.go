package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/SirClappington/rightsguard/internal/domain"
)

const licenseColumns = `id, owner_id, track_id, alert_id, licensee_name, licensee_email,
       licensee_platform, licensee_channel, license_fee, currency, territory, duration,
       exclusivity, pdf_ref, status, payment_status, external_invoice_ref, invoice_url,
       external_payment_ref, sent_at, paid_at, created_at, updated_at`

func scanLicense(row pgx.Row) (*domain.License, error) {
	var l domain.License
	err := row.Scan(&l.ID, &l.OwnerID, &l.TrackID, &l.AlertID, &l.Licensee.Name, &l.Licensee.Email,
		&l.Licensee.Platform, &l.Licensee.Channel, &l.Fee, &l.Currency, &l.Terms.Territory,
		&l.Terms.Duration, &l.Terms.Exclusivity, &l.PDFRef, &l.Status, &l.PaymentStatus,
		&l.ExternalInvoiceRef, &l.InvoiceURL, &l.ExternalPaymentRef, &l.SentAt, &l.PaidAt,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

const uniqueViolation = "23505"

// InsertLicense stores a new license. A second license for the same source
// alert is rejected with ErrConflict.
func (s *Store) InsertLicense(ctx context.Context, l *domain.License) error {
	err := s.db.QueryRow(ctx, `
insert into licenses (
    id, owner_id, track_id, alert_id, licensee_name, licensee_email, licensee_platform,
    licensee_channel, license_fee, currency, territory, duration, exclusivity, pdf_ref,
    status, payment_status, external_invoice_ref, invoice_url, sent_at)
values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
returning created_at, updated_at`,
		l.ID, l.OwnerID, l.TrackID, l.AlertID, l.Licensee.Name, l.Licensee.Email, l.Licensee.Platform,
		l.Licensee.Channel, l.Fee, l.Currency, l.Terms.Territory, l.Terms.Duration, l.Terms.Exclusivity,
		l.PDFRef, l.Status, l.PaymentStatus, l.ExternalInvoiceRef, l.InvoiceURL, l.SentAt,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "licenses_alert_uniq" {
		return errors.Wrap(domain.ErrConflict, "alert already has a license")
	}
	return errors.Wrap(err, "insert license")
}

func (s *Store) GetLicense(ctx context.Context, id uuid.UUID) (*domain.License, error) {
	l, err := scanLicense(s.db.QueryRow(ctx, `select `+licenseColumns+` from licenses where id = $1`, id))
	if err != nil {
		return nil, notFound(err, "get license")
	}
	return l, nil
}

func (s *Store) ListLicenses(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.License, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
select `+licenseColumns+` from licenses
 where owner_id = $1
 order by created_at desc
 limit $2 offset $3`, ownerID, limit, max(offset, 0))
	if err != nil {
		return nil, errors.Wrap(err, "list licenses")
	}
	defer rows.Close()

	out := []domain.License{}
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan license")
		}
		out = append(out, *l)
	}
	return out, errors.Wrap(rows.Err(), "list licenses")
}

// MarkLicenseSent performs the draft->sent edge. Returns false when the
// license was no longer a draft.
func (s *Store) MarkLicenseSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
update licenses set status = 'sent', sent_at = coalesce(sent_at, $2), updated_at = now()
 where id = $1 and status = 'draft'`, id, at)
	if err != nil {
		return false, errors.Wrap(err, "mark license sent")
	}
	return tag.RowsAffected() == 1, nil
}

// VoidLicense cancels a license. Paid and already-void licenses are
// rejected with ErrConflict.
func (s *Store) VoidLicense(ctx context.Context, id, ownerID uuid.UUID) (*domain.License, error) {
	l, err := scanLicense(s.db.QueryRow(ctx, `
update licenses set status = 'void', updated_at = now()
 where id = $1 and owner_id = $2 and status <> 'void' and payment_status <> 'paid'
returning `+licenseColumns, id, ownerID))
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(err, "void license")
	}
	cur, err := s.GetLicense(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.OwnerID != ownerID {
		return nil, errors.Wrap(domain.ErrNotFound, "void license")
	}
	return nil, errors.Wrapf(domain.ErrConflict, "license is %s/%s", cur.Status, cur.PaymentStatus)
}
