package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/SirClappington/rightsguard/internal/domain"
)

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// SettlePaid moves a license to paid and books its revenue in one
// transaction. The payment update is conditional on the license not being
// paid yet and the ledger insert is guarded by the unique license_id, so
// replays and concurrent deliveries apply at most once.
func (s *Store) SettlePaid(ctx context.Context, u domain.PaymentUpdate) (domain.Settlement, error) {
	var out domain.Settlement
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		l, err := scanLicense(tx.QueryRow(ctx, `
update licenses
   set payment_status       = 'paid',
       paid_at              = $2,
       status               = case when status = 'draft' then 'sent' else status end,
       sent_at              = case when status = 'draft' then coalesce(sent_at, $2) else sent_at end,
       external_payment_ref = coalesce($3, external_payment_ref),
       external_invoice_ref = coalesce(external_invoice_ref, $4),
       invoice_url          = coalesce(invoice_url, $5),
       updated_at           = now()
 where id = $1 and payment_status <> 'paid'
returning `+licenseColumns,
			u.LicenseID, u.At, nullable(u.PaymentRef), nullable(u.InvoiceRef), nullable(u.InvoiceURL)))
		if errors.Is(err, pgx.ErrNoRows) {
			return s.missOrNoop(ctx, tx, u.LicenseID, &out)
		}
		if err != nil {
			return errors.Wrap(err, "mark license paid")
		}
		out.Applied = true
		out.License = l

		rev := domain.RevenueEvent{
			ID:          uuid.New(),
			OwnerID:     l.OwnerID,
			TrackID:     l.TrackID,
			LicenseID:   l.ID,
			Source:      domain.RevenueSourceLicense,
			Amount:      l.Fee,
			Currency:    l.Currency,
			Date:        u.At,
			Description: fmt.Sprintf("License %s (%s)", l.ID, l.Licensee.Name),
		}
		tag, err := tx.Exec(ctx, `
insert into revenue_events (id, owner_id, track_id, license_id, source, amount, currency, date, description)
values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
on conflict (license_id) do nothing`,
			rev.ID, rev.OwnerID, rev.TrackID, rev.LicenseID, rev.Source, rev.Amount, rev.Currency, rev.Date, rev.Description)
		if err != nil {
			return errors.Wrap(err, "insert revenue event")
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		out.Revenue = &rev
		_, err = tx.Exec(ctx, `update tracks set total_revenue = total_revenue + $2 where id = $1`, rev.TrackID, rev.Amount)
		return errors.Wrap(err, "increment track revenue")
	})
	if err != nil {
		return domain.Settlement{}, err
	}
	return out, nil
}

// SettleFailed records a failed payment unless the license is already paid.
func (s *Store) SettleFailed(ctx context.Context, u domain.PaymentUpdate) (domain.Settlement, error) {
	return s.conditional(ctx, u.LicenseID, `
update licenses
   set payment_status       = 'failed',
       external_payment_ref = coalesce($2, external_payment_ref),
       updated_at           = now()
 where id = $1 and payment_status = 'pending'
returning `+licenseColumns, u.LicenseID, nullable(u.PaymentRef))
}

// RecordInvoiceFinalized stores the invoice reference and hosted link if
// they are not known yet.
func (s *Store) RecordInvoiceFinalized(ctx context.Context, u domain.PaymentUpdate) (domain.Settlement, error) {
	return s.conditional(ctx, u.LicenseID, `
update licenses
   set external_invoice_ref = coalesce(external_invoice_ref, $2),
       invoice_url          = coalesce(invoice_url, $3),
       updated_at           = now()
 where id = $1
   and ((external_invoice_ref is null and $2::text is not null)
     or (invoice_url is null and $3::text is not null))
returning `+licenseColumns, u.LicenseID, nullable(u.InvoiceRef), nullable(u.InvoiceURL))
}

// RecordInvoiceSent does the finalized bookkeeping and moves a draft to sent.
func (s *Store) RecordInvoiceSent(ctx context.Context, u domain.PaymentUpdate) (domain.Settlement, error) {
	return s.conditional(ctx, u.LicenseID, `
update licenses
   set external_invoice_ref = coalesce(external_invoice_ref, $2),
       invoice_url          = coalesce(invoice_url, $3),
       status               = case when status = 'draft' then 'sent' else status end,
       sent_at              = coalesce(sent_at, $4),
       updated_at           = now()
 where id = $1
   and (status = 'draft'
     or (external_invoice_ref is null and $2::text is not null)
     or (invoice_url is null and $3::text is not null))
returning `+licenseColumns, u.LicenseID, nullable(u.InvoiceRef), nullable(u.InvoiceURL), u.At)
}

func (s *Store) conditional(ctx context.Context, id uuid.UUID, sql string, args ...any) (domain.Settlement, error) {
	var out domain.Settlement
	l, err := scanLicense(s.db.QueryRow(ctx, sql, args...))
	switch {
	case err == nil:
		out.Applied = true
		out.License = l
		return out, nil
	case errors.Is(err, pgx.ErrNoRows):
		if err := s.missOrNoop(ctx, s.db, id, &out); err != nil {
			return domain.Settlement{}, err
		}
		return out, nil
	default:
		return domain.Settlement{}, errors.Wrap(err, "update license")
	}
}

// missOrNoop distinguishes an unknown license from an update whose guard
// rejected it. The latter is a successful no-op carrying the current row.
func (s *Store) missOrNoop(ctx context.Context, q querier, id uuid.UUID, out *domain.Settlement) error {
	l, err := scanLicense(q.QueryRow(ctx, `select `+licenseColumns+` from licenses where id = $1`, id))
	if err != nil {
		return notFound(err, "load license")
	}
	out.License = l
	return nil
}

// RevenueForLicense returns the ledger row for a license, if any.
func (s *Store) RevenueForLicense(ctx context.Context, licenseID uuid.UUID) (*domain.RevenueEvent, error) {
	var r domain.RevenueEvent
	err := s.db.QueryRow(ctx, `
select id, owner_id, track_id, license_id, source, amount, currency, date, description
  from revenue_events where license_id = $1`, licenseID).
		Scan(&r.ID, &r.OwnerID, &r.TrackID, &r.LicenseID, &r.Source, &r.Amount, &r.Currency, &r.Date, &r.Description)
	if err != nil {
		return nil, notFound(err, "get revenue event")
	}
	return &r, nil
}
