package licensing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SirClappington/rightsguard/internal/domain"
)

func (i *Issuer) Get(ctx context.Context, id, ownerID uuid.UUID) (*domain.License, error) {
	l, err := i.store.GetLicense(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.OwnerID != ownerID {
		return nil, fmt.Errorf("license %s: %w", id, domain.ErrNotFound)
	}
	return l, nil
}

func (i *Issuer) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.License, error) {
	return i.store.ListLicenses(ctx, ownerID, limit, offset)
}

// Void cancels a draft or sent license. Paid licenses are immutable and
// return domain.ErrConflict, as does voiding twice.
func (i *Issuer) Void(ctx context.Context, id, ownerID uuid.UUID) (*domain.License, error) {
	l, err := i.store.VoidLicense(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	i.logger.Info("License voided", zap.String("license_id", id.String()))
	return l, nil
}
