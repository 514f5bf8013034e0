package licensing

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/SirClappington/rightsguard/internal/domain"
)

const (
	DefaultTerritory = "Worldwide"
	DefaultDuration  = "12 months"
	DefaultCurrency  = "USD"
)

type IssueRequest struct {
	OwnerID          uuid.UUID
	TrackID          uuid.UUID
	AlertID          *uuid.UUID
	Licensee         domain.Licensee
	Fee              decimal.Decimal
	Currency         string
	Terms            domain.Terms
	SendNotification bool
}

// normalize validates the request and fills default terms. It runs before
// any store or external call.
func (r IssueRequest) normalize() (IssueRequest, error) {
	if r.OwnerID == uuid.Nil || r.TrackID == uuid.Nil {
		return r, fmt.Errorf("%w: owner and track are required", domain.ErrInvalidInput)
	}

	r.Licensee.Name = strings.TrimSpace(r.Licensee.Name)
	r.Licensee.Email = strings.TrimSpace(r.Licensee.Email)
	r.Licensee.Platform = strings.TrimSpace(r.Licensee.Platform)
	r.Licensee.Channel = strings.TrimSpace(r.Licensee.Channel)
	if r.Licensee.Name == "" {
		return r, fmt.Errorf("%w: licensee name is required", domain.ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(r.Licensee.Email)
	if err != nil {
		return r, fmt.Errorf("%w: invalid licensee email", domain.ErrInvalidInput)
	}
	r.Licensee.Email = addr.Address

	code := strings.ToUpper(strings.TrimSpace(r.Currency))
	if code == "" {
		code = DefaultCurrency
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return r, fmt.Errorf("%w: unknown currency %q", domain.ErrInvalidInput, r.Currency)
	}
	r.Currency = unit.String()

	if !r.Fee.IsPositive() {
		return r, fmt.Errorf("%w: fee must be greater than zero", domain.ErrInvalidInput)
	}
	scale, _ := currency.Standard.Rounding(unit)
	if !r.Fee.Equal(r.Fee.Round(int32(scale))) {
		return r, fmt.Errorf("%w: fee has more than %d decimal places for %s", domain.ErrInvalidInput, scale, r.Currency)
	}

	r.Terms.Territory = strings.TrimSpace(r.Terms.Territory)
	if r.Terms.Territory == "" {
		r.Terms.Territory = DefaultTerritory
	}
	r.Terms.Duration = strings.TrimSpace(r.Terms.Duration)
	if r.Terms.Duration == "" {
		r.Terms.Duration = DefaultDuration
	}
	switch r.Terms.Exclusivity {
	case "":
		r.Terms.Exclusivity = domain.NonExclusive
	case domain.NonExclusive, domain.Exclusive:
	default:
		return r, fmt.Errorf("%w: unknown exclusivity %q", domain.ErrInvalidInput, r.Terms.Exclusivity)
	}
	return r, nil
}
