package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LicenseStatus string

const (
	LicenseDraft LicenseStatus = "draft"
	LicenseSent  LicenseStatus = "sent"
	LicenseVoid  LicenseStatus = "void"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

type Exclusivity string

const (
	NonExclusive Exclusivity = "non_exclusive"
	Exclusive    Exclusivity = "exclusive"
)

type Licensee struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Platform string `json:"platform,omitempty"`
	Channel  string `json:"channel,omitempty"`
}

type Terms struct {
	Territory   string
	Duration    string
	Exclusivity Exclusivity
}

type License struct {
	ID                 uuid.UUID
	OwnerID            uuid.UUID
	TrackID            uuid.UUID
	AlertID            *uuid.UUID
	Licensee           Licensee
	Fee                decimal.Decimal
	Currency           string
	Terms              Terms
	PDFRef             *string
	Status             LicenseStatus
	PaymentStatus      PaymentStatus
	ExternalInvoiceRef *string
	InvoiceURL         *string
	ExternalPaymentRef *string
	SentAt             *time.Time
	PaidAt             *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Voidable reports whether manual cancellation is allowed. Paid licenses are
// immutable.
func (l *License) Voidable() bool {
	return l.Status != LicenseVoid && l.PaymentStatus != PaymentPaid
}

const RevenueSourceLicense = "license"

// RevenueEvent is an append-only ledger row, one per paid license.
type RevenueEvent struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	TrackID     uuid.UUID
	LicenseID   uuid.UUID
	Source      string
	Amount      decimal.Decimal
	Currency    string
	Date        time.Time
	Description string
}
