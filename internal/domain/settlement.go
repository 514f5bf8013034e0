package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentUpdate is what a billing event tells us about one license.
type PaymentUpdate struct {
	LicenseID  uuid.UUID
	InvoiceRef string
	InvoiceURL string
	PaymentRef string
	At         time.Time
}

// Settlement reports the effect of applying a payment update. Applied is
// false for replays and out-of-order events that would move state backwards.
type Settlement struct {
	Applied bool
	License *License
	Revenue *RevenueEvent
}
