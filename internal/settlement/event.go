package settlement

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/SirClappington/rightsguard/internal/domain"
)

// Kind is the closed set of billing events that affect a license.
type Kind int

const (
	Unrecognized Kind = iota
	Paid
	PaymentFailed
	Finalized
	Sent
)

func (k Kind) String() string {
	switch k {
	case Paid:
		return "paid"
	case PaymentFailed:
		return "payment_failed"
	case Finalized:
		return "finalized"
	case Sent:
		return "sent"
	default:
		return "unrecognized"
	}
}

var kinds = map[string]Kind{
	"invoice.paid":                  Paid,
	"invoice.payment_succeeded":     Paid,
	"payment_intent.succeeded":      Paid,
	"invoice.payment_failed":        PaymentFailed,
	"payment_intent.payment_failed": PaymentFailed,
	"invoice.finalized":             Finalized,
	"invoice.sent":                  Sent,
}

// MetadataLicenseKey is the metadata entry the invoice gateway echoes back
// on every event.
const MetadataLicenseKey = "licenseId"

type Event struct {
	ID   string
	Type string
	Kind Kind
	// Update.LicenseID is uuid.Nil when the event carries no usable
	// license id.
	Update domain.PaymentUpdate
}

type envelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object billingObject `json:"object"`
	} `json:"data"`
}

type billingObject struct {
	ID                string            `json:"id"`
	Object            string            `json:"object"`
	HostedInvoiceURL  string            `json:"hosted_invoice_url"`
	PaymentIntent     ref               `json:"payment_intent"`
	Invoice           ref               `json:"invoice"`
	Metadata          map[string]string `json:"metadata"`
	StatusTransitions struct {
		PaidAt int64 `json:"paid_at"`
	} `json:"status_transitions"`
}

// ref accepts either an id string or an expanded object with an id.
type ref string

func (r *ref) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = ref(s)
		return nil
	default:
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*r = ref(obj.ID)
		return nil
	}
}

// Parse decodes a verified webhook body. Unknown event types parse to
// Unrecognized rather than failing.
func Parse(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, fmt.Errorf("%w: malformed event: %v", domain.ErrInvalidInput, err)
	}
	ev := Event{ID: env.ID, Type: env.Type, Kind: kinds[env.Type]}
	if ev.Kind == Unrecognized {
		return ev, nil
	}

	obj := env.Data.Object
	if id, err := uuid.Parse(obj.Metadata[MetadataLicenseKey]); err == nil {
		ev.Update.LicenseID = id
	}

	at := time.Now().UTC()
	if env.Created > 0 {
		at = time.Unix(env.Created, 0).UTC()
	}
	if ev.Kind == Paid && obj.StatusTransitions.PaidAt > 0 {
		at = time.Unix(obj.StatusTransitions.PaidAt, 0).UTC()
	}
	ev.Update.At = at

	switch obj.Object {
	case "payment_intent":
		ev.Update.PaymentRef = obj.ID
		ev.Update.InvoiceRef = string(obj.Invoice)
	default:
		ev.Update.InvoiceRef = obj.ID
		ev.Update.InvoiceURL = obj.HostedInvoiceURL
		ev.Update.PaymentRef = string(obj.PaymentIntent)
	}
	return ev, nil
}
