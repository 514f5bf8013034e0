package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/SirClappington/rightsguard/internal/domain"
	"github.com/SirClappington/rightsguard/internal/licensing"
)

// DaysUntilDue is the payment window printed on issued invoices.
const DaysUntilDue = 30

// Invoices registers license invoices with a Stripe-compatible billing API:
// customer, draft invoice, invoice item, finalize. Each step carries an
// idempotency key derived from the license id so retries never duplicate
// objects on the billing side.
type Invoices struct {
	client
	apiKey string
}

var _ licensing.InvoiceGateway = (*Invoices)(nil)

func NewInvoices(baseURL, apiKey string, timeout time.Duration) *Invoices {
	return &Invoices{client: newClient("billing", baseURL, timeout), apiKey: apiKey}
}

type billingObject struct {
	ID               string `json:"id"`
	HostedInvoiceURL string `json:"hosted_invoice_url"`
}

func (g *Invoices) CreateInvoice(ctx context.Context, payer licensing.Payer, item licensing.LineItem, metadata map[string]string) (licensing.Invoice, error) {
	if g.apiKey == "" {
		return licensing.Invoice{}, fmt.Errorf("billing api key not configured: %w", domain.ErrExternalUnavailable)
	}
	amount, err := MinorUnits(item.Amount, item.Currency)
	if err != nil {
		return licensing.Invoice{}, err
	}
	idem := metadata["licenseId"]

	customer, err := g.post(ctx, "/v1/customers", idem+":customer", withMetadata(url.Values{
		"name":  {payer.Name},
		"email": {payer.Email},
	}, metadata))
	if err != nil {
		return licensing.Invoice{}, err
	}

	inv, err := g.post(ctx, "/v1/invoices", idem+":invoice", withMetadata(url.Values{
		"customer":          {customer.ID},
		"collection_method": {"send_invoice"},
		"days_until_due":    {fmt.Sprint(DaysUntilDue)},
		"currency":          {strings.ToLower(item.Currency)},
		"description":       {item.Description},
	}, metadata))
	if err != nil {
		return licensing.Invoice{}, err
	}

	if _, err := g.post(ctx, "/v1/invoiceitems", idem+":item", withMetadata(url.Values{
		"customer":    {customer.ID},
		"invoice":     {inv.ID},
		"amount":      {fmt.Sprint(amount)},
		"currency":    {strings.ToLower(item.Currency)},
		"description": {item.Description},
	}, metadata)); err != nil {
		return licensing.Invoice{}, err
	}

	final, err := g.post(ctx, "/v1/invoices/"+url.PathEscape(inv.ID)+"/finalize", idem+":finalize", url.Values{})
	if err != nil {
		return licensing.Invoice{}, err
	}
	return licensing.Invoice{ID: final.ID, HostedURL: final.HostedInvoiceURL}, nil
}

func (g *Invoices) post(ctx context.Context, path, idemKey string, form url.Values) (billingObject, error) {
	h := http.Header{"Authorization": {"Bearer " + g.apiKey}}
	if idemKey != "" {
		h.Set("Idempotency-Key", idemKey)
	}
	raw, err := g.send(ctx, http.MethodPost, path, "application/x-www-form-urlencoded", []byte(form.Encode()), h)
	if err != nil {
		return billingObject{}, err
	}
	var obj billingObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return billingObject{}, fmt.Errorf("decode billing %s: %w", path, err)
	}
	if obj.ID == "" {
		return billingObject{}, fmt.Errorf("billing %s returned no id: %w", path, domain.ErrExternalUnavailable)
	}
	return obj, nil
}

func withMetadata(form url.Values, metadata map[string]string) url.Values {
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}
	return form
}

// MinorUnits converts an amount to the integer minor units billing APIs
// expect, e.g. 250.00 USD -> 25000 and 500 JPY -> 500.
func MinorUnits(amount decimal.Decimal, code string) (int64, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 0, fmt.Errorf("%w: unknown currency %q", domain.ErrInvalidInput, code)
	}
	scale, _ := currency.Standard.Rounding(unit)
	minor := amount.Shift(int32(scale))
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has more precision than %s allows", domain.ErrInvalidInput, amount, unit)
	}
	return minor.IntPart(), nil
}
