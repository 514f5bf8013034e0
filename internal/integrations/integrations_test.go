package integrations

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SirClappington/rightsguard/internal/domain"
	"github.com/SirClappington/rightsguard/internal/licensing"
	"github.com/SirClappington/rightsguard/internal/retry"
)

func fast(c *client) {
	c.retry = &retry.Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func TestRenderer_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/render/license", r.URL.Path)
		var doc licensing.Document
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
		assert.Equal(t, "Neon Nights", doc.TrackTitle)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	r := NewRenderer(srv.URL, time.Second)
	fast(&r.client)
	pdf, err := r.Render(context.Background(), licensing.Document{TrackTitle: "Neon Nights"})
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(pdf))
	assert.Equal(t, int32(2), calls.Load())
}

func TestRenderer_PermanentFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad template", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	r := NewRenderer(srv.URL, time.Second)
	fast(&r.client)
	_, err := r.Render(context.Background(), licensing.Document{})
	assert.ErrorIs(t, err, domain.ErrExternalUnavailable)
	assert.Equal(t, int32(1), calls.Load(), "4xx is not retried")
}

func TestUnconfiguredClients(t *testing.T) {
	_, err := NewRenderer("", time.Second).Render(context.Background(), licensing.Document{})
	assert.ErrorIs(t, err, domain.ErrExternalUnavailable)

	_, err = NewBlobStore("", time.Second).Put(context.Background(), []byte("x"), "k")
	assert.ErrorIs(t, err, domain.ErrExternalUnavailable)

	_, err = NewInvoices("https://billing.example", "", time.Second).CreateInvoice(context.Background(),
		licensing.Payer{}, licensing.LineItem{Amount: decimal.NewFromInt(1), Currency: "USD"}, nil)
	assert.ErrorIs(t, err, domain.ErrExternalUnavailable)

	delivered, err := NewNotifier("", time.Second, zap.NewNop()).Send(context.Background(), licensing.Message{})
	require.NoError(t, err)
	assert.False(t, delivered)
}

func TestBlobStore_PutAndSign(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut:
			assert.Equal(t, "/v1/objects/licenses/abc.pdf", r.URL.Path)
			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, "%PDF", string(body))
			_, _ = w.Write([]byte(`{"ref":"obj_1"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/signed-urls":
			assert.Equal(t, "obj_1", r.URL.Query().Get("ref"))
			assert.Equal(t, "3600", r.URL.Query().Get("ttl"))
			_, _ = w.Write([]byte(`{"url":"https://cdn.example/obj_1?sig=x"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	b := NewBlobStore(srv.URL, time.Second)
	ref, err := b.Put(context.Background(), []byte("%PDF"), "licenses/abc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "obj_1", ref)

	link, err := b.SignedURL(context.Background(), ref, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/obj_1?sig=x", link)
}

func TestInvoices_CreateInvoice(t *testing.T) {
	licenseID := uuid.NewString()
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		assert.NoError(t, r.ParseForm())
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()

		switch r.URL.Path {
		case "/v1/customers":
			assert.Equal(t, "fan@mixes.example", r.PostForm.Get("email"))
			assert.Equal(t, licenseID, r.PostForm.Get("metadata[licenseId]"))
			_, _ = w.Write([]byte(`{"id":"cus_1"}`))
		case "/v1/invoices":
			assert.Equal(t, "cus_1", r.PostForm.Get("customer"))
			assert.Equal(t, "send_invoice", r.PostForm.Get("collection_method"))
			assert.Equal(t, licenseID, r.PostForm.Get("metadata[licenseId]"))
			_, _ = w.Write([]byte(`{"id":"in_1"}`))
		case "/v1/invoiceitems":
			assert.Equal(t, "in_1", r.PostForm.Get("invoice"))
			assert.Equal(t, "25000", r.PostForm.Get("amount"))
			assert.Equal(t, "usd", r.PostForm.Get("currency"))
			_, _ = w.Write([]byte(`{"id":"ii_1"}`))
		case "/v1/invoices/in_1/finalize":
			_, _ = w.Write([]byte(`{"id":"in_1","hosted_invoice_url":"https://pay.example/in_1"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	g := NewInvoices(srv.URL, "sk_test", time.Second)
	inv, err := g.CreateInvoice(context.Background(),
		licensing.Payer{Name: "Fan Mixes", Email: "fan@mixes.example"},
		licensing.LineItem{Description: "License", Amount: decimal.RequireFromString("250.00"), Currency: "USD"},
		map[string]string{"licenseId": licenseID})
	require.NoError(t, err)
	assert.Equal(t, licensing.Invoice{ID: "in_1", HostedURL: "https://pay.example/in_1"}, inv)
	assert.Equal(t, []string{"/v1/customers", "/v1/invoices", "/v1/invoiceitems", "/v1/invoices/in_1/finalize"}, paths)
}

func TestInvoices_StopsAtFirstFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := NewInvoices(srv.URL, "sk_test", time.Second)
	fast(&g.client)
	_, err := g.CreateInvoice(context.Background(), licensing.Payer{},
		licensing.LineItem{Amount: decimal.NewFromInt(10), Currency: "EUR"}, map[string]string{"licenseId": "x"})
	assert.ErrorIs(t, err, domain.ErrExternalUnavailable)
	assert.Equal(t, int32(3), calls.Load(), "customer step retried, nothing after it")
}

func TestMinorUnits(t *testing.T) {
	n, err := MinorUnits(decimal.RequireFromString("250.00"), "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(25000), n)

	n, err = MinorUnits(decimal.NewFromInt(500), "JPY")
	require.NoError(t, err)
	assert.Equal(t, int64(500), n)

	n, err = MinorUnits(decimal.RequireFromString("1.005"), "KWD")
	require.NoError(t, err)
	assert.Equal(t, int64(1005), n)

	_, err = MinorUnits(decimal.RequireFromString("1.005"), "USD")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = MinorUnits(decimal.NewFromInt(1), "NOPE")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestHTTPNotifier_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		var n notification
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&n))
		assert.Equal(t, "fan@mixes.example", n.To)
		assert.Equal(t, "https://cdn.example/obj_1", n.AttachmentURL)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	delivered, err := NewNotifier(srv.URL, time.Second, zap.NewNop()).Send(context.Background(), licensing.Message{
		To: "fan@mixes.example", Subject: "License", Body: "hi", Attachment: "https://cdn.example/obj_1",
	})
	require.NoError(t, err)
	assert.True(t, delivered)
}
