package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/SirClappington/rightsguard/internal/domain"
	"github.com/SirClappington/rightsguard/internal/licensing"
)

// Renderer asks the document service to lay out a license agreement as PDF.
type Renderer struct {
	client
}

var _ licensing.Renderer = (*Renderer)(nil)

func NewRenderer(baseURL string, timeout time.Duration) *Renderer {
	return &Renderer{client: newClient("renderer", baseURL, timeout)}
}

func (r *Renderer) Render(ctx context.Context, doc licensing.Document) ([]byte, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	pdf, err := r.send(ctx, http.MethodPost, "/v1/render/license", "application/json", body,
		http.Header{"Accept": {"application/pdf"}})
	if err != nil {
		return nil, err
	}
	if len(pdf) == 0 {
		return nil, fmt.Errorf("renderer returned an empty document: %w", domain.ErrExternalUnavailable)
	}
	return pdf, nil
}
