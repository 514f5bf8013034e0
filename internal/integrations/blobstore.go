package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/SirClappington/rightsguard/internal/domain"
	"github.com/SirClappington/rightsguard/internal/licensing"
)

// BlobStore keeps license artifacts in an object store fronted by a small
// HTTP API. References are opaque to callers.
type BlobStore struct {
	client
}

var _ licensing.BlobStore = (*BlobStore)(nil)

func NewBlobStore(baseURL string, timeout time.Duration) *BlobStore {
	return &BlobStore{client: newClient("blobstore", baseURL, timeout)}
}

type putResponse struct {
	Ref string `json:"ref"`
}

type signResponse struct {
	URL string `json:"url"`
}

func (b *BlobStore) Put(ctx context.Context, data []byte, keyHint string) (string, error) {
	raw, err := b.send(ctx, http.MethodPut, "/v1/objects/"+escapeKey(keyHint), "application/pdf", data, nil)
	if err != nil {
		return "", err
	}
	var resp putResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode blobstore put: %w", err)
	}
	if resp.Ref == "" {
		return "", fmt.Errorf("blobstore returned no reference: %w", domain.ErrExternalUnavailable)
	}
	return resp.Ref, nil
}

func (b *BlobStore) SignedURL(ctx context.Context, ref string, ttl time.Duration) (string, error) {
	q := url.Values{}
	q.Set("ref", ref)
	q.Set("ttl", strconv.FormatInt(int64(ttl/time.Second), 10))
	data, err := b.send(ctx, http.MethodPost, "/v1/signed-urls?"+q.Encode(), "", nil, nil)
	if err != nil {
		return "", err
	}
	var resp signResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("decode blobstore sign: %w", err)
	}
	if resp.URL == "" {
		return "", fmt.Errorf("blobstore returned no url: %w", domain.ErrExternalUnavailable)
	}
	return resp.URL, nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
