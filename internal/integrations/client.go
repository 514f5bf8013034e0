// Package integrations holds the HTTP clients for the collaborators license
// issuance depends on: the artifact renderer, the blob store, the invoice
// gateway and the notifier. Every call is retried on transient failures and
// any final failure wraps domain.ErrExternalUnavailable.
package integrations

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/SirClappington/rightsguard/internal/domain"
	"github.com/SirClappington/rightsguard/internal/retry"
)

const maxResponseBytes = 32 << 20

type client struct {
	name    string
	baseURL string
	http    *http.Client
	retry   *retry.Config
}

func newClient(name, baseURL string, timeout time.Duration) client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		retry:   retry.DefaultConfig(),
	}
}

func (c *client) configured() error {
	if c.baseURL == "" {
		return fmt.Errorf("%s not configured: %w", c.name, domain.ErrExternalUnavailable)
	}
	return nil
}

// send performs one logical request and returns the response body of the
// first 2xx attempt.
func (c *client) send(ctx context.Context, method, path, contentType string, body []byte, header http.Header) ([]byte, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}
	var out []byte
	err := retry.DoIfRetryable(ctx, c.retry, func() error {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
		if err != nil {
			return err
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &retry.HTTPError{Op: c.name + " " + method + " " + path, StatusCode: resp.StatusCode, Body: truncate(data, 512)}
		}
		out = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", c.name, domain.ErrExternalUnavailable, err)
	}
	return out, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
