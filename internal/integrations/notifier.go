package integrations

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/SirClappington/rightsguard/internal/licensing"
)

// NewNotifier returns an HTTP notifier, or a no-op one that never delivers
// when no endpoint is configured.
func NewNotifier(endpoint string, timeout time.Duration, logger *zap.Logger) licensing.Notifier {
	if strings.TrimSpace(endpoint) == "" {
		return noopNotifier{logger: logger.Named("notifier")}
	}
	return &HTTPNotifier{client: newClient("notifier", endpoint, timeout)}
}

type HTTPNotifier struct {
	client
}

type notification struct {
	To            string `json:"to"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	AttachmentURL string `json:"attachment_url,omitempty"`
}

// Send reports delivered once the notification service accepted the
// message.
func (n *HTTPNotifier) Send(ctx context.Context, msg licensing.Message) (bool, error) {
	body, err := json.Marshal(notification{
		To:            msg.To,
		Subject:       msg.Subject,
		Body:          msg.Body,
		AttachmentURL: msg.Attachment,
	})
	if err != nil {
		return false, err
	}
	if _, err := n.send(ctx, http.MethodPost, "/v1/messages", "application/json", body, nil); err != nil {
		return false, err
	}
	return true, nil
}

type noopNotifier struct {
	logger *zap.Logger
}

func (n noopNotifier) Send(_ context.Context, msg licensing.Message) (bool, error) {
	n.logger.Info("Notifier not configured, message not sent", zap.String("subject", msg.Subject))
	return false, nil
}
