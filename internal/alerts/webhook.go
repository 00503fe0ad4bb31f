package alerts

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mbd888/muletrace/internal/retry"
)

// WebhookSender POSTs alerts as JSON to a notification gateway (an SMS
// relay, a paging bridge). Bodies are signed with HMAC-SHA256 when a secret
// is configured.
type WebhookSender struct {
	url    string
	secret string
	client *http.Client
	now    func() time.Time
}

// NewWebhookSender creates a sender for url.
func NewWebhookSender(url, secret string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

type webhookPayload struct {
	Reference string    `json:"reference,omitempty"`
	Recipient string    `json:"recipient"`
	Message   string    `json:"message"`
	SentAt    time.Time `json:"sent_at"`
}

type webhookResponse struct {
	ID        string `json:"id"`
	Reference string `json:"reference"`
}

// Send delivers one message. A 4xx other than 408/429 is permanent and is
// not retried.
func (w *WebhookSender) Send(ctx context.Context, recipient, message string) (Delivery, error) {
	ref := ReferenceFrom(ctx)
	sentAt := w.now().UTC()
	payload, err := json.Marshal(webhookPayload{
		Reference: ref,
		Recipient: recipient,
		Message:   message,
		SentAt:    sentAt,
	})
	if err != nil {
		return Delivery{}, retry.Permanent(fmt.Errorf("marshal alert: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return Delivery{}, retry.Permanent(fmt.Errorf("build alert request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Muletrace-Timestamp", strconv.FormatInt(sentAt.Unix(), 10))
	if ref != "" {
		req.Header.Set("Idempotency-Key", ref)
	}
	if w.secret != "" {
		req.Header.Set("X-Muletrace-Signature", Sign(payload, w.secret))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return Delivery{}, fmt.Errorf("alert request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var r webhookResponse
		_ = json.Unmarshal(body, &r)
		providerRef := r.Reference
		if providerRef == "" {
			providerRef = r.ID
		}
		if providerRef == "" {
			providerRef = ref
		}
		return Delivery{Delivered: true, Reference: providerRef}, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests:
		return Delivery{}, retry.Permanent(fmt.Errorf("alert gateway rejected message: status %d", resp.StatusCode))
	default:
		return Delivery{}, fmt.Errorf("alert gateway error: status %d", resp.StatusCode)
	}
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether signature matches payload under secret.
func Verify(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
