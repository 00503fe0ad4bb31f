// Package alerts delivers interception alerts to the duty officer.
//
// Every alert is written to an outbox before delivery is attempted, so an
// alert that cannot be sent right away is retried later by the Relay.
// Delivery is keyed by the alert reference; a receiver that honours the
// Idempotency-Key header sees each alert at most once.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/muletrace/internal/idgen"
)

var (
	ErrNotFound = errors.New("alerts: alert not found")
	// ErrNotDelivered is returned when a sender answers without error but
	// reports the message as not delivered.
	ErrNotDelivered = errors.New("alerts: channel did not accept the message")
)

// Status of an alert in the outbox.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed" // gave up after the relay's attempt limit
)

// Alert is one interception notification.
type Alert struct {
	Reference   string     `json:"reference"`
	AccountID   string     `json:"account_id"`
	Recipient   string     `json:"recipient"`
	Message     string     `json:"message"`
	Amount      int64      `json:"amount"`
	Lat         float64    `json:"lat"`
	Long        float64    `json:"long"`
	Status      Status     `json:"status"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	ProviderRef string     `json:"provider_ref,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// NewAlert builds a pending alert for an intercepted withdrawal.
func NewAlert(accountID, recipient string, amount int64, lat, long float64) *Alert {
	return &Alert{
		Reference: idgen.WithPrefix("alrt_"),
		AccountID: accountID,
		Recipient: recipient,
		Message:   Message(accountID, amount, lat, long),
		Amount:    amount,
		Lat:       lat,
		Long:      long,
		Status:    StatusPending,
	}
}

// Message is the text sent to the duty officer.
func Message(accountID string, amount int64, lat, long float64) string {
	return fmt.Sprintf("URGENT: account %s frozen. Attempted withdrawal of Rs %d at %.4f, %.4f. Dispatch nearest unit.",
		accountID, amount, lat, long)
}

// Delivery is what a channel reports for one send.
type Delivery struct {
	Delivered bool   `json:"delivered"`
	Reference string `json:"reference,omitempty"`
}

// Sender is an external notification channel.
type Sender interface {
	Send(ctx context.Context, recipient, message string) (Delivery, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, recipient, message string) (Delivery, error)

func (f SenderFunc) Send(ctx context.Context, recipient, message string) (Delivery, error) {
	return f(ctx, recipient, message)
}

// Outbox persists alerts until they are delivered.
//
// Enqueue is idempotent by Reference. MarkAttempt records a failed attempt
// and moves the alert to StatusFailed once maxAttempts is reached; it
// returns the resulting status. MarkDelivered on an already delivered alert
// is a no-op.
type Outbox interface {
	Enqueue(ctx context.Context, a *Alert) error
	Get(ctx context.Context, reference string) (*Alert, error)
	ListPending(ctx context.Context, updatedBefore time.Time, limit int) ([]*Alert, error)
	MarkDelivered(ctx context.Context, reference, providerRef string, at time.Time) error
	MarkAttempt(ctx context.Context, reference, lastError string, maxAttempts int) (Status, error)
	CountPending(ctx context.Context) (int, error)
}

type referenceKey struct{}

// WithReference attaches the alert reference to ctx for senders that send an
// idempotency key.
func WithReference(ctx context.Context, reference string) context.Context {
	return context.WithValue(ctx, referenceKey{}, reference)
}

// ReferenceFrom returns the alert reference carried by ctx, if any.
func ReferenceFrom(ctx context.Context) string {
	ref, _ := ctx.Value(referenceKey{}).(string)
	return ref
}
