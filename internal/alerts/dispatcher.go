package alerts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mbd888/muletrace/internal/circuitbreaker"
	"github.com/mbd888/muletrace/internal/metrics"
	"github.com/mbd888/muletrace/internal/retry"
	"github.com/mbd888/muletrace/internal/syncutil"
	"github.com/mbd888/muletrace/internal/traces"
)

// Delivery outcome labels reported back to callers.
const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
)

// Result is what Dispatch reports about one alert.
type Result struct {
	Reference   string
	Outcome     string // OutcomeSent or OutcomeFailed
	ProviderRef string
	Err         error
}

// Dispatcher writes alerts to the outbox and delivers them through a Sender
// with bounded retry and a circuit breaker per recipient.
type Dispatcher struct {
	sender      Sender
	outbox      Outbox
	breaker     *circuitbreaker.Breaker
	locks       syncutil.ShardedMutex
	attempts    int
	baseDelay   time.Duration
	timeout     time.Duration
	maxAttempts int // relay gives up after this many recorded attempts
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRetry sets the in-call retry budget.
func WithRetry(attempts int, baseDelay time.Duration) Option {
	return func(d *Dispatcher) {
		d.attempts = attempts
		d.baseDelay = baseDelay
	}
}

// WithTimeout bounds one Deliver call, retries included.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithMaxAttempts sets how many failed deliveries an alert survives before
// it is marked failed.
func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) { d.maxAttempts = n }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(d *Dispatcher) { d.breaker = b }
}

// NewDispatcher creates a dispatcher. outbox may be a MemoryOutbox when no
// database is configured.
func NewDispatcher(sender Sender, outbox Outbox, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		sender:      sender,
		outbox:      outbox,
		breaker:     circuitbreaker.New(5, 30*time.Second),
		attempts:    3,
		baseDelay:   200 * time.Millisecond,
		timeout:     10 * time.Second,
		maxAttempts: 10,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Outbox returns the dispatcher's outbox.
func (d *Dispatcher) Outbox() Outbox {
	return d.outbox
}

// Dispatch enqueues a and attempts delivery right away. Failures are
// reported in the Result, never returned: the alert stays pending for the
// relay.
func (d *Dispatcher) Dispatch(ctx context.Context, a *Alert) Result {
	if err := d.outbox.Enqueue(ctx, a); err != nil {
		// still try to send; only the retry safety net is lost
		d.logger.Error("alert outbox unavailable", "reference", a.Reference, "error", err)
	}
	return d.deliver(ctx, a)
}

// Deliver re-attempts a stored alert. An alert already delivered is not sent
// again.
func (d *Dispatcher) Deliver(ctx context.Context, reference string) (Result, error) {
	a, err := d.outbox.Get(ctx, reference)
	if err != nil {
		return Result{}, err
	}
	if a.Status == StatusDelivered {
		return Result{Reference: a.Reference, Outcome: OutcomeSent, ProviderRef: a.ProviderRef}, nil
	}
	if a.Status == StatusFailed {
		return Result{Reference: a.Reference, Outcome: OutcomeFailed, Err: errors.New(a.LastError)}, nil
	}
	return d.deliver(ctx, a), nil
}

func (d *Dispatcher) deliver(ctx context.Context, a *Alert) Result {
	unlock := d.locks.Lock(a.Reference)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	ctx, span := traces.StartSpan(ctx, "alerts.Deliver", traces.Account(a.AccountID), traces.AlertRef(a.Reference))
	defer span.End()

	// a concurrent relay pass may have delivered it while we waited
	if stored, err := d.outbox.Get(ctx, a.Reference); err == nil && stored.Status == StatusDelivered {
		metrics.AlertDeliveriesTotal.WithLabelValues("skipped").Inc()
		return Result{Reference: a.Reference, Outcome: OutcomeSent, ProviderRef: stored.ProviderRef}
	}

	sendCtx := WithReference(ctx, a.Reference)
	var delivery Delivery
	err := retry.Do(ctx, d.attempts, d.baseDelay, func() error {
		err := d.breaker.Execute(a.Recipient, func() error {
			var err error
			delivery, err = d.sender.Send(sendCtx, a.Recipient, a.Message)
			if err == nil && !delivery.Delivered {
				err = ErrNotDelivered
			}
			return err
		})
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return retry.Permanent(err)
		}
		return err
	})

	if err != nil {
		metrics.AlertDeliveriesTotal.WithLabelValues(OutcomeFailed).Inc()
		traces.Fail(span, err)
		status, merr := d.outbox.MarkAttempt(context.WithoutCancel(ctx), a.Reference, err.Error(), d.maxAttempts)
		if merr != nil && !errors.Is(merr, ErrNotFound) {
			d.logger.Error("failed to record alert attempt", "reference", a.Reference, "error", merr)
		}
		d.logger.Warn("alert delivery failed",
			"reference", a.Reference, "recipient", a.Recipient, "status", status, "error", err)
		return Result{Reference: a.Reference, Outcome: OutcomeFailed, Err: err}
	}

	metrics.AlertDeliveriesTotal.WithLabelValues(OutcomeSent).Inc()
	if merr := d.outbox.MarkDelivered(context.WithoutCancel(ctx), a.Reference, delivery.Reference, d.now()); merr != nil &&
		!errors.Is(merr, ErrNotFound) {
		d.logger.Error("failed to record alert delivery", "reference", a.Reference, "error", merr)
	}
	d.logger.Info("alert delivered", "reference", a.Reference, "recipient", a.Recipient, "provider_ref", delivery.Reference)
	return Result{Reference: a.Reference, Outcome: OutcomeSent, ProviderRef: delivery.Reference}
}
