package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbd888/muletrace/internal/metrics"
)

// Relay periodically retries alerts left pending in the outbox.
type Relay struct {
	dispatcher *Dispatcher
	interval   time.Duration
	grace      time.Duration // leave fresh alerts to the in-request attempt
	batch      int
	logger     *slog.Logger
	stop       chan struct{}
	stopOnce   sync.Once
	running    atomic.Bool
}

// NewRelay creates a relay that runs every interval.
func NewRelay(d *Dispatcher, interval time.Duration, logger *slog.Logger) *Relay {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		dispatcher: d,
		interval:   interval,
		grace:      interval / 2,
		batch:      50,
		logger:     logger,
		stop:       make(chan struct{}),
	}
}

// Running reports whether the relay loop is actively running.
func (r *Relay) Running() bool {
	return r.running.Load()
}

// Start runs the relay loop until ctx ends or Stop is called. Call in a goroutine.
func (r *Relay) Start(ctx context.Context) {
	r.running.Store(true)
	defer r.running.Store(false)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.safeRunOnce(ctx)
		}
	}
}

// Stop signals the relay to stop. It is safe to call more than once.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *Relay) safeRunOnce(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic in alert relay", "panic", fmt.Sprint(p))
		}
	}()
	r.RunOnce(ctx)
}

// RunOnce retries one batch of pending alerts and returns how many were sent.
func (r *Relay) RunOnce(ctx context.Context) int {
	outbox := r.dispatcher.Outbox()
	pending, err := outbox.ListPending(ctx, r.dispatcher.now().Add(-r.grace), r.batch)
	if err != nil {
		r.logger.Warn("failed to list pending alerts", "error", err)
		return 0
	}

	sent := 0
	for _, a := range pending {
		if ctx.Err() != nil {
			break
		}
		if res := r.dispatcher.deliver(ctx, a); res.Outcome == OutcomeSent {
			sent++
		}
	}

	if n, err := outbox.CountPending(ctx); err == nil {
		metrics.AlertOutboxPending.Set(float64(n))
	}
	if len(pending) > 0 {
		r.logger.Info("alert relay pass", "pending", len(pending), "sent", sent)
	}
	return sent
}
