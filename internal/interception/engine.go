package interception

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mbd888/muletrace/internal/alerts"
	"github.com/mbd888/muletrace/internal/complaints"
	"github.com/mbd888/muletrace/internal/logging"
	"github.com/mbd888/muletrace/internal/metrics"
	"github.com/mbd888/muletrace/internal/realtime"
	"github.com/mbd888/muletrace/internal/syncutil"
	"github.com/mbd888/muletrace/internal/traces"
)

// AlertDispatcher sends an alert and reports the outcome. It never fails the
// caller; see alerts.Dispatcher.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, a *alerts.Alert) alerts.Result
}

// Publisher receives decision events for live dashboards.
type Publisher interface {
	Publish(t realtime.EventType, accountID string, amount int64, data any)
}

// Engine applies the interception rule against the complaint store.
type Engine struct {
	store     complaints.Store
	assessor  RiskAssessor
	alerts    AlertDispatcher
	recipient string
	publisher Publisher
	locks     syncutil.ShardedMutex
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithAssessor replaces the default rule assessor.
func WithAssessor(a RiskAssessor) Option {
	return func(e *Engine) { e.assessor = a }
}

// WithAlerts sets where interception alerts go.
func WithAlerts(d AlertDispatcher, recipient string) Option {
	return func(e *Engine) {
		e.alerts = d
		e.recipient = recipient
	}
}

// WithPublisher streams decisions to p.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// NewEngine creates an engine over store using the default rule.
func NewEngine(store complaints.Store, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:    store,
		assessor: NewRuleAssessor(DefaultAmountThreshold, DefaultHighRiskTag),
		logger:   logging.Component(logger, "interception"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide evaluates p:
//
//  1. a Frozen account is BLOCKED, nothing else is looked at;
//  2. a high-risk proposal freezes every row of the account, then alerts;
//  3. anything else is APPROVED.
//
// The freeze is a compare-and-set in the store, so of several concurrent
// high-risk proposals for one account exactly one is INTERCEPTED and the
// rest are BLOCKED. Store failures are returned and nothing is committed;
// alert failures are reported in the Result and never undo the freeze.
func (e *Engine) Decide(ctx context.Context, p Proposal) (Result, error) {
	ctx, span := traces.StartSpan(ctx, "interception.Decide", traces.Account(p.AccountID), traces.Amount(p.Amount))
	defer span.End()

	res, err := e.decide(ctx, p)
	if err != nil {
		traces.Fail(span, err)
		return Result{}, err
	}
	span.SetAttributes(traces.Decision(string(res.Decision)))
	metrics.DecisionsTotal.WithLabelValues(string(res.Decision)).Inc()
	e.publish(realtime.EventDecision, p, res)
	return res, nil
}

func (e *Engine) decide(ctx context.Context, p Proposal) (Result, error) {
	unlock := e.locks.Lock(p.AccountID)
	locked := true
	defer func() {
		if locked {
			unlock()
		}
	}()

	status, err := e.store.Status(ctx, p.AccountID)
	if err != nil {
		return Result{}, err
	}
	if status == complaints.StatusFrozen {
		return Result{Decision: Blocked, Message: msgBlocked}, nil
	}

	verdict, err := e.assessor.Assess(ctx, p)
	if err != nil {
		return Result{}, fmt.Errorf("assess risk: %w", err)
	}
	if !verdict.HighRisk {
		return Result{Decision: Approved, Message: msgApproved}, nil
	}

	frozen, err := e.store.Freeze(ctx, p.AccountID)
	if err != nil {
		return Result{}, err
	}
	unlock()
	locked = false

	log := e.logger.With(logging.Account(p.AccountID))
	switch frozen.Outcome {
	case complaints.FreezeAlreadyFrozen:
		// another instance froze it between our status read and the update
		return Result{Decision: Blocked, Message: msgBlocked}, nil
	case complaints.FreezeNoRecords:
		metrics.FreezesTotal.Inc()
		log.Warn("account frozen before any complaint was recorded", "amount", p.Amount, "reason", verdict.Reason)
	default:
		metrics.FreezesTotal.Inc()
		log.Info("account frozen", "rows", frozen.Rows, "amount", p.Amount, "reason", verdict.Reason)
	}

	res := Result{
		Decision:   Intercepted,
		Message:    msgIntercepted,
		Reason:     verdict.Reason,
		FrozenRows: frozen.Rows,
	}
	e.publish(realtime.EventFreeze, p, res)

	if e.alerts == nil {
		res.AlertStatus = AlertNotConfigured
		return res, nil
	}
	a := alerts.NewAlert(p.AccountID, e.recipient, p.Amount, p.Lat, p.Long)
	sent := e.alerts.Dispatch(ctx, a)
	res.AlertReference = sent.Reference
	res.AlertStatus = AlertSent
	if sent.Outcome != alerts.OutcomeSent {
		res.AlertStatus = AlertFailed
		log.Error("interception alert not delivered; freeze stands", "reference", sent.Reference, "error", sent.Err)
	}
	e.publish(realtime.EventAlert, p, res)
	return res, nil
}

func (e *Engine) publish(t realtime.EventType, p Proposal, res Result) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(t, p.AccountID, p.Amount, map[string]any{
		"decision":        res.Decision,
		"lat":             p.Lat,
		"long":            p.Long,
		"alert_status":    res.AlertStatus,
		"alert_reference": res.AlertReference,
	})
}
