package complaints

import (
	"context"
	"log/slog"

	"github.com/mbd888/muletrace/internal/logging"
	"github.com/mbd888/muletrace/internal/metrics"
)

// DefaultHotspotLimit is how many recent withdrawals feed the heatmap.
const DefaultHotspotLimit = 500

// Service answers the read-side queries and owns ingestion.
type Service struct {
	store        Store
	cache        HotspotCache
	hotspotLimit int
	onIngest     func(source string, n int)
	logger       *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithHotspotCache enables read-through caching of the heatmap payload.
func WithHotspotCache(c HotspotCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithHotspotLimit overrides DefaultHotspotLimit.
func WithHotspotLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.hotspotLimit = n
		}
	}
}

// WithIngestListener calls fn after every successful Ingest.
func WithIngestListener(fn func(source string, n int)) Option {
	return func(s *Service) { s.onIngest = fn }
}

// NewService creates a Service over store.
func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:        store,
		hotspotLimit: DefaultHotspotLimit,
		logger:       logging.Component(logger, "complaints"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying store to the engine and the batch commands.
func (s *Service) Store() Store { return s.store }

// Hotspots returns the most recent withdrawals as weighted heatmap points,
// newest first. Cache failures fall back to the store.
func (s *Service) Hotspots(ctx context.Context) ([]Hotspot, error) {
	if s.cache != nil {
		spots, ok, err := s.cache.Get(ctx, s.hotspotLimit)
		switch {
		case err != nil:
			metrics.HotspotCacheTotal.WithLabelValues("error").Inc()
			s.logger.Warn("hotspot cache read failed", "error", err)
		case ok:
			metrics.HotspotCacheTotal.WithLabelValues("hit").Inc()
			return spots, nil
		default:
			metrics.HotspotCacheTotal.WithLabelValues("miss").Inc()
		}
	}

	events, err := s.store.Latest(ctx, s.hotspotLimit)
	if err != nil {
		return nil, err
	}
	spots := make([]Hotspot, len(events))
	for i, e := range events {
		spots[i] = HotspotOf(e)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, s.hotspotLimit, spots); err != nil {
			s.logger.Warn("hotspot cache write failed", "error", err)
		}
	}
	return spots, nil
}

// History returns an account's withdrawals oldest first. Unknown accounts
// yield an empty trail.
func (s *Service) History(ctx context.Context, accountID string) ([]HistoryPoint, error) {
	events, err := s.store.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	points := make([]HistoryPoint, len(events))
	for i, e := range events {
		points[i] = HistoryPointOf(e)
	}
	return points, nil
}

// Ingest stores new complaint events as Open and refreshes the heatmap.
// source labels the metric ("csv", "kafka").
func (s *Service) Ingest(ctx context.Context, source string, events []*Event) (int, error) {
	for _, e := range events {
		e.Status = StatusOpen
	}

	var (
		n   int
		err error
	)
	if len(events) == 1 {
		err = s.store.Insert(ctx, events[0])
		if err == nil {
			n = 1
		}
	} else {
		n, err = s.store.InsertBatch(ctx, events)
	}
	if err != nil {
		metrics.IngestedEventsTotal.WithLabelValues(source, "error").Add(float64(len(events)))
		return 0, err
	}
	metrics.IngestedEventsTotal.WithLabelValues(source, "ok").Add(float64(n))

	s.invalidate(ctx)
	if s.onIngest != nil {
		s.onIngest(source, n)
	}
	return n, nil
}

// Reset reopens every account. Administrative only.
func (s *Service) Reset(ctx context.Context) (int64, error) {
	n, err := s.store.ResetAll(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("all accounts reopened", "rows", n)
	s.invalidate(ctx)
	return n, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("hotspot cache invalidation failed", "error", err)
	}
}
