// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/muletrace/internal/alerts"
	"github.com/mbd888/muletrace/internal/circuitbreaker"
	"github.com/mbd888/muletrace/internal/complaints"
	"github.com/mbd888/muletrace/internal/config"
	"github.com/mbd888/muletrace/internal/health"
	"github.com/mbd888/muletrace/internal/idgen"
	"github.com/mbd888/muletrace/internal/ingest"
	"github.com/mbd888/muletrace/internal/interception"
	"github.com/mbd888/muletrace/internal/logging"
	"github.com/mbd888/muletrace/internal/metrics"
	"github.com/mbd888/muletrace/internal/model"
	"github.com/mbd888/muletrace/internal/ratelimit"
	"github.com/mbd888/muletrace/internal/realtime"
	"github.com/mbd888/muletrace/internal/security"
	"github.com/mbd888/muletrace/internal/traces"
	"github.com/mbd888/muletrace/internal/validation"
)

// Version is reported by /health.
const Version = "0.1.0"

const alertRelayInterval = 30 * time.Second

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg           *config.Config
	store         complaints.Store
	complaints    *complaints.Service
	hotspotCache  *complaints.RedisHotspotCache
	model         *model.Handle
	engine        *interception.Engine
	alertSender   alerts.Sender
	dispatcher    *alerts.Dispatcher
	relay         *alerts.Relay
	realtimeHub   *realtime.Hub
	health        *health.Registry
	rateLimiter   *ratelimit.Limiter
	consumer      *ingest.Consumer
	consumerDone  chan struct{}
	kafkaReader   ingest.Reader
	db            *sql.DB // nil if using in-memory
	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	shutdownDrain time.Duration
	stopTracing   func(context.Context) error
	cancelRunCtx  context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStore sets the complaint store instead of opening DATABASE_URL
func WithStore(store complaints.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithModel sets the prediction handle instead of loading artifacts from disk
func WithModel(h *model.Handle) Option {
	return func(s *Server) {
		s.model = h
	}
}

// WithAlertSender replaces the configured alert channel (for testing)
func WithAlertSender(sender alerts.Sender) Option {
	return func(s *Server) {
		s.alertSender = sender
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:           cfg,
		logger:        logging.New(cfg.LogLevel, cfg.LogFormat),
		health:        health.NewRegistry(),
		shutdownDrain: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	stopTracing, err := traces.Init(ctx, cfg.OTLPEndpoint, "muletrace", s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	s.stopTracing = stopTracing

	if err := s.setupStorage(ctx); err != nil {
		return nil, err
	}
	s.setupHotspotCache(ctx)
	s.setupModel()
	s.setupAlerts()

	s.realtimeHub = realtime.NewHub(s.logger)

	complaintOpts := []complaints.Option{
		complaints.WithHotspotLimit(cfg.HotspotLimit),
		complaints.WithIngestListener(func(source string, n int) {
			s.realtimeHub.Publish(realtime.EventIngest, "", 0, gin.H{"source": source, "events": n})
		}),
	}
	if s.hotspotCache != nil {
		complaintOpts = append(complaintOpts, complaints.WithHotspotCache(s.hotspotCache))
	}
	s.complaints = complaints.NewService(s.store, s.logger, complaintOpts...)

	s.engine = interception.NewEngine(s.store, s.logger,
		interception.WithAssessor(interception.NewRuleAssessor(cfg.InterceptAmountThreshold, cfg.HighRiskTag)),
		interception.WithAlerts(s.dispatcher, cfg.AlertRecipient),
		interception.WithPublisher(s.realtimeHub),
	)

	if len(cfg.KafkaBrokers) > 0 {
		reader := ingest.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
		s.kafkaReader = reader
		s.consumer = ingest.NewConsumer(reader, s.complaints, s.logger)
		s.logger.Info("kafka ingestion enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	s.health.RegisterOptional("model", func(context.Context) health.Status {
		if !s.model.Available() {
			return health.Status{Detail: "prediction disabled: no model loaded"}
		}
		return health.Status{Healthy: true}
	})

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

func (s *Server) setupStorage(ctx context.Context) error {
	if s.store != nil {
		return nil
	}
	if s.cfg.DatabaseURL == "" {
		s.store = complaints.NewMemoryStore()
		s.logger.Warn("DATABASE_URL not set, using in-memory complaint store")
		return nil
	}

	db, err := complaints.OpenPostgres(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return err
	}

	s.db = db
	s.store = complaints.NewPostgresStore(db)
	s.health.Register("database", health.PingCheck(db, 2*time.Second))
	s.logger.Info("using PostgreSQL storage", "url", maskDSN(s.cfg.DatabaseURL))
	return nil
}

func (s *Server) setupHotspotCache(ctx context.Context) {
	if s.cfg.RedisURL == "" {
		return
	}
	cache, err := complaints.NewRedisHotspotCache(ctx, s.cfg.RedisURL, s.cfg.HotspotCacheTTL)
	if err != nil {
		s.logger.Warn("hotspot cache disabled", "error", err)
		return
	}
	s.hotspotCache = cache
	s.health.RegisterOptional("redis", health.PingCheck(cache, time.Second))
	s.logger.Info("hotspot cache enabled", "ttl", s.cfg.HotspotCacheTTL)
}

func (s *Server) setupModel() {
	if s.model != nil {
		return
	}
	h, err := model.Load(s.cfg.ModelPath, s.cfg.EncoderPath)
	if err != nil {
		s.logger.Warn("prediction disabled", "error", err,
			"model_path", s.cfg.ModelPath, "encoder_path", s.cfg.EncoderPath)
		return
	}
	s.model = h
	s.logger.Info("model loaded", "accounts", h.Table().Len())
}

func (s *Server) setupAlerts() {
	if s.alertSender == nil {
		if s.cfg.AlertWebhookURL != "" {
			s.alertSender = alerts.NewWebhookSender(s.cfg.AlertWebhookURL, s.cfg.AlertWebhookSecret)
			s.logger.Info("alert webhook enabled")
		} else {
			s.alertSender = alerts.NewLogSender(s.logger)
			s.logger.Warn("ALERT_WEBHOOK_URL not set, alerts are logged only")
		}
	}

	var outbox alerts.Outbox
	if s.db != nil {
		outbox = alerts.NewPostgresOutbox(s.db)
	} else {
		outbox = alerts.NewMemoryOutbox()
	}
	s.dispatcher = alerts.NewDispatcher(s.alertSender, outbox, s.logger,
		alerts.WithBreaker(circuitbreaker.New(5, 30*time.Second)),
	)
	s.relay = alerts.NewRelay(s.dispatcher, alertRelayInterval, s.logger)
	s.health.RegisterOptional("alert_relay", func(context.Context) health.Status {
		if !s.relay.Running() && s.ready.Load() {
			return health.Status{Detail: "relay not running"}
		}
		return health.Status{Healthy: true}
	})
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware([]string{"*"}))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	s.rateLimiter = ratelimit.New(ratelimit.Config{RequestsPerMinute: s.cfg.RateLimitRPM})
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.Hex(16)
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/", dashboardHandler)

	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	api := s.router.Group("/api")
	complaints.NewHandler(s.complaints).RegisterRoutes(api)
	model.NewHandler(s.model).RegisterRoutes(api)
	interception.NewHandler(s.engine).RegisterRoutes(api)
	api.GET("/realtime/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.realtimeHub.Stats())
	})
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	report := s.health.CheckAll(ctx)
	httpStatus := http.StatusOK
	if !report.Healthy() {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    report.Overall,
		Version:   Version,
		Checks:    report.Checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"prediction", s.model.Available(),
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.realtimeHub.Run(runCtx)
	go s.relay.Start(runCtx)

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	if s.consumer != nil {
		s.consumerDone = make(chan struct{})
		go func() {
			defer close(s.consumerDone)
			stats, err := s.consumer.Run(runCtx)
			if err != nil {
				s.logger.Error("kafka ingestion stopped", "error", err, "stored", stats.Stored)
				return
			}
			s.logger.Info("kafka ingestion stopped",
				"received", stats.Received, "stored", stats.Stored, "invalid", stats.Invalid)
		}()
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Give load balancers time to stop sending traffic
	time.Sleep(s.shutdownDrain)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Cancel the context for background goroutines (hub, relay, consumer)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	if s.relay != nil {
		s.relay.Stop()
		s.logger.Info("alert relay stopped")
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.consumerDone != nil {
		select {
		case <-s.consumerDone:
		case <-ctx.Done():
			s.logger.Warn("kafka consumer did not stop in time")
		}
	}
	if s.kafkaReader != nil {
		if err := s.kafkaReader.Close(); err != nil {
			s.logger.Error("kafka reader close error", "error", err)
		}
	}

	if s.hotspotCache != nil {
		if err := s.hotspotCache.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		}
	}

	if s.stopTracing != nil {
		if err := s.stopTracing(ctx); err != nil {
			s.logger.Error("tracer shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Complaints returns the complaint service (used by tests and batch tooling)
func (s *Server) Complaints() *complaints.Service {
	return s.complaints
}
