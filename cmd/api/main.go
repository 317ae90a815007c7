package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/marketsafe/checkout-risk-backend/internal/api/rest"
	"github.com/marketsafe/checkout-risk-backend/internal/domain/risk"
	"github.com/marketsafe/checkout-risk-backend/internal/infrastructure/advisor"
	"github.com/marketsafe/checkout-risk-backend/internal/infrastructure/cache"
	"github.com/marketsafe/checkout-risk-backend/internal/infrastructure/config"
	"github.com/marketsafe/checkout-risk-backend/internal/infrastructure/database"
	"github.com/marketsafe/checkout-risk-backend/internal/infrastructure/directory"
	"github.com/marketsafe/checkout-risk-backend/internal/infrastructure/notify"
	"github.com/marketsafe/checkout-risk-backend/internal/infrastructure/repository"
	"github.com/marketsafe/checkout-risk-backend/internal/infrastructure/telemetry"
	"github.com/marketsafe/checkout-risk-backend/internal/metrics"
	"github.com/marketsafe/checkout-risk-backend/internal/service/gate"
	"github.com/marketsafe/checkout-risk-backend/internal/service/justification"
	"github.com/marketsafe/checkout-risk-backend/internal/service/linkage"
	"github.com/marketsafe/checkout-risk-backend/internal/service/scoring"
	"github.com/marketsafe/checkout-risk-backend/internal/service/verification"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    "checkout-risk-api",
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	redisClient, err := cache.NewClient(cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisClient.Close()

	// Persistence.
	assessmentRepo := repository.NewAssessmentRepository(pool.Pgx())
	tokenRepo := repository.NewTokenRepository(pool.Pgx())
	linkRepo := repository.NewLinkRepository(pool.Pgx())

	// External collaborators.
	accounts := directory.NewAccountsClient(cfg.Directory.AccountsURL, cfg.Directory.Timeout, logger)
	orders := directory.NewOrdersClient(cfg.Directory.OrdersURL, cfg.Directory.Timeout, logger)
	advisorClient := advisor.NewClient(cfg.Justification.AdvisorURL, cfg.Justification.Timeout, logger)
	notifier := notify.NewLogNotifier(logger)

	reputation := cache.NewLayeredReputationChecker(
		cache.NewReputationChecker(redisClient, logger),
		cache.NewStaticLists(cfg.Reputation.Blacklist, cfg.Reputation.Suspicious),
		logger,
	)
	velocity := cache.NewVelocityChecker(redisClient, cfg.Velocity.Window, cfg.Velocity.MaxAttempts, logger)

	m := metrics.New()

	// Services.
	verificationSvc := verification.NewService(tokenRepo, assessmentRepo, notifier, cfg.Verification, logger)
	justificationSvc := justification.NewService(assessmentRepo, advisorClient, cfg.Justification.Timeout, logger)
	justificationSvc.SetRenderHook(m.RecordJustification)

	extractor := gate.NewExtractor(accounts, reputation, velocity, logger)
	engine := scoring.NewEngine(cfg.Risk)
	gateSvc := gate.NewService(engine, extractor, assessmentRepo, verificationSvc, justificationSvc, m, cfg.Gate, logger)
	linkageSvc := linkage.NewService(linkRepo, orders, logger)

	handler := rest.NewHandler(
		gateSvc,
		instrumentedVerification{svc: verificationSvc, metrics: m},
		instrumentedLinkage{svc: linkageSvc, metrics: m},
		justificationSvc,
		logger,
	)
	router := rest.NewRouter(rest.RouterConfig{
		Handler:         handler,
		Logger:          logger,
		Registry:        m.Registry(),
		VerifyRateLimit: cfg.RateLimit.RequestsPerSecond,
		VerifyRateBurst: cfg.RateLimit.BurstSize,
		ReadinessCheckers: map[string]rest.HealthChecker{
			"database": pool,
			"redis":    redisChecker{redisClient},
		},
	})

	server := rest.NewServer(cfg.Server, router, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting api server",
			zap.Int("port", cfg.Server.Port),
			zap.String("environment", cfg.Environment),
			zap.String("version", cfg.Version))
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// instrumentedVerification counts step-up submission outcomes.
type instrumentedVerification struct {
	svc     *verification.Service
	metrics *metrics.Metrics
}

func (v instrumentedVerification) Verify(ctx context.Context, tokenValue, code string) (*verification.VerifyResult, error) {
	result, err := v.svc.Verify(ctx, tokenValue, code)
	if err != nil {
		v.metrics.RecordVerification("rejected")
		return nil, err
	}
	v.metrics.RecordVerification("verified")
	return result, nil
}

// instrumentedLinkage counts applied linkages.
type instrumentedLinkage struct {
	svc     *linkage.Service
	metrics *metrics.Metrics
}

func (l instrumentedLinkage) Link(ctx context.Context, assessmentID uuid.UUID, orderIDs []uuid.UUID) (*linkage.LinkResult, error) {
	result, err := l.svc.Link(ctx, assessmentID, orderIDs)
	if err == nil {
		l.metrics.RecordLinkage()
	}
	return result, err
}

func (l instrumentedLinkage) Links(ctx context.Context, assessmentID uuid.UUID) ([]risk.OrderLink, []risk.StoreLink, error) {
	return l.svc.Links(ctx, assessmentID)
}

// redisChecker adapts the redis client to the readiness probe.
type redisChecker struct {
	client *redis.Client
}

func (r redisChecker) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.client.Ping(pingCtx).Err()
}
