// Package main is the entry point for the jobtrail quota API server.
//
// It loads configuration, connects the document store (usage ledgers, tier
// catalog) and PostgreSQL (jobs, users, sessions), wires the quota engine
// with its AWS and billing collaborators, and serves the HTTP API with
// graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"

	"jobtrail/internal/api/handlers"
	"jobtrail/internal/auth"
	"jobtrail/internal/catalog"
	"jobtrail/internal/config"
	"jobtrail/internal/core"
	"jobtrail/internal/db"
	"jobtrail/internal/external"
	"jobtrail/internal/ledger"
	"jobtrail/internal/metrics"
	"jobtrail/internal/queue"
	"jobtrail/internal/quota"
)

// catalogCacheTTL bounds how long a replaced tier catalog can keep serving
// from the in-process cache on instances that did not take the write.
const catalogCacheTTL = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("jobtrail API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Document store: usage ledgers and the tier catalog.
	mongoClient, err := mongo.Connect(mongooptions.Client().
		ApplyURI(cfg.Mongo.URI.Unmask()).
		SetConnectTimeout(cfg.Mongo.ConnectTimeout))
	if err != nil {
		return fmt.Errorf("connecting to document store: %w", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logger.Error("document store disconnect error", "error", err)
		}
	}()

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Mongo.ConnectTimeout)
	err = mongoClient.Ping(pingCtx, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("pinging document store: %w", err)
	}
	mongoDB := mongoClient.Database(cfg.Mongo.Database)

	// PostgreSQL: jobs, user directory, sessions.
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		return fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("creating database pool: %w", err)
	}
	defer pool.Close()

	// Stores.
	ledgerStore := ledger.NewStore(mongoDB)
	if err := ledgerStore.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensuring ledger indexes: %w", err)
	}
	catalogStore := catalog.NewStore(mongoDB)
	if err := catalogStore.Seed(ctx); err != nil {
		return fmt.Errorf("seeding tier catalog: %w", err)
	}
	catalogSource := catalog.NewCachedSource(catalogStore, catalogCacheTTL)

	jobRepo := db.NewJobRepo(pool)
	userDir := db.NewUserDirectory(pool)
	sessionRepo := db.NewSessionRepo(pool)

	// AWS collaborators. Both are optional: with no queue URL the publisher
	// stays silent, and metric failures never surface to callers.
	awsOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}

	sqsOpts := []func(*sqs.Options){}
	cwOpts := []func(*cloudwatch.Options){}
	if cfg.AWS.EndpointURL != "" {
		sqsOpts = append(sqsOpts, func(o *sqs.Options) { o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL) })
		cwOpts = append(cwOpts, func(o *cloudwatch.Options) { o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL) })
	}
	notifier := queue.NewNotifier(sqs.NewFromConfig(awsCfg, sqsOpts...), cfg.AWS.NotificationQueueURL, logger)
	collector := metrics.NewCloudWatchCollector(cloudwatch.NewFromConfig(awsCfg, cwOpts...), cfg.AWS.MetricNamespace, logger)

	// Billing collaborator: advisory period-end lookups for reset alignment.
	var billing quota.BillingPeriods
	if cfg.Billing.StripeSecretKey.Unmask() != "" {
		billing = external.NewStripeClient(&http.Client{Timeout: 15 * time.Second}, cfg.Billing.StripeSecretKey)
	}
	resetPolicy := quota.NewResetPolicy(cfg.Quota.ResetWindow, userDir, billing, logger)

	engine := quota.NewEngine(ledgerStore, userDir, jobRepo, catalogSource, resetPolicy, collector, notifier, logger)
	queries := quota.NewQueryService(ledgerStore, userDir, jobRepo, catalogSource, resetPolicy, logger)

	var contacts handlers.ContactFinder
	if cfg.Hunter.APIKey.Unmask() != "" {
		contacts = external.NewHunterClient(&http.Client{Timeout: 15 * time.Second}, cfg.Hunter.BaseURL, cfg.Hunter.APIKey)
	}

	// HTTP server.
	authService := auth.NewService(sessionRepo, logger)
	srv, err := core.NewServer(cfg, logger, authService)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	quotaHandler := handlers.NewQuotaHandler(queries, logger)
	actionsHandler := handlers.NewActionsHandler(engine, contacts, srv.Validator, logger)
	jobsHandler := handlers.NewJobsHandler(engine, jobRepo, srv.Validator, logger)
	adminHandler := handlers.NewAdminHandler(catalogStore, catalogSource, srv.Validator, srv.RequireAdmin, logger)

	srv.MountRoutes(
		quotaHandler.RegisterRoutes,
		actionsHandler.RegisterRoutes,
		jobsHandler.RegisterRoutes,
		adminHandler.RegisterRoutes,
	)

	return serveHTTP(ctx, srv, cfg, logger)
}

// serveHTTP runs the HTTP listener until the signal context fires or the
// server fails, then shuts down gracefully.
func serveHTTP(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
