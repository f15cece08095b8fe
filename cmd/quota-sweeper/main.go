// Package main is the entrypoint for the quota-sweeper Lambda function.
//
// EventBridge invokes it on a schedule. Each run rolls over usage ledgers
// whose period has elapsed so that users who were inactive at their reset
// date still start their next period clean, then purges expired sessions.
// When an archive path is configured, pre-rollover snapshots are appended to
// a zstd-compressed NDJSON file for offline analysis.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"

	"jobtrail/internal/config"
	"jobtrail/internal/db"
	"jobtrail/internal/external"
	"jobtrail/internal/ledger"
	"jobtrail/internal/quota"
	"jobtrail/internal/scheduler"
)

// SweepPayload is the EventBridge invocation payload. ReferenceTime is for
// replaying a sweep against a fixed clock; normal scheduled runs omit it.
type SweepPayload struct {
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// SessionPurger removes expired sessions. Implemented by db.SessionRepo.
type SessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Handler holds the dependencies for the sweeper Lambda handler function.
// They are initialized once during cold start and reused across invocations.
type Handler struct {
	Store       scheduler.SweepStore
	Reset       scheduler.ResetScheduler
	Sessions    SessionPurger
	BatchSize   int
	ArchivePath string
	Logger      *slog.Logger
}

// Handle runs one sweep cycle: roll over stale ledgers, then purge expired
// sessions. Session purge failures do not fail the invocation; the rollover
// is the job EventBridge retries for.
func (h *Handler) Handle(ctx context.Context, payload SweepPayload) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := time.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	logger.InfoContext(ctx, "quota sweep starting",
		"reference_time", now.Format(time.RFC3339),
	)

	sink, closeSink, err := h.openArchive()
	if err != nil {
		return "", fmt.Errorf("opening archive: %w", err)
	}
	if closeSink != nil {
		defer closeSink()
	}

	sweeper := scheduler.NewSweeper(h.Store, h.Reset, sink, h.BatchSize, logger)
	rolled, err := sweeper.Sweep(ctx, now)
	if err != nil {
		return "", fmt.Errorf("sweeping stale ledgers: %w", err)
	}

	if h.Sessions != nil {
		purged, err := h.Sessions.DeleteExpired(ctx, now)
		if err != nil {
			logger.ErrorContext(ctx, "failed to purge expired sessions", "error", err)
		} else if purged > 0 {
			logger.InfoContext(ctx, "expired sessions purged", "count", purged)
		}
	}

	result := fmt.Sprintf("sweep complete: %d ledgers rolled over", rolled)
	logger.InfoContext(ctx, result, "rolled", rolled)
	return result, nil
}

// openArchive opens the configured snapshot archive in append mode. Returns
// a nil sink when archival is disabled.
func (h *Handler) openArchive() (scheduler.ArchiveSink, func(), error) {
	if h.ArchivePath == "" {
		return nil, nil, nil
	}

	f, err := os.OpenFile(h.ArchivePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	arch, err := scheduler.NewSnapshotArchiver(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	closeFn := func() {
		if err := arch.Close(); err != nil {
			h.Logger.Error("failed to close snapshot archive", "error", err)
		}
	}
	return arch, closeFn, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("quota-sweeper Lambda initializing (cold start)")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	mongoClient, err := mongo.Connect(mongooptions.Client().
		ApplyURI(cfg.Mongo.URI.Unmask()).
		SetConnectTimeout(cfg.Mongo.ConnectTimeout))
	if err != nil {
		logger.Error("failed to connect to document store", "error", err)
		os.Exit(1)
	}
	ledgerStore := ledger.NewStore(mongoClient.Database(cfg.Mongo.Database))

	pool, err := pgxpool.New(ctx, cfg.Database.URL.Unmask())
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	userDir := db.NewUserDirectory(pool)
	sessionRepo := db.NewSessionRepo(pool)

	var billing quota.BillingPeriods
	if cfg.Billing.StripeSecretKey.Unmask() != "" {
		billing = external.NewStripeClient(&http.Client{Timeout: 15 * time.Second}, cfg.Billing.StripeSecretKey)
	}
	resetPolicy := quota.NewResetPolicy(cfg.Quota.ResetWindow, userDir, billing, logger)

	handler := &Handler{
		Store:       ledgerStore,
		Reset:       resetPolicy,
		Sessions:    sessionRepo,
		BatchSize:   cfg.Quota.SweepBatchSize,
		ArchivePath: cfg.Quota.ArchivePath,
		Logger:      logger,
	}

	logger.Info("quota-sweeper Lambda initialized")
	lambda.Start(handler.Handle)
}
