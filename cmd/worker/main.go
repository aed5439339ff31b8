package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/medtrack/server/internal/blob"
	"github.com/medtrack/server/internal/config"
	"github.com/medtrack/server/internal/repository/postgres"
	"github.com/medtrack/server/pkg/logger"
	messagingredis "github.com/medtrack/server/pkg/messaging/redis"
	"github.com/medtrack/server/pkg/metrics"
	"github.com/medtrack/server/pkg/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	m := metrics.NewMetrics("medtrack", "worker")
	gate := postgres.NewTenantGate(db, m)
	outboxRepo := postgres.NewOutboxRepository(db)
	documentRepo := postgres.NewDocumentRepository(gate, db)

	zl := log.Logger
	broker, err := messagingredis.NewRedisBroker(messagingredis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &zl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis broker")
	}
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blobStore, err := blob.NewS3Store(ctx, cfg.Blob, m)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize blob store")
	}

	outbox := worker.NewOutboxProcessor(outboxRepo, broker, worker.OutboxProcessorConfig{
		BatchSize:    cfg.Outbox.BatchSize,
		PollInterval: cfg.Outbox.PollInterval,
		MaxRetries:   cfg.Outbox.MaxRetries,
	}, appLogger, m)

	cleanup := worker.NewBlobCleanup(documentRepo, blobStore, worker.BlobCleanupConfig{
		BatchSize:    cfg.Cleanup.BatchSize,
		PollInterval: cfg.Cleanup.PollInterval,
		MaxAttempts:  cfg.Cleanup.MaxAttempts,
	}, appLogger, m)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		outbox.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down workers")
	cancel()
	wg.Wait()
}
