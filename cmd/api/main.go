package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/medtrack/server/internal/blob"
	"github.com/medtrack/server/internal/cache"
	"github.com/medtrack/server/internal/config"
	appointmentHandler "github.com/medtrack/server/internal/handler/appointment"
	authHandler "github.com/medtrack/server/internal/handler/auth"
	documentHandler "github.com/medtrack/server/internal/handler/document"
	healthHandler "github.com/medtrack/server/internal/handler/health"
	medicationHandler "github.com/medtrack/server/internal/handler/medication"
	userHandler "github.com/medtrack/server/internal/handler/user"
	"github.com/medtrack/server/internal/identity"
	"github.com/medtrack/server/internal/middleware"
	"github.com/medtrack/server/internal/repository/postgres"
	"github.com/medtrack/server/internal/router"
	appointmentService "github.com/medtrack/server/internal/service/appointment"
	auditService "github.com/medtrack/server/internal/service/audit"
	documentService "github.com/medtrack/server/internal/service/document"
	eventService "github.com/medtrack/server/internal/service/event"
	medicationService "github.com/medtrack/server/internal/service/medication"
	roleService "github.com/medtrack/server/internal/service/role"
	userService "github.com/medtrack/server/internal/service/user"
	"github.com/medtrack/server/pkg/logger"
	"github.com/medtrack/server/pkg/metrics"
	"github.com/medtrack/server/pkg/security"
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

	m := metrics.NewMetrics("medtrack", "api")
	gate := postgres.NewTenantGate(db, m)

	userRepo := postgres.NewUserRepository(gate)
	medicationRepo := postgres.NewMedicationRepository(gate)
	doseRepo := postgres.NewDoseRepository(gate)
	appointmentRepo := postgres.NewAppointmentRepository(gate)
	documentRepo := postgres.NewDocumentRepository(gate, db)
	outboxRepo := postgres.NewOutboxRepository(db)
	auditRepo := postgres.NewAuditRepository(gate)

	var sessionStore cache.Store
	var redisClient *goredis.Client
	if cfg.Redis.URL != "" {
		sessionStore, err = cache.NewRedisStore(cfg.Redis.URL, "medtrack")
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		opts, perr := goredis.ParseURL(cfg.Redis.URL)
		if perr != nil {
			log.Fatal().Err(perr).Msg("failed to parse redis url")
		}
		redisClient = goredis.NewClient(opts)
	} else {
		sessionStore = cache.NewMemoryStore()
	}

	key, err := security.DeriveKey([]byte(cfg.Cache.DeviceSecret), []byte(cfg.Cache.KeySalt))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to derive encryption key")
	}
	encryptor, err := security.NewAESEncryptor(key)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize encryptor")
	}

	ctx := context.Background()
	blobStore, err := blob.NewS3Store(ctx, cfg.Blob, m)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize blob store")
	}

	identityClient := identity.NewClient(cfg.Identity.BaseURL, cfg.Identity.RequestTimeout)
	bridge := identity.NewBridge(identityClient, sessionStore, encryptor, appLogger, m)
	if err := bridge.Resolve(ctx); err != nil {
		appLogger.Warn("failed to restore persisted session", "error", err.Error())
	}
	recovery := identity.NewRecovery(sessionStore, appLogger)

	auditor := auditService.NewService(auditRepo, appLogger)
	events := eventService.NewService(outboxRepo)
	users := userService.NewService(userRepo, auditor)
	roles := roleService.NewService(bridge, users, sessionStore, appLogger, m)
	medications := medicationService.NewService(medicationRepo, doseRepo, auditor, events)
	appointments := appointmentService.NewService(appointmentRepo, auditor, events)
	documents := documentService.NewService(documentRepo, blobStore, auditor, appLogger)

	authMw := middleware.NewAuthMiddleware(cfg.Identity.JWTSecret, users)

	r := router.NewRouter(
		authMw,
		healthHandler.NewHandler(db, redisClient),
		authHandler.NewHandler(identityClient, bridge, recovery, users, roles, appLogger),
		router.Config{
			RequestsPerSec: cfg.Server.RequestsPerSec,
			Burst:          cfg.Server.Burst,
			CORS:           middleware.DefaultCORSConfig(),
			MetricsPrefix:  "medtrack",
		},
		userHandler.NewHandler(users),
		medicationHandler.NewHandler(medications),
		appointmentHandler.NewHandler(appointments),
		documentHandler.NewHandler(documents),
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting api server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
}
