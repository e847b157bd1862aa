package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/atelierhq/portal-server-go/internal/config"
	"github.com/atelierhq/portal-server-go/internal/database"
	"github.com/atelierhq/portal-server-go/internal/handler"
	"github.com/atelierhq/portal-server-go/internal/jobs"
	"github.com/atelierhq/portal-server-go/internal/middleware"
	"github.com/atelierhq/portal-server-go/internal/payments"
	"github.com/atelierhq/portal-server-go/internal/redis"
	"github.com/atelierhq/portal-server-go/internal/repository"
	"github.com/atelierhq/portal-server-go/internal/service"
	"github.com/atelierhq/portal-server-go/internal/sse"
	"github.com/atelierhq/portal-server-go/internal/storage"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	blobStore, err := storage.NewGCSStore(context.Background(), cfg.StorageBucket, cfg.StorageSignerEmail, cfg.StorageSignerKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize blob storage")
	}
	log.Info().Str("bucket", cfg.StorageBucket).Msg("blob storage ready")

	paymentProvider := payments.NewStripeClient(cfg.PaymentAPIKey)

	tokenRepo := repository.NewTokenRepository(db)
	identityRepo := repository.NewIdentityRepository(db.DB)
	orgRepo := repository.NewOrganizationRepository(db.DB)
	projectRepo := repository.NewProjectRepository(db.DB)
	messageRepo := repository.NewMessageRepository(db.DB)
	readStateRepo := repository.NewReadStateRepository(db.DB)
	uploadRepo := repository.NewUploadRepository(db.DB)
	documentRepo := repository.NewDocumentRepository(db.DB)
	invoiceRepo := repository.NewInvoiceRepository(db.DB)
	paymentRepo := repository.NewPaymentRepository(db.DB)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	accessService := service.NewAccessService(tokenRepo, identityRepo, projectRepo, invoiceRepo, uploadRepo, documentRepo)
	tokenService := service.NewTokenService(tokenRepo, identityRepo, cfg)
	messageService := service.NewMessageService(messageRepo, readStateRepo, broker)
	manifestService := service.NewManifestService(accessService, tokenService, messageService, orgRepo, projectRepo)
	uploadService := service.NewUploadService(uploadRepo, blobStore, cfg)
	documentService := service.NewDocumentService(documentRepo, blobStore, cfg)
	paymentService := service.NewPaymentService(invoiceRepo, paymentRepo, paymentProvider, cfg)

	portalAuthMiddleware := middleware.NewPortalAuthMiddleware(accessService)
	operatorAuthMiddleware := middleware.NewOperatorAuthMiddleware(cfg.OperatorKeyHash)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client, config.DefaultRateLimitPerMin)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(cfg.UploadMaxBytes + middleware.DefaultMaxBodySize)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	portalHandler := handler.NewPortalHandler(
		accessService, manifestService, messageService, uploadService, documentService, paymentService,
	)
	adminHandler := handler.NewAdminHandler(tokenService, messageService, projectRepo)
	eventsHandler := handler.NewEventsHandler(broker, accessService)
	webhookHandler := handler.NewWebhookHandler(paymentService, cfg.PaymentWebhookSecret)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/portal/api", func(r chi.Router) {
		r.Use(portalAuthMiddleware.Handler)
		r.Use(rateLimitMiddleware.Handler)
		r.Get("/projects/{projectID}/events", eventsHandler.ProjectEvents)
		r.Mount("/", portalHandler.Routes())
	})

	r.Route("/admin/api", func(r chi.Router) {
		r.Use(operatorAuthMiddleware.Handler)
		r.Get("/events", eventsHandler.OperatorEvents)
		r.Mount("/", adminHandler.Routes())
	})

	r.Post("/webhooks/payments", webhookHandler.HandlePaymentWebhook)

	reconcileJob := jobs.NewReconcileJob(paymentService, config.ReconcileJobInterval)
	reconcileJob.Start()
	defer reconcileJob.Stop()

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: config.ServerReadTimeout,
		// SSE connections stay open indefinitely.
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
