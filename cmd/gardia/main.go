package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/gardia-secu/gardia/internal/app"
	"github.com/gardia-secu/gardia/internal/catalog"
	"github.com/gardia-secu/gardia/internal/devis"
	"github.com/gardia-secu/gardia/internal/intro"
	"github.com/gardia-secu/gardia/internal/notify"
	"github.com/gardia-secu/gardia/internal/payment"
	"github.com/gardia-secu/gardia/internal/pdf"
	"github.com/gardia-secu/gardia/internal/platform/cache"
	"github.com/gardia-secu/gardia/internal/platform/db"
	"github.com/gardia-secu/gardia/internal/publicview"
	"github.com/gardia-secu/gardia/internal/render"
	"github.com/gardia-secu/gardia/internal/storage"
	"github.com/gardia-secu/gardia/jobs"
	"github.com/gardia-secu/gardia/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, migrations.FS, "."); err != nil {
		logger.Error("apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, catalog cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, redisClient, logger)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	notifyRepo := notify.NewRepository(pool)
	notifyService := notify.NewService(notifyRepo)
	notifyHandler := notify.NewHandler(logger, notifyService)

	var introGenerator devis.IntroGenerator
	if cfg.GeminiAPIKey != "" {
		gen, err := intro.NewGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Warn("intro generator unavailable", slog.Any("error", err))
		} else {
			introGenerator = gen
		}
	}

	var signatures devis.SignatureStore
	if cfg.MinioAccessKey != "" {
		store, err := storage.NewSignatureStore(ctx, storage.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			logger.Warn("signature store unavailable", slog.Any("error", err))
		} else {
			signatures = store
		}
	}

	enqueuer := jobs.NewEnqueuer(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := enqueuer.Close(); err != nil {
			logger.Warn("enqueuer close", slog.Any("error", err))
		}
	}()

	devisRepo := devis.NewRepository(pool)
	devisService := devis.NewService(devis.ServiceParams{
		Repo:       devisRepo,
		Products:   catalogService,
		Notifier:   notifyService,
		Tasks:      enqueuer,
		Intro:      introGenerator,
		Signatures: signatures,
		Logger:     logger,
	})

	documentBuilder := render.NewBuilder(catalogService, cfg.PublicBaseURL)
	renderer, err := render.NewService(documentBuilder, pdf.NewGotenberg(cfg.GotenbergURL))
	if err != nil {
		logger.Error("build renderer", slog.Any("error", err))
		os.Exit(1)
	}

	devisHandler := devis.NewHandler(logger, devisService, renderer)

	var paymentBuilder *payment.Builder
	if cfg.SystemPaySiteID != "" {
		paymentBuilder = payment.NewBuilder(payment.Config{
			SiteID:      cfg.SystemPaySiteID,
			Certificate: cfg.SystemPayCertificate,
			Mode:        cfg.SystemPayMode,
		})
	}

	publicService := publicview.NewService(devisService, devisRepo, catalogService, paymentBuilder, logger)
	publicHandler := publicview.NewHandler(logger, publicService, renderer)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		CatalogHandler: catalogHandler,
		DevisHandler:   devisHandler,
		PublicHandler:  publicHandler,
		NotifyHandler:  notifyHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
