package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/gardia-secu/gardia/internal/app"
	"github.com/gardia-secu/gardia/internal/catalog"
	"github.com/gardia-secu/gardia/internal/devis"
	"github.com/gardia-secu/gardia/internal/erp"
	"github.com/gardia-secu/gardia/internal/mailer"
	"github.com/gardia-secu/gardia/internal/pdf"
	"github.com/gardia-secu/gardia/internal/platform/db"
	"github.com/gardia-secu/gardia/internal/render"
	"github.com/gardia-secu/gardia/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, nil, logger)

	devisRepo := devis.NewRepository(pool)
	devisService := devis.NewService(devis.ServiceParams{
		Repo:     devisRepo,
		Products: catalogService,
		Logger:   logger,
	})

	documentBuilder := render.NewBuilder(catalogService, cfg.PublicBaseURL)
	renderer, err := render.NewService(documentBuilder, pdf.NewGotenberg(cfg.GotenbergURL))
	if err != nil {
		logger.Error("build renderer", slog.Any("error", err))
		os.Exit(1)
	}

	var erpClient jobs.ERPPusher
	if cfg.ExtrabatBaseURL != "" {
		erpClient = erp.NewClient(cfg.ExtrabatBaseURL, cfg.ExtrabatAPIKey)
	}

	handlers := jobs.NewHandlers(jobs.HandlersParams{
		Devis:    devisService,
		Repo:     devisRepo,
		Renderer: renderer,
		Mailer: mailer.New(mailer.Config{
			Host:      cfg.SMTPHost,
			Port:      cfg.SMTPPort,
			Username:  cfg.SMTPUsername,
			Password:  cfg.SMTPPassword,
			FromName:  cfg.SMTPFromName,
			FromEmail: cfg.SMTPFrom,
		}),
		ERP:           erpClient,
		CompanyEmail:  cfg.CompanyEmail,
		PublicBaseURL: cfg.PublicBaseURL,
		Logger:        logger,
	})

	worker := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Handlers:  handlers,
		Logger:    logger,
	})

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker shut down")
}
