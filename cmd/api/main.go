package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/recaudo-api/internal/application/reconciliation"
	"github.com/jhoicas/recaudo-api/internal/infrastructure/gmail"
	"github.com/jhoicas/recaudo-api/internal/infrastructure/ocr"
	"github.com/jhoicas/recaudo-api/internal/infrastructure/pdftext"
	"github.com/jhoicas/recaudo-api/internal/infrastructure/postgres"
	"github.com/jhoicas/recaudo-api/internal/infrastructure/storage"
	httpRouter "github.com/jhoicas/recaudo-api/internal/interfaces/http"
	"github.com/jhoicas/recaudo-api/pkg/config"
	"github.com/jhoicas/recaudo-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	evidenceRepo := postgres.NewEvidenceRepository(pool)
	invoiceRepo := postgres.NewInvoiceRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	mailClient, err := gmail.NewClient(ctx, cfg.Mail)
	if err != nil {
		log.Fatal().Err(err).Msg("cliente Gmail")
	}
	visionOCR, err := ocr.NewGoogleVision(ctx, cfg.OCR)
	if err != nil {
		log.Fatal().Err(err).Msg("cliente Vision OCR")
	}
	defer visionOCR.Close()
	fileStore, err := storage.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("almacenamiento S3")
	}

	extractor := reconciliation.NewDocumentExtractor(pdftext.NewReader(), visionOCR, log.Component("extractor"))
	ingestUC := reconciliation.NewIngestUseCase(
		evidenceRepo, invoiceRepo, mailClient, extractor, fileStore,
		reconciliation.IngestConfig{
			Account:        cfg.Mail.Account,
			Query:          cfg.Mail.Query,
			TrustedSenders: cfg.Mail.TrustedSenders,
			MaxParallel:    cfg.Mail.MaxParallel,
		},
		log.Component("ingest"),
	)
	matchUC := reconciliation.NewMatchUseCase(evidenceRepo, invoiceRepo, txRunner, log.Component("match"))
	ledgerUC := reconciliation.NewLedgerUseCase(txRunner, evidenceRepo, mailClient, fileStore, extractor, log.Component("ledger"))

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30, // la ingesta puede tardar
		IdleTimeout:  time.Second * 60,
		BodyLimit:    25 * 1024 * 1024, // comprobantes subidos en base64
	})
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		IngestUC:    ingestUC,
		MatchUC:     matchUC,
		LedgerUC:    ledgerUC,
		InvoiceRepo: invoiceRepo,
		JWTSecret:   cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("apagando servidor")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}
