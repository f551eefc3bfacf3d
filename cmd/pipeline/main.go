// Package main is the entry point for the forex collection pipeline.
// One invocation performs one collection run: extract from the historical
// dataset, the rates API and the scraped rates page, persist everything
// locally, then replicate best-effort to the remote backend. Scheduling is
// external (cron or on-demand); the process has no internal scheduler.
//
// Exit status is zero for any completed run, including runs with partial
// source failures. Non-zero means an unrecoverable fault: configuration,
// opening the local store, or a local persistence failure.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gervais-amoah/finance-pipeline/internal/alerting"
	"github.com/gervais-amoah/finance-pipeline/internal/archive"
	"github.com/gervais-amoah/finance-pipeline/internal/clients/frankfurter"
	"github.com/gervais-amoah/finance-pipeline/internal/clients/supabase"
	"github.com/gervais-amoah/finance-pipeline/internal/clients/xrates"
	"github.com/gervais-amoah/finance-pipeline/internal/config"
	"github.com/gervais-amoah/finance-pipeline/internal/database"
	"github.com/gervais-amoah/finance-pipeline/internal/modules/history"
	"github.com/gervais-amoah/finance-pipeline/internal/modules/rates"
	"github.com/gervais-amoah/finance-pipeline/internal/pipeline"
	"github.com/gervais-amoah/finance-pipeline/internal/reliability"
	"github.com/gervais-amoah/finance-pipeline/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting forex collection pipeline")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(database.Config{
		Path: cfg.DatabasePath(),
		Name: "forex",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open local store")
	}
	defer db.Close()

	if err := db.HealthCheck(ctx); err != nil {
		log.Fatal().Err(err).Msg("Local store failed its health check")
	}
	log.Info().Str("database", db.Name()).Str("path", db.Path()).Msg("Local store ready")

	repo := rates.NewRepository(db.Conn(), log)
	if err := repo.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare local store schema")
	}

	alerter := alerting.NewEmailAlerter(cfg.SMTP, log)
	archiver := archive.NewWriter(cfg.ProcessedDir(), log)

	extractors := []pipeline.Extractor{
		history.NewLoader(cfg.HistoryCSVPath, cfg.LookbackMonths, log),
		frankfurter.NewClient(cfg.RatesAPIURL, cfg.BaseCurrency, cfg.QuoteSymbols,
			cfg.LookbackMonths, cfg.HTTPTimeout, log),
		xrates.NewScraper(cfg.ScrapeURL, cfg.HTTPTimeout, log),
	}

	var forwarder pipeline.Forwarder
	if cfg.Remote.Enabled() {
		forwarder = supabase.NewClient(cfg.Remote.URL, cfg.Remote.Key, cfg.Remote.Table,
			cfg.HTTPTimeout, log)
	} else {
		log.Warn().Msg("Remote backend not configured, forwarding disabled")
	}

	var replicator pipeline.Replicator
	if cfg.Archive.Enabled() {
		s3Client, err := reliability.NewS3Client(ctx, cfg.Archive.Endpoint,
			cfg.Archive.AccessKeyID, cfg.Archive.SecretAccessKey, cfg.Archive.Bucket, log)
		if err != nil {
			// Replication is best-effort; run without it rather than abort
			log.Error().Err(err).Msg("Failed to create S3 client, archive replication disabled")
		} else {
			replicator = reliability.NewArchiveBackupService(s3Client, cfg.ProcessedDir(), log)
		}
	}

	p := pipeline.New(pipeline.Deps{
		Extractors: extractors,
		Store:      repo,
		Archiver:   archiver,
		Forwarder:  forwarder,
		Replicator: replicator,
		Alerter:    alerter,
		Log:        log,
	})

	status, err := p.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Pipeline run failed")
		db.Close()
		os.Exit(1)
	}

	log.Info().Str("status", string(status)).Msg("Pipeline run completed")
}
