package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/station-pivot-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/station-pivot-etl/internal/adapter/kafka"
	"github.com/couchcryptid/station-pivot-etl/internal/archive"
	"github.com/couchcryptid/station-pivot-etl/internal/config"
	"github.com/couchcryptid/station-pivot-etl/internal/loader"
	"github.com/couchcryptid/station-pivot-etl/internal/observability"
	"github.com/couchcryptid/station-pivot-etl/internal/pipeline"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// Summary publishing is feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS.
	var publisher pipeline.SummaryPublisher
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("run summary publishing enabled", "topic", cfg.KafkaSummaryTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("run summary publishing disabled")
	}

	settings := pipeline.DefaultSettings()
	settings.WorkspaceDir = cfg.WorkspaceDir
	settings.Schema = cfg.Schema()
	settings.SheetName = cfg.SheetName

	p := pipeline.New(
		archive.NewUnpacker(cfg.MaxExtractedBytes, logger),
		loader.New(settings.Schema, logger),
		pipeline.XLSXWriter{},
		publisher,
		settings,
		logger,
		metrics,
	)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, httpadapter.Defaults{
		MinCompleteness: cfg.DefaultMinCompleteness,
		PreviewRows:     cfg.PreviewRows,
		MaxUploadBytes:  cfg.MaxUploadBytes,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
