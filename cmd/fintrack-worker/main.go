package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fintrack/internal/amqp"
	"fintrack/internal/config"
	"fintrack/internal/export"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
	"fintrack/internal/worker"
)

const shutdownGrace = 5 * time.Second

func main() {
	_ = godotenv.Load()

	logger := log.New(log.ComponentWorker, log.ParseLevel(os.Getenv("LOG_LEVEL")))
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required, the worker consumes change events from the broker")
		os.Exit(1)
	}
	if cfg.DataBackend != "sqlite" {
		logger.Error("The worker needs the sqlite backend to share data with the API server",
			"backend", cfg.DataBackend)
		os.Exit(1)
	}

	store, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize storage", "path", cfg.SQLiteDBPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect to AMQP broker", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var exporter worker.TimelineExporter
	if cfg.GoogleSpreadsheetID != "" {
		sheetsExporter, err := export.NewSheetsExporter(ctx,
			cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, cfg.GoogleCredentialsFile)
		if err != nil {
			logger.Error("Failed to initialize Sheets exporter", "error", err)
			os.Exit(1)
		}
		exporter = sheetsExporter
		logger.Info("Timeline export enabled",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"sheet", cfg.GoogleSheetName)
	} else {
		logger.Info("Timeline export disabled, no GOOGLE_SPREADSHEET_ID provided")
	}

	dashboards := services.NewDashboardService(store, store, cfg.Workspace, cfg.BaseCurrency,
		cfg.ParsedInterval(), cfg.CustomIntervalDays)
	refresher := worker.NewRefreshWorker(dashboards, cfg.Workspace, exporter)

	go func() {
		handler := func(event *amqp.ChangeEvent) error {
			return refresher.HandleChangeEvent(ctx, event)
		}
		if err := client.ConsumeChangeEvents(ctx, handler); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("Event consumption failed", "error", err)
			}
			cancel()
		}
	}()

	logger.Info("Worker started",
		"workspace", cfg.Workspace,
		"queue", cfg.AMQPQueue)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Consumer stopped")
	}

	cancel()
	time.Sleep(shutdownGrace)
	logger.Info("Worker stopped")
}
