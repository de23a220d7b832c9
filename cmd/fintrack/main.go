package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fintrack/internal/amqp"
	"fintrack/internal/config"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

const shutdownTimeout = 30 * time.Second

// repository is the full storage surface the API server needs.
type repository interface {
	services.TransactionRepository
	services.PlanRepository
	services.ImportLog
	Close() error
}

func main() {
	// Load .env for local development; in containers the variables are set.
	_ = godotenv.Load()

	logger := log.New(log.ComponentHTTP, log.ParseLevel(os.Getenv("LOG_LEVEL")))
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	store, err := openStore(cfg)
	if err != nil {
		logger.Error("Failed to initialize storage", "backend", cfg.DataBackend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to connect to AMQP broker", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		publisher = client
		logger.Info("Change events enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled, change events will not be published")
	}

	dashboards := services.NewDashboardService(store, store, cfg.Workspace, cfg.BaseCurrency,
		cfg.ParsedInterval(), cfg.CustomIntervalDays)
	imports := services.NewImportService(store, store, store, publisher, cfg.Workspace)

	readyCheck := func(ctx context.Context) error {
		_, err := store.CountTransactions(ctx, cfg.Workspace)
		return err
	}

	srv := apphttp.NewServer(cfg, dashboards, imports, logger, readyCheck)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}()

	logger.Info("Starting fintrack",
		"port", cfg.Port,
		"workspace", cfg.Workspace,
		"interval", cfg.Interval,
		"backend", cfg.DataBackend)
	if err := srv.Start(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func openStore(cfg *config.Config) (repository, error) {
	switch cfg.DataBackend {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "sqlite":
		return storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	default:
		return nil, fmt.Errorf("unknown data backend %q", cfg.DataBackend)
	}
}
