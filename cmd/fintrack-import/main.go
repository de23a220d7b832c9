package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"fintrack/internal/amqp"
	"fintrack/internal/config"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// fintrack-import manages workspace data from the command line: CSV imports,
// import resets and budget plan loading. It writes to the same database as
// the API server and announces changes on the broker when one is configured.
func main() {
	_ = godotenv.Load()

	var (
		importPath = flag.String("file", "", "CSV file to import")
		resetFile  = flag.String("reset", "", "remove every transaction imported from this file name")
		planPath   = flag.String("plan", "", "JSON file with a budget plan (or an array of plans) to load")
		history    = flag.Bool("history", false, "print the import log and exit")
	)
	flag.Parse()

	logger := log.New(log.ComponentImporter, log.ParseLevel(os.Getenv("LOG_LEVEL")))
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	store, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			fmt.Fprintf(os.Stderr, "connect to broker: %v\n", err)
			os.Exit(1)
		}
		defer client.Close()
		publisher = client
	}

	svc := services.NewImportService(store, store, store, publisher, cfg.Workspace)
	ctx := context.Background()

	switch {
	case *history:
		printHistory(ctx, svc)
	case *importPath != "":
		record, err := svc.ImportFile(ctx, *importPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("imported %d transactions from %s into workspace %s\n",
			record.TransactionCount, record.SourceFile, record.Workspace)
	case *resetFile != "":
		removed, err := svc.ResetSourceFile(ctx, *resetFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reset failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("removed %d transactions imported from %s\n", removed, *resetFile)
	case *planPath != "":
		loaded, err := loadPlans(ctx, svc, *planPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "plan load failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("loaded %d budget plan(s)\n", loaded)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func printHistory(ctx context.Context, svc *services.ImportService) {
	records, err := svc.History(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "history failed: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Println("no imports recorded")
		return
	}
	for _, r := range records {
		fmt.Printf("%s  %-30s %5d rows\n",
			r.ImportedAt.Format("2006-01-02 15:04"), r.SourceFile, r.TransactionCount)
	}
}

// loadPlans accepts a single plan object or an array of plans.
func loadPlans(ctx context.Context, svc *services.ImportService, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read plan file: %w", err)
	}

	var plans []core.BudgetPlan
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &plans); err != nil {
			return 0, fmt.Errorf("parse plan array: %w", err)
		}
	} else {
		var plan core.BudgetPlan
		if err := json.Unmarshal(trimmed, &plan); err != nil {
			return 0, fmt.Errorf("parse plan: %w", err)
		}
		plans = append(plans, plan)
	}

	for _, plan := range plans {
		if err := svc.SavePlan(ctx, plan); err != nil {
			return 0, fmt.Errorf("save plan %q: %w", plan.ID, err)
		}
	}
	return len(plans), nil
}
