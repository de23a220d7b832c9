package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/importer"
)

// ImportService brings CSV files into storage and announces the change on
// the broker. Re-importing a file first drops the rows recorded under it,
// so an import is always a clean replace.
type ImportService struct {
	transactions TransactionRepository
	imports      ImportLog
	plans        PlanRepository
	events       EventPublisher
	workspace    string
}

func NewImportService(transactions TransactionRepository, imports ImportLog,
	plans PlanRepository, events EventPublisher, workspace string) *ImportService {
	return &ImportService{
		transactions: transactions,
		imports:      imports,
		plans:        plans,
		events:       events,
		workspace:    workspace,
	}
}

// ImportFile parses the CSV at path and replaces any rows previously
// imported from the same file name. The file either imports completely or
// not at all.
func (s *ImportService) ImportFile(ctx context.Context, path string) (core.ImportRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.ImportRecord{}, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	sourceFile := filepath.Base(path)
	transactions, err := importer.ParseCSV(f, sourceFile)
	if err != nil {
		return core.ImportRecord{}, fmt.Errorf("parse csv: %w", err)
	}

	replaced, err := s.transactions.DeleteBySourceFile(ctx, s.workspace, sourceFile)
	if err != nil {
		return core.ImportRecord{}, fmt.Errorf("clear previous import: %w", err)
	}
	if err := s.transactions.SaveTransactions(ctx, s.workspace, transactions); err != nil {
		return core.ImportRecord{}, fmt.Errorf("save transactions: %w", err)
	}

	record := core.ImportRecord{
		Workspace:        s.workspace,
		SourceFile:       sourceFile,
		TransactionCount: len(transactions),
		ImportedAt:       time.Now().UTC(),
	}
	if err := s.imports.RecordImport(ctx, record); err != nil {
		return core.ImportRecord{}, fmt.Errorf("record import: %w", err)
	}

	slog.InfoContext(ctx, "Import completed",
		"workspace", s.workspace,
		"source_file", sourceFile,
		"imported", len(transactions),
		"replaced", replaced)

	// Saved locally; a failed announcement must not fail the import.
	s.publish(ctx, amqp.NewImportCompletedEvent(s.workspace, sourceFile, len(transactions)))
	return record, nil
}

// ResetSourceFile removes everything imported from the named file.
func (s *ImportService) ResetSourceFile(ctx context.Context, sourceFile string) (int64, error) {
	removed, err := s.transactions.DeleteBySourceFile(ctx, s.workspace, sourceFile)
	if err != nil {
		return 0, fmt.Errorf("reset source file: %w", err)
	}

	slog.InfoContext(ctx, "Source file reset",
		"workspace", s.workspace,
		"source_file", sourceFile,
		"removed", removed)

	if removed > 0 {
		s.publish(ctx, amqp.NewImportCompletedEvent(s.workspace, sourceFile, 0))
	}
	return removed, nil
}

// SavePlan stores the plan and announces the change.
func (s *ImportService) SavePlan(ctx context.Context, plan core.BudgetPlan) error {
	if err := s.plans.SavePlan(ctx, s.workspace, plan); err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	s.publish(ctx, amqp.NewPlanChangedEvent(s.workspace, plan.ID))
	return nil
}

// History returns the workspace's import log, newest first.
func (s *ImportService) History(ctx context.Context) ([]core.ImportRecord, error) {
	return s.imports.ListImports(ctx, s.workspace)
}

func (s *ImportService) publish(ctx context.Context, event *amqp.ChangeEvent) {
	if s.events == nil {
		slog.WarnContext(ctx, "Event publisher not available, skipping change event",
			"kind", event.Kind)
		return
	}
	if err := s.events.PublishChangeEvent(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish change event",
			"kind", event.Kind,
			"error", err)
	}
}
