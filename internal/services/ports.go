package services

import (
	"context"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
)

// Ports for outbound adapters. The SQLite and memory stores implement the
// repository interfaces; the broker client implements EventPublisher.
type (
	TransactionRepository interface {
		SaveTransactions(ctx context.Context, workspace string, txs []core.Transaction) error
		ListTransactions(ctx context.Context, workspace string) ([]core.Transaction, error)
		TransactionsInRange(ctx context.Context, workspace string, start, end time.Time) ([]core.Transaction, error)
		CountTransactions(ctx context.Context, workspace string) (int64, error)
		DeleteBySourceFile(ctx context.Context, workspace, sourceFile string) (int64, error)
	}

	PlanRepository interface {
		SavePlan(ctx context.Context, workspace string, plan core.BudgetPlan) error
		// PlanForDate returns core.ErrPlanNotFound when no plan covers the date.
		PlanForDate(ctx context.Context, workspace string, date time.Time) (core.BudgetPlan, error)
		ListPlans(ctx context.Context, workspace string) ([]core.BudgetPlan, error)
	}

	ImportLog interface {
		RecordImport(ctx context.Context, record core.ImportRecord) error
		ListImports(ctx context.Context, workspace string) ([]core.ImportRecord, error)
	}

	EventPublisher interface {
		PublishChangeEvent(ctx context.Context, event *amqp.ChangeEvent) error
	}
)
