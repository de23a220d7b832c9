package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// repository is the method set shared by the SQLite and memory backends.
type repository interface {
	SaveTransactions(ctx context.Context, workspace string, txs []core.Transaction) error
	ListTransactions(ctx context.Context, workspace string) ([]core.Transaction, error)
	TransactionsInRange(ctx context.Context, workspace string, start, end time.Time) ([]core.Transaction, error)
	CountTransactions(ctx context.Context, workspace string) (int64, error)
	DeleteBySourceFile(ctx context.Context, workspace, sourceFile string) (int64, error)
	SavePlan(ctx context.Context, workspace string, plan core.BudgetPlan) error
	PlanForDate(ctx context.Context, workspace string, date time.Time) (core.BudgetPlan, error)
	ListPlans(ctx context.Context, workspace string) ([]core.BudgetPlan, error)
	RecordImport(ctx context.Context, record core.ImportRecord) error
	ListImports(ctx context.Context, workspace string) ([]core.ImportRecord, error)
	Close() error
}

func backends(t *testing.T) map[string]repository {
	t.Helper()
	sqlite, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "fintrack.db"))
	if err != nil {
		t.Fatalf("open sqlite repository: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]repository{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleTx(t *testing.T, y int, m time.Month, d int, amount, category string) core.Transaction {
	t.Helper()
	tx, err := core.NewTransaction(day(y, m, d), dec(amount), category)
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	return tx
}

func samplePlan(id string, from time.Time, to time.Time) core.BudgetPlan {
	return core.BudgetPlan{
		ID:          id,
		ValidFrom:   from,
		ValidTo:     to,
		GrossIncome: dec("3000"),
		Deductions: []core.DeductionItem{
			{Name: "income tax", Amount: dec("600")},
		},
		FixedExpenses: []core.FixedExpenseItem{
			{Name: "rent", Category: "housing", Amount: dec("900")},
		},
		SavingsRate: dec("0.20"),
		SavingsBase: core.SavingsBaseNetIncome,
		CategoryBudgets: []core.CategoryBudget{
			{Category: "food", Amount: dec("400")},
		},
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tx := sampleTx(t, 2024, 1, 15, "-100.50", "food")
			tx.Description = "groceries"
			tx.SourceFile = "jan.csv"
			tx.IsFixed = true

			if err := repo.SaveTransactions(ctx, "default", []core.Transaction{tx}); err != nil {
				t.Fatalf("save: %v", err)
			}

			got, err := repo.ListTransactions(ctx, "default")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("got %d transactions, want 1", len(got))
			}
			if got[0].ID != tx.ID {
				t.Errorf("ID = %s, want %s", got[0].ID, tx.ID)
			}
			if !got[0].Amount.Equal(dec("-100.50")) {
				t.Errorf("Amount = %s, want -100.50", got[0].Amount)
			}
			if !got[0].Date.Equal(day(2024, 1, 15)) {
				t.Errorf("Date = %v", got[0].Date)
			}
			if got[0].Description != "groceries" || got[0].SourceFile != "jan.csv" || !got[0].IsFixed {
				t.Errorf("metadata not preserved: %+v", got[0])
			}

			// Other workspaces stay empty.
			other, err := repo.ListTransactions(ctx, "other")
			if err != nil {
				t.Fatalf("list other workspace: %v", err)
			}
			if len(other) != 0 {
				t.Fatalf("workspace isolation broken: %d rows", len(other))
			}
		})
	}
}

func TestTransactionsInRangeHalfOpen(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := repo.SaveTransactions(ctx, "default", []core.Transaction{
				sampleTx(t, 2024, 1, 1, "-10", "food"),  // period start, included
				sampleTx(t, 2024, 1, 31, "-20", "food"), // last day, included
				sampleTx(t, 2024, 2, 1, "-30", "food"),  // period end, excluded
			})
			if err != nil {
				t.Fatalf("save: %v", err)
			}

			got, err := repo.TransactionsInRange(ctx, "default", day(2024, 1, 1), day(2024, 2, 1))
			if err != nil {
				t.Fatalf("range: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("got %d transactions, want 2", len(got))
			}

			n, err := repo.CountTransactions(ctx, "default")
			if err != nil || n != 3 {
				t.Fatalf("count = %d, err = %v", n, err)
			}
		})
	}
}

func TestSaveTransactionsAllOrNothing(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			batch := []core.Transaction{
				sampleTx(t, 2024, 1, 1, "-10", "food"),
				{Date: day(2024, 1, 2), Amount: dec("-5"), Category: ""}, // invalid
			}
			if err := repo.SaveTransactions(ctx, "default", batch); err == nil {
				t.Fatal("invalid batch must be rejected")
			}
			n, err := repo.CountTransactions(ctx, "default")
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if n != 0 {
				t.Fatalf("partial batch persisted: %d rows", n)
			}
		})
	}
}

func TestDeleteBySourceFile(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := sampleTx(t, 2024, 1, 1, "-10", "food")
			a.SourceFile = "jan.csv"
			b := sampleTx(t, 2024, 1, 2, "-20", "food")
			b.SourceFile = "jan.csv"
			c := sampleTx(t, 2024, 2, 1, "-30", "food")
			c.SourceFile = "feb.csv"
			if err := repo.SaveTransactions(ctx, "default", []core.Transaction{a, b, c}); err != nil {
				t.Fatalf("save: %v", err)
			}

			removed, err := repo.DeleteBySourceFile(ctx, "default", "jan.csv")
			if err != nil {
				t.Fatalf("delete: %v", err)
			}
			if removed != 2 {
				t.Fatalf("removed = %d, want 2", removed)
			}
			left, err := repo.ListTransactions(ctx, "default")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(left) != 1 || left[0].SourceFile != "feb.csv" {
				t.Fatalf("wrong rows left: %+v", left)
			}
		})
	}
}

func TestPlanRoundTripAndResolution(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := samplePlan("p1", day(2024, 1, 1), day(2024, 3, 1))
			second := samplePlan("p2", day(2024, 3, 1), time.Time{})
			amount := dec("650")
			second.SavingsAmount = &amount

			for _, p := range []core.BudgetPlan{first, second} {
				if err := repo.SavePlan(ctx, "default", p); err != nil {
					t.Fatalf("save plan %s: %v", p.ID, err)
				}
			}

			got, err := repo.PlanForDate(ctx, "default", day(2024, 2, 15))
			if err != nil {
				t.Fatalf("plan for date: %v", err)
			}
			if got.ID != "p1" {
				t.Fatalf("got plan %s, want p1", got.ID)
			}
			if len(got.Deductions) != 1 || !got.Deductions[0].Amount.Equal(dec("600")) {
				t.Fatalf("deductions not preserved: %+v", got.Deductions)
			}
			if !got.NetIncome().Equal(dec("2400")) {
				t.Fatalf("NetIncome after round trip = %s", got.NetIncome())
			}

			// Exclusive upper bound: March 1 already belongs to p2.
			got, err = repo.PlanForDate(ctx, "default", day(2024, 3, 1))
			if err != nil {
				t.Fatalf("plan for boundary date: %v", err)
			}
			if got.ID != "p2" {
				t.Fatalf("got plan %s at boundary, want p2", got.ID)
			}
			if got.SavingsAmount == nil || !got.SavingsAmount.Equal(dec("650")) {
				t.Fatalf("SavingsAmount not preserved: %v", got.SavingsAmount)
			}

			// Open-ended plan covers far future dates.
			if _, err := repo.PlanForDate(ctx, "default", day(2030, 6, 1)); err != nil {
				t.Fatalf("open-ended plan must cover future dates: %v", err)
			}

			if _, err := repo.PlanForDate(ctx, "default", day(2023, 12, 31)); !errors.Is(err, core.ErrPlanNotFound) {
				t.Fatalf("got %v, want ErrPlanNotFound before first plan", err)
			}

			plans, err := repo.ListPlans(ctx, "default")
			if err != nil || len(plans) != 2 {
				t.Fatalf("ListPlans = %d plans, err %v", len(plans), err)
			}
		})
	}
}

func TestSavePlanReplacesExisting(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			plan := samplePlan("p1", day(2024, 1, 1), time.Time{})
			if err := repo.SavePlan(ctx, "default", plan); err != nil {
				t.Fatalf("save: %v", err)
			}
			plan.GrossIncome = dec("3500")
			if err := repo.SavePlan(ctx, "default", plan); err != nil {
				t.Fatalf("resave: %v", err)
			}

			plans, err := repo.ListPlans(ctx, "default")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(plans) != 1 {
				t.Fatalf("got %d plans, want 1", len(plans))
			}
			if !plans[0].GrossIncome.Equal(dec("3500")) {
				t.Fatalf("GrossIncome = %s, want 3500", plans[0].GrossIncome)
			}
		})
	}
}

func TestImportLog(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			records := []core.ImportRecord{
				{Workspace: "default", SourceFile: "jan.csv", TransactionCount: 12,
					ImportedAt: time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)},
				{Workspace: "default", SourceFile: "feb.csv", TransactionCount: 9,
					ImportedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
			}
			for _, rec := range records {
				if err := repo.RecordImport(ctx, rec); err != nil {
					t.Fatalf("record: %v", err)
				}
			}

			got, err := repo.ListImports(ctx, "default")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("got %d records, want 2", len(got))
			}
			if got[0].SourceFile != "feb.csv" {
				t.Fatalf("newest first expected, got %s", got[0].SourceFile)
			}
		})
	}
}
