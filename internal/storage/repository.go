// Package storage persists transactions, budget plans and import provenance
// in SQLite. Monetary amounts are stored as decimal strings and dates as
// ISO 8601 day strings so that round trips are exact.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"

	_ "modernc.org/sqlite"
)

const dayFormat = "2006-01-02"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveTransactions stores the batch inside a single database transaction so
// a failure leaves no partial import behind.
func (r *SQLiteRepository) SaveTransactions(ctx context.Context, workspace string, transactions []core.Transaction) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.PrepareContext(ctx, `
		INSERT INTO transactions
			(id, workspace, date, amount, category, description,
			 is_savings, is_deduction, is_fixed, source_file, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range transactions {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("transaction %s: %w", t.ID, err)
		}
		id := t.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		createdAt := t.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			id.String(), workspace, t.Date.UTC().Format(dayFormat), t.Amount.String(),
			t.Category, t.Description,
			boolToInt(t.IsSavings), boolToInt(t.IsDeduction), boolToInt(t.IsFixed),
			t.SourceFile, createdAt.Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("insert transaction %s: %w", id, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit transactions: %w", err)
	}

	slog.InfoContext(ctx, "Transactions saved",
		"workspace", workspace,
		"count", len(transactions))
	return nil
}

// ListTransactions returns the workspace's full history in date order.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, workspace string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, selectTransactions+`
		WHERE workspace = ? ORDER BY date, created_at`, workspace)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// TransactionsInRange returns transactions with start <= date < end.
func (r *SQLiteRepository) TransactionsInRange(ctx context.Context, workspace string, start, end time.Time) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, selectTransactions+`
		WHERE workspace = ? AND date >= ? AND date < ? ORDER BY date, created_at`,
		workspace, start.UTC().Format(dayFormat), end.UTC().Format(dayFormat))
	if err != nil {
		return nil, fmt.Errorf("transactions in range: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (r *SQLiteRepository) CountTransactions(ctx context.Context, workspace string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE workspace = ?`, workspace).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// DeleteBySourceFile removes every transaction recorded under the given
// source file and reports how many rows went away. Used before re-import.
func (r *SQLiteRepository) DeleteBySourceFile(ctx context.Context, workspace, sourceFile string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE workspace = ? AND source_file = ?`,
		workspace, sourceFile)
	if err != nil {
		return 0, fmt.Errorf("delete by source file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	slog.InfoContext(ctx, "Transactions removed for source file",
		"workspace", workspace,
		"source_file", sourceFile,
		"removed", n)
	return n, nil
}

// SavePlan inserts or replaces the plan under its (workspace, id) key.
func (r *SQLiteRepository) SavePlan(ctx context.Context, workspace string, plan core.BudgetPlan) error {
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("plan %s: %w", plan.ID, err)
	}

	deductions, err := json.Marshal(plan.Deductions)
	if err != nil {
		return fmt.Errorf("marshal deductions: %w", err)
	}
	fixedExpenses, err := json.Marshal(plan.FixedExpenses)
	if err != nil {
		return fmt.Errorf("marshal fixed expenses: %w", err)
	}
	categoryBudgets, err := json.Marshal(plan.CategoryBudgets)
	if err != nil {
		return fmt.Errorf("marshal category budgets: %w", err)
	}

	var validTo sql.NullString
	if !plan.ValidTo.IsZero() {
		validTo = sql.NullString{String: plan.ValidTo.UTC().Format(dayFormat), Valid: true}
	}
	var savingsAmount sql.NullString
	if plan.SavingsAmount != nil {
		savingsAmount = sql.NullString{String: plan.SavingsAmount.String(), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO budget_plans
			(id, workspace, valid_from, valid_to, gross_income, deductions,
			 fixed_expenses, savings_rate, savings_base, savings_amount, category_budgets)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID, workspace, plan.ValidFrom.UTC().Format(dayFormat), validTo,
		plan.GrossIncome.String(), string(deductions), string(fixedExpenses),
		plan.SavingsRate.String(), string(plan.SavingsBase), savingsAmount,
		string(categoryBudgets))
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}

	slog.InfoContext(ctx, "Budget plan saved",
		"workspace", workspace,
		"plan_id", plan.ID,
		"valid_from", plan.ValidFrom.Format(dayFormat))
	return nil
}

// PlanForDate returns the covering plan with the latest valid_from, or
// core.ErrPlanNotFound when no plan covers the date.
func (r *SQLiteRepository) PlanForDate(ctx context.Context, workspace string, date time.Time) (core.BudgetPlan, error) {
	day := date.UTC().Format(dayFormat)
	row := r.db.QueryRowContext(ctx, selectPlans+`
		WHERE workspace = ? AND valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)
		ORDER BY valid_from DESC LIMIT 1`,
		workspace, day, day)

	plan, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BudgetPlan{}, core.ErrPlanNotFound
	}
	if err != nil {
		return core.BudgetPlan{}, fmt.Errorf("plan for date: %w", err)
	}
	return plan, nil
}

// ListPlans returns every plan of the workspace ordered by valid_from.
func (r *SQLiteRepository) ListPlans(ctx context.Context, workspace string) ([]core.BudgetPlan, error) {
	rows, err := r.db.QueryContext(ctx, selectPlans+`
		WHERE workspace = ? ORDER BY valid_from`, workspace)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []core.BudgetPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

// RecordImport logs a completed import for provenance.
func (r *SQLiteRepository) RecordImport(ctx context.Context, record core.ImportRecord) error {
	importedAt := record.ImportedAt
	if importedAt.IsZero() {
		importedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO import_log (workspace, source_file, transaction_count, imported_at)
		VALUES (?, ?, ?, ?)`,
		record.Workspace, record.SourceFile, record.TransactionCount,
		importedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record import: %w", err)
	}
	return nil
}

// ListImports returns the workspace's import history, newest first.
func (r *SQLiteRepository) ListImports(ctx context.Context, workspace string) ([]core.ImportRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workspace, source_file, transaction_count, imported_at
		FROM import_log WHERE workspace = ? ORDER BY imported_at DESC, id DESC`,
		workspace)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	defer rows.Close()

	var records []core.ImportRecord
	for rows.Next() {
		var rec core.ImportRecord
		var importedAt string
		if err := rows.Scan(&rec.ID, &rec.Workspace, &rec.SourceFile,
			&rec.TransactionCount, &importedAt); err != nil {
			return nil, fmt.Errorf("scan import record: %w", err)
		}
		rec.ImportedAt, err = time.Parse(time.RFC3339, importedAt)
		if err != nil {
			return nil, fmt.Errorf("parse imported_at: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

const selectTransactions = `
	SELECT id, date, amount, category, description,
	       is_savings, is_deduction, is_fixed, source_file, created_at
	FROM transactions`

const selectPlans = `
	SELECT id, valid_from, valid_to, gross_income, deductions,
	       fixed_expenses, savings_rate, savings_base, savings_amount, category_budgets
	FROM budget_plans`

func scanTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		var (
			t                            core.Transaction
			id, day, amount, createdAt   string
			isSavings, isDeduct, isFixed int
		)
		if err := rows.Scan(&id, &day, &amount, &t.Category, &t.Description,
			&isSavings, &isDeduct, &isFixed, &t.SourceFile, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse transaction id %q: %w", id, err)
		}
		t.ID = parsed
		if t.Date, err = time.ParseInLocation(dayFormat, day, time.UTC); err != nil {
			return nil, fmt.Errorf("parse date %q: %w", day, err)
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
		}
		t.IsSavings = isSavings != 0
		t.IsDeduction = isDeduct != 0
		t.IsFixed = isFixed != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (core.BudgetPlan, error) {
	var (
		plan                    core.BudgetPlan
		validFrom, grossIncome  string
		savingsRate             string
		validTo, savingsAmount  sql.NullString
		deductions, fixed, cats string
	)
	err := row.Scan(&plan.ID, &validFrom, &validTo, &grossIncome, &deductions,
		&fixed, &savingsRate, &plan.SavingsBase, &savingsAmount, &cats)
	if err != nil {
		return core.BudgetPlan{}, err
	}

	if plan.ValidFrom, err = time.ParseInLocation(dayFormat, validFrom, time.UTC); err != nil {
		return core.BudgetPlan{}, fmt.Errorf("parse valid_from %q: %w", validFrom, err)
	}
	if validTo.Valid {
		if plan.ValidTo, err = time.ParseInLocation(dayFormat, validTo.String, time.UTC); err != nil {
			return core.BudgetPlan{}, fmt.Errorf("parse valid_to %q: %w", validTo.String, err)
		}
	}
	if plan.GrossIncome, err = decimal.NewFromString(grossIncome); err != nil {
		return core.BudgetPlan{}, fmt.Errorf("parse gross_income %q: %w", grossIncome, err)
	}
	if plan.SavingsRate, err = decimal.NewFromString(savingsRate); err != nil {
		return core.BudgetPlan{}, fmt.Errorf("parse savings_rate %q: %w", savingsRate, err)
	}
	if savingsAmount.Valid {
		amount, err := decimal.NewFromString(savingsAmount.String)
		if err != nil {
			return core.BudgetPlan{}, fmt.Errorf("parse savings_amount %q: %w", savingsAmount.String, err)
		}
		plan.SavingsAmount = &amount
	}
	if err := json.Unmarshal([]byte(deductions), &plan.Deductions); err != nil {
		return core.BudgetPlan{}, fmt.Errorf("unmarshal deductions: %w", err)
	}
	if err := json.Unmarshal([]byte(fixed), &plan.FixedExpenses); err != nil {
		return core.BudgetPlan{}, fmt.Errorf("unmarshal fixed expenses: %w", err)
	}
	if err := json.Unmarshal([]byte(cats), &plan.CategoryBudgets); err != nil {
		return core.BudgetPlan{}, fmt.Errorf("unmarshal category budgets: %w", err)
	}
	return plan, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
