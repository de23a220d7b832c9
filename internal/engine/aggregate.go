// Package engine holds the pure aggregation and budget-variance functions.
//
// Every function here is side-effect free and total over its declared domain:
// empty input yields a zero result, never an error. Inputs are never mutated,
// so the engine is safe to call concurrently as long as the caller does not
// mutate the transaction snapshot mid-call.
package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// Aggregate partitions the transactions falling inside [periodStart,
// periodEnd) into income, expense, savings and deduction buckets.
//
// Classification precedence per transaction: savings flag, then deduction
// flag, then sign (positive income, negative expense). An expense counts as
// fixed when either its own flag or a plan-level fixed category says so.
// Category maps carry absolute values. All sums are exact decimal addition.
func Aggregate(transactions []core.Transaction, periodStart, periodEnd time.Time, workspace string, fixedCategories map[string]bool) core.PeriodSummary {
	summary := core.PeriodSummary{
		PeriodStart:                periodStart,
		PeriodEnd:                  periodEnd,
		Workspace:                  workspace,
		ExpensesByCategory:         make(map[string]decimal.Decimal),
		FixedExpensesByCategory:    make(map[string]decimal.Decimal),
		FlexibleExpensesByCategory: make(map[string]decimal.Decimal),
		CalculatedAt:               time.Now().UTC(),
	}

	for _, tx := range transactions {
		if tx.Date.Before(periodStart) || !tx.Date.Before(periodEnd) {
			continue
		}

		summary.TransactionCount++
		if tx.Date.After(summary.LastTransactionDate) {
			summary.LastTransactionDate = tx.Date
		}

		switch {
		case tx.IsSavings:
			// Positive = deposit, negative = withdrawal.
			summary.TotalSavings = summary.TotalSavings.Add(tx.Amount)

		case tx.IsDeduction:
			summary.TotalDeductions = summary.TotalDeductions.Add(tx.Amount.Abs())

		case tx.Amount.IsPositive():
			summary.TotalIncome = summary.TotalIncome.Add(tx.Amount)

		default:
			amount := tx.Amount.Abs()
			summary.TotalExpenses = summary.TotalExpenses.Add(amount)

			cat := tx.Category
			summary.ExpensesByCategory[cat] = summary.ExpensesByCategory[cat].Add(amount)

			if tx.IsFixed || fixedCategories[cat] {
				summary.TotalFixedExpenses = summary.TotalFixedExpenses.Add(amount)
				summary.FixedExpensesByCategory[cat] = summary.FixedExpensesByCategory[cat].Add(amount)
			} else {
				summary.TotalFlexibleExpenses = summary.TotalFlexibleExpenses.Add(amount)
				summary.FlexibleExpensesByCategory[cat] = summary.FlexibleExpensesByCategory[cat].Add(amount)
			}
		}
	}

	return summary
}
