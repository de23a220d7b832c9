package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// PeriodSummary is the aggregation result for one half-open period
// [PeriodStart, PeriodEnd). It is a derived view: transactions remain the
// source of truth and a summary is always safe to discard and recompute.
//
// The cumulative block is filled in by the caller after aggregation, since it
// depends on history outside the period.
type PeriodSummary struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Workspace   string    `json:"workspace"`

	TotalIncome           decimal.Decimal `json:"total_income"`
	TotalExpenses         decimal.Decimal `json:"total_expenses"`
	TotalFixedExpenses    decimal.Decimal `json:"total_fixed_expenses"`
	TotalFlexibleExpenses decimal.Decimal `json:"total_flexible_expenses"`
	TotalSavings          decimal.Decimal `json:"total_savings"`
	TotalDeductions       decimal.Decimal `json:"total_deductions"`

	CumulativeSavings       decimal.Decimal `json:"cumulative_savings"`
	CumulativeBalance       decimal.Decimal `json:"cumulative_balance"`
	CumulativeSavingsTarget decimal.Decimal `json:"cumulative_savings_target"`
	SavingsSurplus          decimal.Decimal `json:"savings_surplus"`
	CashOnHand              decimal.Decimal `json:"cash_on_hand"`

	// Expense category maps hold absolute values; the fixed and flexible maps
	// are a disjoint split of ExpensesByCategory.
	ExpensesByCategory         map[string]decimal.Decimal `json:"expenses_by_category"`
	FixedExpensesByCategory    map[string]decimal.Decimal `json:"fixed_expenses_by_category"`
	FlexibleExpensesByCategory map[string]decimal.Decimal `json:"flexible_expenses_by_category"`

	TransactionCount    int       `json:"transaction_count"`
	LastTransactionDate time.Time `json:"last_transaction_date"`
	CalculatedAt        time.Time `json:"calculated_at"`
}

// CategoryAnalysis compares actual spending in one category against the plan
// and history for a single period. Positive variance = under budget.
type CategoryAnalysis struct {
	PeriodStart time.Time `json:"period_start"`
	Category    string    `json:"category"`
	IsFixed     bool      `json:"is_fixed"`

	ActualAmount      decimal.Decimal  `json:"actual_amount"`
	PlannedAmount     *decimal.Decimal `json:"planned_amount,omitempty"`
	HistoricalAverage *decimal.Decimal `json:"historical_average,omitempty"`

	VarianceVsPlan    *decimal.Decimal `json:"variance_vs_plan,omitempty"`
	VarianceVsHistory *decimal.Decimal `json:"variance_vs_history,omitempty"`

	ShareOfSpendingBudget decimal.Decimal `json:"share_of_spending_budget"`
	ShareOfTotalExpenses  decimal.Decimal `json:"share_of_total_expenses"`
}

// Coverage holds the affordability scalars derived from the cumulative
// figures. TrueDiscretionary can be negative: the user is behind on savings
// and current cash does not close the gap.
type Coverage struct {
	CashOnHand        decimal.Decimal `json:"cash_on_hand"`
	UncoveredSavings  decimal.Decimal `json:"uncovered_savings"`
	SavingsSurplus    decimal.Decimal `json:"savings_surplus"`
	CanCover          bool            `json:"can_cover"`
	TrueDiscretionary decimal.Decimal `json:"true_discretionary"`
}
