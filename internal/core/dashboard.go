package core

import (
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/period"
)

// PeriodDataPoint is one point on the dashboard timeline: cumulative figures
// as of the period's end plus the period's own flow.
type PeriodDataPoint struct {
	PeriodLabel string    `json:"period_label"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	CumulativeSavings       decimal.Decimal `json:"cumulative_savings"`
	CumulativeBalance       decimal.Decimal `json:"cumulative_balance"`
	CumulativeSavingsTarget decimal.Decimal `json:"cumulative_savings_target"`
	AvailableFunds          decimal.Decimal `json:"available_funds"` // cash on hand

	Income               decimal.Decimal `json:"income"`
	Expenses             decimal.Decimal `json:"expenses"`
	NetFlow              decimal.Decimal `json:"net_flow"`
	SavingsThisPeriod    decimal.Decimal `json:"savings_this_period"`
	DeductionsThisPeriod decimal.Decimal `json:"deductions_this_period"`

	FixedExpenses    decimal.Decimal `json:"fixed_expenses"`
	FlexibleExpenses decimal.Decimal `json:"flexible_expenses"`
}

// IncomeExpenseFlow is a single edge of the income waterfall diagram.
type IncomeExpenseFlow struct {
	Source string          `json:"source"`
	Target string          `json:"target"`
	Amount decimal.Decimal `json:"amount"`
}

// DashboardData is the complete plain-data view for one period, composed by
// the assembler from engine output. No behavior is attached; it serializes
// directly to any presentation format.
type DashboardData struct {
	Workspace   string          `json:"workspace"`
	Currency    string          `json:"currency"`
	Interval    period.Interval `json:"interval"`
	GeneratedAt time.Time       `json:"generated_at"`

	CurrentPeriodLabel string    `json:"current_period_label"`
	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`

	CurrentBalance decimal.Decimal `json:"current_balance"`
	TotalSavings   decimal.Decimal `json:"total_savings"`
	AvailableFunds decimal.Decimal `json:"available_funds"`
	PlannedSavings decimal.Decimal `json:"planned_savings"`
	SavingsGap     decimal.Decimal `json:"savings_gap"` // planned - actual, positive = behind

	Coverage Coverage `json:"coverage"`

	BalancePrevPeriod      *decimal.Decimal `json:"balance_prev_period,omitempty"`
	BalanceChangePct       *decimal.Decimal `json:"balance_change_pct,omitempty"`
	BalanceChangeDirection string           `json:"balance_change_direction"` // up | down | flat

	Timeline []PeriodDataPoint `json:"timeline"`

	IncomeExpenseFlows []IncomeExpenseFlow        `json:"income_expense_flows"`
	ExpensesByCategory map[string]decimal.Decimal `json:"expenses_by_category"`
	IncomeByCategory   map[string]decimal.Decimal `json:"income_by_category"`

	Categories []CategoryAnalysis `json:"categories"`
	Plan       *BudgetPlan        `json:"plan,omitempty"`

	CurrentPeriodSummary *PeriodSummary `json:"current_period_summary,omitempty"`

	Transactions []Transaction `json:"transactions"`
}

// StatusData is the compact single-period view for the status endpoint.
type StatusData struct {
	Workspace     string          `json:"workspace"`
	PeriodLabel   string          `json:"period_label"`
	PeriodStart   time.Time       `json:"period_start"`
	PeriodEnd     time.Time       `json:"period_end"`
	DaysRemaining int             `json:"days_remaining"`
	Summary       PeriodSummary   `json:"summary"`
	Coverage      Coverage        `json:"coverage"`
	Plan          *BudgetPlan     `json:"plan,omitempty"`
	Disposable    decimal.Decimal `json:"disposable_income"`
}
