package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/period"
)

// CategoryBudgetProjection is the planned allocation for one category.
type CategoryBudgetProjection struct {
	Category      string          `json:"category"`
	Amount        decimal.Decimal `json:"amount"`
	IsFixed       bool            `json:"is_fixed"`
	ShareOfBudget decimal.Decimal `json:"share_of_budget"` // percent of disposable income
}

// BudgetProjection is the expected budget for a period derived from a plan
// alone, with no transaction history involved.
type BudgetProjection struct {
	Period string `json:"period"`
	PlanID string `json:"plan_id"`

	GrossIncome         decimal.Decimal         `json:"gross_income"`
	TotalDeductions     decimal.Decimal         `json:"total_deductions"`
	DeductionsBreakdown []core.DeductionItem    `json:"deductions_breakdown"`
	NetIncome           decimal.Decimal         `json:"net_income"`
	TotalFixedExpenses  decimal.Decimal         `json:"total_fixed_expenses"`
	FixedBreakdown      []core.FixedExpenseItem `json:"fixed_expenses_breakdown"`

	SavingsBase            core.SavingsBase `json:"savings_base"`
	SavingsCalculationBase decimal.Decimal  `json:"savings_calculation_base"`
	SavingsRate            decimal.Decimal  `json:"savings_rate"`
	SavingsTarget          decimal.Decimal  `json:"savings_target"`

	DisposableIncome decimal.Decimal `json:"disposable_income"`

	FixedCategoryBudgets    []CategoryBudgetProjection `json:"fixed_category_budgets"`
	FlexibleCategoryBudgets []CategoryBudgetProjection `json:"flexible_category_budgets"`

	TotalAllocatedFlexible decimal.Decimal `json:"total_allocated_flexible"`
	UnallocatedFlexible    decimal.Decimal `json:"unallocated_flexible"`
}

// Project derives the expected budget for the period starting at periodStart
// from the plan configuration alone.
func Project(plan core.BudgetPlan, periodStart time.Time, interval period.Interval) BudgetProjection {
	disposable := plan.DisposableIncome()
	hundred := decimal.NewFromInt(100)

	var fixed, flexible []CategoryBudgetProjection
	totalFlexible := decimal.Zero

	for _, cb := range plan.CategoryBudgets {
		share := decimal.Zero
		if disposable.IsPositive() {
			share = cb.Amount.Div(disposable).Mul(hundred).Round(1)
		}
		projection := CategoryBudgetProjection{
			Category:      cb.Category,
			Amount:        cb.Amount,
			IsFixed:       cb.IsFixed,
			ShareOfBudget: share,
		}
		if cb.IsFixed {
			fixed = append(fixed, projection)
		} else {
			flexible = append(flexible, projection)
			totalFlexible = totalFlexible.Add(cb.Amount)
		}
	}

	return BudgetProjection{
		Period:                  period.Format(periodStart, interval),
		PlanID:                  plan.ID,
		GrossIncome:             plan.GrossIncome,
		TotalDeductions:         plan.TotalDeductions(),
		DeductionsBreakdown:     plan.Deductions,
		NetIncome:               plan.NetIncome(),
		TotalFixedExpenses:      plan.TotalFixedExpenses(),
		FixedBreakdown:          plan.FixedExpenses,
		SavingsBase:             plan.SavingsBase,
		SavingsCalculationBase:  plan.SavingsCalculationBase(),
		SavingsRate:             plan.SavingsRate,
		SavingsTarget:           plan.SavingsTarget(),
		DisposableIncome:        disposable,
		FixedCategoryBudgets:    fixed,
		FlexibleCategoryBudgets: flexible,
		TotalAllocatedFlexible:  totalFlexible,
		UnallocatedFlexible:     disposable.Sub(totalFlexible),
	}
}

// Variance is planned minus actual: positive is under budget.
func Variance(actual, planned decimal.Decimal) decimal.Decimal {
	return planned.Sub(actual)
}

// CategoryShare is the category's fraction of a total, rounded to four
// decimal places (0.25 = 25%). Zero when the total is not positive.
func CategoryShare(amount, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return amount.Div(total).Round(4)
}
