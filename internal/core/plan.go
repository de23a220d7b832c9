package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// SavingsBaseNetIncome computes the savings target from net income,
	// before fixed expenses. More ambitious.
	SavingsBaseNetIncome SavingsBase = "net_income"
	// SavingsBaseDisposable computes the savings target from net income
	// minus fixed expenses. More realistic when fixed costs cannot move.
	SavingsBaseDisposable SavingsBase = "disposable"
)

type SavingsBase string

var (
	ErrEmptyPlanID        = errors.New("empty plan id")
	ErrNegativeAmount     = errors.New("amount cannot be negative")
	ErrInvalidSavingsRate = errors.New("savings rate must be between 0 and 1")
	ErrInvalidSavingsBase = errors.New("invalid savings base")

	// ErrPlanNotFound signals that no plan covers a requested date. It is an
	// expected condition: cumulative-target callers treat it as a zero
	// contribution, never as a failure.
	ErrPlanNotFound = errors.New("no budget plan covers the date")
)

// DeductionItem is taken from gross income before money reaches the account
// (taxes, social security).
type DeductionItem struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// FixedExpenseItem is a mandatory payment from net income (rent, loans).
// Category optionally links the item to a transaction category.
type FixedExpenseItem struct {
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category,omitempty"`
}

// CategoryBudget is the planned amount for one category. When IsFixed is set,
// every transaction in the category is treated as a fixed expense.
type CategoryBudget struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	IsFixed  bool            `json:"is_fixed"`
}

// BudgetPlan is versioned configuration valid over [ValidFrom, ValidTo).
// A zero ValidTo means open-ended. All derived figures are computed on every
// call so that edits to the raw inputs can never leave a stale cached value.
//
// Income waterfall:
//
//	Gross Income
//	- Deductions        (before receiving money)
//	= Net Income
//	- Fixed Expenses    (mandatory payments)
//	- Savings Target
//	= Disposable Income (free to spend)
type BudgetPlan struct {
	ID        string    `json:"id"`
	ValidFrom time.Time `json:"valid_from"`
	ValidTo   time.Time `json:"valid_to"`

	GrossIncome   decimal.Decimal    `json:"gross_income"`
	Deductions    []DeductionItem    `json:"deductions,omitempty"`
	FixedExpenses []FixedExpenseItem `json:"fixed_expenses,omitempty"`

	SavingsRate decimal.Decimal `json:"savings_rate"`
	SavingsBase SavingsBase     `json:"savings_base"`
	// SavingsAmount, when non-nil, overrides the rate-based target.
	SavingsAmount *decimal.Decimal `json:"savings_amount,omitempty"`

	CategoryBudgets []CategoryBudget `json:"category_budgets,omitempty"`
}

func (p BudgetPlan) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrEmptyPlanID
	}
	if p.ValidFrom.IsZero() {
		return ErrZeroDate
	}
	if p.GrossIncome.IsNegative() {
		return ErrNegativeAmount
	}
	for _, d := range p.Deductions {
		if d.Amount.IsNegative() {
			return ErrNegativeAmount
		}
	}
	for _, f := range p.FixedExpenses {
		if f.Amount.IsNegative() {
			return ErrNegativeAmount
		}
	}
	for _, cb := range p.CategoryBudgets {
		if cb.Amount.IsNegative() {
			return ErrNegativeAmount
		}
	}
	if p.SavingsRate.IsNegative() || p.SavingsRate.GreaterThan(decimal.NewFromInt(1)) {
		return ErrInvalidSavingsRate
	}
	if p.SavingsAmount != nil && p.SavingsAmount.IsNegative() {
		return ErrNegativeAmount
	}
	switch p.SavingsBase {
	case SavingsBaseNetIncome, SavingsBaseDisposable:
	default:
		return ErrInvalidSavingsBase
	}
	return nil
}

// TotalDeductions is the sum of all deductions from gross income.
func (p BudgetPlan) TotalDeductions() decimal.Decimal {
	total := decimal.Zero
	for _, d := range p.Deductions {
		total = total.Add(d.Amount)
	}
	return total
}

// NetIncome is what actually arrives after deductions.
func (p BudgetPlan) NetIncome() decimal.Decimal {
	return p.GrossIncome.Sub(p.TotalDeductions())
}

// TotalFixedExpenses is the sum of all fixed expense items.
func (p BudgetPlan) TotalFixedExpenses() decimal.Decimal {
	total := decimal.Zero
	for _, f := range p.FixedExpenses {
		total = total.Add(f.Amount)
	}
	return total
}

// SavingsCalculationBase is the amount the savings rate applies to.
func (p BudgetPlan) SavingsCalculationBase() decimal.Decimal {
	if p.SavingsBase == SavingsBaseNetIncome {
		return p.NetIncome()
	}
	return p.NetIncome().Sub(p.TotalFixedExpenses())
}

// SavingsTarget is the amount to put aside this period. A fixed SavingsAmount
// takes priority over the rate.
func (p BudgetPlan) SavingsTarget() decimal.Decimal {
	if p.SavingsAmount != nil {
		return *p.SavingsAmount
	}
	return p.SavingsCalculationBase().Mul(p.SavingsRate)
}

// DisposableIncome is the flexible spending budget.
func (p BudgetPlan) DisposableIncome() decimal.Decimal {
	return p.NetIncome().Sub(p.TotalFixedExpenses()).Sub(p.SavingsTarget())
}

// FixedCategories returns the categories marked fixed in the category budgets.
func (p BudgetPlan) FixedCategories() map[string]bool {
	set := make(map[string]bool)
	for _, cb := range p.CategoryBudgets {
		if cb.IsFixed {
			set[cb.Category] = true
		}
	}
	return set
}

// Covers reports whether the plan applies to the given date.
func (p BudgetPlan) Covers(date time.Time) bool {
	if date.Before(p.ValidFrom) {
		return false
	}
	return p.ValidTo.IsZero() || date.Before(p.ValidTo)
}
