package engine

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/period"
)

// PlanResolver yields the budget plan active on a date. Implementations
// return an error wrapping core.ErrPlanNotFound when no plan covers the date;
// any other error is a defect and propagates.
type PlanResolver interface {
	PlanForDate(date time.Time) (core.BudgetPlan, error)
}

// PlanResolverFunc adapts a plain function to the PlanResolver interface.
type PlanResolverFunc func(date time.Time) (core.BudgetPlan, error)

func (f PlanResolverFunc) PlanForDate(date time.Time) (core.BudgetPlan, error) {
	return f(date)
}

// CumulativeSavings sums every savings-flagged transaction dated on or before
// cutoff. Positive = net deposited; the result is not floored at zero, so net
// withdrawals legitimately yield a negative figure.
func CumulativeSavings(transactions []core.Transaction, cutoff time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range transactions {
		if tx.IsSavings && !tx.Date.After(cutoff) {
			total = total.Add(tx.Amount)
		}
	}
	return total
}

// CumulativeBalance sums every non-savings transaction dated on or before
// cutoff. Income is positive, expenses negative; deduction-flagged rows are
// ordinary negative entries here; only savings transfers are excluded.
func CumulativeBalance(transactions []core.Transaction, cutoff time.Time) decimal.Decimal {
	balance := decimal.Zero
	for _, tx := range transactions {
		if tx.IsSavings || tx.Date.After(cutoff) {
			continue
		}
		balance = balance.Add(tx.Amount)
	}
	return balance
}

// CumulativeSavingsTarget walks every period from the one containing
// firstTransactionDate through the one containing cutoff, summing the savings
// target of whichever plan is active at each period start. Periods with no
// active plan contribute zero. The walk is O(periods since inception) and
// goes through the calendar so that mid-history plan changes are honored.
func CumulativeSavingsTarget(cutoff, firstTransactionDate time.Time, interval period.Interval, resolver PlanResolver, customDays int) (decimal.Decimal, error) {
	start, err := period.Start(firstTransactionDate, interval, customDays)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for !start.After(cutoff) {
		plan, err := resolver.PlanForDate(start)
		switch {
		case err == nil:
			total = total.Add(plan.SavingsTarget())
		case errors.Is(err, core.ErrPlanNotFound):
			// No plan for this period: zero contribution.
		default:
			return decimal.Zero, err
		}

		end, err := period.End(start, interval, customDays)
		if err != nil {
			return decimal.Zero, err
		}
		start = end
	}
	return total, nil
}
