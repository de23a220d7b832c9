package engine

import (
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// CashOnHand is the money that has accumulated but not been moved to savings.
func CashOnHand(cumulativeBalance, cumulativeSavings decimal.Decimal) decimal.Decimal {
	return cumulativeBalance.Sub(cumulativeSavings)
}

// SavingsSurplus is the signed distance from the cumulative target: positive
// means ahead of plan, negative behind.
func SavingsSurplus(cumulativeSavings, cumulativeTarget decimal.Decimal) decimal.Decimal {
	return cumulativeSavings.Sub(cumulativeTarget)
}

// UncoveredSavings is the outstanding shortfall against the cumulative
// target, floored at zero: overachieving produces a surplus, not a negative
// shortfall.
func UncoveredSavings(cumulativeTarget, cumulativeSavings decimal.Decimal) decimal.Decimal {
	shortfall := cumulativeTarget.Sub(cumulativeSavings)
	if shortfall.IsNegative() {
		return decimal.Zero
	}
	return shortfall
}

// CanCoverGap reports whether cash on hand is enough to close the shortfall.
func CanCoverGap(cashOnHand, uncoveredSavings decimal.Decimal) bool {
	return cashOnHand.GreaterThanOrEqual(uncoveredSavings)
}

// TrueDiscretionary is what can be spent freely after first closing the
// savings gap. Negative means current cash does not cover the gap.
func TrueDiscretionary(cashOnHand, uncoveredSavings decimal.Decimal) decimal.Decimal {
	return cashOnHand.Sub(uncoveredSavings)
}

// ComputeCoverage composes the five coverage scalars from the three
// cumulative figures.
func ComputeCoverage(cumulativeBalance, cumulativeSavings, cumulativeTarget decimal.Decimal) core.Coverage {
	cash := CashOnHand(cumulativeBalance, cumulativeSavings)
	uncovered := UncoveredSavings(cumulativeTarget, cumulativeSavings)
	return core.Coverage{
		CashOnHand:        cash,
		UncoveredSavings:  uncovered,
		SavingsSurplus:    SavingsSurplus(cumulativeSavings, cumulativeTarget),
		CanCover:          CanCoverGap(cash, uncovered),
		TrueDiscretionary: TrueDiscretionary(cash, uncovered),
	}
}
