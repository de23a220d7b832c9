package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/period"
	"fintrack/internal/storage"
)

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

func mustTx(t *testing.T, y int, m time.Month, d int, amount, category string) core.Transaction {
	t.Helper()
	tx, err := core.NewTransaction(day(y, m, d), dec(amount), category)
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	return tx
}

// seededService loads two months of history and a 400-per-month plan into a
// memory store and returns a monthly dashboard service over it.
func seededService(t *testing.T) (*DashboardService, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	ctx := context.Background()

	tax := mustTx(t, 2024, 1, 8, "-600", "tax")
	tax.IsDeduction = true
	savingsIn := mustTx(t, 2024, 1, 15, "500", "savings")
	savingsIn.IsSavings = true
	savingsOut := mustTx(t, 2024, 2, 15, "-300", "savings")
	savingsOut.IsSavings = true

	err := store.SaveTransactions(ctx, "default", []core.Transaction{
		mustTx(t, 2024, 1, 10, "5000", "salary"),
		tax,
		savingsIn,
		mustTx(t, 2024, 1, 20, "-100", "food"),
		mustTx(t, 2024, 2, 10, "5000", "salary"),
		savingsOut,
		mustTx(t, 2024, 2, 20, "-150", "food"),
	})
	if err != nil {
		t.Fatalf("seed transactions: %v", err)
	}

	target := dec("400")
	err = store.SavePlan(ctx, "default", core.BudgetPlan{
		ID:            "p1",
		ValidFrom:     day(2024, 1, 1),
		GrossIncome:   dec("5600"),
		Deductions:    []core.DeductionItem{{Name: "income tax", Amount: dec("600")}},
		SavingsRate:   dec("0.08"),
		SavingsBase:   core.SavingsBaseNetIncome,
		SavingsAmount: &target,
	})
	if err != nil {
		t.Fatalf("seed plan: %v", err)
	}

	return NewDashboardService(store, store, "default", "EUR", period.Month, 0), store
}

func TestDashboard(t *testing.T) {
	svc, _ := seededService(t)
	data, err := svc.Dashboard(context.Background(), day(2024, 3, 1))
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}

	if data.CurrentPeriodLabel != "2024-03" {
		t.Errorf("CurrentPeriodLabel = %q", data.CurrentPeriodLabel)
	}
	if !data.CurrentPeriodEnd.Equal(day(2024, 4, 1)) {
		t.Errorf("CurrentPeriodEnd = %v", data.CurrentPeriodEnd)
	}

	// 5000 - 600 - 100 + 5000 - 150, savings excluded.
	if !data.CurrentBalance.Equal(dec("9150")) {
		t.Errorf("CurrentBalance = %s, want 9150", data.CurrentBalance)
	}
	if !data.TotalSavings.Equal(dec("200")) {
		t.Errorf("TotalSavings = %s, want 200", data.TotalSavings)
	}
	if !data.AvailableFunds.Equal(dec("8950")) {
		t.Errorf("AvailableFunds = %s, want 8950", data.AvailableFunds)
	}
	// Three periods at 400 each.
	if !data.PlannedSavings.Equal(dec("1200")) {
		t.Errorf("PlannedSavings = %s, want 1200", data.PlannedSavings)
	}
	if !data.SavingsGap.Equal(dec("1000")) {
		t.Errorf("SavingsGap = %s, want 1000", data.SavingsGap)
	}
	if !data.Coverage.CanCover {
		t.Error("cash covers the gap, CanCover should be true")
	}
	if !data.Coverage.TrueDiscretionary.Equal(dec("7950")) {
		t.Errorf("TrueDiscretionary = %s, want 7950", data.Coverage.TrueDiscretionary)
	}

	// Timeline covers every period from the first transaction, in order.
	labels := make([]string, len(data.Timeline))
	for i, point := range data.Timeline {
		labels[i] = point.PeriodLabel
	}
	if len(labels) != 3 || labels[0] != "2024-01" || labels[1] != "2024-02" || labels[2] != "2024-03" {
		t.Fatalf("timeline labels = %v", labels)
	}

	jan := data.Timeline[0]
	if !jan.Income.Equal(dec("5000")) || !jan.Expenses.Equal(dec("100")) {
		t.Errorf("January flow wrong: income %s, expenses %s", jan.Income, jan.Expenses)
	}
	if !jan.SavingsThisPeriod.Equal(dec("500")) || !jan.DeductionsThisPeriod.Equal(dec("600")) {
		t.Errorf("January savings/deductions wrong: %s / %s", jan.SavingsThisPeriod, jan.DeductionsThisPeriod)
	}
	if !jan.CumulativeSavingsTarget.Equal(dec("400")) {
		t.Errorf("January cumulative target = %s, want 400", jan.CumulativeSavingsTarget)
	}

	// Timeline is gapless: each period ends where the next begins.
	for i := 1; i < len(data.Timeline); i++ {
		if !data.Timeline[i].PeriodStart.Equal(data.Timeline[i-1].PeriodEnd) {
			t.Fatalf("gap between %s and %s", data.Timeline[i-1].PeriodLabel, data.Timeline[i].PeriodLabel)
		}
	}

	// March has no transactions, so the balance is flat against February.
	if data.BalancePrevPeriod == nil || !data.BalancePrevPeriod.Equal(dec("9150")) {
		t.Errorf("BalancePrevPeriod = %v, want 9150", data.BalancePrevPeriod)
	}
	if data.BalanceChangeDirection != "flat" {
		t.Errorf("BalanceChangeDirection = %q, want flat", data.BalanceChangeDirection)
	}

	if data.Plan == nil || data.Plan.ID != "p1" {
		t.Errorf("Plan = %+v", data.Plan)
	}
	if len(data.Transactions) != 0 {
		t.Errorf("March has no transactions, got %d", len(data.Transactions))
	}
}

func TestDashboardFebruaryView(t *testing.T) {
	svc, _ := seededService(t)
	data, err := svc.Dashboard(context.Background(), day(2024, 2, 1))
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}

	if data.CurrentPeriodLabel != "2024-02" {
		t.Errorf("label = %q", data.CurrentPeriodLabel)
	}
	// Cumulative figures stop at the viewed period's end.
	if !data.PlannedSavings.Equal(dec("800")) {
		t.Errorf("PlannedSavings = %s, want 800", data.PlannedSavings)
	}
	if len(data.Timeline) != 2 {
		t.Errorf("timeline has %d points, want 2", len(data.Timeline))
	}
	if len(data.Transactions) != 3 {
		t.Errorf("February has %d transactions, want 3", len(data.Transactions))
	}
	if !data.IncomeByCategory["salary"].Equal(dec("5000")) {
		t.Errorf("IncomeByCategory = %v", data.IncomeByCategory)
	}
	if len(data.Categories) == 0 {
		t.Error("category analyses missing")
	}
	if len(data.IncomeExpenseFlows) == 0 {
		t.Error("income flows missing")
	}
}

func TestDashboardEmptyWorkspace(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewDashboardService(store, store, "default", "EUR", period.Month, 0)

	data, err := svc.Dashboard(context.Background(), day(2024, 3, 1))
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if !data.CurrentBalance.IsZero() || len(data.Timeline) != 0 {
		t.Errorf("empty workspace must give an empty dashboard: %+v", data)
	}
	if data.CurrentPeriodLabel != "2024-03" {
		t.Errorf("period header must still be filled: %q", data.CurrentPeriodLabel)
	}
}

func TestDashboardWithoutPlan(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	if err := store.SaveTransactions(ctx, "default", []core.Transaction{
		mustTx(t, 2024, 1, 10, "3000", "salary"),
		mustTx(t, 2024, 1, 20, "-100", "food"),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := NewDashboardService(store, store, "default", "EUR", period.Month, 0)

	data, err := svc.Dashboard(ctx, day(2024, 1, 1))
	if err != nil {
		t.Fatalf("Dashboard without plan: %v", err)
	}
	if data.Plan != nil {
		t.Error("no plan stored, Plan must be nil")
	}
	// Without a plan the target is zero and everything saved counts as surplus.
	if !data.PlannedSavings.IsZero() {
		t.Errorf("PlannedSavings = %s, want 0", data.PlannedSavings)
	}
	if !data.CurrentBalance.Equal(dec("2900")) {
		t.Errorf("CurrentBalance = %s, want 2900", data.CurrentBalance)
	}
}

func TestStatus(t *testing.T) {
	svc, _ := seededService(t)
	status, err := svc.Status(context.Background(), day(2024, 3, 15))
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	if status.PeriodLabel != "2024-03" {
		t.Errorf("PeriodLabel = %q", status.PeriodLabel)
	}
	if status.DaysRemaining != 17 {
		t.Errorf("DaysRemaining = %d, want 17", status.DaysRemaining)
	}
	if !status.Summary.CumulativeSavings.Equal(dec("200")) {
		t.Errorf("CumulativeSavings = %s, want 200", status.Summary.CumulativeSavings)
	}
	if !status.Coverage.UncoveredSavings.Equal(dec("1000")) {
		t.Errorf("UncoveredSavings = %s, want 1000", status.Coverage.UncoveredSavings)
	}
	if status.Plan == nil {
		t.Fatal("plan missing from status")
	}
	if !status.Disposable.Equal(status.Plan.DisposableIncome()) {
		t.Errorf("Disposable = %s", status.Disposable)
	}
}

func TestProjection(t *testing.T) {
	svc, _ := seededService(t)
	projection, err := svc.Projection(context.Background(), day(2024, 2, 1))
	if err != nil {
		t.Fatalf("Projection: %v", err)
	}
	if projection.Period != "2024-02" || projection.PlanID != "p1" {
		t.Errorf("projection header wrong: %+v", projection)
	}
	if !projection.SavingsTarget.Equal(dec("400")) {
		t.Errorf("SavingsTarget = %s, want 400", projection.SavingsTarget)
	}

	// No plan covers 2023.
	if _, err := svc.Projection(context.Background(), day(2023, 6, 1)); err == nil {
		t.Error("projection without a covering plan must fail")
	}
}

func TestPeriodLabels(t *testing.T) {
	svc, _ := seededService(t)
	labels, err := svc.PeriodLabels(context.Background(), day(2024, 3, 15))
	if err != nil {
		t.Fatalf("PeriodLabels: %v", err)
	}
	want := []string{"2024-01", "2024-02", "2024-03"}
	if len(labels) != len(want) {
		t.Fatalf("labels = %v", labels)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("labels = %v, want %v", labels, want)
		}
	}
}

func TestInvalidatePlansPicksUpEdits(t *testing.T) {
	svc, store := seededService(t)
	ctx := context.Background()

	before, err := svc.Dashboard(ctx, day(2024, 3, 1))
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if !before.PlannedSavings.Equal(dec("1200")) {
		t.Fatalf("PlannedSavings = %s, want 1200", before.PlannedSavings)
	}

	// Double the monthly target, then drop the memo.
	target := dec("800")
	err = store.SavePlan(ctx, "default", core.BudgetPlan{
		ID:            "p1",
		ValidFrom:     day(2024, 1, 1),
		GrossIncome:   dec("5600"),
		SavingsRate:   dec("0.08"),
		SavingsBase:   core.SavingsBaseNetIncome,
		SavingsAmount: &target,
	})
	if err != nil {
		t.Fatalf("update plan: %v", err)
	}
	svc.InvalidatePlans()

	after, err := svc.Dashboard(ctx, day(2024, 3, 1))
	if err != nil {
		t.Fatalf("Dashboard after edit: %v", err)
	}
	if !after.PlannedSavings.Equal(dec("2400")) {
		t.Errorf("PlannedSavings after edit = %s, want 2400", after.PlannedSavings)
	}
}

func TestIncomeByCategorySkipsFlaggedInflows(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	refund := mustTx(t, 2024, 1, 12, "600", "tax")
	refund.IsDeduction = true
	deposit := mustTx(t, 2024, 1, 15, "500", "savings")
	deposit.IsSavings = true

	err := store.SaveTransactions(ctx, "default", []core.Transaction{
		mustTx(t, 2024, 1, 10, "5000", "salary"),
		refund,
		deposit,
	})
	if err != nil {
		t.Fatalf("seed transactions: %v", err)
	}

	svc := NewDashboardService(store, store, "default", "EUR", period.Month, 0)
	data, err := svc.Dashboard(ctx, day(2024, 1, 1))
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}

	// Flag precedence matches the aggregator: positive rows flagged as
	// deductions or savings never count as income.
	if len(data.IncomeByCategory) != 1 {
		t.Fatalf("IncomeByCategory = %v, want salary only", data.IncomeByCategory)
	}
	if !data.IncomeByCategory["salary"].Equal(dec("5000")) {
		t.Errorf("salary income = %s, want 5000", data.IncomeByCategory["salary"])
	}
}

func TestTrendDirectionWithZeroPreviousBalance(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	// January nets out to exactly zero; February moves up.
	err := store.SaveTransactions(ctx, "default", []core.Transaction{
		mustTx(t, 2024, 1, 10, "100", "salary"),
		mustTx(t, 2024, 1, 20, "-100", "food"),
		mustTx(t, 2024, 2, 10, "50", "salary"),
	})
	if err != nil {
		t.Fatalf("seed transactions: %v", err)
	}

	svc := NewDashboardService(store, store, "default", "EUR", period.Month, 0)
	data, err := svc.Dashboard(ctx, day(2024, 2, 1))
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}

	if data.BalancePrevPeriod == nil || !data.BalancePrevPeriod.IsZero() {
		t.Fatalf("BalancePrevPeriod = %v, want 0", data.BalancePrevPeriod)
	}
	if data.BalanceChangeDirection != "up" {
		t.Errorf("BalanceChangeDirection = %q, want up", data.BalanceChangeDirection)
	}
	if data.BalanceChangePct != nil {
		t.Errorf("BalanceChangePct = %s, percent is undefined against a zero base", data.BalanceChangePct)
	}
}
