package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"fintrack/internal/core"
	"fintrack/internal/engine"
	"fintrack/internal/period"
)

const (
	planCacheSize    = 512
	planCacheTTL     = 5 * time.Minute
	timelineParallel = 4
	topFlowsPerGroup = 5
)

// DashboardService assembles the period views served by the API: the full
// dashboard with timeline, the compact status view and budget projections.
// All figures are recomputed from stored transactions on every call; the
// only cache is the plan-per-period memo, dropped on change events.
type DashboardService struct {
	transactions TransactionRepository
	plans        PlanRepository

	workspace  string
	currency   string
	interval   period.Interval
	customDays int

	resolver *engine.CachingPlanResolver
}

func NewDashboardService(transactions TransactionRepository, plans PlanRepository,
	workspace, currency string, interval period.Interval, customDays int) *DashboardService {

	s := &DashboardService{
		transactions: transactions,
		plans:        plans,
		workspace:    workspace,
		currency:     currency,
		interval:     interval,
		customDays:   customDays,
	}
	// Plan lookups are quick point queries; the memo outlives any single
	// request, so it resolves with a background context.
	inner := engine.PlanResolverFunc(func(d time.Time) (core.BudgetPlan, error) {
		return plans.PlanForDate(context.Background(), workspace, d)
	})
	s.resolver = engine.NewCachingPlanResolver(inner, planCacheSize, planCacheTTL)
	return s
}

// InvalidatePlans drops the plan memo. The refresh worker calls this when a
// change event arrives.
func (s *DashboardService) InvalidatePlans() {
	s.resolver.Invalidate()
}

// Dashboard assembles the complete view for the period starting at
// periodStart. A zero periodStart means the current period.
func (s *DashboardService) Dashboard(ctx context.Context, periodStart time.Time) (core.DashboardData, error) {
	current, err := s.resolvePeriod(periodStart)
	if err != nil {
		return core.DashboardData{}, err
	}
	label := period.Format(current.Start, s.interval)

	all, err := s.transactions.ListTransactions(ctx, s.workspace)
	if err != nil {
		return core.DashboardData{}, fmt.Errorf("list transactions: %w", err)
	}

	data := core.DashboardData{
		Workspace:              s.workspace,
		Currency:               s.currency,
		Interval:               s.interval,
		GeneratedAt:            time.Now().UTC(),
		CurrentPeriodLabel:     label,
		CurrentPeriodStart:     current.Start,
		CurrentPeriodEnd:       current.End,
		BalanceChangeDirection: "flat",
	}
	if len(all) == 0 {
		return data, nil
	}

	firstTxDate := all[0].Date
	for _, tx := range all[1:] {
		if tx.Date.Before(firstTxDate) {
			firstTxDate = tx.Date
		}
	}

	plan, fixedCategories, err := s.planAt(current.Start)
	if err != nil {
		return core.DashboardData{}, err
	}

	timeline, err := s.buildTimeline(ctx, all, firstTxDate, current.End, fixedCategories)
	if err != nil {
		return core.DashboardData{}, fmt.Errorf("build timeline: %w", err)
	}

	summary := engine.Aggregate(all, current.Start, current.End, s.workspace, fixedCategories)

	lastDay := current.End.AddDate(0, 0, -1)
	cumulativeSavings := engine.CumulativeSavings(all, lastDay)
	cumulativeBalance := engine.CumulativeBalance(all, lastDay)
	cumulativeTarget, err := engine.CumulativeSavingsTarget(lastDay, firstTxDate, s.interval, s.resolver, s.customDays)
	if err != nil {
		return core.DashboardData{}, fmt.Errorf("cumulative savings target: %w", err)
	}
	coverage := engine.ComputeCoverage(cumulativeBalance, cumulativeSavings, cumulativeTarget)

	summary.CumulativeSavings = cumulativeSavings
	summary.CumulativeBalance = cumulativeBalance
	summary.CumulativeSavingsTarget = cumulativeTarget
	summary.SavingsSurplus = coverage.SavingsSurplus
	summary.CashOnHand = coverage.CashOnHand

	data.CurrentBalance = cumulativeBalance
	data.TotalSavings = cumulativeSavings
	data.AvailableFunds = coverage.CashOnHand
	data.PlannedSavings = cumulativeTarget
	data.SavingsGap = cumulativeTarget.Sub(cumulativeSavings)
	data.Coverage = coverage

	s.fillTrend(&data, timeline, cumulativeBalance)

	data.Timeline = timeline
	data.IncomeExpenseFlows = buildFlows(summary, plan)
	data.ExpensesByCategory = summary.ExpensesByCategory
	data.IncomeByCategory = incomeByCategory(all, current)
	data.Categories = buildCategoryAnalyses(summary, plan, current.Start)
	data.Plan = plan
	data.CurrentPeriodSummary = &summary
	data.Transactions = filterPeriod(all, current)
	return data, nil
}

// Status assembles the compact view for the current period.
func (s *DashboardService) Status(ctx context.Context, now time.Time) (core.StatusData, error) {
	current, err := period.At(now, s.interval, s.customDays)
	if err != nil {
		return core.StatusData{}, err
	}

	all, err := s.transactions.ListTransactions(ctx, s.workspace)
	if err != nil {
		return core.StatusData{}, fmt.Errorf("list transactions: %w", err)
	}

	plan, fixedCategories, err := s.planAt(current.Start)
	if err != nil {
		return core.StatusData{}, err
	}

	summary := engine.Aggregate(all, current.Start, current.End, s.workspace, fixedCategories)

	lastDay := current.End.AddDate(0, 0, -1)
	cumulativeSavings := engine.CumulativeSavings(all, lastDay)
	cumulativeBalance := engine.CumulativeBalance(all, lastDay)

	var cumulativeTarget decimal.Decimal
	if len(all) > 0 {
		firstTxDate := all[0].Date
		for _, tx := range all[1:] {
			if tx.Date.Before(firstTxDate) {
				firstTxDate = tx.Date
			}
		}
		cumulativeTarget, err = engine.CumulativeSavingsTarget(lastDay, firstTxDate, s.interval, s.resolver, s.customDays)
		if err != nil {
			return core.StatusData{}, fmt.Errorf("cumulative savings target: %w", err)
		}
	}
	coverage := engine.ComputeCoverage(cumulativeBalance, cumulativeSavings, cumulativeTarget)

	summary.CumulativeSavings = cumulativeSavings
	summary.CumulativeBalance = cumulativeBalance
	summary.CumulativeSavingsTarget = cumulativeTarget
	summary.SavingsSurplus = coverage.SavingsSurplus
	summary.CashOnHand = coverage.CashOnHand

	remaining, err := period.DaysRemaining(current.Start, s.interval, s.customDays, now)
	if err != nil {
		return core.StatusData{}, err
	}

	status := core.StatusData{
		Workspace:     s.workspace,
		PeriodLabel:   period.Format(current.Start, s.interval),
		PeriodStart:   current.Start,
		PeriodEnd:     current.End,
		DaysRemaining: remaining,
		Summary:       summary,
		Coverage:      coverage,
		Plan:          plan,
	}
	if plan != nil {
		status.Disposable = plan.DisposableIncome()
	}
	return status, nil
}

// Projection derives the expected budget for the period from the plan alone.
func (s *DashboardService) Projection(ctx context.Context, periodStart time.Time) (engine.BudgetProjection, error) {
	current, err := s.resolvePeriod(periodStart)
	if err != nil {
		return engine.BudgetProjection{}, err
	}
	plan, err := s.plans.PlanForDate(ctx, s.workspace, current.Start)
	if err != nil {
		return engine.BudgetProjection{}, err
	}
	return engine.Project(plan, current.Start, s.interval), nil
}

// PeriodLabels lists every period label from the first transaction through
// the current period, oldest first.
func (s *DashboardService) PeriodLabels(ctx context.Context, now time.Time) ([]string, error) {
	all, err := s.transactions.ListTransactions(ctx, s.workspace)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if len(all) == 0 {
		return nil, nil
	}

	firstTxDate := all[0].Date
	lastTxDate := all[0].Date
	for _, tx := range all[1:] {
		if tx.Date.Before(firstTxDate) {
			firstTxDate = tx.Date
		}
		if tx.Date.After(lastTxDate) {
			lastTxDate = tx.Date
		}
	}

	firstStart, err := period.Start(firstTxDate, s.interval, s.customDays)
	if err != nil {
		return nil, err
	}
	current, err := period.At(now, s.interval, s.customDays)
	if err != nil {
		return nil, err
	}
	lastEnd := current.End
	if lastTxDate.After(lastEnd) {
		// Future-dated transactions extend the range.
		future, err := period.At(lastTxDate, s.interval, s.customDays)
		if err != nil {
			return nil, err
		}
		lastEnd = future.End
	}

	ranges, err := period.Iterate(firstStart, lastEnd, s.interval, s.customDays)
	if err != nil {
		return nil, err
	}
	var labels []string
	for r := range ranges {
		labels = append(labels, period.Format(r.Start, s.interval))
	}
	return labels, nil
}

func (s *DashboardService) resolvePeriod(periodStart time.Time) (period.Range, error) {
	if periodStart.IsZero() {
		return period.Current(s.interval, s.customDays)
	}
	return period.At(periodStart, s.interval, s.customDays)
}

// planAt resolves the plan covering the date. A missing plan is not an
// error here: views degrade to actuals-only.
func (s *DashboardService) planAt(date time.Time) (*core.BudgetPlan, map[string]bool, error) {
	plan, err := s.resolver.PlanForDate(date)
	if errors.Is(err, core.ErrPlanNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("plan for date: %w", err)
	}
	return &plan, plan.FixedCategories(), nil
}

// buildTimeline computes one data point per period from the first
// transaction through the current period. Points are independent, so they
// are computed in parallel into an indexed slice to keep the order stable.
func (s *DashboardService) buildTimeline(ctx context.Context, all []core.Transaction,
	firstTxDate, currentPeriodEnd time.Time, fixedCategories map[string]bool) ([]core.PeriodDataPoint, error) {

	firstStart, err := period.Start(firstTxDate, s.interval, s.customDays)
	if err != nil {
		return nil, err
	}
	seq, err := period.Iterate(firstStart, currentPeriodEnd, s.interval, s.customDays)
	if err != nil {
		return nil, err
	}
	var ranges []period.Range
	for r := range seq {
		ranges = append(ranges, r)
	}

	points := make([]core.PeriodDataPoint, len(ranges))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(timelineParallel)
	for i, r := range ranges {
		g.Go(func() error {
			point, err := s.buildPoint(all, r, firstTxDate, fixedCategories)
			if err != nil {
				return err
			}
			points[i] = point
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}

func (s *DashboardService) buildPoint(all []core.Transaction, r period.Range,
	firstTxDate time.Time, fixedCategories map[string]bool) (core.PeriodDataPoint, error) {

	summary := engine.Aggregate(all, r.Start, r.End, s.workspace, fixedCategories)

	lastDay := r.End.AddDate(0, 0, -1)
	cumulativeSavings := engine.CumulativeSavings(all, lastDay)
	cumulativeBalance := engine.CumulativeBalance(all, lastDay)
	cumulativeTarget, err := engine.CumulativeSavingsTarget(lastDay, firstTxDate, s.interval, s.resolver, s.customDays)
	if err != nil {
		return core.PeriodDataPoint{}, err
	}

	return core.PeriodDataPoint{
		PeriodLabel:             period.Format(r.Start, s.interval),
		PeriodStart:             r.Start,
		PeriodEnd:               r.End,
		CumulativeSavings:       cumulativeSavings,
		CumulativeBalance:       cumulativeBalance,
		CumulativeSavingsTarget: cumulativeTarget,
		AvailableFunds:          engine.CashOnHand(cumulativeBalance, cumulativeSavings),
		Income:                  summary.TotalIncome,
		Expenses:                summary.TotalExpenses,
		NetFlow:                 summary.TotalIncome.Sub(summary.TotalExpenses),
		SavingsThisPeriod:       summary.TotalSavings,
		DeductionsThisPeriod:    summary.TotalDeductions,
		FixedExpenses:           summary.TotalFixedExpenses,
		FlexibleExpenses:        summary.TotalFlexibleExpenses,
	}, nil
}

// fillTrend compares the current balance to the previous timeline point.
func (s *DashboardService) fillTrend(data *core.DashboardData, timeline []core.PeriodDataPoint, balance decimal.Decimal) {
	if len(timeline) < 2 {
		return
	}
	prev := timeline[len(timeline)-2].CumulativeBalance
	data.BalancePrevPeriod = &prev
	delta := balance.Sub(prev)
	switch {
	case delta.IsPositive():
		data.BalanceChangeDirection = "up"
	case delta.IsNegative():
		data.BalanceChangeDirection = "down"
	}
	if prev.IsZero() {
		// The percent change is undefined against a zero base; the
		// direction above still reflects the movement.
		return
	}
	pct := delta.Div(prev.Abs()).Mul(decimal.NewFromInt(100)).Round(1)
	data.BalanceChangePct = &pct
}

func buildCategoryAnalyses(summary core.PeriodSummary, plan *core.BudgetPlan, periodStart time.Time) []core.CategoryAnalysis {
	spendingBudget := decimal.Zero
	planned := map[string]decimal.Decimal{}
	planFixed := map[string]bool{}
	if plan != nil {
		spendingBudget = plan.DisposableIncome()
		for _, cb := range plan.CategoryBudgets {
			planned[cb.Category] = cb.Amount
		}
		planFixed = plan.FixedCategories()
	}

	seen := map[string]bool{}
	for cat := range summary.ExpensesByCategory {
		seen[cat] = true
	}
	for cat := range planned {
		seen[cat] = true
	}
	categories := make([]string, 0, len(seen))
	for cat := range seen {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	analyses := make([]core.CategoryAnalysis, 0, len(categories))
	for _, cat := range categories {
		_, isFixed := summary.FixedExpensesByCategory[cat]
		if planFixed[cat] {
			isFixed = true
		}

		var actual decimal.Decimal
		if isFixed {
			actual = summary.FixedExpensesByCategory[cat]
		} else {
			actual = summary.FlexibleExpensesByCategory[cat]
		}

		analysis := core.CategoryAnalysis{
			PeriodStart:          periodStart,
			Category:             cat,
			IsFixed:              isFixed,
			ActualAmount:         actual,
			ShareOfTotalExpenses: engine.CategoryShare(actual, summary.TotalExpenses),
		}
		if !isFixed {
			analysis.ShareOfSpendingBudget = engine.CategoryShare(actual, spendingBudget)
		}
		if amount, ok := planned[cat]; ok {
			plannedCopy := amount
			variance := engine.Variance(actual, amount)
			analysis.PlannedAmount = &plannedCopy
			analysis.VarianceVsPlan = &variance
		}
		analyses = append(analyses, analysis)
	}
	return analyses
}

// buildFlows produces the income waterfall edges: gross splits into
// deductions and net, net splits into fixed, flexible and savings, and each
// expense group fans out to its largest categories.
func buildFlows(summary core.PeriodSummary, plan *core.BudgetPlan) []core.IncomeExpenseFlow {
	var deductions, net decimal.Decimal
	if plan != nil {
		deductions = plan.TotalDeductions()
		net = plan.NetIncome()
	} else {
		deductions = summary.TotalDeductions
		net = summary.TotalIncome
	}

	var flows []core.IncomeExpenseFlow
	add := func(source, target string, amount decimal.Decimal) {
		if amount.IsPositive() {
			flows = append(flows, core.IncomeExpenseFlow{Source: source, Target: target, Amount: amount})
		}
	}

	add("Gross Income", "Deductions", deductions)
	add("Gross Income", "Net Income", net)
	add("Net Income", "Fixed Expenses", summary.TotalFixedExpenses)
	add("Net Income", "Flexible Expenses", summary.TotalFlexibleExpenses)
	add("Net Income", "Savings", summary.TotalSavings)

	for _, entry := range topCategories(summary.FixedExpensesByCategory, topFlowsPerGroup) {
		add("Fixed Expenses", entry.category, entry.amount)
	}
	for _, entry := range topCategories(summary.FlexibleExpensesByCategory, topFlowsPerGroup) {
		add("Flexible Expenses", entry.category, entry.amount)
	}
	return flows
}

type categoryAmount struct {
	category string
	amount   decimal.Decimal
}

func topCategories(m map[string]decimal.Decimal, n int) []categoryAmount {
	entries := make([]categoryAmount, 0, len(m))
	for cat, amount := range m {
		entries = append(entries, categoryAmount{cat, amount})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].amount.Equal(entries[j].amount) {
			return entries[i].amount.GreaterThan(entries[j].amount)
		}
		return entries[i].category < entries[j].category
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

func incomeByCategory(all []core.Transaction, r period.Range) map[string]decimal.Decimal {
	income := map[string]decimal.Decimal{}
	for _, tx := range all {
		if tx.Date.Before(r.Start) || !tx.Date.Before(r.End) {
			continue
		}
		// Same precedence as the aggregator: savings and deduction flags win
		// over the sign, so a positive deduction row is not income.
		if tx.Amount.IsPositive() && !tx.IsSavings && !tx.IsDeduction {
			income[tx.Category] = income[tx.Category].Add(tx.Amount)
		}
	}
	return income
}

func filterPeriod(all []core.Transaction, r period.Range) []core.Transaction {
	var out []core.Transaction
	for _, tx := range all {
		if !tx.Date.Before(r.Start) && tx.Date.Before(r.End) {
			out = append(out, tx)
		}
	}
	return out
}
