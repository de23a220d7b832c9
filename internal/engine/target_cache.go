package engine

import (
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
)

// CachingPlanResolver memoizes per-period-start plan lookups so that repeated
// cumulative-target walks over a long history do not hit the underlying
// resolver once per period per call. Invalidate must be called whenever a
// plan is added or edited.
//
// Correctness never depends on the cache: entries expire on TTL and the
// wrapped resolver remains the source of truth. Not-found results are not
// cached, so a newly added plan shows up immediately.
type CachingPlanResolver struct {
	inner PlanResolver
	plans *cache.LRU[core.BudgetPlan]
}

func NewCachingPlanResolver(inner PlanResolver, maxPeriods int, ttl time.Duration) *CachingPlanResolver {
	return &CachingPlanResolver{
		inner: inner,
		plans: cache.NewLRU[core.BudgetPlan](maxPeriods, ttl),
	}
}

func (r *CachingPlanResolver) PlanForDate(date time.Time) (core.BudgetPlan, error) {
	key := date.UTC().Format("2006-01-02")
	if plan, ok := r.plans.Get(key); ok {
		return plan, nil
	}
	plan, err := r.inner.PlanForDate(date)
	if err != nil {
		return core.BudgetPlan{}, err
	}
	r.plans.Set(key, plan)
	return plan, nil
}

// Invalidate drops every memoized entry. Called on plan changes.
func (r *CachingPlanResolver) Invalidate() {
	r.plans.Clear()
}
