package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"spendify/internal/cache"
	"spendify/internal/core"
	"spendify/internal/store"
)

// ChartService computes the dashboard aggregations: category totals for the
// pie chart and per-day totals for the line chart. Templates never count;
// only concrete occurrences carry spent money.
type ChartService struct {
	expenses store.ExpenseStore
	cache    cache.Cache[Dashboard]
	loc      *time.Location
	now      func() time.Time
}

// CategoryTotal is one pie-chart slice.
type CategoryTotal struct {
	Category core.Category `json:"category"`
	Color    string        `json:"color"`
	Cents    int64         `json:"cents"`
}

// DailyTotal is one line-chart point.
type DailyTotal struct {
	Day   time.Time `json:"day"`
	Cents int64     `json:"cents"`
}

// Dashboard is the full chart payload for one scope.
type Dashboard struct {
	Categories []CategoryTotal `json:"categories"`
	Daily      []DailyTotal    `json:"daily"`
	TotalCents int64           `json:"total_cents"`
}

func NewChartService(expenses store.ExpenseStore, c cache.Cache[Dashboard], loc *time.Location) *ChartService {
	if loc == nil {
		loc = time.Local
	}
	return &ChartService{
		expenses: expenses,
		cache:    c,
		loc:      loc,
		now:      time.Now,
	}
}

// Dashboard aggregates the scope's occurrences. Results are cached per
// scope; Invalidate drops the entry after a write.
func (s *ChartService) Dashboard(ctx context.Context, scope store.Scope) (Dashboard, error) {
	key := cacheKey(scope)
	if s.cache != nil {
		if d, ok := s.cache.Get(key); ok {
			return d, nil
		}
	}

	all, err := s.expenses.ListExpenses(ctx, scope)
	if err != nil {
		return Dashboard{}, fmt.Errorf("list expenses: %w", err)
	}

	byCategory := map[core.Category]int64{}
	byDay := map[time.Time]int64{}
	var total int64

	for _, e := range all {
		if e.IsTemplate() {
			continue
		}
		byCategory[e.Category] += e.Amount.Cents
		day := core.TruncateToDay(e.CreatedAt, s.loc)
		byDay[day] += e.Amount.Cents
		total += e.Amount.Cents
	}

	d := Dashboard{TotalCents: total}

	for cat, cents := range byCategory {
		d.Categories = append(d.Categories, CategoryTotal{
			Category: cat,
			Color:    cat.Color(),
			Cents:    cents,
		})
	}
	// Biggest slice first; ties broken by name for stable output.
	sort.Slice(d.Categories, func(i, j int) bool {
		if d.Categories[i].Cents != d.Categories[j].Cents {
			return d.Categories[i].Cents > d.Categories[j].Cents
		}
		return d.Categories[i].Category < d.Categories[j].Category
	})

	for day, cents := range byDay {
		d.Daily = append(d.Daily, DailyTotal{Day: day, Cents: cents})
	}
	sort.Slice(d.Daily, func(i, j int) bool {
		return d.Daily[i].Day.Before(d.Daily[j].Day)
	})

	if s.cache != nil {
		s.cache.Set(key, d)
	}
	return d, nil
}

// Invalidate drops the cached dashboard for a scope. Called after writes.
func (s *ChartService) Invalidate(scope store.Scope) {
	if s.cache != nil {
		s.cache.Delete(cacheKey(scope))
	}
}

func cacheKey(scope store.Scope) string {
	return "dashboard:" + scope.UserID + ":" + scope.GroupID
}
