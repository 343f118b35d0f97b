// Package services holds the recurrence engine, the group collaborator and
// the chart aggregations. All business rules live here; the HTTP layer only
// translates.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"spendify/internal/auth"
	"spendify/internal/core"
	"spendify/internal/metrics"
	"spendify/internal/store"
)

// OccurrencePublisher announces recorded occurrences to the export pipeline.
type OccurrencePublisher interface {
	PublishOccurrenceCreated(ctx context.Context, expenseID, groupID string) error
}

// ExpenseService orchestrates expense creation and listings.
type ExpenseService struct {
	expenses  store.ExpenseStore
	groups    store.GroupStore
	publisher OccurrencePublisher
	loc       *time.Location
	now       func() time.Time
}

func NewExpenseService(expenses store.ExpenseStore, groups store.GroupStore, publisher OccurrencePublisher, loc *time.Location) *ExpenseService {
	if loc == nil {
		loc = time.Local
	}
	return &ExpenseService{
		expenses:  expenses,
		groups:    groups,
		publisher: publisher,
		loc:       loc,
		now:       time.Now,
	}
}

// AddExpenseInput carries the fields of a proposed new expense.
type AddExpenseInput struct {
	Name      string
	Category  core.Category
	Amount    core.Money
	Note      string
	Shared    bool // record against the caller's group
	Recurring bool
	Frequency core.Frequency
	FirstDue  time.Time // required when Recurring
}

// AddExpense records a new expense for the authenticated caller. For a
// recurring expense whose first due date is today it writes both the
// template and today's occurrence; with a later first due date only the
// template is written and the sweep takes over from there.
func (s *ExpenseService) AddExpense(ctx context.Context, in AddExpenseInput) (string, error) {
	userID := auth.UserID(ctx)
	if userID == "" {
		return "", core.ErrNotAuthenticated
	}

	groupID := ""
	if in.Shared {
		var err error
		groupID, err = s.groups.GroupIDForUser(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("resolve group: %w", err)
		}
		if groupID == "" {
			return "", core.ErrNotInGroup
		}
	}

	now := s.now().In(s.loc)

	if !in.Recurring {
		occ := core.Expense{
			OwnerID:   userID,
			Name:      in.Name,
			Category:  in.Category,
			Amount:    in.Amount,
			CreatedAt: now,
			Note:      in.Note,
			GroupID:   groupID,
		}
		if err := occ.Validate(); err != nil {
			return "", err
		}
		id, err := s.expenses.CreateExpense(ctx, occ)
		if err != nil {
			return "", fmt.Errorf("save expense: %w", err)
		}
		metrics.ExpensesCreated.WithLabelValues("occurrence").Inc()
		s.publish(ctx, id, groupID)
		return id, nil
	}

	if err := in.Frequency.Validate(); err != nil {
		return "", err
	}

	today := core.TruncateToDay(now, s.loc)
	firstDue := core.TruncateToDay(in.FirstDue, s.loc)

	nextDue := firstDue
	dueToday := firstDue.Equal(today)
	if dueToday {
		advanced, err := core.Advance(firstDue, in.Frequency)
		if err != nil {
			return "", err
		}
		nextDue = advanced
	}

	template := core.Expense{
		OwnerID:   userID,
		Name:      in.Name,
		Category:  in.Category,
		Amount:    in.Amount,
		CreatedAt: now,
		Note:      in.Note,
		GroupID:   groupID,
		Recurrence: &core.Recurrence{
			Frequency: in.Frequency,
			FirstDue:  firstDue,
			NextDue:   nextDue,
		},
	}
	if err := template.Validate(); err != nil {
		return "", err
	}

	id, err := s.expenses.CreateExpense(ctx, template)
	if err != nil {
		return "", fmt.Errorf("save template: %w", err)
	}
	metrics.ExpensesCreated.WithLabelValues("template").Inc()

	if dueToday {
		occ := core.Expense{
			OwnerID:   userID,
			Name:      in.Name,
			Category:  in.Category,
			Amount:    in.Amount,
			CreatedAt: now,
			Note:      core.PeriodicNote(in.Name),
			GroupID:   groupID,
		}
		occID, err := s.expenses.CreateExpense(ctx, occ)
		if err != nil {
			return "", fmt.Errorf("save first occurrence: %w", err)
		}
		metrics.ExpensesCreated.WithLabelValues("occurrence").Inc()
		s.publish(ctx, occID, groupID)
	}

	return id, nil
}

// publish is best-effort: the expense is already saved, a lost message only
// delays the spreadsheet export.
func (s *ExpenseService) publish(ctx context.Context, expenseID, groupID string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishOccurrenceCreated(ctx, expenseID, groupID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish occurrence message",
			"expense_id", expenseID,
			"error", err)
	}
}

// Listings separates a scope's records into the two home-screen lists.
type Listings struct {
	// Registered holds everything already happened, newest first.
	Registered []core.Expense
	// Upcoming holds templates with a future next due date, soonest first.
	Upcoming []core.Expense
}

// ListSeparated partitions the scope's records: a template whose next due
// date is strictly after today goes to Upcoming, every other record to
// Registered. Each record appears in exactly one list.
func (s *ExpenseService) ListSeparated(ctx context.Context, scope store.Scope) (Listings, error) {
	all, err := s.expenses.ListExpenses(ctx, scope)
	if err != nil {
		return Listings{}, fmt.Errorf("list expenses: %w", err)
	}

	today := core.TruncateToDay(s.now().In(s.loc), s.loc)

	var out Listings
	for _, e := range all {
		if e.Recurrence != nil && e.Recurrence.NextDue.After(today) {
			out.Upcoming = append(out.Upcoming, e)
		} else {
			out.Registered = append(out.Registered, e)
		}
	}

	sort.SliceStable(out.Registered, func(i, j int) bool {
		return out.Registered[i].CreatedAt.After(out.Registered[j].CreatedAt)
	})
	sort.SliceStable(out.Upcoming, func(i, j int) bool {
		return out.Upcoming[i].Recurrence.NextDue.Before(out.Upcoming[j].Recurrence.NextDue)
	})

	return out, nil
}

// GetExpense returns a single record the caller is allowed to see: a
// personal expense only to its owner, a group expense to any member of that
// group. Records outside the caller's reach read as not found.
func (s *ExpenseService) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	userID := auth.UserID(ctx)
	if userID == "" {
		return core.Expense{}, core.ErrNotAuthenticated
	}

	e, err := s.expenses.GetExpense(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}

	if e.GroupID == "" {
		if e.OwnerID != userID {
			return core.Expense{}, store.ErrNotFound
		}
		return e, nil
	}

	g, err := s.groups.GetGroup(ctx, e.GroupID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("resolve group: %w", err)
	}
	if !g.HasMember(userID) {
		return core.Expense{}, store.ErrNotFound
	}
	return e, nil
}
