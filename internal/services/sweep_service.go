package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"spendify/internal/core"
	"spendify/internal/metrics"
	"spendify/internal/store"
)

// SweepService runs the catch-up pass that turns templates due today into
// concrete occurrences. The app server triggers it per user activation; the
// sweep worker runs it unscoped as a daily backstop.
type SweepService struct {
	expenses  store.ExpenseStore
	groups    store.GroupStore
	publisher OccurrencePublisher
	loc       *time.Location
	now       func() time.Time
}

func NewSweepService(expenses store.ExpenseStore, groups store.GroupStore, publisher OccurrencePublisher, loc *time.Location) *SweepService {
	if loc == nil {
		loc = time.Local
	}
	return &SweepService{
		expenses:  expenses,
		groups:    groups,
		publisher: publisher,
		loc:       loc,
		now:       time.Now,
	}
}

// Result summarizes one sweep pass.
type Result struct {
	Materialized int
	Skipped      int
	Failed       int
}

// Run materializes every template in scope whose next due date falls inside
// today. The next due date is advanced first with a conditional update, then
// the occurrence is written: a racing sweep loses the update and skips, so a
// template never emits twice for the same day. A failure on one template is
// logged and does not stop the pass.
func (s *SweepService) Run(ctx context.Context, scope store.Scope) (Result, error) {
	start, end := core.DayInterval(s.now().In(s.loc), s.loc)

	due, err := s.expenses.DueTemplates(ctx, scope, start, end)
	if err != nil {
		return Result{}, fmt.Errorf("load due templates: %w", err)
	}

	var res Result
	for _, tmpl := range due {
		switch err := s.materialize(ctx, tmpl); {
		case err == nil:
			res.Materialized++
			metrics.SweepMaterialized.Inc()
		case errors.Is(err, errLostRace):
			res.Skipped++
			metrics.SweepSkipped.Inc()
		default:
			res.Failed++
			metrics.SweepFailures.Inc()
			slog.ErrorContext(ctx, "Failed to materialize recurring expense",
				"id", tmpl.ID,
				"name", tmpl.Name,
				"error", err)
		}
	}

	slog.InfoContext(ctx, "Catch-up sweep finished",
		"due", len(due),
		"materialized", res.Materialized,
		"skipped", res.Skipped,
		"failed", res.Failed)

	return res, nil
}

// RunForUser sweeps the user's personal scope and then, when the user
// belongs to a group, the group scope. Mirrors what happens on every app
// activation.
func (s *SweepService) RunForUser(ctx context.Context, userID string) (Result, error) {
	personal, err := s.Run(ctx, store.PersonalScope(userID))
	if err != nil {
		return Result{}, err
	}

	groupID, err := s.groups.GroupIDForUser(ctx, userID)
	if err != nil {
		return personal, fmt.Errorf("resolve group: %w", err)
	}
	if groupID == "" {
		return personal, nil
	}

	group, err := s.Run(ctx, store.GroupScope(groupID))
	if err != nil {
		return personal, err
	}

	return Result{
		Materialized: personal.Materialized + group.Materialized,
		Skipped:      personal.Skipped + group.Skipped,
		Failed:       personal.Failed + group.Failed,
	}, nil
}

// errLostRace marks a template another sweep already advanced today.
var errLostRace = errors.New("another sweep advanced the template first")

func (s *SweepService) materialize(ctx context.Context, tmpl core.Expense) error {
	if tmpl.Recurrence == nil {
		return fmt.Errorf("record %s is not a template", tmpl.ID)
	}
	if err := tmpl.Recurrence.Validate(); err != nil {
		return err
	}

	next, err := core.Advance(tmpl.Recurrence.NextDue, tmpl.Recurrence.Frequency)
	if err != nil {
		return err
	}

	won, err := s.expenses.AdvanceNextDue(ctx, tmpl.ID, tmpl.Recurrence.NextDue, next)
	if err != nil {
		return fmt.Errorf("advance next due: %w", err)
	}
	if !won {
		return errLostRace
	}

	occ := core.Expense{
		OwnerID:   tmpl.OwnerID,
		Name:      tmpl.Name,
		Category:  tmpl.Category,
		Amount:    tmpl.Amount,
		CreatedAt: s.now().In(s.loc),
		Note:      core.PeriodicNote(tmpl.Name),
		GroupID:   tmpl.GroupID,
	}
	id, err := s.expenses.CreateExpense(ctx, occ)
	if err != nil {
		// The template is already advanced; this day's occurrence is lost
		// and has to be entered by hand. Loud log, no retry.
		return fmt.Errorf("emit occurrence for advanced template: %w", err)
	}
	metrics.ExpensesCreated.WithLabelValues("occurrence").Inc()

	if s.publisher != nil {
		if err := s.publisher.PublishOccurrenceCreated(ctx, id, occ.GroupID); err != nil {
			slog.ErrorContext(ctx, "Failed to publish occurrence message",
				"expense_id", id,
				"error", err)
		}
	}
	return nil
}
