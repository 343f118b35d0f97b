package services

import (
	"context"
	"testing"
	"time"

	"spendify/internal/core"
	"spendify/internal/store"
	"spendify/internal/store/memory"
)

func newSweepService(s *memory.Store) *SweepService {
	svc := NewSweepService(s, s, nil, time.UTC)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func createTemplate(t *testing.T, s *memory.Store, owner, group string, nextDue time.Time) string {
	t.Helper()
	id, err := s.CreateExpense(context.Background(), core.Expense{
		OwnerID:   owner,
		Name:      "Bolletta",
		Category:  core.Bills,
		Amount:    core.Money{Cents: 5500},
		CreatedAt: nextDue.AddDate(0, -1, 0),
		GroupID:   group,
		Recurrence: &core.Recurrence{
			Frequency: core.Monthly,
			FirstDue:  nextDue.AddDate(0, -1, 0),
			NextDue:   nextDue,
		},
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	return id
}

func TestSweepMaterializesDueTemplate(t *testing.T) {
	mem := memory.New()
	svc := newSweepService(mem)
	ctx := context.Background()

	today := day(2026, time.March, 10)
	id := createTemplate(t, mem, "user-1", "", today)

	res, err := svc.Run(ctx, store.PersonalScope("user-1"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Materialized != 1 || res.Skipped != 0 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}

	all, _ := mem.ListExpenses(ctx, store.PersonalScope("user-1"))
	if len(all) != 2 {
		t.Fatalf("found %d records, want template + occurrence", len(all))
	}

	tmpl, err := mem.GetExpense(ctx, id)
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	if want := day(2026, time.April, 10); !tmpl.Recurrence.NextDue.Equal(want) {
		t.Errorf("next due = %v, want %v", tmpl.Recurrence.NextDue, want)
	}

	for _, e := range all {
		if e.IsTemplate() {
			continue
		}
		if want := core.PeriodicNote("Bolletta"); e.Note != want {
			t.Errorf("note = %q, want %q", e.Note, want)
		}
	}
}

func TestSweepIsIdempotentWithinADay(t *testing.T) {
	mem := memory.New()
	svc := newSweepService(mem)
	ctx := context.Background()

	createTemplate(t, mem, "user-1", "", day(2026, time.March, 10))

	first, err := svc.Run(ctx, store.PersonalScope("user-1"))
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := svc.Run(ctx, store.PersonalScope("user-1"))
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if first.Materialized != 1 {
		t.Errorf("first run materialized %d, want 1", first.Materialized)
	}
	if second.Materialized != 0 {
		t.Errorf("second run materialized %d, want 0", second.Materialized)
	}

	all, _ := mem.ListExpenses(ctx, store.PersonalScope("user-1"))
	occurrences := 0
	for _, e := range all {
		if !e.IsTemplate() {
			occurrences++
		}
	}
	if occurrences != 1 {
		t.Fatalf("found %d occurrences, want exactly 1", occurrences)
	}
}

func TestSweepScopeIsolation(t *testing.T) {
	mem := memory.New()
	svc := newSweepService(mem)
	ctx := context.Background()

	today := day(2026, time.March, 10)
	createTemplate(t, mem, "user-a", "", today)

	// Sweeping another user or a group must never touch A's template.
	if res, err := svc.Run(ctx, store.PersonalScope("user-b")); err != nil || res.Materialized != 0 {
		t.Fatalf("user-b sweep: %+v, %v", res, err)
	}
	if res, err := svc.Run(ctx, store.GroupScope("grp-1")); err != nil || res.Materialized != 0 {
		t.Fatalf("group sweep: %+v, %v", res, err)
	}

	all, _ := mem.ListExpenses(ctx, store.PersonalScope("user-a"))
	if len(all) != 1 {
		t.Fatalf("user-a has %d records, want the untouched template only", len(all))
	}
}

func TestSweepIgnoresFutureAndPastDueDates(t *testing.T) {
	mem := memory.New()
	svc := newSweepService(mem)
	ctx := context.Background()

	createTemplate(t, mem, "user-1", "", day(2026, time.March, 11)) // tomorrow
	createTemplate(t, mem, "user-1", "", day(2026, time.March, 9))  // yesterday

	res, err := svc.Run(ctx, store.PersonalScope("user-1"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Materialized != 0 {
		t.Fatalf("materialized %d, want 0", res.Materialized)
	}
}

func TestSweepSkipsCorruptTemplateAndContinues(t *testing.T) {
	mem := memory.New()
	svc := newSweepService(mem)
	ctx := context.Background()

	today := day(2026, time.March, 10)

	// A recurring record with a bad frequency is corrupt, not repairable.
	if _, err := mem.CreateExpense(ctx, core.Expense{
		OwnerID:  "user-1",
		Name:     "Rotta",
		Category: core.Other,
		Amount:   core.Money{Cents: 100},
		Recurrence: &core.Recurrence{
			Frequency: "fortnightly",
			FirstDue:  today,
			NextDue:   today,
		},
	}); err != nil {
		t.Fatalf("create corrupt template: %v", err)
	}
	createTemplate(t, mem, "user-1", "", today)

	res, err := svc.Run(ctx, store.PersonalScope("user-1"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Failed != 1 || res.Materialized != 1 {
		t.Fatalf("result = %+v, want 1 failed and 1 materialized", res)
	}
}

func TestRunForUserCoversPersonalAndGroup(t *testing.T) {
	mem := memory.New()
	svc := newSweepService(mem)
	ctx := context.Background()

	gid, err := mem.CreateGroup(ctx, core.Group{Name: "Casa", AdminID: "user-1", Members: []string{"user-1"}})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	today := day(2026, time.March, 10)
	createTemplate(t, mem, "user-1", "", today)
	createTemplate(t, mem, "user-1", gid, today)
	createTemplate(t, mem, "stranger", "", today)

	res, err := svc.RunForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("RunForUser: %v", err)
	}
	if res.Materialized != 2 {
		t.Fatalf("materialized %d, want personal + group only", res.Materialized)
	}
}
