package memory

import (
	"context"
	"testing"
	"time"

	"spendify/internal/core"
	"spendify/internal/store"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func occurrence(owner, group string) core.Expense {
	return core.Expense{
		OwnerID:   owner,
		Name:      "Spesa",
		Category:  core.Generic,
		Amount:    core.Money{Cents: 1000},
		CreatedAt: time.Now(),
		GroupID:   group,
	}
}

func TestCreateAndGetExpense(t *testing.T) {
	s := New()
	ctx := context.Background()

	id, err := s.CreateExpense(ctx, occurrence("u1", ""))
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	if id == "" {
		t.Fatal("expected assigned id")
	}
	got, err := s.GetExpense(ctx, id)
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	if got.OwnerID != "u1" {
		t.Errorf("owner = %q, want u1", got.OwnerID)
	}
	if _, err := s.GetExpense(ctx, "missing"); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDueTemplatesInterval(t *testing.T) {
	s := New()
	ctx := context.Background()

	mk := func(next time.Time) string {
		e := occurrence("u1", "")
		e.Recurrence = &core.Recurrence{Frequency: core.Monthly, FirstDue: next, NextDue: next}
		id, err := s.CreateExpense(ctx, e)
		if err != nil {
			t.Fatalf("CreateExpense: %v", err)
		}
		return id
	}
	today := mk(day(2024, 6, 15))
	mk(day(2024, 6, 16)) // tomorrow, out of interval
	mk(day(2024, 6, 14)) // yesterday, out of interval

	due, err := s.DueTemplates(ctx, store.PersonalScope("u1"), day(2024, 6, 15), day(2024, 6, 16))
	if err != nil {
		t.Fatalf("DueTemplates: %v", err)
	}
	if len(due) != 1 || due[0].ID != today {
		t.Fatalf("due = %v, want only today's template", due)
	}
}

func TestAdvanceNextDueIsConditional(t *testing.T) {
	s := New()
	ctx := context.Background()

	e := occurrence("u1", "")
	e.Recurrence = &core.Recurrence{Frequency: core.Weekly, FirstDue: day(2024, 6, 1), NextDue: day(2024, 6, 15)}
	id, _ := s.CreateExpense(ctx, e)

	ok, err := s.AdvanceNextDue(ctx, id, day(2024, 6, 15), day(2024, 6, 22))
	if err != nil || !ok {
		t.Fatalf("first advance = %v, %v; want true", ok, err)
	}
	// Same stale from-value again: the row no longer matches.
	ok, err = s.AdvanceNextDue(ctx, id, day(2024, 6, 15), day(2024, 6, 22))
	if err != nil {
		t.Fatalf("second advance: %v", err)
	}
	if ok {
		t.Fatal("stale advance must not win")
	}
	got, _ := s.GetExpense(ctx, id)
	if !got.Recurrence.NextDue.Equal(day(2024, 6, 22)) {
		t.Errorf("next due = %v, want 2024-06-22", got.Recurrence.NextDue)
	}
}

func TestAdvanceNextDueMissingRowReadsAsLostRace(t *testing.T) {
	s := New()
	ctx := context.Background()

	ok, err := s.AdvanceNextDue(ctx, "gone", day(2024, 6, 15), day(2024, 6, 22))
	if err != nil {
		t.Fatalf("AdvanceNextDue: %v", err)
	}
	if ok {
		t.Fatal("advance on a missing row must not win")
	}

	// Same for a row that exists but is a plain occurrence.
	id, _ := s.CreateExpense(ctx, occurrence("u1", ""))
	ok, err = s.AdvanceNextDue(ctx, id, day(2024, 6, 15), day(2024, 6, 22))
	if err != nil || ok {
		t.Fatalf("advance on occurrence = %v, %v; want false, nil", ok, err)
	}
}

func TestGroupMembershipAndWatch(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.WatchGroupID(ctx, "u2")
	if err != nil {
		t.Fatalf("WatchGroupID: %v", err)
	}
	if gid := <-ch; gid != "" {
		t.Errorf("initial group id = %q, want empty", gid)
	}

	gid, err := s.CreateGroup(ctx, core.Group{Name: "Casa", AdminID: "u1", Members: []string{"u1"}})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := s.AddMember(ctx, gid, "u2"); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	select {
	case got := <-ch:
		if got != gid {
			t.Errorf("watched group id = %q, want %q", got, gid)
		}
	case <-time.After(time.Second):
		t.Fatal("no membership notification")
	}

	current, err := s.GroupIDForUser(ctx, "u2")
	if err != nil || current != gid {
		t.Fatalf("GroupIDForUser = %q, %v; want %q", current, err, gid)
	}

	if err := s.RemoveMember(ctx, gid, "u2"); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	current, _ = s.GroupIDForUser(ctx, "u2")
	if current != "" {
		t.Errorf("after removal group id = %q, want empty", current)
	}
}

func TestWatchCancelDuringMembershipChurn(t *testing.T) {
	s := New()
	ctx := context.Background()

	gid, err := s.CreateGroup(ctx, core.Group{Name: "Casa", AdminID: "u1", Members: []string{"u1"}})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_ = s.AddMember(ctx, gid, "u2")
			_ = s.RemoveMember(ctx, gid, "u2")
		}
	}()

	// Cancelling a watch while notifications are in flight must not panic.
	for i := 0; i < 200; i++ {
		wctx, cancel := context.WithCancel(ctx)
		ch, err := s.WatchGroupID(wctx, "u2")
		if err != nil {
			cancel()
			t.Fatalf("WatchGroupID: %v", err)
		}
		<-ch
		cancel()
	}
	<-done
}

func TestClearOwnerAndDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	id, _ := s.CreateExpense(ctx, occurrence("u1", "g1"))
	if err := s.ClearExpenseOwner(ctx, id); err != nil {
		t.Fatalf("ClearExpenseOwner: %v", err)
	}
	got, _ := s.GetExpense(ctx, id)
	if got.OwnerID != "" {
		t.Errorf("owner = %q, want cleared", got.OwnerID)
	}

	if err := s.DeleteExpense(ctx, id); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	if _, err := s.GetExpense(ctx, id); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
