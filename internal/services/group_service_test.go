package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"spendify/internal/core"
	"spendify/internal/store"
	"spendify/internal/store/memory"
)

func newGroupService(s *memory.Store) *GroupService {
	return NewGroupService(s, s, s)
}

func TestCreateGroupMakesCallerAdmin(t *testing.T) {
	mem := memory.New()
	svc := newGroupService(mem)

	g, err := svc.CreateGroup(authedCtx("user-1"), "Casa")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if g.AdminID != "user-1" {
		t.Errorf("admin = %q", g.AdminID)
	}
	if len(g.Members) != 1 || g.Members[0] != "user-1" {
		t.Errorf("members = %v", g.Members)
	}
	if g.InviteCode != g.ID {
		t.Errorf("invite code = %q, want the group id %q", g.InviteCode, g.ID)
	}
}

func TestCreateGroupRejectsEmptyName(t *testing.T) {
	svc := newGroupService(memory.New())
	if _, err := svc.CreateGroup(authedCtx("user-1"), "  "); !errors.Is(err, core.ErrEmptyGroupName) {
		t.Fatalf("err = %v, want ErrEmptyGroupName", err)
	}
}

func TestJoinGroup(t *testing.T) {
	mem := memory.New()
	svc := newGroupService(mem)

	created, err := svc.CreateGroup(authedCtx("user-1"), "Casa")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	joined, err := svc.JoinGroup(authedCtx("user-2"), created.InviteCode)
	if err != nil {
		t.Fatalf("JoinGroup: %v", err)
	}
	if !joined.HasMember("user-2") {
		t.Errorf("members = %v", joined.Members)
	}
}

func TestJoinGroupErrors(t *testing.T) {
	mem := memory.New()
	svc := newGroupService(mem)

	created, err := svc.CreateGroup(authedCtx("user-1"), "Casa")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	if _, err := svc.JoinGroup(authedCtx("user-2"), "bad-code"); !errors.Is(err, core.ErrGroupNotFound) {
		t.Errorf("bad code err = %v, want ErrGroupNotFound", err)
	}
	if _, err := svc.JoinGroup(authedCtx("user-1"), created.InviteCode); !errors.Is(err, core.ErrAlreadyMember) {
		t.Errorf("repeat join err = %v, want ErrAlreadyMember", err)
	}

	// Fill the group to capacity, then one more.
	for i := 2; i <= core.MaxGroupMembers; i++ {
		if _, err := svc.JoinGroup(authedCtx(fmt.Sprintf("user-%d", i)), created.InviteCode); err != nil {
			t.Fatalf("join user-%d: %v", i, err)
		}
	}
	if _, err := svc.JoinGroup(authedCtx("user-late"), created.InviteCode); !errors.Is(err, core.ErrGroupFull) {
		t.Errorf("full group err = %v, want ErrGroupFull", err)
	}
}

func TestLeaveGroupCleansUpOwnedRecords(t *testing.T) {
	mem := memory.New()
	svc := newGroupService(mem)
	ctx := context.Background()

	created, err := svc.CreateGroup(authedCtx("user-1"), "Casa")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	gid := created.ID

	due := day(2026, time.April, 1)
	tmplID := createTemplate(t, mem, "user-1", gid, due)
	occID, err := mem.CreateExpense(ctx, core.Expense{
		OwnerID: "user-1", Name: "Spesa", Category: core.Generic,
		Amount: core.Money{Cents: 900}, CreatedAt: day(2026, time.March, 1), GroupID: gid,
	})
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	otherID, err := mem.CreateExpense(ctx, core.Expense{
		OwnerID: "user-2", Name: "Altrui", Category: core.Generic,
		Amount: core.Money{Cents: 700}, CreatedAt: day(2026, time.March, 2), GroupID: gid,
	})
	if err != nil {
		t.Fatalf("CreateExpense other: %v", err)
	}

	if err := svc.LeaveGroup(authedCtx("user-1")); err != nil {
		t.Fatalf("LeaveGroup: %v", err)
	}

	// The leaver's template is gone so it stops materializing.
	if _, err := mem.GetExpense(ctx, tmplID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("template err = %v, want ErrNotFound", err)
	}
	// Their occurrence stays in the group history, owner severed.
	occ, err := mem.GetExpense(ctx, occID)
	if err != nil {
		t.Fatalf("occurrence: %v", err)
	}
	if occ.OwnerID != "" || occ.GroupID != gid {
		t.Errorf("occurrence after leave: %+v", occ)
	}
	// Other members' records are untouched.
	other, err := mem.GetExpense(ctx, otherID)
	if err != nil || other.OwnerID != "user-2" {
		t.Errorf("other member's record: %+v, %v", other, err)
	}

	if got, _ := mem.GroupIDForUser(ctx, "user-1"); got != "" {
		t.Errorf("membership = %q, want none", got)
	}
}

func TestLeaveGroupWithoutMembership(t *testing.T) {
	svc := newGroupService(memory.New())
	if err := svc.LeaveGroup(authedCtx("user-1")); !errors.Is(err, core.ErrNotInGroup) {
		t.Fatalf("err = %v, want ErrNotInGroup", err)
	}
}

func TestMemberNames(t *testing.T) {
	mem := memory.New()
	svc := newGroupService(mem)
	ctx := context.Background()

	if err := mem.PutUser(ctx, core.User{ID: "user-1", Name: "Ada"}); err != nil {
		t.Fatalf("PutUser: %v", err)
	}
	if err := mem.PutUser(ctx, core.User{ID: "user-2", Name: "Bruno"}); err != nil {
		t.Fatalf("PutUser: %v", err)
	}

	names, err := svc.MemberNames(ctx, []string{"user-1", "user-2", "ghost"})
	if err != nil {
		t.Fatalf("MemberNames: %v", err)
	}
	want := []string{"Ada", "Bruno", "ghost"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestCurrentGroup(t *testing.T) {
	mem := memory.New()
	svc := newGroupService(mem)
	ctx := context.Background()

	if _, err := svc.CurrentGroup(authedCtx("user-1")); !errors.Is(err, core.ErrNotInGroup) {
		t.Fatalf("err = %v, want ErrNotInGroup", err)
	}

	if err := mem.PutUser(ctx, core.User{ID: "user-1", Name: "Ada"}); err != nil {
		t.Fatalf("PutUser: %v", err)
	}
	if _, err := svc.CreateGroup(authedCtx("user-1"), "Casa"); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	details, err := svc.CurrentGroup(authedCtx("user-1"))
	if err != nil {
		t.Fatalf("CurrentGroup: %v", err)
	}
	if details.Group.Name != "Casa" {
		t.Errorf("group = %+v", details.Group)
	}
	if len(details.MemberNames) != 1 || details.MemberNames[0] != "Ada" {
		t.Errorf("member names = %v", details.MemberNames)
	}
}
