package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"spendify/internal/auth"
	"spendify/internal/core"
	"spendify/internal/store"
)

// GroupService manages shared-expense circles: creation, joining by invite
// code, leaving, and member-name resolution.
type GroupService struct {
	groups   store.GroupStore
	expenses store.ExpenseStore
	users    store.UserStore
	now      func() time.Time
}

func NewGroupService(groups store.GroupStore, expenses store.ExpenseStore, users store.UserStore) *GroupService {
	return &GroupService{
		groups:   groups,
		expenses: expenses,
		users:    users,
		now:      time.Now,
	}
}

// CreateGroup creates a group with the caller as admin and sole member.
// The invite code handed to other users is the group id.
func (s *GroupService) CreateGroup(ctx context.Context, name string) (core.Group, error) {
	userID := auth.UserID(ctx)
	if userID == "" {
		return core.Group{}, core.ErrNotAuthenticated
	}

	g := core.Group{
		Name:      name,
		AdminID:   userID,
		Members:   []string{userID},
		CreatedAt: s.now(),
	}
	if err := g.Validate(); err != nil {
		return core.Group{}, err
	}

	id, err := s.groups.CreateGroup(ctx, g)
	if err != nil {
		return core.Group{}, fmt.Errorf("create group: %w", err)
	}

	return s.groups.GetGroup(ctx, id)
}

// JoinGroup adds the caller to the group behind the invite code. Full groups
// and repeated joins are rejected before any write.
func (s *GroupService) JoinGroup(ctx context.Context, inviteCode string) (core.Group, error) {
	userID := auth.UserID(ctx)
	if userID == "" {
		return core.Group{}, core.ErrNotAuthenticated
	}

	g, err := s.groups.GetGroup(ctx, inviteCode)
	if errors.Is(err, store.ErrNotFound) {
		return core.Group{}, core.ErrGroupNotFound
	}
	if err != nil {
		return core.Group{}, fmt.Errorf("look up group: %w", err)
	}

	if g.HasMember(userID) {
		return core.Group{}, core.ErrAlreadyMember
	}
	if len(g.Members) >= core.MaxGroupMembers {
		return core.Group{}, core.ErrGroupFull
	}

	if err := s.groups.AddMember(ctx, g.ID, userID); err != nil {
		return core.Group{}, fmt.Errorf("add member: %w", err)
	}

	return s.groups.GetGroup(ctx, g.ID)
}

// LeaveGroup removes the caller from their group. Their recurring templates
// in the group are deleted so nothing keeps materializing on their behalf;
// their concrete occurrences stay in the group's history with the owner
// cleared.
func (s *GroupService) LeaveGroup(ctx context.Context) error {
	userID := auth.UserID(ctx)
	if userID == "" {
		return core.ErrNotAuthenticated
	}

	groupID, err := s.groups.GroupIDForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve group: %w", err)
	}
	if groupID == "" {
		return core.ErrNotInGroup
	}

	owned, err := s.expenses.ListExpensesByOwnerInGroup(ctx, groupID, userID)
	if err != nil {
		return fmt.Errorf("list owned expenses: %w", err)
	}

	for _, e := range owned {
		if e.IsTemplate() {
			if err := s.expenses.DeleteExpense(ctx, e.ID); err != nil {
				return fmt.Errorf("delete template %s: %w", e.ID, err)
			}
			continue
		}
		if err := s.expenses.ClearExpenseOwner(ctx, e.ID); err != nil {
			return fmt.Errorf("clear owner on %s: %w", e.ID, err)
		}
	}

	if err := s.groups.RemoveMember(ctx, groupID, userID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}

	slog.InfoContext(ctx, "User left group",
		"user_id", userID,
		"group_id", groupID,
		"owned_records", len(owned))
	return nil
}

// GroupID returns the caller's current group id, or ErrNotInGroup.
func (s *GroupService) GroupID(ctx context.Context) (string, error) {
	userID := auth.UserID(ctx)
	if userID == "" {
		return "", core.ErrNotAuthenticated
	}
	groupID, err := s.groups.GroupIDForUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("resolve group: %w", err)
	}
	if groupID == "" {
		return "", core.ErrNotInGroup
	}
	return groupID, nil
}

// GroupDetails is a group with its member ids resolved to display names.
type GroupDetails struct {
	Group       core.Group
	MemberNames []string
}

// CurrentGroup returns the caller's group with member names resolved, or
// ErrNotInGroup.
func (s *GroupService) CurrentGroup(ctx context.Context) (GroupDetails, error) {
	userID := auth.UserID(ctx)
	if userID == "" {
		return GroupDetails{}, core.ErrNotAuthenticated
	}

	groupID, err := s.groups.GroupIDForUser(ctx, userID)
	if err != nil {
		return GroupDetails{}, fmt.Errorf("resolve group: %w", err)
	}
	if groupID == "" {
		return GroupDetails{}, core.ErrNotInGroup
	}

	g, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return GroupDetails{}, fmt.Errorf("get group: %w", err)
	}

	names, err := s.MemberNames(ctx, g.Members)
	if err != nil {
		return GroupDetails{}, err
	}

	return GroupDetails{Group: g, MemberNames: names}, nil
}

// MemberNames resolves user ids to display names concurrently, preserving
// order. An id with no directory entry resolves to itself rather than
// failing the whole page.
func (s *GroupService) MemberNames(ctx context.Context, ids []string) ([]string, error) {
	names := make([]string, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			u, err := s.users.GetUser(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				names[i] = id
				return nil
			}
			if err != nil {
				return fmt.Errorf("resolve user %s: %w", id, err)
			}
			names[i] = u.Name
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return names, nil
}
