// Package store defines the persistence ports the recurrence engine and the
// group collaborator depend on. Implementations live in internal/storage
// (SQLite) and internal/store/memory.
package store

import (
	"context"
	"errors"
	"time"

	"spendify/internal/core"
)

// ErrNotFound is returned by reads when no record matches.
var ErrNotFound = errors.New("record not found")

// Scope bounds a query to either one user's personal expenses (owner matches
// and no group id) or one group's shared ones. The zero Scope matches every
// record and is used only by the backstop sweep worker.
type Scope struct {
	UserID  string
	GroupID string
}

// PersonalScope selects the user's personal expenses.
func PersonalScope(userID string) Scope { return Scope{UserID: userID} }

// GroupScope selects a group's shared expenses.
func GroupScope(groupID string) Scope { return Scope{GroupID: groupID} }

// Everything selects all records regardless of owner or group.
func Everything() Scope { return Scope{} }

// Matches reports whether the expense falls inside the scope.
func (s Scope) Matches(e core.Expense) bool {
	switch {
	case s.GroupID != "":
		return e.GroupID == s.GroupID
	case s.UserID != "":
		return e.OwnerID == s.UserID && e.GroupID == ""
	default:
		return true
	}
}

type (
	// ExpenseStore is the engine's view of the "expenses" collection.
	ExpenseStore interface {
		// CreateExpense assigns a fresh id, persists the record and returns
		// the id.
		CreateExpense(ctx context.Context, e core.Expense) (string, error)
		GetExpense(ctx context.Context, id string) (core.Expense, error)
		ListExpenses(ctx context.Context, scope Scope) ([]core.Expense, error)
		// ListExpensesByOwnerInGroup returns the expenses a single member
		// contributed to a group. Used when that member leaves.
		ListExpensesByOwnerInGroup(ctx context.Context, groupID, ownerID string) ([]core.Expense, error)
		// DueTemplates returns the templates in scope whose next due date
		// falls in the half-open interval [start, end).
		DueTemplates(ctx context.Context, scope Scope, start, end time.Time) ([]core.Expense, error)
		// AdvanceNextDue moves a template's next due date from `from` to
		// `to` only if the stored value still equals `from`. It reports
		// whether the update happened; false means a concurrent sweep got
		// there first and the caller must not materialize.
		AdvanceNextDue(ctx context.Context, id string, from, to time.Time) (bool, error)
		// ClearExpenseOwner severs the owner from the record, leaving the
		// expense in place.
		ClearExpenseOwner(ctx context.Context, id string) error
		DeleteExpense(ctx context.Context, id string) error
	}

	// GroupStore is the "groups" collection with its membership list.
	GroupStore interface {
		CreateGroup(ctx context.Context, g core.Group) (string, error)
		GetGroup(ctx context.Context, id string) (core.Group, error)
		AddMember(ctx context.Context, groupID, userID string) error
		RemoveMember(ctx context.Context, groupID, userID string) error
		// GroupIDForUser is the one-shot membership read the engine's
		// scope-resolution consumes. Empty string means no membership.
		GroupIDForUser(ctx context.Context, userID string) (string, error)
	}

	// UserStore is the id-to-profile directory used for member-name
	// resolution.
	UserStore interface {
		PutUser(ctx context.Context, u core.User) error
		GetUser(ctx context.Context, id string) (core.User, error)
	}

	// MembershipWatcher is the live-updating subscription behind the group
	// screens. The channel delivers the user's current group id (empty when
	// none) and closes when ctx is cancelled. The recurrence engine never
	// holds one of these; it uses GroupIDForUser instead.
	MembershipWatcher interface {
		WatchGroupID(ctx context.Context, userID string) (<-chan string, error)
	}
)
