// Package memory is an in-process store used as the default backend and as
// the test double for the services. It mirrors the SQLite repository's
// semantics, including the conditional next-due update.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"spendify/internal/core"
	"spendify/internal/store"
)

type Store struct {
	mu       sync.Mutex
	expenses map[string]core.Expense
	groups   map[string]core.Group
	users    map[string]core.User
	watchers []*watcher
}

type watcher struct {
	userID string
	ch     chan string
}

func New() *Store {
	return &Store{
		expenses: make(map[string]core.Expense),
		groups:   make(map[string]core.Group),
		users:    make(map[string]core.User),
	}
}

// CreateExpense implements store.ExpenseStore. Like the SQLite repository
// it stores whatever it is given; validation is the services' job.
func (s *Store) CreateExpense(_ context.Context, e core.Expense) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = uuid.NewString()
	if e.Recurrence != nil {
		r := *e.Recurrence
		e.Recurrence = &r
	}
	s.expenses[e.ID] = e
	return e.ID, nil
}

func (s *Store) GetExpense(_ context.Context, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok {
		return core.Expense{}, store.ErrNotFound
	}
	return copyExpense(e), nil
}

func (s *Store) ListExpenses(_ context.Context, scope store.Scope) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Expense
	for _, e := range s.expenses {
		if scope.Matches(e) {
			out = append(out, copyExpense(e))
		}
	}
	sortByID(out)
	return out, nil
}

func (s *Store) ListExpensesByOwnerInGroup(_ context.Context, groupID, ownerID string) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Expense
	for _, e := range s.expenses {
		if e.GroupID == groupID && e.OwnerID == ownerID {
			out = append(out, copyExpense(e))
		}
	}
	sortByID(out)
	return out, nil
}

func (s *Store) DueTemplates(_ context.Context, scope store.Scope, start, end time.Time) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Expense
	for _, e := range s.expenses {
		if e.Recurrence == nil || !scope.Matches(e) {
			continue
		}
		due := e.Recurrence.NextDue
		if !due.Before(start) && due.Before(end) {
			out = append(out, copyExpense(e))
		}
	}
	sortByID(out)
	return out, nil
}

// AdvanceNextDue reports false for a missing or non-recurring row, same as
// the SQL conditional update matching zero rows.
func (s *Store) AdvanceNextDue(_ context.Context, id string, from, to time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.Recurrence == nil {
		return false, nil
	}
	if !e.Recurrence.NextDue.Equal(from) {
		return false, nil
	}
	r := *e.Recurrence
	r.NextDue = to
	e.Recurrence = &r
	s.expenses[id] = e
	return true, nil
}

func (s *Store) ClearExpenseOwner(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok {
		return store.ErrNotFound
	}
	e.OwnerID = ""
	s.expenses[id] = e
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.expenses, id)
	return nil
}

// CreateGroup implements store.GroupStore. The invite code is the id.
func (s *Store) CreateGroup(_ context.Context, g core.Group) (string, error) {
	if err := g.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	g.ID = uuid.NewString()
	g.InviteCode = g.ID
	g.CreatedAt = time.Now()
	g.Members = append([]string(nil), g.Members...)
	s.groups[g.ID] = g
	s.mu.Unlock()
	for _, m := range g.Members {
		s.notify(m)
	}
	return g.ID, nil
}

func (s *Store) GetGroup(_ context.Context, id string) (core.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return core.Group{}, store.ErrNotFound
	}
	g.Members = append([]string(nil), g.Members...)
	return g, nil
}

func (s *Store) AddMember(_ context.Context, groupID, userID string) error {
	s.mu.Lock()
	g, ok := s.groups[groupID]
	if !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	if !g.HasMember(userID) {
		g.Members = append(append([]string(nil), g.Members...), userID)
		s.groups[groupID] = g
	}
	s.mu.Unlock()
	s.notify(userID)
	return nil
}

func (s *Store) RemoveMember(_ context.Context, groupID, userID string) error {
	s.mu.Lock()
	g, ok := s.groups[groupID]
	if !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	members := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		if m != userID {
			members = append(members, m)
		}
	}
	g.Members = members
	s.groups[groupID] = g
	s.mu.Unlock()
	s.notify(userID)
	return nil
}

func (s *Store) GroupIDForUser(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groupIDForLocked(userID), nil
}

// WatchGroupID implements store.MembershipWatcher. The current value is
// delivered immediately, then on every membership change.
func (s *Store) WatchGroupID(ctx context.Context, userID string) (<-chan string, error) {
	w := &watcher{userID: userID, ch: make(chan string, 1)}
	s.mu.Lock()
	s.watchers = append(s.watchers, w)
	w.ch <- s.groupIDForLocked(userID)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		// Removal and close happen in one critical section so notify,
		// which delivers under the same mutex, can never hit a closed
		// channel.
		s.mu.Lock()
		for i, other := range s.watchers {
			if other == w {
				s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
				break
			}
		}
		close(w.ch)
		s.mu.Unlock()
	}()

	return w.ch, nil
}

func (s *Store) PutUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, store.ErrNotFound
	}
	return u, nil
}

// notify delivers the user's current group id to every live watcher. The
// sends are non-blocking and happen under the mutex, so a watcher being
// cancelled concurrently is either still registered or already closed and
// gone, never in between.
func (s *Store) notify(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gid := s.groupIDForLocked(userID)
	for _, w := range s.watchers {
		if w.userID != userID {
			continue
		}
		select {
		case w.ch <- gid:
		default:
			// Slow subscriber keeps only the latest value.
			select {
			case <-w.ch:
			default:
			}
			select {
			case w.ch <- gid:
			default:
			}
		}
	}
}

func (s *Store) groupIDForLocked(userID string) string {
	for id, g := range s.groups {
		if g.HasMember(userID) {
			return id
		}
	}
	return ""
}

func copyExpense(e core.Expense) core.Expense {
	if e.Recurrence != nil {
		r := *e.Recurrence
		e.Recurrence = &r
	}
	return e
}

func sortByID(list []core.Expense) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}
