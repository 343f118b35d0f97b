// Package storage is the SQLite persistence backend. It implements the
// store ports on database/sql with the pure-Go modernc driver.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"spendify/internal/core"
	"spendify/internal/store"

	_ "modernc.org/sqlite"
)

// watchPollInterval is how often WatchGroupID re-reads membership. SQLite
// has no change notification, so the watcher polls.
const watchPollInterval = 2 * time.Second

type SQLiteRepository struct {
	db  *sql.DB
	loc *time.Location
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// runs migrations. Times read back from the database are expressed in loc;
// pass nil for the process-local zone.
func NewSQLiteRepository(dbPath string, loc *time.Location) (*SQLiteRepository, error) {
	if loc == nil {
		loc = time.Local
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrateSchema(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &SQLiteRepository{db: db, loc: loc}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const expenseColumns = "id, owner_id, name, category, amount_cents, created_at, note, group_id, recurring, frequency, first_due, next_due"

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (string, error) {
	id := e.ID
	if id == "" {
		id = uuid.NewString()
	}

	var (
		recurring int64
		frequency string
		firstDue  int64
		nextDue   int64
	)
	if e.Recurrence != nil {
		recurring = 1
		frequency = string(e.Recurrence.Frequency)
		firstDue = e.Recurrence.FirstDue.Unix()
		nextDue = e.Recurrence.NextDue.Unix()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (`+expenseColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, e.OwnerID, e.Name, string(e.Category), e.Amount.Cents,
		e.CreatedAt.Unix(), e.Note, e.GroupID,
		recurring, frequency, firstDue, nextDue,
	)
	if err != nil {
		return "", fmt.Errorf("insert expense: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	e, err := r.scanExpense(row)
	if err == sql.ErrNoRows {
		return core.Expense{}, store.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, scope store.Scope) ([]core.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses`
	var args []any
	switch {
	case scope.GroupID != "":
		query += ` WHERE group_id = ?`
		args = append(args, scope.GroupID)
	case scope.UserID != "":
		query += ` WHERE owner_id = ? AND group_id = ''`
		args = append(args, scope.UserID)
	}
	query += ` ORDER BY id`

	return r.queryExpenses(ctx, query, args...)
}

func (r *SQLiteRepository) ListExpensesByOwnerInGroup(ctx context.Context, groupID, ownerID string) ([]core.Expense, error) {
	return r.queryExpenses(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE group_id = ? AND owner_id = ? ORDER BY id`,
		groupID, ownerID)
}

func (r *SQLiteRepository) DueTemplates(ctx context.Context, scope store.Scope, start, end time.Time) ([]core.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE recurring = 1 AND next_due >= ? AND next_due < ?`
	args := []any{start.Unix(), end.Unix()}
	switch {
	case scope.GroupID != "":
		query += ` AND group_id = ?`
		args = append(args, scope.GroupID)
	case scope.UserID != "":
		query += ` AND owner_id = ? AND group_id = ''`
		args = append(args, scope.UserID)
	}
	query += ` ORDER BY id`

	return r.queryExpenses(ctx, query, args...)
}

func (r *SQLiteRepository) AdvanceNextDue(ctx context.Context, id string, from, to time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET next_due = ? WHERE id = ? AND recurring = 1 AND next_due = ?`,
		to.Unix(), id, from.Unix())
	if err != nil {
		return false, fmt.Errorf("advance next due: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance next due rows: %w", err)
	}
	return affected == 1, nil
}

func (r *SQLiteRepository) ClearExpenseOwner(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE expenses SET owner_id = '' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("clear expense owner: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) CreateGroup(ctx context.Context, g core.Group) (string, error) {
	id := g.ID
	if id == "" {
		id = uuid.NewString()
	}
	// The invite code is the group id itself.
	inviteCode := g.InviteCode
	if inviteCode == "" {
		inviteCode = id
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	createdAt := g.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO groups (id, name, invite_code, admin_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, g.Name, inviteCode, g.AdminID, createdAt.Unix())
	if err != nil {
		return "", fmt.Errorf("insert group: %w", err)
	}

	for _, member := range g.Members {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)`,
			id, member, createdAt.Unix())
		if err != nil {
			return "", fmt.Errorf("insert member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit group: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) GetGroup(ctx context.Context, id string) (core.Group, error) {
	var (
		g       core.Group
		created int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, invite_code, admin_id, created_at FROM groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &g.InviteCode, &g.AdminID, &created)
	if err == sql.ErrNoRows {
		return core.Group{}, store.ErrNotFound
	}
	if err != nil {
		return core.Group{}, fmt.Errorf("get group: %w", err)
	}
	g.CreatedAt = time.Unix(created, 0).In(r.loc)

	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM group_members WHERE group_id = ? ORDER BY joined_at, user_id`, id)
	if err != nil {
		return core.Group{}, fmt.Errorf("get group members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return core.Group{}, fmt.Errorf("scan member: %w", err)
		}
		g.Members = append(g.Members, member)
	}
	if err := rows.Err(); err != nil {
		return core.Group{}, fmt.Errorf("iterate members: %w", err)
	}
	return g, nil
}

func (r *SQLiteRepository) AddMember(ctx context.Context, groupID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)`,
		groupID, userID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) RemoveMember(ctx context.Context, groupID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`,
		groupID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GroupIDForUser(ctx context.Context, userID string) (string, error) {
	var groupID string
	err := r.db.QueryRowContext(ctx,
		`SELECT group_id FROM group_members WHERE user_id = ?`, userID).
		Scan(&groupID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("group for user: %w", err)
	}
	return groupID, nil
}

func (r *SQLiteRepository) PutUser(ctx context.Context, u core.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email`,
		u.ID, u.Name, u.Email)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	var u core.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, email FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Email)
	if err == sql.ErrNoRows {
		return core.User{}, store.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// WatchGroupID delivers the user's current group id and then polls for
// changes. The channel closes when ctx is cancelled.
func (r *SQLiteRepository) WatchGroupID(ctx context.Context, userID string) (<-chan string, error) {
	current, err := r.GroupIDForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	ch := make(chan string, 1)
	ch <- current

	go func() {
		defer close(ch)
		ticker := time.NewTicker(watchPollInterval)
		defer ticker.Stop()

		last := current
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				next, err := r.GroupIDForUser(ctx, userID)
				if err != nil {
					continue
				}
				if next == last {
					continue
				}
				last = next
				select {
				case ch <- next:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteRepository) scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e         core.Expense
		category  string
		created   int64
		recurring int64
		frequency string
		firstDue  int64
		nextDue   int64
	)
	err := row.Scan(&e.ID, &e.OwnerID, &e.Name, &category, &e.Amount.Cents,
		&created, &e.Note, &e.GroupID, &recurring, &frequency, &firstDue, &nextDue)
	if err != nil {
		return core.Expense{}, err
	}
	e.Category = core.Category(category)
	e.CreatedAt = time.Unix(created, 0).In(r.loc)
	if recurring == 1 {
		e.Recurrence = &core.Recurrence{
			Frequency: core.Frequency(frequency),
			FirstDue:  time.Unix(firstDue, 0).In(r.loc),
			NextDue:   time.Unix(nextDue, 0).In(r.loc),
		}
	}
	return e, nil
}

func (r *SQLiteRepository) queryExpenses(ctx context.Context, query string, args ...any) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := r.scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return expenses, nil
}
