package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Weekly     Frequency = "weekly"
	Monthly    Frequency = "monthly"
	Bimonthly  Frequency = "bimonthly"
	Quarterly  Frequency = "quarterly"
	Semiannual Frequency = "semiannual"
	Annual     Frequency = "annual"
)

// MaxGroupMembers caps a group's membership list.
const MaxGroupMembers = 6

type (
	Frequency string

	// Recurrence holds the scheduling fields of a template. FirstDue is
	// immutable after creation; NextDue advances with every materialization
	// and only ever moves forward.
	Recurrence struct {
		Frequency Frequency
		FirstDue  time.Time
		NextDue   time.Time
	}

	// Expense is either a template (Recurrence != nil, never counted toward
	// totals) or a concrete occurrence (Recurrence == nil). The two shapes
	// share the common fields; Validate enforces that a record never carries
	// both meanings.
	Expense struct {
		ID         string
		OwnerID    string // cleared when the owner leaves the group
		Name       string
		Category   Category
		Amount     Money
		CreatedAt  time.Time
		Note       string
		GroupID    string // empty for personal expenses
		Recurrence *Recurrence
	}

	// Group is a shared-expense circle. The invite code doubles as the id.
	Group struct {
		ID         string
		Name       string
		InviteCode string
		AdminID    string
		Members    []string
		CreatedAt  time.Time
	}

	// User is the minimal directory entry used for member-name resolution.
	User struct {
		ID    string
		Name  string
		Email string
	}
)

var (
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrNotInGroup           = errors.New("user is not a member of any group")
	ErrInvalidTemplateState = errors.New("recurring expense is missing its scheduling fields")
	ErrGroupNotFound        = errors.New("no group matches the invite code")
	ErrGroupFull            = errors.New("group is full")
	ErrAlreadyMember        = errors.New("user is already a member of this group")
	ErrUnknownFrequency     = errors.New("unknown frequency")
	ErrUnknownCategory      = errors.New("unknown category")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrEmptyName            = errors.New("empty name")
	ErrNameTooLong          = errors.New("name too long")
	ErrNoteTooLong          = errors.New("note too long")
	ErrEmptyGroupName       = errors.New("empty group name")
)

const (
	maxNameLen = 30
	maxNoteLen = 300
)

// PeriodicNote is the note attached to every occurrence materialized from a
// template. The wording is part of the stored record format and must be the
// same on the on-create path and the catch-up sweep.
func PeriodicNote(name string) string {
	return fmt.Sprintf("Pagamento periodico della spesa \"%s\"", name)
}

func (f Frequency) Validate() error {
	switch f {
	case Weekly, Monthly, Bimonthly, Quarterly, Semiannual, Annual:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFrequency, string(f))
	}
}

// IsTemplate reports whether the expense is a recurring template rather than
// a concrete occurrence.
func (e Expense) IsTemplate() bool {
	return e.Recurrence != nil
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ErrEmptyName
	}
	if len(e.Name) > maxNameLen {
		return fmt.Errorf("%w (max %d characters)", ErrNameTooLong, maxNameLen)
	}
	if err := e.Category.Validate(); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if len(e.Note) > maxNoteLen {
		return fmt.Errorf("%w (max %d characters)", ErrNoteTooLong, maxNoteLen)
	}
	if e.Recurrence != nil {
		return e.Recurrence.Validate()
	}
	return nil
}

// Validate checks the scheduling fields a template cannot live without.
// A recurring record failing this check is in a corrupt state and is skipped
// by the engine, not repaired.
func (r Recurrence) Validate() error {
	if err := r.Frequency.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTemplateState, err)
	}
	if r.FirstDue.IsZero() || r.NextDue.IsZero() {
		return ErrInvalidTemplateState
	}
	return nil
}

func (g Group) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyGroupName
	}
	if len(g.Members) > MaxGroupMembers {
		return ErrGroupFull
	}
	return nil
}

// HasMember reports whether the user belongs to the group.
func (g Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}
