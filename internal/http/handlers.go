package http

import (
	"net/http"
	"time"

	"spendify/internal/auth"
	"spendify/internal/core"
	"spendify/internal/services"
	"spendify/internal/store"
)

type expenseDTO struct {
	ID        string  `json:"id"`
	OwnerID   string  `json:"owner_id,omitempty"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	Color     string  `json:"color"`
	Cents     int64   `json:"cents"`
	Euros     float64 `json:"euros"`
	CreatedAt string  `json:"created_at"`
	Note      string  `json:"note,omitempty"`
	GroupID   string  `json:"group_id,omitempty"`
	Recurring bool    `json:"recurring"`
	Frequency string  `json:"frequency,omitempty"`
	NextDue   string  `json:"next_due,omitempty"`
}

func toExpenseDTO(e core.Expense) expenseDTO {
	dto := expenseDTO{
		ID:        e.ID,
		OwnerID:   e.OwnerID,
		Name:      e.Name,
		Category:  string(e.Category),
		Color:     e.Category.Color(),
		Cents:     e.Amount.Cents,
		Euros:     e.Amount.Euros(),
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
		Note:      e.Note,
		GroupID:   e.GroupID,
		Recurring: e.Recurrence != nil,
	}
	if e.Recurrence != nil {
		dto.Frequency = string(e.Recurrence.Frequency)
		dto.NextDue = e.Recurrence.NextDue.Format("2006-01-02")
	}
	return dto
}

func toExpenseDTOs(list []core.Expense) []expenseDTO {
	out := make([]expenseDTO, 0, len(list))
	for _, e := range list {
		out = append(out, toExpenseDTO(e))
	}
	return out
}

type createExpenseRequest struct {
	Name      string `json:"name"`
	Category  string `json:"category"`
	Amount    string `json:"amount"` // decimal euros, e.g. "12.50"
	Note      string `json:"note"`
	Shared    bool   `json:"shared"`
	Recurring bool   `json:"recurring"`
	Frequency string `json:"frequency"`
	FirstDue  string `json:"first_due"` // YYYY-MM-DD
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return
	}

	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid amount"})
		return
	}

	in := services.AddExpenseInput{
		Name:      req.Name,
		Category:  core.Category(req.Category),
		Amount:    core.Money{Cents: cents},
		Note:      req.Note,
		Shared:    req.Shared,
		Recurring: req.Recurring,
		Frequency: core.Frequency(req.Frequency),
	}
	if req.Recurring {
		firstDue, err := time.ParseInLocation("2006-01-02", req.FirstDue, s.loc)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid first_due, want YYYY-MM-DD"})
			return
		}
		in.FirstDue = firstDue
	}

	id, err := s.expenses.AddExpense(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateCharts(r)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// resolveScope turns the optional ?scope=group query into a store scope for
// the calling user. Default is the personal scope.
func (s *Server) resolveScope(r *http.Request) (store.Scope, error) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		return store.Scope{}, core.ErrNotAuthenticated
	}

	if r.URL.Query().Get("scope") != "group" {
		return store.PersonalScope(userID), nil
	}

	groupID, err := s.groupSvc.GroupID(r.Context())
	if err != nil {
		return store.Scope{}, err
	}
	return store.GroupScope(groupID), nil
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	scope, err := s.resolveScope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	listings, err := s.expenses.ListSeparated(r.Context(), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"registered": toExpenseDTOs(listings.Registered),
		"upcoming":   toExpenseDTOs(listings.Upcoming),
	})
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := s.expenses.GetExpense(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(e))
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, r, core.ErrNotAuthenticated)
		return
	}

	res, err := s.sweep.RunForUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateCharts(r)
	writeJSON(w, http.StatusOK, map[string]int{
		"materialized": res.Materialized,
		"skipped":      res.Skipped,
		"failed":       res.Failed,
	})
}

type groupRequest struct {
	Name       string `json:"name,omitempty"`
	InviteCode string `json:"invite_code,omitempty"`
}

type groupDTO struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	InviteCode string   `json:"invite_code"`
	AdminID    string   `json:"admin_id"`
	Members    []string `json:"members"`
	Names      []string `json:"member_names,omitempty"`
}

func toGroupDTO(g core.Group, names []string) groupDTO {
	return groupDTO{
		ID:         g.ID,
		Name:       g.Name,
		InviteCode: g.InviteCode,
		AdminID:    g.AdminID,
		Members:    g.Members,
		Names:      names,
	}
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return
	}

	g, err := s.groupSvc.CreateGroup(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupDTO(g, nil))
}

func (s *Server) handleJoinGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return
	}

	g, err := s.groupSvc.JoinGroup(r.Context(), req.InviteCode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(g, nil))
}

func (s *Server) handleLeaveGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.groupSvc.LeaveGroup(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (s *Server) handleCurrentGroup(w http.ResponseWriter, r *http.Request) {
	details, err := s.groupSvc.CurrentGroup(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(details.Group, details.MemberNames))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	scope, err := s.resolveScope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	d, err := s.charts.Dashboard(r.Context(), scope)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// invalidateCharts drops the cached dashboards a write may have changed.
func (s *Server) invalidateCharts(r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		return
	}
	s.charts.Invalidate(store.PersonalScope(userID))
	if groupID, err := s.groupSvc.GroupID(r.Context()); err == nil {
		s.charts.Invalidate(store.GroupScope(groupID))
	}
}
