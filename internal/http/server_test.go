package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"spendify/internal/auth"
	"spendify/internal/services"
	"spendify/internal/store/memory"
)

func newTestServer(t *testing.T) (*Server, *auth.Verifier) {
	t.Helper()
	mem := memory.New()
	verifier := auth.NewVerifier("test-secret", time.Hour)

	return NewServer(":0", Deps{
		Expenses: services.NewExpenseService(mem, mem, nil, time.UTC),
		Sweep:    services.NewSweepService(mem, mem, nil, time.UTC),
		Groups:   services.NewGroupService(mem, mem, mem),
		Charts:   services.NewChartService(mem, nil, time.UTC),
		Verifier: verifier,
		Location: time.UTC,
	}), verifier
}

func doRequest(t *testing.T, s *Server, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func mustToken(t *testing.T, v *auth.Verifier, userID string) string {
	t.Helper()
	token, err := v.Generate(userID, "Test User")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func TestHealthzIsPublic(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, "", http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, "", http.MethodGet, "/api/expenses", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreateAndListExpenses(t *testing.T) {
	s, v := newTestServer(t)
	token := mustToken(t, v, "user-1")

	rec := doRequest(t, s, token, http.MethodPost, "/api/expenses", map[string]any{
		"name":     "Affitto",
		"category": "rent",
		"amount":   "800.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body)
	}

	rec = doRequest(t, s, token, http.MethodGet, "/api/expenses", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}

	var got struct {
		Registered []expenseDTO `json:"registered"`
		Upcoming   []expenseDTO `json:"upcoming"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Registered) != 1 || len(got.Upcoming) != 0 {
		t.Fatalf("listings = %d registered, %d upcoming", len(got.Registered), len(got.Upcoming))
	}
	if got.Registered[0].Cents != 80000 || got.Registered[0].Category != "rent" {
		t.Errorf("record = %+v", got.Registered[0])
	}
}

func TestCreateRecurringDueTodayThenSweepFindsNothing(t *testing.T) {
	s, v := newTestServer(t)
	token := mustToken(t, v, "user-1")

	today := time.Now().UTC().Format("2006-01-02")
	rec := doRequest(t, s, token, http.MethodPost, "/api/expenses", map[string]any{
		"name":      "Bolletta",
		"category":  "bills",
		"amount":    "55.00",
		"recurring": true,
		"frequency": "monthly",
		"first_due": today,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body)
	}

	// The on-create path already materialized today; the sweep must skip.
	rec = doRequest(t, s, token, http.MethodPost, "/api/sweep", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sweep status = %d", rec.Code)
	}
	var res map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res["materialized"] != 0 {
		t.Errorf("sweep materialized %d, want 0", res["materialized"])
	}
}

func TestCreateExpenseValidation(t *testing.T) {
	s, v := newTestServer(t)
	token := mustToken(t, v, "user-1")

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"bad amount", map[string]any{"name": "x", "category": "generic", "amount": "abc"}, http.StatusBadRequest},
		{"empty name", map[string]any{"name": " ", "category": "generic", "amount": "1.00"}, http.StatusBadRequest},
		{"bad category", map[string]any{"name": "x", "category": "vacation", "amount": "1.00"}, http.StatusBadRequest},
		{"bad frequency", map[string]any{"name": "x", "category": "generic", "amount": "1.00", "recurring": true, "frequency": "daily", "first_due": "2027-01-01"}, http.StatusBadRequest},
		{"bad first due", map[string]any{"name": "x", "category": "generic", "amount": "1.00", "recurring": true, "frequency": "weekly", "first_due": "soon"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, token, http.MethodPost, "/api/expenses", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestGroupFlow(t *testing.T) {
	s, v := newTestServer(t)
	admin := mustToken(t, v, "user-1")
	member := mustToken(t, v, "user-2")

	rec := doRequest(t, s, admin, http.MethodPost, "/api/groups", map[string]any{"name": "Casa"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create group status = %d: %s", rec.Code, rec.Body)
	}
	var g groupDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &g); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = doRequest(t, s, member, http.MethodPost, "/api/groups/join", map[string]any{"invite_code": g.InviteCode})
	if rec.Code != http.StatusOK {
		t.Fatalf("join status = %d: %s", rec.Code, rec.Body)
	}

	// A shared expense lands in the group listing for both members.
	rec = doRequest(t, s, member, http.MethodPost, "/api/expenses", map[string]any{
		"name": "Spesa", "category": "generic", "amount": "42.00", "shared": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("shared expense status = %d: %s", rec.Code, rec.Body)
	}

	rec = doRequest(t, s, admin, http.MethodGet, "/api/expenses?scope=group", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("group listing status = %d", rec.Code)
	}
	var listings struct {
		Registered []expenseDTO `json:"registered"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listings); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listings.Registered) != 1 || listings.Registered[0].GroupID != g.ID {
		t.Fatalf("group listing = %+v", listings.Registered)
	}

	rec = doRequest(t, s, member, http.MethodPost, "/api/groups/leave", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("leave status = %d: %s", rec.Code, rec.Body)
	}
	rec = doRequest(t, s, member, http.MethodGet, "/api/groups", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("after leave status = %d, want 404", rec.Code)
	}
}

func TestJoinGroupConflicts(t *testing.T) {
	s, v := newTestServer(t)
	admin := mustToken(t, v, "user-1")

	rec := doRequest(t, s, admin, http.MethodPost, "/api/groups", map[string]any{"name": "Casa"})
	var g groupDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &g); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if rec := doRequest(t, s, admin, http.MethodPost, "/api/groups/join", map[string]any{"invite_code": g.InviteCode}); rec.Code != http.StatusConflict {
		t.Errorf("repeat join status = %d, want 409", rec.Code)
	}
	if rec := doRequest(t, s, admin, http.MethodPost, "/api/groups/join", map[string]any{"invite_code": "nope"}); rec.Code != http.StatusNotFound {
		t.Errorf("bad code status = %d, want 404", rec.Code)
	}
}

func TestDashboard(t *testing.T) {
	s, v := newTestServer(t)
	token := mustToken(t, v, "user-1")

	for i, amount := range []string{"10.00", "20.00"} {
		rec := doRequest(t, s, token, http.MethodPost, "/api/expenses", map[string]any{
			"name": fmt.Sprintf("spesa-%d", i), "category": "bills", "amount": amount,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create status = %d", rec.Code)
		}
	}

	rec := doRequest(t, s, token, http.MethodGet, "/api/dashboard", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d", rec.Code)
	}
	var d services.Dashboard
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.TotalCents != 3000 {
		t.Errorf("total = %d, want 3000", d.TotalCents)
	}
	if len(d.Categories) != 1 || d.Categories[0].Category != "bills" {
		t.Errorf("categories = %+v", d.Categories)
	}
}

func TestGetExpenseDetail(t *testing.T) {
	s, v := newTestServer(t)
	owner := mustToken(t, v, "user-1")
	other := mustToken(t, v, "user-2")

	rec := doRequest(t, s, owner, http.MethodPost, "/api/expenses", map[string]any{
		"name":     "Assicurazione",
		"category": "insurance",
		"amount":   "35.20",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = doRequest(t, s, owner, http.MethodGet, "/api/expenses/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("detail status = %d: %s", rec.Code, rec.Body)
	}
	var got expenseDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != created.ID || got.Cents != 3520 || got.Category != "insurance" {
		t.Errorf("detail = %+v", got)
	}

	// Someone else's personal expense reads as missing.
	rec = doRequest(t, s, other, http.MethodGet, "/api/expenses/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign detail status = %d, want 404", rec.Code)
	}
	rec = doRequest(t, s, owner, http.MethodGet, "/api/expenses/nonexistent", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing detail status = %d, want 404", rec.Code)
	}
}
