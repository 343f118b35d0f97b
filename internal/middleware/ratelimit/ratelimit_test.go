package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"spendify/internal/auth"
)

func TestAllowWithinBudget(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 3, CleanupInterval: time.Minute})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		if !l.Allow("user-1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("user-1") {
		t.Fatal("fourth request should be rejected")
	}
	// Other callers have their own budget.
	if !l.Allow("user-2") {
		t.Fatal("separate caller should be allowed")
	}
}

func TestMiddlewareKeysByUser(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 1, CleanupInterval: time.Minute})
	defer l.Stop()

	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(userID string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/expenses", nil)
		if userID != "" {
			req = req.WithContext(auth.WithUserID(req.Context(), userID))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do("user-1"); code != http.StatusOK {
		t.Fatalf("first request = %d", code)
	}
	if code := do("user-1"); code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", code)
	}
	if code := do("user-2"); code != http.StatusOK {
		t.Fatalf("other user = %d, want 200", code)
	}
}
