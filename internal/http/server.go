// Package http is the JSON API surface. Routing uses the stdlib mux with
// method patterns; all /api routes sit behind trace, rate-limit and auth
// middleware.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"spendify/internal/auth"
	"spendify/internal/metrics"
	"spendify/internal/middleware/ratelimit"
	"spendify/internal/middleware/trace"
	"spendify/internal/services"
)

type Server struct {
	http.Server

	expenses *services.ExpenseService
	sweep    *services.SweepService
	groupSvc *services.GroupService
	charts   *services.ChartService
	limiter  *ratelimit.Limiter
	loc      *time.Location
}

// Deps bundles what the server needs.
type Deps struct {
	Expenses *services.ExpenseService
	Sweep    *services.SweepService
	Groups   *services.GroupService
	Charts   *services.ChartService
	Verifier *auth.Verifier
	Location *time.Location
}

func NewServer(addr string, deps Deps) *Server {
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}

	s := &Server{
		Server: http.Server{
			Addr:         addr,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		expenses: deps.Expenses,
		sweep:    deps.Sweep,
		groupSvc: deps.Groups,
		charts:   deps.Charts,
		limiter:  ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		loc:      loc,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	api := http.NewServeMux()
	api.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	api.HandleFunc("GET /api/expenses", s.handleListExpenses)
	api.HandleFunc("GET /api/expenses/{id}", s.handleGetExpense)
	api.HandleFunc("POST /api/sweep", s.handleSweep)
	api.HandleFunc("POST /api/groups", s.handleCreateGroup)
	api.HandleFunc("POST /api/groups/join", s.handleJoinGroup)
	api.HandleFunc("POST /api/groups/leave", s.handleLeaveGroup)
	api.HandleFunc("GET /api/groups", s.handleCurrentGroup)
	api.HandleFunc("GET /api/dashboard", s.handleDashboard)

	// Auth runs before the limiter so callers are throttled by identity,
	// not by address.
	var apiHandler http.Handler = api
	apiHandler = s.limiter.Middleware(apiHandler)
	apiHandler = auth.Middleware(deps.Verifier)(apiHandler)
	mux.Handle("/api/", apiHandler)

	s.Handler = trace.Middleware(mux)
	return s
}

// Shutdown stops the listener and the limiter's cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	err := s.Server.Shutdown(ctx)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "HTTP server stopped")
	return nil
}
