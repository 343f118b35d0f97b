// Package ratelimit throttles API calls per caller with a fixed
// per-minute budget. Callers are keyed by authenticated user id, falling
// back to remote address for unauthenticated requests.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"spendify/internal/auth"
)

// Limiter tracks request counts per caller inside a sliding one-minute
// window.
type Limiter struct {
	mu      sync.Mutex
	callers map[string]*callerInfo
	stop    chan struct{}
	once    sync.Once

	requestsPerMinute int
	cleanupInterval   time.Duration
}

type callerInfo struct {
	lastRequest time.Time
	requests    int
}

// Config holds rate limiter configuration.
type Config struct {
	RequestsPerMinute int
	CleanupInterval   time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		CleanupInterval:   5 * time.Minute,
	}
}

func NewLimiter(config Config) *Limiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig().CleanupInterval
	}

	l := &Limiter{
		callers:           make(map[string]*callerInfo),
		stop:              make(chan struct{}),
		requestsPerMinute: config.RequestsPerMinute,
		cleanupInterval:   config.CleanupInterval,
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether a request from the given caller fits the budget.
func (l *Limiter) Allow(caller string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	info, ok := l.callers[caller]
	if !ok || now.Sub(info.lastRequest) > time.Minute {
		l.callers[caller] = &callerInfo{lastRequest: now, requests: 1}
		return true
	}

	info.requests++
	info.lastRequest = now
	return info.requests <= l.requestsPerMinute
}

// Middleware rejects over-budget callers with 429.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := auth.UserID(r.Context())
		if caller == "" {
			caller = remoteHost(r)
		}
		if !l.Allow(caller) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ActiveCallers returns the number of currently tracked callers.
func (l *Limiter) ActiveCallers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.callers)
}

// Stop shuts down the cleanup goroutine.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.dropStale()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) dropStale() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for caller, info := range l.callers {
		if info.lastRequest.Before(cutoff) {
			delete(l.callers, caller)
		}
	}
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
