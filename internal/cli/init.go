// Package cli provides common initialization shared by the binaries under
// cmd/.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spendify/internal/config"
	applog "spendify/internal/log"
	"spendify/internal/storage"
	"spendify/internal/store"
	"spendify/internal/store/memory"
)

// SetupLogger initializes structured logging for a binary and installs it as
// the process default.
func SetupLogger(component string) *applog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Component = component
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// LoadConfig loads the .env file (optional) and the environment config.
// Exits the process on validation failure.
func LoadConfig(logger *applog.Logger) *config.Config {
	if err := config.LoadEnvFile(""); err != nil {
		logger.Warn("Failed to load .env file", "error", err)
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Configuration load failed", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// Stores bundles the persistence ports a binary wires up.
type Stores struct {
	Expenses store.ExpenseStore
	Groups   store.GroupStore
	Users    store.UserStore
	Close    func() error
}

// InitBackend opens the configured persistence backend. Exits the process on
// failure.
func InitBackend(logger *applog.Logger, cfg *config.Config) Stores {
	switch cfg.Backend {
	case config.BackendMemory:
		mem := memory.New()
		return Stores{Expenses: mem, Groups: mem, Users: mem, Close: func() error { return nil }}
	case config.BackendSQLite:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, cfg.Location())
		if err != nil {
			logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		return Stores{Expenses: repo, Groups: repo, Users: repo, Close: repo.Close}
	default:
		logger.Error("Unknown backend", "backend", string(cfg.Backend))
		os.Exit(1)
		return Stores{}
	}
}

// GracefulShutdown returns a context cancelled on SIGINT/SIGTERM and a
// channel closed once cleanup has run.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup()
		}

		cancel()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-time.After(2 * time.Second):
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
