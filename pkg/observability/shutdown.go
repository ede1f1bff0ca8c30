package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc is one teardown step. It receives a context carrying the
// shutdown deadline.
type ShutdownFunc func(context.Context) error

// ShutdownManager drains a service in a fixed order: the API server first,
// then every registered step in registration order. Callers register
// producers before the sinks and stores those producers drain into.
type ShutdownManager struct {
	logger  *Logger
	server  *http.Server
	timeout time.Duration

	mu    sync.Mutex
	steps []ShutdownFunc
}

// NewShutdownManager builds a manager around the main server. A nil logger
// falls back to stdout at info level; a zero timeout means 30 seconds.
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if logger == nil {
		logger = NewLogger(InfoLevel, os.Stdout)
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{logger: logger, server: server, timeout: timeout}
}

// RegisterShutdownFunc appends a teardown step. Safe for concurrent use.
func (sm *ShutdownManager) RegisterShutdownFunc(fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.steps = append(sm.steps, fn)
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then runs Shutdown.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigc
	sm.logger.Infof("Received signal %s, starting graceful shutdown", sig)

	return sm.Shutdown()
}

// Shutdown stops the HTTP server, then runs the registered steps one at a
// time in registration order, all under one deadline. Nil steps are skipped,
// a failing step does not stop the rest, and every failure comes back
// joined. Steps left unrun at the deadline are reported, not started.
func (sm *ShutdownManager) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	var errs []error
	if sm.server != nil {
		sm.logger.Info("Stopping API server")
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("API server shutdown failed")
			errs = append(errs, fmt.Errorf("API server shutdown: %w", err))
		}
	}

	sm.mu.Lock()
	steps := append([]ShutdownFunc(nil), sm.steps...)
	sm.mu.Unlock()

	for i, fn := range steps {
		if fn == nil {
			continue
		}
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("shutdown deadline passed before step %d of %d", i+1, len(steps)))
			break
		}
		if err := fn(ctx); err != nil {
			sm.logger.WithError(err).Errorf("Shutdown step %d failed", i+1)
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	sm.logger.Info("Graceful shutdown complete")
	return nil
}

// GracefulShutdown waits for a termination signal, then drains the server
// and runs the given steps in order under the default timeout.
func GracefulShutdown(logger *Logger, server *http.Server, steps ...ShutdownFunc) error {
	manager := NewShutdownManager(logger, server, 30*time.Second)

	for _, fn := range steps {
		manager.RegisterShutdownFunc(fn)
	}

	return manager.WaitForShutdown()
}
