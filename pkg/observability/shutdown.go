package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ShutdownFunc releases one resource during shutdown.
type ShutdownFunc func(context.Context) error

// ShutdownManager drains the HTTP server on SIGINT/SIGTERM and then runs the
// registered cleanup functions concurrently, all under a single deadline.
type ShutdownManager struct {
	log     *logrus.Logger
	server  *http.Server
	timeout time.Duration

	mu    sync.Mutex
	funcs []ShutdownFunc
}

// NewShutdownManager returns a manager draining server within timeout.
// A zero timeout defaults to 30s.
func NewShutdownManager(log *logrus.Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{log: log, server: server, timeout: timeout}
}

// RegisterShutdownFunc adds a cleanup step. Steps run concurrently after the
// HTTP server has drained.
func (sm *ShutdownManager) RegisterShutdownFunc(fn ShutdownFunc) {
	sm.mu.Lock()
	sm.funcs = append(sm.funcs, fn)
	sm.mu.Unlock()
}

// WaitForShutdown blocks until SIGINT or SIGTERM arrives.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	signal.Stop(sigs)

	sm.log.WithField("signal", sig.String()).Info("Received signal, starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	// Drain in-flight requests first so cleanup cannot yank resources out
	// from under live handlers.
	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.log.WithError(err).Error("HTTP server shutdown error")
			return fmt.Errorf("HTTP server shutdown failed: %w", err)
		}
		sm.log.Info("HTTP server drained")
	}

	sm.mu.Lock()
	funcs := sm.funcs
	sm.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	var failed int64
	var countMu sync.Mutex
	for _, fn := range funcs {
		g.Go(func() error {
			if err := fn(gctx); err != nil {
				sm.log.WithError(err).Error("Shutdown step failed")
				countMu.Lock()
				failed++
				countMu.Unlock()
			}
			// Errors are counted, not returned: one failing step must
			// not cancel the siblings.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		sm.log.Warn("Shutdown deadline reached before all steps finished")
		return fmt.Errorf("shutdown timeout reached")
	}
	if failed > 0 {
		return fmt.Errorf("shutdown completed with %d errors", failed)
	}

	sm.log.Info("Graceful shutdown complete")
	return nil
}
