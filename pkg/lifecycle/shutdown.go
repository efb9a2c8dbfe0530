// Package lifecycle coordinates graceful shutdown of the server process.
// Components are stopped in registration order once draining starts.
package lifecycle

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	pferrors "github.com/logflow/poflow/pkg/errors"
	"github.com/logflow/poflow/pkg/logger"
)

// ShutdownConfig configures the shutdown manager.
type ShutdownConfig struct {
	// DrainTimeout bounds the whole shutdown sequence.
	DrainTimeout time.Duration
}

// DefaultShutdownConfig returns sensible defaults.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{DrainTimeout: 30 * time.Second}
}

type step struct {
	name string
	fn   func(context.Context) error
}

// ShutdownManager tracks health and runs shutdown steps.
type ShutdownManager struct {
	mu       sync.Mutex
	cfg      ShutdownConfig
	draining bool
	steps    []step
	log      *zap.Logger
	done     chan struct{}
}

// NewShutdownManager creates a new shutdown manager.
func NewShutdownManager(cfg ShutdownConfig, log *zap.Logger) *ShutdownManager {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultShutdownConfig().DrainTimeout
	}
	return &ShutdownManager{
		cfg:  cfg,
		log:  logger.OrNop(log).Named("lifecycle"),
		done: make(chan struct{}),
	}
}

// Register adds a shutdown step. Steps run in the order they were added.
func (m *ShutdownManager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, step{name: name, fn: fn})
}

// RegisterCloser adds a step for a plain io.Closer-style component.
func (m *ShutdownManager) RegisterCloser(name string, c interface{ Close() error }) {
	m.Register(name, func(context.Context) error { return c.Close() })
}

// IsHealthy reports whether the process still accepts work.
func (m *ShutdownManager) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.draining
}

// Shutdown runs every step once. Later calls return nil immediately.
func (m *ShutdownManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return nil
	}
	m.draining = true
	steps := append([]step(nil), m.steps...)
	m.mu.Unlock()
	defer close(m.done)

	ctx, cancel := context.WithTimeout(ctx, m.cfg.DrainTimeout)
	defer cancel()

	var errs pferrors.MultiError
	for _, s := range steps {
		start := time.Now()
		if err := s.fn(ctx); err != nil {
			m.log.Error("shutdown step failed", zap.String("step", s.name), zap.Error(err))
			errs.Add(fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		m.log.Debug("shutdown step done", zap.String("step", s.name), zap.Duration("took", time.Since(start)))
	}
	return errs.Combined()
}

// Done is closed when Shutdown has finished.
func (m *ShutdownManager) Done() <-chan struct{} {
	return m.done
}

// Middleware rejects new requests with 503 once draining has started.
func (m *ShutdownManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.IsHealthy() {
			w.Header().Set("Connection", "close")
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
