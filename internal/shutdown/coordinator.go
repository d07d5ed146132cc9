// Package shutdown releases what a run opened, in a fixed order: watchers
// stop before in-flight jobs drain, jobs drain before locks are released and
// trees closed, and logs are flushed last.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"assetmig-go/internal/config"

	"go.uber.org/zap"
)

// Phase represents a shutdown phase with ordered execution
type Phase int

const (
	// PhaseWatchers - Stop file watchers so no new job starts
	PhaseWatchers Phase = iota
	// PhaseJobs - Wait for running jobs
	PhaseJobs
	// PhaseLocks - Release tree locks
	PhaseLocks
	// PhaseStorage - Close tree databases and indexes
	PhaseStorage
	// PhaseLogs - Flush journals and loggers
	PhaseLogs
)

var phases = []Phase{PhaseWatchers, PhaseJobs, PhaseLocks, PhaseStorage, PhaseLogs}

func (p Phase) String() string {
	switch p {
	case PhaseWatchers:
		return "Watchers"
	case PhaseJobs:
		return "Jobs"
	case PhaseLocks:
		return "Locks"
	case PhaseStorage:
		return "Storage"
	case PhaseLogs:
		return "Logs"
	default:
		return "Unknown"
	}
}

// ShutdownFunc performs one cleanup step
type ShutdownFunc func(ctx context.Context) error

// Handler represents a registered shutdown handler
type Handler struct {
	Name     string
	Phase    Phase
	Priority int // Higher priority = executed first within same phase
	Fn       ShutdownFunc
	Timeout  time.Duration // 0 = use default
}

// Coordinator runs registered handlers phase by phase
type Coordinator struct {
	mu       sync.RWMutex
	handlers map[Phase][]*Handler
	logger   *zap.Logger

	shutdownOnce   sync.Once
	shutdownDone   chan struct{}
	shutdownErr    error
	isShuttingDown atomic.Bool

	defaultTimeout time.Duration
	totalTimeout   time.Duration
}

// NewCoordinator creates a new shutdown coordinator
func NewCoordinator(logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		handlers:       make(map[Phase][]*Handler),
		logger:         logger.Named("shutdown"),
		shutdownDone:   make(chan struct{}),
		defaultTimeout: config.ShutdownHandlerTimeout,
		totalTimeout:   config.ShutdownTimeout,
	}
}

// Register adds a shutdown handler
func (c *Coordinator) Register(h *Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h.Timeout == 0 {
		h.Timeout = c.defaultTimeout
	}

	handlers := append(c.handlers[h.Phase], h)
	for i := len(handlers) - 1; i > 0; i-- {
		if handlers[i].Priority > handlers[i-1].Priority {
			handlers[i], handlers[i-1] = handlers[i-1], handlers[i]
		}
	}
	c.handlers[h.Phase] = handlers

	c.logger.Debug("Registered shutdown handler",
		zap.String("name", h.Name),
		zap.String("phase", h.Phase.String()),
		zap.Int("priority", h.Priority))
}

// RegisterFunc registers fn with the default priority and timeout
func (c *Coordinator) RegisterFunc(name string, phase Phase, fn ShutdownFunc) {
	c.Register(&Handler{Name: name, Phase: phase, Fn: fn})
}

// RegisterCloser registers a Close method that takes no context
func (c *Coordinator) RegisterCloser(name string, phase Phase, closeFn func() error) {
	c.RegisterFunc(name, phase, func(context.Context) error { return closeFn() })
}

// IsShuttingDown returns true if shutdown is in progress
func (c *Coordinator) IsShuttingDown() bool {
	return c.isShuttingDown.Load()
}

// Done returns a channel that is closed when shutdown is complete
func (c *Coordinator) Done() <-chan struct{} {
	return c.shutdownDone
}

// Shutdown runs every phase once. Later calls return the first result.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		c.isShuttingDown.Store(true)
		c.shutdownErr = c.executeShutdown(ctx)
		close(c.shutdownDone)
	})
	return c.shutdownErr
}

func (c *Coordinator) executeShutdown(ctx context.Context) error {
	startTime := time.Now()

	c.mu.RLock()
	total := c.totalTimeout
	c.mu.RUnlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, total)
	defer cancel()

	var allErrors []error
	for _, phase := range phases {
		if err := c.executePhase(shutdownCtx, phase); err != nil {
			// later phases still run
			allErrors = append(allErrors, fmt.Errorf("phase %s: %w", phase, err))
		}
		if shutdownCtx.Err() != nil {
			c.logger.Warn("Shutdown timeout reached, aborting remaining phases",
				zap.Duration("elapsed", time.Since(startTime)))
			allErrors = append(allErrors, fmt.Errorf("shutdown timeout: %w", shutdownCtx.Err()))
			break
		}
	}

	if len(allErrors) > 0 {
		c.logger.Warn("Shutdown completed with errors",
			zap.Duration("duration", time.Since(startTime)),
			zap.Int("error_count", len(allErrors)))
		return errors.Join(allErrors...)
	}
	c.logger.Debug("Shutdown completed", zap.Duration("duration", time.Since(startTime)))
	return nil
}

func (c *Coordinator) executePhase(ctx context.Context, phase Phase) error {
	c.mu.RLock()
	handlers := make([]*Handler, len(c.handlers[phase]))
	copy(handlers, c.handlers[phase])
	c.mu.RUnlock()

	var phaseErrors []error
	for _, h := range handlers {
		if err := c.executeHandler(ctx, h); err != nil {
			phaseErrors = append(phaseErrors, fmt.Errorf("%s: %w", h.Name, err))
		}
	}
	return errors.Join(phaseErrors...)
}

func (c *Coordinator) executeHandler(ctx context.Context, h *Handler) error {
	handlerCtx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.Fn(handlerCtx)
	}()

	var err error
	select {
	case err = <-errCh:
	case <-handlerCtx.Done():
		err = fmt.Errorf("handler timeout after %v", h.Timeout)
	}

	if err != nil {
		c.logger.Warn("Shutdown handler failed",
			zap.String("name", h.Name),
			zap.Error(err))
	}
	return err
}

// SetTotalTimeout sets the total timeout for the entire shutdown sequence
func (c *Coordinator) SetTotalTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalTimeout = d
}

// SetDefaultTimeout sets the default timeout for individual handlers
func (c *Coordinator) SetDefaultTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultTimeout = d
}

// GetHandlerCount returns the number of registered handlers
func (c *Coordinator) GetHandlerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, handlers := range c.handlers {
		count += len(handlers)
	}
	return count
}

// GetPhaseHandlers returns the handler names of one phase in run order
func (c *Coordinator) GetPhaseHandlers(phase Phase) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var names []string
	for _, h := range c.handlers[phase] {
		names = append(names, h.Name)
	}
	return names
}
