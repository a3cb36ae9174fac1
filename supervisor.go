package mdposter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// DefaultShutdownTimeout bounds Shutdown when Run starts it.
const DefaultShutdownTimeout = 30 * time.Second

// Compile-time interface checks.
var _ Drainer = (*Pool)(nil)

// Drainer releases pooled resources on shutdown.
type Drainer interface {
	Drain(ctx context.Context) error
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithBeforeDrain adds a hook run before the pool drains, in the order
// added. Typically it stops the HTTP server so no new work arrives.
func WithBeforeDrain(hook func(ctx context.Context) error) SupervisorOption {
	return func(s *Supervisor) {
		if hook != nil {
			s.hooks = append(s.hooks, hook)
		}
	}
}

// WithShutdownTimeout bounds the shutdown started by Run.
func WithShutdownTimeout(d time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSupervisorLogger sets the supervisor's logger.
func WithSupervisorLogger(l *slog.Logger) SupervisorOption {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

// Supervisor turns a cancellation signal into an orderly shutdown.
type Supervisor struct {
	drainer Drainer
	hooks   []func(ctx context.Context) error
	timeout time.Duration
	logger  *slog.Logger

	once sync.Once
	err  error
}

// NewSupervisor creates a Supervisor that drains d on shutdown.
func NewSupervisor(d Drainer, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		drainer: d,
		timeout: DefaultShutdownTimeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until ctx is done, then shuts down within the shutdown timeout.
func (s *Supervisor) Run(ctx context.Context) error {
	<-ctx.Done()
	s.logger.Info("shutdown requested", "cause", context.Cause(ctx))

	sctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.Shutdown(sctx)
}

// Shutdown runs the before-drain hooks, then drains. Only the first call
// does the work; concurrent and later calls wait for it and get its result.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.once.Do(func() {
		var errs []error
		for i, hook := range s.hooks {
			if err := hook(ctx); err != nil {
				s.logger.Warn("shutdown hook failed", "hook", i, "error", err)
				errs = append(errs, fmt.Errorf("shutdown hook %d: %w", i, err))
			}
		}
		if s.drainer != nil {
			if err := s.drainer.Drain(ctx); err != nil {
				errs = append(errs, fmt.Errorf("draining: %w", err))
			}
		}
		s.err = errors.Join(errs...)
		if s.err != nil {
			s.logger.Error("shutdown finished with errors", "error", s.err)
		} else {
			s.logger.Info("shutdown complete")
		}
	})
	return s.err
}
