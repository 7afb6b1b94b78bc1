package shutdown

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// DefaultTimeout bounds the whole hook sequence.
const DefaultTimeout = 30 * time.Second

type hook struct {
	name string
	fn   func(context.Context) error
}

// Handler runs registered hooks once the process is asked to stop.
type Handler struct {
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	hooks   []hook
	trigger chan struct{}
	once    sync.Once
	done    chan struct{}
}

// NewHandler creates a handler. A non-positive timeout uses DefaultTimeout.
func NewHandler(timeout time.Duration, logger *slog.Logger) *Handler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		timeout: timeout,
		logger:  logger,
		trigger: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// OnShutdown registers a named hook. Hooks run in reverse order of
// registration, so components close before the things they depend on.
func (h *Handler) OnShutdown(name string, fn func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook{name: name, fn: fn})
}

// Trigger starts shutdown without a signal. Safe to call more than once.
func (h *Handler) Trigger() {
	h.once.Do(func() { close(h.trigger) })
}

// Wait blocks until SIGINT, SIGTERM, Trigger or ctx cancellation, then
// runs the hooks. Every hook runs even if an earlier one fails; the
// failures are joined.
func (h *Handler) Wait(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		h.logger.Info("shutdown signal received", "signal", sig.String())
	case <-h.trigger:
		h.logger.Info("shutdown requested")
	case <-ctx.Done():
		h.logger.Info("shutdown on context end", "error", ctx.Err())
	}

	return h.run()
}

func (h *Handler) run() error {
	defer close(h.done)

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	hooks := make([]hook, len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		start := time.Now()
		if err := hooks[i].fn(ctx); err != nil {
			h.logger.Error("shutdown hook failed", "hook", hooks[i].name, "error", err)
			errs = append(errs, err)
			continue
		}
		h.logger.Debug("shutdown hook done", "hook", hooks[i].name, "elapsed", time.Since(start))
	}
	return errors.Join(errs...)
}

// Done returns a channel that closes when every hook has run.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
