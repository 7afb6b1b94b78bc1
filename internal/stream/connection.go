package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Status is the state of a Connection.
type Status string

const (
	StatusClosed     Status = "closed"
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
	// StatusExhausted means the reconnect budget ran out. Only
	// ForceReconnect leaves this state.
	StatusExhausted Status = "exhausted"
)

// Options tunes a Connection.
type Options struct {
	BackgroundCloseDelay time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// DefaultOptions returns 5s background close delay, 3s reconnect delay
// and 3 reconnect attempts.
func DefaultOptions() Options {
	return Options{
		BackgroundCloseDelay: 5 * time.Second,
		ReconnectDelay:       3 * time.Second,
		MaxReconnectAttempts: 3,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.BackgroundCloseDelay <= 0 {
		o.BackgroundCloseDelay = def.BackgroundCloseDelay
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = def.ReconnectDelay
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	return o
}

type listener struct {
	id string
	fn func(Message)
}

// Connection is the single logical stream for one endpoint.
type Connection struct {
	endpoint string
	opts     Options
	dialer   Dialer
	logger   *slog.Logger

	mu             sync.Mutex
	listeners      []listener
	statusFns      []func(Status)
	status         Status
	stream         Stream
	cancel         context.CancelFunc
	attempts       int
	backgrounded   bool
	lastEventID    string
	closeTimer     *time.Timer
	reconnectTimer *time.Timer
	// gen increments on every open and close so stale goroutines can tell
	// they no longer own the connection.
	gen uint64
}

func newConnection(endpoint string, opts Options, dialer Dialer, logger *slog.Logger) *Connection {
	return &Connection{
		endpoint: endpoint,
		opts:     opts.withDefaults(),
		dialer:   dialer,
		logger:   logger.With("endpoint", endpoint),
		status:   StatusClosed,
	}
}

// Endpoint returns the endpoint URI.
func (c *Connection) Endpoint() string { return c.endpoint }

// Status returns the current state.
func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Attempts returns the number of consecutive failed connection attempts.
func (c *Connection) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// ListenerCount returns the number of registered message listeners.
func (c *Connection) ListenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

// AddMessageListener registers fn under id, replacing any listener with
// the same id in place. The connection opens if it is closed and the host
// is in the foreground.
func (c *Connection) AddMessageListener(id string, fn func(Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	replaced := false
	for i := range c.listeners {
		if c.listeners[i].id == id {
			c.listeners[i].fn = fn
			replaced = true
			break
		}
	}
	if !replaced {
		c.listeners = append(c.listeners, listener{id: id, fn: fn})
	}

	if c.status == StatusClosed && !c.backgrounded {
		c.openLocked()
	}
}

// RemoveMessageListener drops the listener. Removing the last one closes
// the connection.
func (c *Connection) RemoveMessageListener(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.listeners {
		if c.listeners[i].id == id {
			c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
			break
		}
	}
	if len(c.listeners) == 0 {
		c.teardownLocked(StatusClosed)
	}
}

// OnStatus subscribes fn to status changes. fn runs with the connection
// locked and must neither block nor call back into the connection.
func (c *Connection) OnStatus(fn func(Status)) {
	c.mu.Lock()
	c.statusFns = append(c.statusFns, fn)
	c.mu.Unlock()
}

// ForceReconnect resets the attempt counter and reopens the connection,
// including from StatusExhausted.
func (c *Connection) ForceReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.listeners) == 0 {
		return
	}
	c.teardownLocked(StatusClosed)
	c.attempts = 0
	c.openLocked()
}

// OnSuspend schedules the connection to close after the background close
// delay.
func (c *Connection) OnSuspend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backgrounded = true
	if c.closeTimer != nil {
		c.closeTimer.Stop()
	}
	gen := c.gen
	c.closeTimer = time.AfterFunc(c.opts.BackgroundCloseDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.backgrounded && c.gen == gen && c.status != StatusExhausted {
			c.logger.Info("closing stream while backgrounded")
			c.teardownLocked(StatusClosed)
		}
	})
}

// OnResume cancels a pending background close and reconnects at once if
// the connection is not open.
func (c *Connection) OnResume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backgrounded = false
	if c.closeTimer != nil {
		c.closeTimer.Stop()
		c.closeTimer = nil
	}
	if c.status == StatusClosed && len(c.listeners) > 0 {
		c.logger.Info("reconnecting stream in foreground")
		c.attempts = 0
		c.openLocked()
	}
}

// Close drops every listener and closes the stream.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = nil
	c.teardownLocked(StatusClosed)
}

// openLocked starts a dial. Callers hold c.mu.
func (c *Connection) openLocked() {
	if c.status == StatusOpen || c.status == StatusConnecting {
		return
	}
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.setStatusLocked(StatusConnecting)
	go c.run(ctx, gen, c.lastEventID)
}

// teardownLocked closes any stream and timers and moves to status.
// Callers hold c.mu.
func (c *Connection) teardownLocked(status Status) {
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.closeTimer != nil {
		c.closeTimer.Stop()
		c.closeTimer = nil
	}
	c.setStatusLocked(status)
}

func (c *Connection) setStatusLocked(s Status) {
	if c.status == s {
		return
	}
	c.status = s
	for _, fn := range c.statusFns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("status listener panicked", "panic", r)
				}
			}()
			fn(s)
		}()
	}
}

func (c *Connection) run(ctx context.Context, gen uint64, lastEventID string) {
	s, err := c.dialer.Dial(ctx, c.endpoint, lastEventID)
	if err != nil {
		c.failed(gen, err)
		return
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		s.Close()
		return
	}
	c.stream = s
	c.attempts = 0
	c.setStatusLocked(StatusOpen)
	c.mu.Unlock()
	c.logger.Info("stream connected")

	for {
		msg, err := s.Next()
		if err != nil {
			c.failed(gen, err)
			return
		}
		c.dispatch(gen, msg)
	}
}

// dispatch delivers msg to every listener in registration order.
func (c *Connection) dispatch(gen uint64, msg Message) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	if msg.ID != "" {
		c.lastEventID = msg.ID
	}
	fns := make([]listener, len(c.listeners))
	copy(fns, c.listeners)
	c.mu.Unlock()

	for _, l := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("stream listener panicked", "listener", l.id, "panic", r)
				}
			}()
			l.fn(msg)
		}()
	}
}

// failed handles an unexpected end of the stream owned by gen.
func (c *Connection) failed(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	c.attempts++
	if c.attempts >= c.opts.MaxReconnectAttempts {
		c.logger.Warn("stream reconnect attempts exhausted", "attempts", c.attempts, "error", err)
		c.setStatusLocked(StatusExhausted)
		return
	}
	c.logger.Warn("stream closed unexpectedly", "attempt", c.attempts, "error", err)
	c.setStatusLocked(StatusClosed)

	c.reconnectTimer = time.AfterFunc(c.opts.ReconnectDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen || c.backgrounded || len(c.listeners) == 0 {
			return
		}
		c.openLocked()
	})
}
