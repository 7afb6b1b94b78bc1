// Package badge keeps the unread counter shown on the application icon.
package badge

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/yndnr/shellkeep-go/internal/core/domain"
	"github.com/yndnr/shellkeep-go/internal/storage"
)

// Key is the agent store key of the unread counter.
const Key = "mp_unread_count"

// Sink mirrors the counter onto a platform badge.
type Sink interface {
	SetAppBadge(ctx context.Context, count int) error
	ClearAppBadge(ctx context.Context) error
}

// Broadcaster publishes agent events to live pages.
type Broadcaster interface {
	Broadcast(ev domain.Event)
}

// EventSink reports badge changes as BADGE_UPDATE events.
type EventSink struct {
	Events Broadcaster
}

// SetAppBadge implements Sink.
func (s EventSink) SetAppBadge(_ context.Context, count int) error {
	s.Events.Broadcast(domain.Event{Type: domain.EventBadgeUpdate, Data: map[string]int{"count": count}})
	return nil
}

// ClearAppBadge implements Sink.
func (s EventSink) ClearAppBadge(ctx context.Context) error {
	return s.SetAppBadge(ctx, 0)
}

// Counter is the persistent unread counter.
type Counter struct {
	kv     storage.KVEngine
	sink   Sink
	logger *slog.Logger

	mu sync.Mutex
}

// New returns a counter stored in kv. A nil sink discards updates.
func New(kv storage.KVEngine, sink Sink, logger *slog.Logger) *Counter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Counter{kv: kv, sink: sink, logger: logger.With("component", "badge")}
}

// Get returns the stored count. A missing or unreadable value reads as 0.
func (c *Counter) Get(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}

// Set stores count and pushes it to the sink. Counts at or below zero
// clear the badge.
func (c *Counter) Set(ctx context.Context, count int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store(ctx, count)
}

// Increment adds delta and returns the new count.
func (c *Counter) Increment(ctx context.Context, delta int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.load(ctx)
	if err != nil {
		return 0, err
	}
	n += delta
	if n < 0 {
		n = 0
	}
	return n, c.store(ctx, n)
}

// Clear resets the counter.
func (c *Counter) Clear(ctx context.Context) error {
	return c.Set(ctx, 0)
}

func (c *Counter) load(ctx context.Context) (int, error) {
	data, err := c.kv.Get(ctx, []byte(Key))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, domain.ErrStorage.WithCause(err)
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		c.logger.Warn("unreadable unread count", "value", string(data))
		return 0, nil
	}
	return n, nil
}

func (c *Counter) store(ctx context.Context, count int) error {
	if count < 0 {
		count = 0
	}
	if err := c.kv.Set(ctx, []byte(Key), []byte(strconv.Itoa(count))); err != nil {
		return domain.ErrStorage.WithCause(err)
	}
	if c.sink == nil {
		return nil
	}

	var err error
	if count == 0 {
		err = c.sink.ClearAppBadge(ctx)
	} else {
		err = c.sink.SetAppBadge(ctx, count)
	}
	if err != nil {
		// The counter is authoritative; a sink failure is not fatal.
		c.logger.Warn("badge sink failed", "count", count, "error", err)
	}
	return nil
}
