// Package events fans agent notifications out to live pages over
// server-sent events.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/shellkeep-go/internal/core/domain"
	"github.com/yndnr/shellkeep-go/pkg/cmap"
)

// DefaultBuffer is the per-subscriber backlog before events are dropped.
const DefaultBuffer = 32

// DefaultKeepAlive is the interval between comment frames on idle streams.
const DefaultKeepAlive = 25 * time.Second

// Frame is one sequenced event with its encoded payload.
type Frame struct {
	ID    uint64
	Event domain.Event
	Data  []byte
}

// Subscription receives broadcast events until cancelled.
type Subscription struct {
	id  string
	ch  chan Frame
	hub *Hub

	mu     sync.Mutex
	closed bool
}

// C returns the event channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan Frame { return s.ch }

// Cancel ends the subscription.
func (s *Subscription) Cancel() {
	s.hub.subs.Delete(s.id)
	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
	if !closed {
		s.hub.countChanged()
	}
}

// offer delivers f without blocking and reports whether it was accepted.
func (s *Subscription) offer(f Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- f:
		return true
	default:
		return false
	}
}

// Hub is the broadcast point for agent events.
type Hub struct {
	subs      *cmap.Map[*Subscription]
	seq       atomic.Uint64
	nextID    atomic.Uint64
	buffer    int
	keepAlive time.Duration
	dropped   atomic.Uint64
	onCount   atomic.Pointer[func(int)]
	logger    *slog.Logger
}

// NewHub returns an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:      cmap.New[*Subscription](),
		buffer:    DefaultBuffer,
		keepAlive: DefaultKeepAlive,
		logger:    logger.With("component", "events"),
	}
}

// Subscribe registers a new listener.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{
		id:  strconv.FormatUint(h.nextID.Add(1), 10),
		ch:  make(chan Frame, h.buffer),
		hub: h,
	}
	h.subs.Set(s.id, s)
	h.countChanged()
	return s
}

// OnSubscribersChanged registers fn to receive the subscriber count after
// every subscribe and cancel. A later call replaces fn.
func (h *Hub) OnSubscribersChanged(fn func(n int)) {
	h.onCount.Store(&fn)
}

func (h *Hub) countChanged() {
	if fn := h.onCount.Load(); fn != nil && *fn != nil {
		(*fn)(h.subs.Count())
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int { return h.subs.Count() }

// Dropped returns how many deliveries were skipped for slow subscribers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Broadcast delivers ev to every subscriber without blocking. A subscriber
// whose backlog is full misses the event.
func (h *Hub) Broadcast(ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encode event", "type", ev.Type, "error", err)
		return
	}
	f := Frame{ID: h.seq.Add(1), Event: ev, Data: data}

	for _, s := range h.subs.Values() {
		if !s.offer(f) {
			h.dropped.Add(1)
		}
	}
}

// Close ends every subscription.
func (h *Hub) Close() {
	for _, s := range h.subs.Values() {
		s.Cancel()
	}
}

// ServeHTTP streams events to the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	sub := h.Subscribe()
	defer sub.Cancel()
	h.logger.Debug("event stream opened", "subscriber", sub.id, "remote", r.RemoteAddr)

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("event stream closed", "subscriber", sub.id)
			return
		case f, ok := <-sub.C():
			if !ok {
				return
			}
			if _, err := fmt.Fprint(w, formatEvent(f.ID, string(f.Event.Type), string(f.Data))); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func formatEvent(id uint64, event, data string) string {
	var b strings.Builder
	b.WriteString("id: ")
	b.WriteString(strconv.FormatUint(id, 10))
	b.WriteString("\nevent: ")
	b.WriteString(event)
	b.WriteString("\n")
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}
