package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/shellkeep-go/internal/core/domain"
	"github.com/yndnr/shellkeep-go/internal/storage"
)

// Replayer re-issues one queued request and returns the upstream status.
type Replayer interface {
	Replay(ctx context.Context, item *domain.SyncItem) (int, error)
}

// ReplayFunc adapts a function to Replayer.
type ReplayFunc func(ctx context.Context, item *domain.SyncItem) (int, error)

// Replay calls f.
func (f ReplayFunc) Replay(ctx context.Context, item *domain.SyncItem) (int, error) {
	return f(ctx, item)
}

// Options configures a Queue.
type Options struct {
	// ReplayRate caps replayed requests per second. Zero disables throttling.
	ReplayRate  float64
	ReplayBurst int
	// OnSuccess is called for every item removed after a successful replay.
	OnSuccess func(item *domain.SyncItem)
	Clock     func() time.Time
	Logger    *slog.Logger
}

// Report summarizes one replay pass.
type Report struct {
	Replayed []string `json:"replayed,omitempty"`
	Expired  []string `json:"expired,omitempty"`
	Failed   int      `json:"failed"`
	// Coalesced is set when the call joined a pass already in progress.
	Coalesced bool `json:"coalesced,omitempty"`
}

// Queue is the durable sync queue.
type Queue struct {
	kv        storage.KVEngine
	limiter   *rate.Limiter
	onSuccess func(*domain.SyncItem)
	clock     func() time.Time
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
	rerun   bool
}

// New returns a queue stored in kv.
func New(kv storage.KVEngine, opts Options) *Queue {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.ReplayRate > 0 {
		burst := opts.ReplayBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.ReplayRate), burst)
	}
	return &Queue{
		kv:        kv,
		limiter:   limiter,
		onSuccess: opts.OnSuccess,
		clock:     opts.Clock,
		logger:    opts.Logger.With("component", "syncqueue"),
	}
}

// Enqueue stores a mutating request for later replay.
func (q *Queue) Enqueue(ctx context.Context, method, url, body string) (*domain.SyncItem, error) {
	item, err := domain.NewSyncItem(method, url, body, q.clock())
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(item)
	if err != nil {
		return nil, domain.ErrInternal.WithCause(err)
	}
	if err := q.kv.Set(ctx, []byte(item.Key()), data); err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	q.logger.InfoContext(ctx, "request queued", "id", item.ID, "method", item.Method, "url", item.URL)
	return item, nil
}

// List returns every queued item, oldest first. Unreadable records are
// skipped.
func (q *Queue) List(ctx context.Context) ([]*domain.SyncItem, error) {
	var items []*domain.SyncItem
	err := q.kv.Scan(ctx, []byte(domain.SyncKeyPrefix), func(key, value []byte) bool {
		var item domain.SyncItem
		if err := json.Unmarshal(value, &item); err != nil {
			q.logger.Warn("skipping unreadable sync item", "key", string(key), "error", err)
			return true
		}
		items = append(items, &item)
		return true
	})
	if err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	return items, nil
}

// Len returns the number of queued items.
func (q *Queue) Len(ctx context.Context) (int, error) {
	n := 0
	err := q.kv.Scan(ctx, []byte(domain.SyncKeyPrefix), func(_, _ []byte) bool {
		n++
		return true
	})
	if err != nil {
		return 0, domain.ErrStorage.WithCause(err)
	}
	return n, nil
}

// Get returns one item by ID.
func (q *Queue) Get(ctx context.Context, id string) (*domain.SyncItem, error) {
	data, err := q.kv.Get(ctx, []byte(domain.SyncKey(id)))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, domain.ErrSyncItemNotFound
	}
	if err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	var item domain.SyncItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, domain.ErrSyncItemInvalid.WithCause(err)
	}
	return &item, nil
}

// Delete removes one item by ID.
func (q *Queue) Delete(ctx context.Context, id string) error {
	if err := q.kv.Delete(ctx, []byte(domain.SyncKey(id))); err != nil {
		return domain.ErrStorage.WithCause(err)
	}
	return nil
}

// Replay runs a replay pass. A call made while a pass is running does not
// start a second one; the running pass makes one more sweep instead and the
// call returns a coalesced report.
func (q *Queue) Replay(ctx context.Context, r Replayer) (*Report, error) {
	q.mu.Lock()
	if q.running {
		q.rerun = true
		q.mu.Unlock()
		return &Report{Coalesced: true}, nil
	}
	q.running = true
	q.mu.Unlock()

	total := &Report{}
	for {
		rep, err := q.sweep(ctx, r)
		total.Replayed = append(total.Replayed, rep.Replayed...)
		total.Expired = append(total.Expired, rep.Expired...)
		total.Failed += rep.Failed

		q.mu.Lock()
		again := q.rerun && err == nil
		q.rerun = false
		if !again {
			q.running = false
		}
		q.mu.Unlock()

		if !again {
			return total, err
		}
	}
}

func (q *Queue) sweep(ctx context.Context, r Replayer) (*Report, error) {
	rep := &Report{}
	items, err := q.List(ctx)
	if err != nil {
		return rep, err
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		if item.Expired(q.clock()) {
			if err := q.Delete(ctx, item.ID); err != nil {
				return rep, err
			}
			q.logger.Info("dropped expired sync item", "id", item.ID, "url", item.URL)
			rep.Expired = append(rep.Expired, item.ID)
			continue
		}

		if err := q.limiter.Wait(ctx); err != nil {
			return rep, err
		}
		status, err := r.Replay(ctx, item)
		if err != nil || status < 200 || status > 299 {
			q.logger.Warn("replay failed", "id", item.ID, "status", status, "error", err)
			rep.Failed++
			continue
		}

		if err := q.Delete(ctx, item.ID); err != nil {
			return rep, err
		}
		q.logger.Info("replayed sync item", "id", item.ID, "status", status)
		rep.Replayed = append(rep.Replayed, item.ID)
		if q.onSuccess != nil {
			q.onSuccess(item)
		}
	}
	return rep, nil
}

// HTTPReplayer re-issues items against an upstream base URL.
type HTTPReplayer struct {
	BaseURL string
	Client  *http.Client
}

// Replay sends item with a JSON content type and drains the response.
func (h *HTTPReplayer) Replay(ctx context.Context, item *domain.SyncItem) (int, error) {
	target := item.URL
	if !strings.Contains(target, "://") {
		target = strings.TrimRight(h.BaseURL, "/") + "/" + strings.TrimLeft(target, "/")
	}

	req, err := http.NewRequestWithContext(ctx, item.Method, target, strings.NewReader(item.Data))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, domain.ErrUpstreamUnavailable.WithCause(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
