package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yndnr/shellkeep-go/internal/core/domain"
	"github.com/yndnr/shellkeep-go/internal/storage"
)

// StateKey is the single key the KV backend writes.
const StateKey = "state/appState"

// kvRecord is the stored form. Each save replaces the whole record.
type kvRecord struct {
	ID        string           `json:"id"`
	Data      *domain.Snapshot `json:"data"`
	Timestamp int64            `json:"timestamp"`
}

// KVStore is the transactional backend over a storage.KVEngine.
type KVStore struct {
	engine storage.KVEngine
	clock  func() time.Time
}

// NewKVStore wraps engine.
func NewKVStore(engine storage.KVEngine) *KVStore {
	return &KVStore{engine: engine, clock: time.Now}
}

func (k *KVStore) Name() string { return "kv" }

func (k *KVStore) Save(ctx context.Context, s *domain.Snapshot) (err error) {
	defer recoverInto(&err, k.Name(), "save")
	if s == nil {
		return domain.ErrSnapshotInvalid.WithDetails("nil snapshot")
	}
	data, err := json.Marshal(kvRecord{ID: "appState", Data: s, Timestamp: k.clock().UnixMilli()})
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := k.engine.Set(ctx, []byte(StateKey), data); err != nil {
		return domain.ErrStorage.WithCause(err)
	}
	return nil
}

func (k *KVStore) Restore(ctx context.Context) (s *domain.Snapshot, err error) {
	defer recoverInto(&err, k.Name(), "restore")
	rec, err := k.read(ctx)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Data, nil
}

// ClearExpired deletes the record when it was written more than maxAge ago.
func (k *KVStore) ClearExpired(ctx context.Context, maxAge time.Duration) (err error) {
	defer recoverInto(&err, k.Name(), "clear")
	maxAge = maxAgeOrDefault(maxAge)
	rec, rerr := k.read(ctx)
	if rerr == nil && (rec == nil || k.clock().Sub(time.UnixMilli(rec.Timestamp)) <= maxAge) {
		return nil
	}
	if err := k.engine.Delete(ctx, []byte(StateKey)); err != nil {
		return domain.ErrStorage.WithCause(err)
	}
	return nil
}

func (k *KVStore) read(ctx context.Context) (*kvRecord, error) {
	data, err := k.engine.Get(ctx, []byte(StateKey))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	var rec kvRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, domain.ErrSnapshotInvalid.WithCause(err)
	}
	if rec.Data == nil || rec.Data.CapturedAt == 0 {
		return nil, nil
	}
	return &rec, nil
}
