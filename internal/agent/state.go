package agent

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/yndnr/shellkeep-go/internal/core/domain"
	"github.com/yndnr/shellkeep-go/internal/storage"
)

// StateKey is the agent store key of the page-state slot.
const StateKey = "pwa-state"

var stateAAD = []byte("shellkeep/pwa-state")

// MaxStateBytes caps the stored page state.
const MaxStateBytes = 5 << 20

type stateRecord struct {
	Data    json.RawMessage `json:"data"`
	SavedAt int64           `json:"timestamp"`
}

// SaveState stores a JSON object in the page-state slot, replacing the
// previous one.
func (a *Agent) SaveState(ctx context.Context, data []byte) error {
	if len(data) > MaxStateBytes {
		return domain.ErrQuotaExceeded
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return domain.ErrSnapshotInvalid.WithCause(err)
	}

	rec, err := json.Marshal(stateRecord{Data: data, SavedAt: a.clock().UnixMilli()})
	if err != nil {
		return domain.ErrInternal.WithCause(err)
	}
	if a.cipher != nil {
		if rec, err = a.cipher.Seal(rec, stateAAD); err != nil {
			return domain.ErrInternal.WithCause(err)
		}
	}
	if err := a.kv.Set(ctx, []byte(StateKey), rec); err != nil {
		return domain.ErrStorage.WithCause(err)
	}
	a.logger.DebugContext(ctx, "page state saved", "bytes", len(data))
	return nil
}

// LoadState returns the stored page state, or "{}" when the slot is empty
// or unreadable.
func (a *Agent) LoadState(ctx context.Context) ([]byte, error) {
	empty := []byte("{}")

	raw, err := a.kv.Get(ctx, []byte(StateKey))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return empty, nil
	}
	if err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	if a.cipher != nil {
		if raw, err = a.cipher.Open(raw, stateAAD); err != nil {
			a.logger.WarnContext(ctx, "page state cannot be opened", "error", err)
			return empty, nil
		}
	}

	var rec stateRecord
	if err := json.Unmarshal(raw, &rec); err != nil || len(rec.Data) == 0 {
		a.logger.WarnContext(ctx, "page state unreadable", "error", err)
		return empty, nil
	}
	return rec.Data, nil
}
