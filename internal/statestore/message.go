package statestore

import (
	"context"
	"encoding/json"

	"github.com/yndnr/shellkeep-go/internal/core/domain"
)

// Messenger delivers a message to the background agent and returns its
// reply.
type Messenger interface {
	Send(ctx context.Context, msg domain.Message) (*domain.Reply, error)
}

// MessageStore saves snapshots over the agent message channel.
//
// A store without a messenger has no page-local handle to the agent: it
// saves nothing and restores nothing, without error.
type MessageStore struct {
	messenger Messenger
}

// NewMessageStore wraps m, which may be nil.
func NewMessageStore(m Messenger) *MessageStore {
	return &MessageStore{messenger: m}
}

func (m *MessageStore) Name() string { return "message" }

func (m *MessageStore) Save(ctx context.Context, s *domain.Snapshot) (err error) {
	defer recoverInto(&err, m.Name(), "save")
	if m.messenger == nil {
		return nil
	}
	reply, err := m.messenger.Send(ctx, domain.Message{Type: domain.MsgSavePWAState, State: s})
	if err != nil {
		return domain.ErrBackendUnavailable.WithCause(err)
	}
	if reply == nil || !reply.Success {
		msg := ""
		if reply != nil {
			msg = reply.Error
		}
		return domain.ErrBackendUnavailable.WithDetails(msg)
	}
	return nil
}

func (m *MessageStore) Restore(ctx context.Context) (s *domain.Snapshot, err error) {
	defer recoverInto(&err, m.Name(), "restore")
	if m.messenger == nil {
		return nil, nil
	}
	reply, err := m.messenger.Send(ctx, domain.Message{Type: domain.MsgGetPWAState})
	if err != nil {
		return nil, domain.ErrBackendUnavailable.WithCause(err)
	}
	if reply == nil || !reply.Success {
		return nil, nil
	}
	var raw json.RawMessage
	found, err := reply.Decode("state", &raw)
	if err != nil {
		return nil, domain.ErrSnapshotInvalid.WithCause(err)
	}
	if !found {
		return nil, nil
	}
	return domain.DecodeSnapshot(raw)
}
