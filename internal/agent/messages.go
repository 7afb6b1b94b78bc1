package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/yndnr/shellkeep-go/internal/core/domain"
)

// HandleMessage answers one page request. Failures are reported in the
// reply, never as a Go error.
func (a *Agent) HandleMessage(ctx context.Context, msg domain.Message) *domain.Reply {
	switch msg.Type {
	case domain.MsgClearBadge:
		if err := a.badge.Clear(ctx); err != nil {
			return domain.Fail(err)
		}
		return domain.OK()

	case domain.MsgUpdateBadge:
		count := 0
		if msg.Count != nil {
			count = *msg.Count
		}
		if err := a.badge.Set(ctx, count); err != nil {
			return domain.Fail(err)
		}
		return domain.OK()

	case domain.MsgGetUnreadCount:
		n, err := a.badge.Get(ctx)
		if err != nil {
			n = 0
		}
		return domain.OK("count", n)

	case domain.MsgCleanupCaches:
		report, err := a.Activate(ctx)
		if err != nil {
			return domain.Fail(err)
		}
		return domain.OK("cacheInfo", report.Info)

	case domain.MsgGetCacheInfo:
		info, err := a.cache.Info(ctx)
		if err != nil {
			return domain.Fail(err)
		}
		return domain.OK("cacheInfo", info)

	case domain.MsgSavePWAState:
		if msg.State == nil {
			return domain.Fail(domain.ErrSnapshotInvalid.WithDetails("state is required"))
		}
		data, err := domain.EncodeSnapshot(msg.State)
		if err != nil {
			return domain.Fail(err)
		}
		if err := a.SaveState(ctx, data); err != nil {
			return domain.Fail(err)
		}
		return domain.OK()

	case domain.MsgGetPWAState:
		data, err := a.LoadState(ctx)
		if err != nil {
			return domain.Fail(err)
		}
		s, err := domain.DecodeSnapshot(data)
		if err != nil {
			return domain.Fail(err)
		}
		return domain.OK("state", s)
	}
	return domain.Fail(domain.ErrUnknownMessage.WithDetails(string(msg.Type)))
}

// LocalPort delivers messages to an agent in the same process.
type LocalPort struct {
	Agent *Agent
}

// Send implements the page-side messenger.
func (p LocalPort) Send(ctx context.Context, msg domain.Message) (*domain.Reply, error) {
	if p.Agent == nil {
		return nil, domain.ErrNoMessagePort
	}
	return p.Agent.HandleMessage(ctx, msg), nil
}

// HTTPPort delivers messages to a remote agent's message endpoint.
type HTTPPort struct {
	URL    string
	Client *http.Client
}

// Send posts msg and decodes the reply.
func (p HTTPPort) Send(ctx context.Context, msg domain.Message) (*domain.Reply, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, domain.ErrNoMessagePort.WithCause(err)
	}
	defer resp.Body.Close()

	var reply domain.Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, domain.ErrNoMessagePort.WithCause(errors.Join(err, errors.New(resp.Status)))
	}
	return &reply, nil
}
