package statestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yndnr/shellkeep-go/internal/core/domain"
)

// StatePath is the agent's virtual state endpoint.
const StatePath = "/api/pwa-state"

// EndpointStore saves snapshots through the agent's virtual endpoint.
type EndpointStore struct {
	url    string
	client *http.Client
}

// NewEndpointStore targets the agent at baseURL. A nil client uses a
// client with a 5 second timeout.
func NewEndpointStore(baseURL string, client *http.Client) *EndpointStore {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &EndpointStore{
		url:    strings.TrimRight(baseURL, "/") + StatePath,
		client: client,
	}
}

func (e *EndpointStore) Name() string { return "endpoint" }

func (e *EndpointStore) Save(ctx context.Context, s *domain.Snapshot) (err error) {
	defer recoverInto(&err, e.Name(), "save")
	body, err := domain.EncodeSnapshot(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	data, err := e.do(req)
	if err != nil {
		return err
	}
	var reply domain.Reply
	if err := json.Unmarshal(data, &reply); err != nil {
		return domain.ErrBackendUnavailable.WithCause(err)
	}
	if !reply.Success {
		return domain.ErrBackendUnavailable.WithDetails(reply.Error)
	}
	return nil
}

func (e *EndpointStore) Restore(ctx context.Context) (s *domain.Snapshot, err error) {
	defer recoverInto(&err, e.Name(), "restore")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	data, err := e.do(req)
	if err != nil {
		return nil, err
	}
	return domain.DecodeSnapshot(data)
}

func (e *EndpointStore) do(req *http.Request) ([]byte, error) {
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, domain.ErrBackendUnavailable.WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, DefaultMaxBytes+1))
	if err != nil {
		return nil, domain.ErrBackendUnavailable.WithCause(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.ErrBackendUnavailable.WithDetails(fmt.Sprintf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode))
	}
	return data, nil
}
