package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yndnr/shellkeep-go/internal/agent"
	"github.com/yndnr/shellkeep-go/internal/core/domain"
	"github.com/yndnr/shellkeep-go/internal/infra/buildinfo"
)

// HTTPClient talks to a shellkeep agent over HTTP or a Unix socket.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client for server, which is an http(s) URL, a
// bare host:port, or "unix:///path/to/agent.sock".
func NewHTTPClient(server string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	baseURL := strings.TrimRight(server, "/")
	if path, ok := SocketPath(server); ok {
		client.Transport = UnixTransport(path)
		baseURL = "http://agent"
	} else if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	return &HTTPClient{baseURL: baseURL, client: client}
}

// BaseURL returns the base URL of the client.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// HTTP returns the underlying client, e.g. to dial event streams.
func (c *HTTPClient) HTTP() *http.Client {
	return c.client
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with a JSON body.
func (c *HTTPClient) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// Delete performs a DELETE request.
func (c *HTTPClient) Delete(ctx context.Context, path string) (*http.Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil)
}

// Do sends body as JSON. A []byte or json.RawMessage body is sent as is.
func (c *HTTPClient) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		var data []byte
		switch b := body.(type) {
		case []byte:
			data = b
		case json.RawMessage:
			data = b
		default:
			var err error
			if data, err = json.Marshal(body); err != nil {
				return nil, fmt.Errorf("marshal body: %w", err)
			}
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent("cli"))
	return c.client.Do(req)
}

// Send delivers a message to the agent's message endpoint.
func (c *HTTPClient) Send(ctx context.Context, msg domain.Message) (*domain.Reply, error) {
	return agent.HTTPPort{URL: c.baseURL + agent.MessagesPath, Client: c.client}.Send(ctx, msg)
}

// envelope mirrors the agent's operator response format.
type envelope struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Details   any             `json:"details"`
}

// ParseResponse unwraps an operator response envelope into target.
func ParseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode >= 400 {
		if decodeErr == nil && env.Message != "" {
			if env.Details != nil {
				return fmt.Errorf("[%s] %s: %v", env.Code, env.Message, env.Details)
			}
			return fmt.Errorf("[%s] %s", env.Code, env.Message)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return fmt.Errorf("parse response: %w", decodeErr)
	}

	if target != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, target); err != nil {
			return fmt.Errorf("parse response data: %w", err)
		}
	}
	return nil
}

// ReadBody returns the raw body of a successful response.
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var reply domain.Reply
		if json.Unmarshal(data, &reply) == nil && reply.Error != "" {
			return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, reply.Error)
		}
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return data, nil
}
