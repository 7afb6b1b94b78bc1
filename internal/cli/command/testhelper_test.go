package command

import (
	"bytes"
	"encoding/json"
	"flag"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/shellkeep-go/internal/core/domain"
)

// mockServer creates a test HTTP server with custom handlers.
type mockServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
}

// newMockServer creates a new mock server, closed with the test.
func newMockServer(t *testing.T) *mockServer {
	t.Helper()
	m := &mockServer{
		handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		// Longest matching prefix wins.
		var best string
		for pattern := range m.handlers {
			if strings.HasPrefix(r.URL.Path, pattern) && len(pattern) > len(best) {
				best = pattern
			}
		}
		handler := m.handlers[best]
		m.mu.Unlock()

		if handler == nil {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(m.Close)
	return m
}

// handle registers a handler for a path prefix.
func (m *mockServer) handle(pattern string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[pattern] = handler
}

// handleMessages answers agent messages with reply.
func (m *mockServer) handleMessages(t *testing.T, reply func(msg domain.Message) *domain.Reply) {
	m.handle("/agent/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		var msg domain.Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("decode message: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(reply(msg))
	})
}

// jsonResponse writes a success envelope around data.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"code":       "OK",
		"message":    "Success",
		"request_id": "req-test",
		"data":       data,
	})
}

// errorResponse writes an error envelope.
func errorResponse(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"code":    code,
		"message": message,
	})
}

// testContext creates a CLI context talking to server. flags are the
// command's own flags; args may mix flags and positional arguments. The
// config file points at a missing file so only defaults apply.
func testContext(t *testing.T, server *mockServer, flags []cli.Flag, args ...string) *cli.Context {
	t.Helper()

	app := &cli.App{
		Name:     "test",
		Flags:    globalFlags(),
		Writer:   &bytes.Buffer{},
		Metadata: map[string]any{},
	}

	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range append(globalFlags(), flags...) {
		if err := f.Apply(set); err != nil {
			t.Fatalf("apply flag %v: %v", f.Names(), err)
		}
	}

	fullArgs := []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}
	if server != nil {
		fullArgs = append(fullArgs, "--agent", server.URL)
	}
	fullArgs = append(fullArgs, args...)
	if err := set.Parse(fullArgs); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	return cli.NewContext(app, set, nil)
}

// out returns what the command wrote to its writer.
func out(c *cli.Context) string {
	return c.App.Writer.(*bytes.Buffer).String()
}

// subcommand finds a subcommand by name.
func subcommand(t *testing.T, cmd *cli.Command, name string) *cli.Command {
	t.Helper()
	for _, sub := range cmd.Subcommands {
		if sub.Name == name {
			return sub
		}
	}
	t.Fatalf("%s has no subcommand %q", cmd.Name, name)
	return nil
}

func intPtr(n int) *int { return &n }
