package connection

import (
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"
)

func TestSocketPath(t *testing.T) {
	tests := []struct {
		server string
		want   string
		ok     bool
	}{
		{"unix:///run/shellkeep.sock", "/run/shellkeep.sock", true},
		{"unix://", "", false},
		{"http://localhost:5080", "", false},
		{"/run/shellkeep.sock", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.server, func(t *testing.T) {
			got, ok := SocketPath(tt.server)
			if got != tt.want || ok != tt.ok {
				t.Errorf("SocketPath(%q) = %q, %v; want %q, %v", tt.server, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestHTTPClient_UnixSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "agent.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Skipf("unix sockets unavailable: %v", err)
	}

	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":"OK","data":{"status":"healthy"}}`)
	})}
	go srv.Serve(listener)
	defer srv.Close()

	client := NewHTTPClient("unix://"+socketPath, time.Second)
	resp, err := client.Get(context.Background(), "/health")
	if err != nil {
		t.Fatalf("Get() over socket: %v", err)
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := ParseResponse(resp, &out); err != nil {
		t.Fatal(err)
	}
	if out.Status != "healthy" {
		t.Errorf("status = %q", out.Status)
	}
}

func TestHTTPClient_UnixSocket_Missing(t *testing.T) {
	client := NewHTTPClient("unix://"+filepath.Join(t.TempDir(), "none.sock"), time.Second)
	if _, err := client.Get(context.Background(), "/health"); err == nil {
		t.Error("expected dial error")
	}
}
