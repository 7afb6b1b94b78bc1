package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"unset", context.Background(), ""},
		{"set", WithRequestID(context.Background(), "req-12345"), "req-12345"},
		{"empty id leaves ctx alone", WithRequestID(context.Background(), ""), ""},
		{"nil ctx", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RequestID(tt.ctx); got != tt.want {
				t.Errorf("RequestID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parse log %q: %v", buf.String(), err)
	}
	return entry
}

func TestContextHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil))).With("component", "agent")
	ctx := WithRequestID(context.Background(), "req-777")

	t.Run("context method carries id", func(t *testing.T) {
		buf.Reset()
		log.InfoContext(ctx, "request queued", "sync_id", "sync-01")
		entry := decodeLine(t, &buf)
		if entry["request_id"] != "req-777" || entry["component"] != "agent" {
			t.Errorf("entry = %v", entry)
		}
	})

	t.Run("plain method has no id", func(t *testing.T) {
		buf.Reset()
		log.Info("agent started")
		if _, ok := decodeLine(t, &buf)["request_id"]; ok {
			t.Error("request_id without a request context")
		}
	})

	t.Run("wrapping twice adds once", func(t *testing.T) {
		buf.Reset()
		h := NewContextHandler(NewContextHandler(slog.NewTextHandler(&buf, nil)))
		slog.New(h).InfoContext(ctx, "x")
		if n := bytes.Count(buf.Bytes(), []byte("request_id=")); n != 1 {
			t.Errorf("request_id written %d times: %s", n, buf.String())
		}
	})
}

func TestNew_CarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := WithRequestID(context.Background(), "req-42")

	t.Run("slog form", func(t *testing.T) {
		buf.Reset()
		Slog(l).WarnContext(ctx, "cache store failed")
		if got := decodeLine(t, &buf)["request_id"]; got != "req-42" {
			t.Errorf("request_id = %v", got)
		}
	})

	t.Run("WithContext", func(t *testing.T) {
		buf.Reset()
		l.WithContext(ctx).Info("page state saved")
		if got := decodeLine(t, &buf)["request_id"]; got != "req-42" {
			t.Errorf("request_id = %v", got)
		}
	})
}
