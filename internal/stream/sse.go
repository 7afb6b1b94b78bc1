package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Message is one dispatched server-sent event.
type Message struct {
	ID    string
	Event string
	Data  string
	// Retry is the reconnection time requested by the server, if any.
	Retry time.Duration
}

// Stream is an open event stream.
type Stream interface {
	// Next blocks until the next message. It returns io.EOF once the
	// server ends the stream.
	Next() (Message, error)
	Close() error
}

// Dialer opens event streams.
type Dialer interface {
	Dial(ctx context.Context, endpoint, lastEventID string) (Stream, error)
}

// HTTPDialer dials text/event-stream endpoints over HTTP.
type HTTPDialer struct {
	Client *http.Client
	Header http.Header
}

// NewHTTPDialer returns a dialer with no overall request timeout, since
// streams are expected to stay open.
func NewHTTPDialer() *HTTPDialer {
	return &HTTPDialer{Client: &http.Client{}}
}

func (d *HTTPDialer) Dial(ctx context.Context, endpoint, lastEventID string) (Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range d.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("dial %s: status %d", endpoint, resp.StatusCode)
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != "text/event-stream" {
		resp.Body.Close()
		return nil, fmt.Errorf("dial %s: unexpected content type %q", endpoint, mt)
	}
	return NewReader(resp.Body), nil
}

// Reader parses the text/event-stream format from an io.ReadCloser.
type Reader struct {
	body   io.ReadCloser
	r      *bufio.Reader
	lastID string
}

// NewReader wraps body.
func NewReader(body io.ReadCloser) *Reader {
	return &Reader{body: body, r: bufio.NewReader(body)}
}

func (r *Reader) Next() (Message, error) {
	var (
		data    strings.Builder
		hasData bool
		event   string
		retry   time.Duration
	)
	for {
		line, err := r.r.ReadString('\n')
		if err != nil && (line == "" || err != io.EOF) {
			return Message{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if hasData {
				msg := Message{ID: r.lastID, Event: event, Data: strings.TrimSuffix(data.String(), "\n"), Retry: retry}
				if msg.Event == "" {
					msg.Event = "message"
				}
				return msg, nil
			}
			event, retry = "", 0
			if err == io.EOF {
				return Message{}, io.EOF
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
		case "data":
			data.WriteString(value)
			data.WriteByte('\n')
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				r.lastID = value
			}
		case "retry":
			if ms, perr := strconv.Atoi(value); perr == nil && ms >= 0 {
				retry = time.Duration(ms) * time.Millisecond
			}
		}
		if err == io.EOF {
			// A trailing event without its blank line is discarded.
			return Message{}, io.EOF
		}
	}
}

// LastEventID returns the most recent id field seen.
func (r *Reader) LastEventID() string {
	return r.lastID
}

func (r *Reader) Close() error {
	return r.body.Close()
}
