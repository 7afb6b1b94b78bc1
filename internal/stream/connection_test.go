package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeStream struct {
	msgs      chan Message
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{msgs: make(chan Message, 16), closed: make(chan struct{})}
}

func (s *fakeStream) Next() (Message, error) {
	select {
	case m, ok := <-s.msgs:
		if !ok {
			return Message{}, io.EOF
		}
		return m, nil
	case <-s.closed:
		return Message{}, io.EOF
	}
}

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// drop ends the stream from the server side.
func (s *fakeStream) drop() { close(s.msgs) }

type fakeDialer struct {
	mu      sync.Mutex
	fail    bool
	dials   int
	streams []*fakeStream
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint, lastEventID string) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail {
		return nil, errors.New("connection refused")
	}
	s := newFakeStream()
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDialer) setFail(v bool) {
	d.mu.Lock()
	d.fail = v
	d.mu.Unlock()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) last() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[len(d.streams)-1]
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

var fastOptions = Options{
	BackgroundCloseDelay: 20 * time.Millisecond,
	ReconnectDelay:       10 * time.Millisecond,
	MaxReconnectAttempts: 3,
}

func TestRegistry_Singleton(t *testing.T) {
	reg := NewRegistry(&fakeDialer{}, nil)
	defer reg.CloseAll()

	a := reg.Get("http://agent/events", fastOptions)
	b := reg.Get("http://agent/events", Options{})
	c := reg.Get("http://agent/other", fastOptions)
	if a != b {
		t.Error("same endpoint should return the same connection")
	}
	if a == c {
		t.Error("different endpoints should not share a connection")
	}
	if reg.Len() != 2 {
		t.Errorf("Len() = %d", reg.Len())
	}
	if conns := reg.Connections(); len(conns) != 2 || conns[0] != a || conns[1] != c {
		t.Errorf("Connections() not ordered by endpoint")
	}

	reg.CloseEndpoint("http://agent/other")
	if _, ok := reg.Lookup("http://agent/other"); ok {
		t.Error("closed endpoint still registered")
	}
}

func TestConnection_ListenerLifecycle(t *testing.T) {
	d := &fakeDialer{}
	reg := NewRegistry(d, nil)
	defer reg.CloseAll()
	conn := reg.Get("http://agent/events", fastOptions)

	if conn.Status() != StatusClosed {
		t.Fatalf("initial status = %s", conn.Status())
	}

	var mu sync.Mutex
	var order []string
	conn.AddMessageListener("a", func(m Message) {
		mu.Lock()
		order = append(order, "a:"+m.Data)
		mu.Unlock()
	})
	conn.AddMessageListener("boom", func(Message) { panic("listener failure") })
	conn.AddMessageListener("b", func(m Message) {
		mu.Lock()
		order = append(order, "b:"+m.Data)
		mu.Unlock()
	})
	eventually(t, func() bool { return conn.Status() == StatusOpen })
	if d.dialCount() != 1 {
		t.Errorf("dials = %d, want 1", d.dialCount())
	}

	d.last().msgs <- Message{Event: "message", Data: "x"}
	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	})
	mu.Lock()
	if order[0] != "a:x" || order[1] != "b:x" {
		t.Errorf("delivery order = %v", order)
	}
	mu.Unlock()

	conn.RemoveMessageListener("a")
	conn.RemoveMessageListener("boom")
	if conn.Status() != StatusOpen {
		t.Error("connection should stay open while a listener remains")
	}
	conn.RemoveMessageListener("b")
	if conn.Status() != StatusClosed {
		t.Errorf("status with zero listeners = %s", conn.Status())
	}
}

func TestConnection_ReconnectBounded(t *testing.T) {
	d := &fakeDialer{}
	conn := NewRegistry(d, nil).Get("http://agent/events", fastOptions)
	defer conn.Close()

	var exhausted atomic.Bool
	conn.OnStatus(func(s Status) {
		if s == StatusExhausted {
			exhausted.Store(true)
		}
	})

	conn.AddMessageListener("l", func(Message) {})
	eventually(t, func() bool { return conn.Status() == StatusOpen })

	t.Run("reconnects and resets attempts", func(t *testing.T) {
		d.last().drop()
		eventually(t, func() bool { return d.dialCount() == 2 && conn.Status() == StatusOpen })
		if conn.Attempts() != 0 {
			t.Errorf("attempts after successful open = %d", conn.Attempts())
		}
	})

	t.Run("stops after the maximum", func(t *testing.T) {
		d.setFail(true)
		d.last().drop()
		eventually(t, func() bool { return conn.Status() == StatusExhausted })
		time.Sleep(50 * time.Millisecond)
		if got := d.dialCount(); got != 4 {
			t.Errorf("dials = %d, want 4", got)
		}
		if conn.Attempts() != fastOptions.MaxReconnectAttempts {
			t.Errorf("attempts = %d", conn.Attempts())
		}
		if !exhausted.Load() {
			t.Error("status listener not told about exhaustion")
		}

		conn.OnResume()
		if conn.Status() != StatusExhausted {
			t.Error("resume must not leave the exhausted state")
		}
	})

	t.Run("force reconnect", func(t *testing.T) {
		d.setFail(false)
		conn.ForceReconnect()
		eventually(t, func() bool { return conn.Status() == StatusOpen })
	})
}

func TestConnection_Background(t *testing.T) {
	d := &fakeDialer{}
	conn := NewRegistry(d, nil).Get("http://agent/events", fastOptions)
	defer conn.Close()
	conn.AddMessageListener("l", func(Message) {})
	eventually(t, func() bool { return conn.Status() == StatusOpen })

	t.Run("flicker keeps the stream", func(t *testing.T) {
		conn.OnSuspend()
		conn.OnResume()
		time.Sleep(50 * time.Millisecond)
		if conn.Status() != StatusOpen || d.dialCount() != 1 {
			t.Errorf("status = %s, dials = %d", conn.Status(), d.dialCount())
		}
	})

	t.Run("closes after the delay", func(t *testing.T) {
		conn.OnSuspend()
		eventually(t, func() bool { return conn.Status() == StatusClosed })

		conn.AddMessageListener("late", func(Message) {})
		if conn.Status() != StatusClosed {
			t.Error("adding a listener while backgrounded must not open")
		}
	})

	t.Run("resume reopens", func(t *testing.T) {
		conn.OnResume()
		eventually(t, func() bool { return conn.Status() == StatusOpen })
		if d.dialCount() != 2 {
			t.Errorf("dials = %d, want 2", d.dialCount())
		}
	})
}

func TestRegistry_SuspendResumeFanOut(t *testing.T) {
	d := &fakeDialer{}
	reg := NewRegistry(d, nil)
	defer reg.CloseAll()

	a := reg.Get("http://agent/a", fastOptions)
	b := reg.Get("http://agent/b", fastOptions)
	a.AddMessageListener("x", func(Message) {})
	b.AddMessageListener("x", func(Message) {})
	eventually(t, func() bool { return a.Status() == StatusOpen && b.Status() == StatusOpen })

	reg.OnSuspend()
	eventually(t, func() bool { return a.Status() == StatusClosed && b.Status() == StatusClosed })
	reg.OnResume()
	eventually(t, func() bool { return a.Status() == StatusOpen && b.Status() == StatusOpen })

	reg.CloseAll()
	if reg.Len() != 0 || a.ListenerCount() != 0 {
		t.Error("CloseAll should drop every connection and listener")
	}
}
