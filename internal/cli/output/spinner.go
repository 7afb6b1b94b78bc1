package output

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// spinnerFrames cycle while an operator call is in flight.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// spinnerInterval is the time between frames.
const spinnerInterval = 100 * time.Millisecond

// Spinner animates a status line on w until it is finished. Finishing is
// idempotent; only the first Stop, Success or Fail writes.
type Spinner struct {
	w        io.Writer
	interval time.Duration

	mu      sync.Mutex
	message string

	started atomic.Bool
	once    sync.Once
	stop    chan struct{}
	stopped chan struct{}
}

// NewSpinner returns a spinner showing message. Nothing is drawn until
// Start.
func NewSpinner(w io.Writer, message string) *Spinner {
	return &Spinner{
		w:        w,
		interval: spinnerInterval,
		message:  message,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start draws frames in the background.
func (s *Spinner) Start() {
	if s.started.CompareAndSwap(false, true) {
		go s.run()
	}
}

func (s *Spinner) run() {
	defer close(s.stopped)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		s.mu.Lock()
		fmt.Fprintf(s.w, "\r%s %s", spinnerFrames[frame%len(spinnerFrames)], s.message)
		s.mu.Unlock()

		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
	}
}

// Update replaces the message shown next to the frame.
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// Stop clears the status line.
func (s *Spinner) Stop() {
	s.finish("\r\033[K")
}

// Success replaces the status line with a check mark and message.
func (s *Spinner) Success(message string) {
	s.finish("\r\033[K✓ " + message + "\n")
}

// Fail replaces the status line with a cross and message.
func (s *Spinner) Fail(message string) {
	s.finish("\r\033[K✗ " + message + "\n")
}

// finish stops the animation and writes last after the final frame.
func (s *Spinner) finish(last string) {
	s.once.Do(func() {
		close(s.stop)
		if s.started.Load() {
			<-s.stopped
		}
		s.mu.Lock()
		fmt.Fprint(s.w, last)
		s.mu.Unlock()
	})
}
