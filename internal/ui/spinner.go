package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// spinnerInterval is the redraw period
const spinnerInterval = 80 * time.Millisecond

// Spinner shows an animated indicator while a discovery scan or a
// connection attempt is in progress
type Spinner struct {
	out io.Writer

	mu      sync.Mutex
	message string
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSpinner creates a spinner writing to stdout
func NewSpinner(message string) *Spinner {
	return NewSpinnerTo(os.Stdout, message)
}

// NewSpinnerTo creates a spinner writing to out
func NewSpinnerTo(out io.Writer, message string) *Spinner {
	return &Spinner{out: out, message: message}
}

// Start begins the animation; a no-op when already running
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.animate(ctx, s.done, time.Now())
}

func (s *Spinner) animate(ctx context.Context, done chan struct{}, started time.Time) {
	defer close(done)

	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		select {
		case <-ctx.Done():
			fmt.Fprint(s.out, "\r"+strings.Repeat(" ", 60)+"\r")
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		msg := s.message
		s.mu.Unlock()

		glyph := Color(Cyan, spinnerFrames[frame%len(spinnerFrames)])
		if elapsed := time.Since(started); elapsed > 2*time.Second {
			msg = fmt.Sprintf("%s (%ds)", msg, int(elapsed.Seconds()))
		}
		fmt.Fprintf(s.out, "\r%s %s   ", glyph, msg)
	}
}

// Stop halts the animation and clears the line
func (s *Spinner) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// SetMessage updates the message while running
func (s *Spinner) SetMessage(msg string) {
	s.mu.Lock()
	s.message = msg
	s.mu.Unlock()
}

// IsRunning returns whether the spinner is active
func (s *Spinner) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}
