// Package input defines the input-injection capability the control channel
// drives. Concrete OS backends live outside this module; the package ships
// a logging injector for headless runs and a recorder for tests.
package input

import (
	"fmt"
	"log"
	"sync"
)

// Button identifies a mouse button
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// Action is a press or a release
type Action string

const (
	Press   Action = "press"
	Release Action = "release"
)

// Injector simulates local mouse and keyboard input
type Injector interface {
	// Move places the pointer at absolute screen pixels
	Move(x, y int) error
	Click(button Button, action Action) error
	Scroll(dx, dy int) error
	// Key presses or releases a canonical key name
	Key(name string, action Action) error
}

// NativeKeyer is an optional platform fast path for arrow and Win/Super
// keys. Key reports false when the key could not be injected natively so
// the caller can fall back to the Injector.
type NativeKeyer interface {
	Key(name string, action Action) bool
}

// LogInjector logs every event instead of injecting it
type LogInjector struct{}

func (LogInjector) Move(x, y int) error {
	log.Printf("[DEBUG] input: move %d,%d", x, y)
	return nil
}

func (LogInjector) Click(button Button, action Action) error {
	log.Printf("[DEBUG] input: %s %s", button, action)
	return nil
}

func (LogInjector) Scroll(dx, dy int) error {
	log.Printf("[DEBUG] input: scroll %d,%d", dx, dy)
	return nil
}

func (LogInjector) Key(name string, action Action) error {
	log.Printf("[DEBUG] input: key %s %s", name, action)
	return nil
}

// Event is one call recorded by Recorder
type Event struct {
	Kind   string // "move", "click", "scroll", "key"
	X, Y   int
	Button Button
	Name   string
	Action Action
}

func (e Event) String() string {
	switch e.Kind {
	case "move", "scroll":
		return fmt.Sprintf("%s(%d,%d)", e.Kind, e.X, e.Y)
	case "click":
		return fmt.Sprintf("click(%s,%s)", e.Button, e.Action)
	default:
		return fmt.Sprintf("key(%s,%s)", e.Name, e.Action)
	}
}

// Recorder is an Injector that keeps every call in order
type Recorder struct {
	mu     sync.Mutex
	events []Event
	// FailKeys makes Key return an error for the listed names
	FailKeys map[string]bool
}

func (r *Recorder) record(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Move(x, y int) error {
	r.record(Event{Kind: "move", X: x, Y: y})
	return nil
}

func (r *Recorder) Click(button Button, action Action) error {
	r.record(Event{Kind: "click", Button: button, Action: action})
	return nil
}

func (r *Recorder) Scroll(dx, dy int) error {
	r.record(Event{Kind: "scroll", X: dx, Y: dy})
	return nil
}

func (r *Recorder) Key(name string, action Action) error {
	if r.FailKeys[name] {
		return fmt.Errorf("inject %s failed", name)
	}
	r.record(Event{Kind: "key", Name: name, Action: action})
	return nil
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Strings returns the recorded events formatted with Event.String
func (r *Recorder) Strings() []string {
	events := r.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.String()
	}
	return out
}

// Reset drops all recorded events
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
