// Package capture provides frame sources for the streaming loop
package capture

import (
	"fmt"
	"image"
	"log"
	"sync"

	"github.com/kbinani/screenshot"
)

// Source produces one raw frame per call. A failed capture means
// "no frame this tick" to the caller, never a fatal condition.
type Source interface {
	Capture() (image.Image, error)
	// Bounds is the captured area in desktop coordinates, used to map
	// normalized pointer positions to absolute pixels
	Bounds() image.Rectangle
}

// Monitor describes one active display
type Monitor struct {
	Index   int             `json:"index"`
	Bounds  image.Rectangle `json:"bounds"`
	Primary bool            `json:"primary"`
}

// Name returns a short display label
func (m Monitor) Name() string {
	name := fmt.Sprintf("Display %d", m.Index)
	if m.Primary {
		name += " (primary)"
	}
	return name
}

// Monitors lists the active displays. Index 0 is the primary display.
func Monitors() []Monitor {
	n := screenshot.NumActiveDisplays()
	monitors := make([]Monitor, 0, n)
	for i := 0; i < n; i++ {
		monitors = append(monitors, Monitor{
			Index:   i,
			Bounds:  screenshot.GetDisplayBounds(i),
			Primary: i == 0,
		})
	}
	return monitors
}

// ScreenSource grabs one display with kbinani/screenshot
type ScreenSource struct {
	mu      sync.RWMutex
	display int
	bounds  image.Rectangle
}

// NewScreenSource creates a source for the given display index
func NewScreenSource(display int) (*ScreenSource, error) {
	s := &ScreenSource{}
	if err := s.Select(display); err != nil {
		return nil, err
	}
	return s, nil
}

// Select switches the captured display
func (s *ScreenSource) Select(display int) error {
	n := screenshot.NumActiveDisplays()
	if display < 0 || display >= n {
		return fmt.Errorf("invalid display %d, have %d displays", display, n)
	}
	bounds := screenshot.GetDisplayBounds(display)

	s.mu.Lock()
	s.display = display
	s.bounds = bounds
	s.mu.Unlock()

	log.Printf("[INFO] capture: selected display %d (%dx%d at %d,%d)",
		display, bounds.Dx(), bounds.Dy(), bounds.Min.X, bounds.Min.Y)
	return nil
}

// Capture grabs the selected display
func (s *ScreenSource) Capture() (image.Image, error) {
	s.mu.RLock()
	bounds := s.bounds
	s.mu.RUnlock()

	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("capture failed: %w", err)
	}
	return img, nil
}

// Bounds returns the selected display's geometry
func (s *ScreenSource) Bounds() image.Rectangle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bounds
}

// Display returns the selected display index
func (s *ScreenSource) Display() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.display
}
