package metrics

import (
	"sync"
	"time"
)

const (
	// MaxHistoryPoints is the maximum number of samples kept
	MaxHistoryPoints = 120 // 2 minutes at 1 sample/second
)

// Sample is one per-second snapshot of the outgoing stream
type Sample struct {
	Timestamp  int64   `json:"timestamp_ms"`
	FramesSent uint64  `json:"frames_sent"`
	BytesSent  uint64  `json:"bytes_sent"`
	Clients    int     `json:"clients"`
	FPS        float64 `json:"fps"`
}

// History stores recent stream samples for the status API
type History struct {
	samples    []Sample
	max        int
	lastUpdate time.Time
	mu         sync.RWMutex
}

// NewHistory creates a history holding at most max samples
func NewHistory(max int) *History {
	if max <= 0 {
		max = MaxHistoryPoints
	}
	return &History{
		samples: make([]Sample, 0, max),
		max:     max,
	}
}

// Add appends a sample, dropping the oldest ones past the limit
func (h *History) Add(sample Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.samples = append(h.samples, sample)
	if len(h.samples) > h.max {
		excess := len(h.samples) - h.max
		h.samples = h.samples[excess:]
	}
	h.lastUpdate = time.Now()
}

// Since returns samples newer than sinceMs; sinceMs <= 0 returns all
func (h *History) Since(sinceMs int64) []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if sinceMs <= 0 {
		result := make([]Sample, len(h.samples))
		copy(result, h.samples)
		return result
	}

	var result []Sample
	for _, s := range h.samples {
		if s.Timestamp > sinceMs {
			result = append(result, s)
		}
	}
	return result
}

// Latest returns the most recent sample
func (h *History) Latest() (Sample, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.samples) == 0 {
		return Sample{}, false
	}
	return h.samples[len(h.samples)-1], true
}

// LastUpdate returns when the last sample was added
func (h *History) LastUpdate() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastUpdate
}
