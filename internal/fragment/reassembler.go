package fragment

import (
	"time"
)

const (
	// AssemblyTimeout is how long a partial frame may wait for its missing chunks
	AssemblyTimeout = 2 * time.Second
	// MaxPending caps the number of partial frames kept at once
	MaxPending = 32
)

// partial holds the chunks received so far for one frame id
type partial struct {
	chunks    map[uint16][]byte
	total     uint16
	firstSeen time.Time
}

// Reassembler rebuilds encoded frames from chunks arriving in any order.
// It is owned by a single receive loop and is not safe for concurrent use.
type Reassembler struct {
	timeout    time.Duration
	maxPending int
	pending    map[uint32]*partial
	// finished remembers completed or evicted frame ids so that late
	// chunks for them are ignored instead of starting a new partial frame
	finished map[uint32]time.Time
	now      func() time.Time
}

// NewReassembler creates a reassembler; timeout <= 0 uses AssemblyTimeout
func NewReassembler(timeout time.Duration) *Reassembler {
	if timeout <= 0 {
		timeout = AssemblyTimeout
	}
	return &Reassembler{
		timeout:    timeout,
		maxPending: MaxPending,
		pending:    make(map[uint32]*partial),
		finished:   make(map[uint32]time.Time),
		now:        time.Now,
	}
}

// Add stores a chunk. When it completes its frame the concatenated buffer
// is returned with ok set.
func (r *Reassembler) Add(c Chunk) (frame []byte, ok bool) {
	now := r.now()

	if _, done := r.finished[c.FrameID]; done {
		return nil, false
	}
	if c.Count == 0 || c.Index >= c.Count {
		return nil, false
	}

	p, exists := r.pending[c.FrameID]
	if !exists {
		if len(r.pending) >= r.maxPending {
			r.evictOldest(now)
		}
		p = &partial{
			chunks:    make(map[uint16][]byte, c.Count),
			total:     c.Count,
			firstSeen: now,
		}
		r.pending[c.FrameID] = p
	}

	if now.Sub(p.firstSeen) > r.timeout {
		r.drop(c.FrameID, now)
		return nil, false
	}
	if c.Count != p.total {
		return nil, false
	}

	// Duplicates overwrite. The payload is copied since receive buffers are reused.
	p.chunks[c.Index] = append([]byte(nil), c.Payload...)
	if len(p.chunks) < int(p.total) {
		return nil, false
	}

	size := 0
	for _, b := range p.chunks {
		size += len(b)
	}
	frame = make([]byte, 0, size)
	for i := uint16(0); i < p.total; i++ {
		frame = append(frame, p.chunks[i]...)
	}
	r.drop(c.FrameID, now)
	return frame, true
}

// Sweep evicts partial frames older than the timeout and forgets finished
// ids once late chunks can no longer matter. It returns the number of
// partial frames evicted.
func (r *Reassembler) Sweep() int {
	now := r.now()
	evicted := 0
	for id, p := range r.pending {
		if now.Sub(p.firstSeen) > r.timeout {
			r.drop(id, now)
			evicted++
		}
	}
	for id, at := range r.finished {
		if now.Sub(at) > r.timeout {
			delete(r.finished, id)
		}
	}
	return evicted
}

// Pending returns the number of incomplete frames being buffered
func (r *Reassembler) Pending() int {
	return len(r.pending)
}

// Reset discards all state
func (r *Reassembler) Reset() {
	r.pending = make(map[uint32]*partial)
	r.finished = make(map[uint32]time.Time)
}

func (r *Reassembler) drop(id uint32, now time.Time) {
	delete(r.pending, id)
	r.finished[id] = now
}

func (r *Reassembler) evictOldest(now time.Time) {
	var (
		oldestID uint32
		oldest   time.Time
		found    bool
	)
	for id, p := range r.pending {
		if !found || p.firstSeen.Before(oldest) {
			oldestID, oldest, found = id, p.firstSeen, true
		}
	}
	if found {
		r.drop(oldestID, now)
	}
}
