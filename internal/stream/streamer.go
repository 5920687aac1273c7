// Package stream runs the capture -> encode -> fragment -> send loop
package stream

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lanshare/lanshare/internal/capture"
	"github.com/lanshare/lanshare/internal/codec"
	"github.com/lanshare/lanshare/internal/fragment"
	"github.com/lanshare/lanshare/internal/logging"
	"github.com/lanshare/lanshare/internal/metrics"
	"github.com/lanshare/lanshare/internal/transport"
)

const (
	// DefaultInterval is the pause between two capture+send cycles
	DefaultInterval = 10 * time.Millisecond
	// statsLogInterval is how often stream stats are logged
	statsLogInterval = 10 * time.Second
)

// Options configures a Streamer
type Options struct {
	// Quality is handed to codec.NewEncoder; negative selects the default
	Quality   int
	Width     int
	ChunkSize int
	Interval  time.Duration
	Metrics   *metrics.Metrics
	History   *metrics.History
	// OnStop is called when the loop halts on a fatal socket error
	OnStop func(error)
}

// Streamer captures frames and sends them to every target of the sender
type Streamer struct {
	source    capture.Source
	sender    *transport.Sender
	chunkSize int
	interval  time.Duration
	metrics   *metrics.Metrics
	history   *metrics.History
	onStop    func(error)

	encMu   sync.Mutex
	encoder *codec.Encoder

	frameID    atomic.Uint32
	framesSent atomic.Uint64
	bytesSent  atomic.Uint64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a streamer reading from source and writing through sender
func New(source capture.Source, sender *transport.Sender, opts Options) *Streamer {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = fragment.DefaultChunkSize
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	return &Streamer{
		source:    source,
		sender:    sender,
		chunkSize: opts.ChunkSize,
		interval:  opts.Interval,
		metrics:   opts.Metrics,
		history:   opts.History,
		onStop:    opts.OnStop,
		encoder:   codec.NewEncoder(opts.Quality, opts.Width),
	}
}

// SetEncoding changes quality and width for the next frames
func (s *Streamer) SetEncoding(quality, width int) {
	s.encMu.Lock()
	s.encoder = codec.NewEncoder(quality, width)
	s.encMu.Unlock()
	log.Printf("[INFO] stream: encoding set to quality=%d width=%d", quality, width)
}

// Start opens the video socket and launches the loop. It returns false if
// the streamer was already running.
func (s *Streamer) Start() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return false, nil
	}
	if err := s.sender.Open(); err != nil {
		return false, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.framesSent.Store(0)
	s.bytesSent.Store(0)
	s.metrics.Streaming.Set(1)

	go s.loop(ctx, s.done)
	log.Printf("[INFO] stream: video streaming started")
	return true, nil
}

// Stop halts the loop and closes the socket. It reports whether the
// streamer was running.
func (s *Streamer) Stop() bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return false
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	s.sender.Close()
	<-done
	s.metrics.Streaming.Set(0)
	log.Printf("[INFO] stream: video streaming stopped (frames_sent=%d)", s.framesSent.Load())
	return true
}

// IsRunning reports whether the loop is active
func (s *Streamer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// FramesSent returns frames delivered since the last Start, counted per target
func (s *Streamer) FramesSent() uint64 {
	return s.framesSent.Load()
}

func (s *Streamer) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	lastStats := time.Now()
	lastSample := time.Now()
	var sampleFrames uint64

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		err := s.Tick()
		if errors.Is(err, transport.ErrSocketClosed) {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[ERROR] stream: halting, video socket is gone: %v", err)
			s.mu.Lock()
			s.running = false
			cancel := s.cancel
			s.cancel = nil
			s.mu.Unlock()
			if cancel != nil {
				cancel()
			}
			s.metrics.Streaming.Set(0)
			if s.onStop != nil {
				go s.onStop(err)
			}
			return
		}

		if time.Since(lastStats) > statsLogInterval {
			log.Printf("[INFO] stream: stats frames_sent=%d clients=%d",
				s.framesSent.Load(), s.sender.TargetCount())
			lastStats = time.Now()
		}

		if s.history != nil {
			if elapsed := time.Since(lastSample); elapsed >= time.Second {
				frames, bytes := s.framesSent.Load(), s.bytesSent.Load()
				s.history.Add(metrics.Sample{
					Timestamp:  time.Now().UnixMilli(),
					FramesSent: frames,
					BytesSent:  bytes,
					Clients:    s.sender.TargetCount(),
					FPS:        float64(frames-sampleFrames) / elapsed.Seconds(),
				})
				sampleFrames = frames
				lastSample = time.Now()
			}
		}

		timer.Reset(s.interval)
	}
}

// Tick runs one capture+encode+fragment+send cycle. Capture and encode
// failures skip the frame; only a closed socket is returned as an error.
func (s *Streamer) Tick() error {
	if s.sender.TargetCount() == 0 {
		return nil
	}

	img, err := s.source.Capture()
	if err != nil || img == nil {
		s.metrics.Dropped(metrics.DropCapture)
		logging.Debugf("stream: no frame this tick: %v", err)
		return nil
	}

	s.encMu.Lock()
	enc := s.encoder
	s.encMu.Unlock()

	data, err := enc.Encode(img)
	if err != nil {
		s.metrics.Dropped(metrics.DropEncode)
		logging.Debugf("stream: encode failed: %v", err)
		return nil
	}
	if len(data) > enc.MaxBytes {
		s.metrics.OversizeFrames.Inc()
		logging.Debugf("stream: frame still %d bytes at minimum width, sending best effort", len(data))
	}
	s.metrics.FrameBytes.Observe(float64(len(data)))

	id := s.frameID.Add(1)
	chunks, err := fragment.Split(id, data, s.chunkSize)
	if err != nil {
		s.metrics.Dropped(metrics.DropFragmented)
		logging.Debugf("stream: cannot fragment frame %d: %v", id, err)
		return nil
	}

	delivered, err := s.sender.SendFrame(chunks)
	if delivered > 0 {
		total := s.framesSent.Add(uint64(delivered))
		s.bytesSent.Add(uint64(len(data) * delivered))
		if total/100 != (total-uint64(delivered))/100 {
			log.Printf("[INFO] stream: sent %d frames (latest id %d, %d chunks)", total, id, len(chunks))
		}
	}
	return err
}
