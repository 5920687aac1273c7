package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync/atomic"
	"time"

	"github.com/lanshare/lanshare/internal/codec"
	"github.com/lanshare/lanshare/internal/fragment"
	"github.com/lanshare/lanshare/internal/logging"
	"github.com/lanshare/lanshare/internal/metrics"
)

const (
	// ReadTimeout bounds each receive so the loop notices cancellation
	ReadTimeout = 100 * time.Millisecond
	// SweepInterval is how often stale partial frames are purged
	SweepInterval = time.Second
	// ReceiveBufferSize is the kernel socket buffer requested for video
	ReceiveBufferSize = 131072
	maxDatagram       = 65536
)

// FrameHandler consumes decoded frames. It runs on the receive goroutine.
type FrameHandler func(codec.Frame)

// Receiver listens for video datagrams and emits completed frames
type Receiver struct {
	conn        *net.UDPConn
	reassembler *fragment.Reassembler
	onFrame     FrameHandler
	metrics     *metrics.Metrics
	received    atomic.Uint64
}

// Listen binds the video socket. addr ":0" picks an ephemeral port.
func Listen(addr string, onFrame FrameHandler, m *metrics.Metrics) (*Receiver, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("invalid video address %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind video socket %s: %w", addr, err)
	}
	if err := conn.SetReadBuffer(ReceiveBufferSize); err != nil {
		log.Printf("[WARN] transport: failed to set read buffer: %v", err)
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if onFrame == nil {
		onFrame = func(codec.Frame) {}
	}
	return &Receiver{
		conn:        conn,
		reassembler: fragment.NewReassembler(fragment.AssemblyTimeout),
		onFrame:     onFrame,
		metrics:     m,
	}, nil
}

// LocalAddr returns the bound address, used for the register message
func (r *Receiver) LocalAddr() *net.UDPAddr {
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// FramesReceived returns the number of frames emitted so far
func (r *Receiver) FramesReceived() uint64 {
	return r.received.Load()
}

// Close closes the socket, which also unblocks Run
func (r *Receiver) Close() error {
	return r.conn.Close()
}

// Run receives datagrams until ctx is cancelled or the socket is closed
func (r *Receiver) Run(ctx context.Context) error {
	log.Printf("[INFO] transport: receiving video on %s", r.conn.LocalAddr())

	buf := make([]byte, maxDatagram)
	lastSweep := time.Now()
	timeouts := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		if time.Since(lastSweep) >= SweepInterval {
			if n := r.reassembler.Sweep(); n > 0 {
				r.metrics.FramesDropped.WithLabelValues(metrics.DropStale).Add(float64(n))
				logging.Debugf("transport: purged %d stale partial frames", n)
			}
			lastSweep = time.Now()
		}

		r.conn.SetReadDeadline(time.Now().Add(ReadTimeout))
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				timeouts++
				if timeouts%50 == 1 {
					logging.Debugf("transport: waiting for video (frames_received=%d)", r.received.Load())
				}
				continue
			}
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			log.Printf("[WARN] transport: video read error: %v", err)
			continue
		}
		timeouts = 0
		r.HandlePacket(buf[:n], addr)
	}
}

// HandlePacket routes one datagram to the chunk or the legacy path
func (r *Receiver) HandlePacket(packet []byte, from *net.UDPAddr) {
	if !fragment.IsChunk(packet) {
		r.deliver(0, packet, from)
		return
	}

	chunk, err := fragment.Parse(packet)
	if err != nil {
		r.metrics.Dropped(metrics.DropMalformed)
		logging.Debugf("transport: dropping chunk from %s: %v", from, err)
		return
	}
	r.metrics.ChunksReceived.Inc()

	data, ok := r.reassembler.Add(chunk)
	if !ok {
		return
	}
	r.deliver(chunk.FrameID, data, from)
}

func (r *Receiver) deliver(frameID uint32, data []byte, from *net.UDPAddr) {
	img, err := codec.Decode(data)
	if err != nil {
		r.metrics.Dropped(metrics.DropDecode)
		logging.Debugf("transport: failed to decode frame %d from %s: %v", frameID, from, err)
		return
	}

	count := r.received.Add(1)
	r.metrics.FramesReceived.Inc()
	if count%100 == 0 {
		log.Printf("[INFO] transport: received %d frames (latest from %s)", count, from)
	}
	r.onFrame(codec.Frame{ID: frameID, Image: img})
}
