// Package transport moves encoded frames over UDP: the Sender unicasts
// chunk datagrams to every registered viewer and the Receiver rebuilds
// frames on the viewer side.
package transport

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/lanshare/lanshare/internal/fragment"
	"github.com/lanshare/lanshare/internal/metrics"
)

// ErrSocketClosed is returned by SendFrame when the socket was closed or
// invalidated underneath the sender. The streaming loop must stop on it.
var ErrSocketClosed = errors.New("transport: video socket closed")

// Sender owns the outgoing video socket and the list of receivers
type Sender struct {
	mu      sync.RWMutex
	conn    *net.UDPConn
	targets map[string]*net.UDPAddr
	metrics *metrics.Metrics
}

// NewSender creates a sender; call Open before sending
func NewSender(m *metrics.Metrics) *Sender {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Sender{
		targets: make(map[string]*net.UDPAddr),
		metrics: m,
	}
}

// Open creates the UDP socket. Calling Open on an open sender is a no-op.
func (s *Sender) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return fmt.Errorf("failed to open video socket: %w", err)
	}
	s.conn = conn
	return nil
}

// Close closes the socket. Targets are kept so a later Open resumes sending.
func (s *Sender) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// IsOpen reports whether the socket is usable
func (s *Sender) IsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn != nil
}

// AddTarget registers or updates the video address of a client
func (s *Sender) AddTarget(clientID string, addr *net.UDPAddr) {
	s.mu.Lock()
	s.targets[clientID] = addr
	s.mu.Unlock()
}

// RemoveTarget unregisters a client; it reports whether it was present
func (s *Sender) RemoveTarget(clientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.targets[clientID]
	delete(s.targets, clientID)
	return ok
}

// Targets returns a snapshot of the registered addresses
func (s *Sender) Targets() map[string]*net.UDPAddr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*net.UDPAddr, len(s.targets))
	for id, addr := range s.targets {
		out[id] = addr
	}
	return out
}

// TargetCount returns the number of registered receivers
func (s *Sender) TargetCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.targets)
}

// SendFrame sends every chunk to every target, one datagram per chunk per
// target. A failure towards one target is logged and the next target is
// tried. It returns the number of targets that received the full frame.
func (s *Sender) SendFrame(chunks []fragment.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	packets := make([][]byte, len(chunks))
	for i, c := range chunks {
		packets[i] = c.Marshal()
	}

	s.mu.RLock()
	conn := s.conn
	targets := make(map[string]*net.UDPAddr, len(s.targets))
	for id, addr := range s.targets {
		targets[id] = addr
	}
	s.mu.RUnlock()

	if conn == nil {
		return 0, ErrSocketClosed
	}

	delivered := 0
	for clientID, addr := range targets {
		ok := true
		for _, pkt := range packets {
			n, err := conn.WriteToUDP(pkt, addr)
			if err != nil {
				s.metrics.SendErrors.Inc()
				if errors.Is(err, net.ErrClosed) {
					log.Printf("[ERROR] transport: video socket invalidated while sending to %s, stopping", addr)
					s.invalidate(conn)
					return delivered, ErrSocketClosed
				}
				log.Printf("[WARN] transport: send to %s (%s) failed: %v", clientID, addr, err)
				ok = false
				break
			}
			s.metrics.ChunksSent.Inc()
			s.metrics.BytesSent.Add(float64(n))
		}
		if ok {
			delivered++
			s.metrics.FramesSent.Inc()
		}
	}
	return delivered, nil
}

// invalidate clears the socket handle if it is still the one that failed
func (s *Sender) invalidate(conn *net.UDPConn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	conn.Close()
}
