// Package discovery finds lanshare servers on the LAN: servers broadcast a
// small JSON announcement every few seconds, viewers listen for a bounded
// window and collect one entry per server ip.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/lanshare/lanshare/internal/logging"
	"github.com/lanshare/lanshare/internal/metrics"
)

const (
	// ScanDuration is the default listening window
	ScanDuration = 3 * time.Second
	// ScanReadTimeout keeps the listen loop responsive to Stop
	ScanReadTimeout = 500 * time.Millisecond
)

// ErrScanning is returned when a scan is started while one is running
var ErrScanning = errors.New("discovery: scan already running")

// ScanCallback receives scan events
type ScanCallback interface {
	OnServerFound(a Announcement)
	OnScanFinished(found []Announcement)
}

// ScannerOptions configures a Scanner
type ScannerOptions struct {
	Port int
	// SelfID filters out announcements from this process
	SelfID string
	// DefaultCommandPort and DefaultVideoPort fill announcements that omit them
	DefaultCommandPort int
	DefaultVideoPort   int
	ReadTimeout        time.Duration
	Metrics            *metrics.Metrics
}

// Scanner listens for announcements
type Scanner struct {
	opts     ScannerOptions
	callback ScanCallback

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	conn    net.PacketConn
	found   map[string]Announcement
	order   []string
}

// NewScanner creates a scanner; callback may be nil
func NewScanner(opts ScannerOptions, callback ScanCallback) *Scanner {
	if opts.Port <= 0 {
		opts.Port = DefaultPort
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = ScanReadTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	return &Scanner{
		opts:     opts,
		callback: callback,
		found:    make(map[string]Announcement),
	}
}

// Start runs Scan in the background
func (s *Scanner) Start(duration time.Duration) error {
	ctx, err := s.begin(context.Background())
	if err != nil {
		return err
	}
	go s.run(ctx, duration)
	return nil
}

// Scan listens for duration (ScanDuration if zero) and returns the servers
// found, one per ip. It returns early when ctx is done or Stop is called.
func (s *Scanner) Scan(ctx context.Context, duration time.Duration) ([]Announcement, error) {
	ctx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, duration)
}

// Stop ends a running scan; the finished callback still fires once
func (s *Scanner) Stop() {
	s.mu.Lock()
	cancel, conn := s.cancel, s.conn
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
}

// Running reports whether a scan is in progress
func (s *Scanner) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Found returns the servers found by the current or last scan, in discovery order
func (s *Scanner) Found() []Announcement {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Announcement, 0, len(s.order))
	for _, ip := range s.order {
		out = append(out, s.found[ip])
	}
	return out
}

func (s *Scanner) begin(parent context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, ErrScanning
	}
	ctx, cancel := context.WithCancel(parent)
	s.running = true
	s.cancel = cancel
	s.found = make(map[string]Announcement)
	s.order = nil
	return ctx, nil
}

func (s *Scanner) run(ctx context.Context, duration time.Duration) ([]Announcement, error) {
	if duration <= 0 {
		duration = ScanDuration
	}
	defer s.finish()

	lc := net.ListenConfig{Control: reuseControl}
	conn, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", s.opts.Port))
	if err != nil {
		log.Printf("[WARN] discovery: failed to bind UDP port %d: %v", s.opts.Port, err)
		return nil, fmt.Errorf("failed to bind discovery port %d: %w", s.opts.Port, err)
	}
	defer conn.Close()

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	log.Printf("[INFO] discovery: scanning UDP port %d for %v", s.opts.Port, duration)

	deadline := time.Now().Add(duration)
	buf := make([]byte, MaxMessageSize)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}

		wait := s.opts.ReadTimeout
		if left := time.Until(deadline); left < wait {
			wait = left
		}
		conn.SetReadDeadline(time.Now().Add(wait))

		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			logging.Debugf("discovery: read error: %v", err)
			continue
		}

		udpAddr, _ := addr.(*net.UDPAddr)
		s.handle(buf[:n], udpAddr)
	}

	return s.Found(), nil
}

// handle records one datagram and reports whether it was a new server
func (s *Scanner) handle(data []byte, from *net.UDPAddr) bool {
	a, err := ParseAnnouncement(data, from, s.opts.DefaultCommandPort, s.opts.DefaultVideoPort)
	if err != nil {
		logging.Debugf("discovery: ignoring datagram from %v: %v", from, err)
		return false
	}
	if s.opts.SelfID != "" && a.ID == s.opts.SelfID {
		return false
	}

	s.mu.Lock()
	if _, seen := s.found[a.IP]; seen {
		s.mu.Unlock()
		return false
	}
	s.found[a.IP] = a
	s.order = append(s.order, a.IP)
	s.mu.Unlock()

	s.opts.Metrics.ServersFound.Inc()
	log.Printf("[INFO] discovery: found server %q at %s (video %d)", a.Name, a.CommandAddr(), a.VideoPort)
	if s.callback != nil {
		s.callback.OnServerFound(a)
	}
	return true
}

func (s *Scanner) finish() {
	s.mu.Lock()
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.conn = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	found := s.Found()
	log.Printf("[INFO] discovery: scan finished, %d server(s)", len(found))
	if s.callback != nil {
		s.callback.OnScanFinished(found)
	}
}
