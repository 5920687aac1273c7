package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/lanshare/lanshare/internal/logging"
)

const (
	// DefaultPort is the default UDP port for discovery broadcasts
	DefaultPort = 9997
	// BroadcastInterval is how often a server announces itself
	BroadcastInterval = 2 * time.Second
)

// AnnouncerOptions configures an Announcer
type AnnouncerOptions struct {
	// BindIP is the local interface the send socket binds to; LocalIP() if empty
	BindIP string
	// Target overrides the broadcast destination (255.255.255.255:port by default)
	Target   *net.UDPAddr
	Interval time.Duration
}

// Announcer periodically broadcasts a server's announcement
type Announcer struct {
	msg      Announcement
	port     int
	bindIP   string
	target   *net.UDPAddr
	interval time.Duration

	mu     sync.Mutex
	conn   *net.UDPConn
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAnnouncer creates an announcer for msg on the given discovery port.
// An empty msg.IP is filled with the bound interface address.
func NewAnnouncer(msg Announcement, port int, opts AnnouncerOptions) *Announcer {
	if port <= 0 {
		port = DefaultPort
	}
	if opts.Interval <= 0 {
		opts.Interval = BroadcastInterval
	}
	return &Announcer{
		msg:      msg,
		port:     port,
		bindIP:   opts.BindIP,
		target:   opts.Target,
		interval: opts.Interval,
	}
}

// Start binds the send socket and starts broadcasting. Calling Start on a
// running announcer is a no-op.
func (a *Announcer) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn != nil {
		return nil
	}

	bindIP := a.bindIP
	if bindIP == "" {
		bindIP = LocalIP()
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP(bindIP), Port: 0})
	if err != nil {
		log.Printf("[WARN] discovery: could not bind announcer to %s, using any interface: %v", bindIP, err)
		conn, err = net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
		if err != nil {
			return fmt.Errorf("failed to open discovery socket: %w", err)
		}
	}

	if a.msg.IP == "" {
		a.msg.IP = bindIP
	}
	target := a.target
	if target == nil {
		target = &net.UDPAddr{IP: net.IPv4bcast, Port: a.port}
	}
	data, err := a.msg.Marshal()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to encode announcement: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.conn = conn
	a.cancel = cancel

	a.wg.Add(1)
	go a.loop(ctx, conn, target, data)

	log.Printf("[INFO] discovery: announcing %q (%s, command %d, video %d) to %s every %v",
		a.msg.Name, a.msg.IP, a.msg.Port, a.msg.VideoPort, target, a.interval)
	return nil
}

// Stop ends broadcasting and closes the socket
func (a *Announcer) Stop() {
	a.mu.Lock()
	conn, cancel := a.conn, a.cancel
	a.conn, a.cancel = nil, nil
	a.mu.Unlock()

	if conn == nil {
		return
	}
	cancel()
	conn.Close()
	a.wg.Wait()
	log.Printf("[INFO] discovery: announcer stopped")
}

// Running reports whether the announcer is broadcasting
func (a *Announcer) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}

// Announcement returns the message being broadcast
func (a *Announcer) Announcement() Announcement {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.msg
}

func (a *Announcer) loop(ctx context.Context, conn *net.UDPConn, target *net.UDPAddr, data []byte) {
	defer a.wg.Done()

	// Broadcast immediately on startup
	a.send(ctx, conn, target, data)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.send(ctx, conn, target, data)
		}
	}
}

func (a *Announcer) send(ctx context.Context, conn *net.UDPConn, target *net.UDPAddr, data []byte) {
	if _, err := conn.WriteToUDP(data, target); err != nil {
		// Broadcast failures are common on some networks, keep them quiet
		if ctx.Err() == nil {
			logging.Debugf("discovery: broadcast failed: %v", err)
		}
	}
}
