// Package session keeps server-side bookkeeping of connected viewers
package session

import (
	"errors"
	"log"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/lanshare/lanshare/internal/control"
)

// ErrUnknownClient is returned for operations on a client id not in the registry
var ErrUnknownClient = errors.New("session: unknown client")

// State is the lifecycle state of a session
type State string

const (
	StateConnected    State = "connected"
	StateRegistered   State = "registered"
	StateDisconnected State = "disconnected"
)

// Session is one viewer connected over the command channel
type Session struct {
	ID          string    `json:"id"` // remote ip:port of the command connection
	IP          string    `json:"ip"`
	VideoPort   int       `json:"video_port,omitempty"`
	Username    string    `json:"username,omitempty"`
	State       State     `json:"state"`
	ConnectedAt time.Time `json:"connected_at"`

	writer *control.Writer
}

// VideoAddr returns the UDP address frames are sent to, or nil before registration
func (s Session) VideoAddr() *net.UDPAddr {
	if s.VideoPort == 0 {
		return nil
	}
	return &net.UDPAddr{IP: net.ParseIP(s.IP), Port: s.VideoPort}
}

// Registry maps client ids to sessions
type Registry struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// ClientID derives the registry key from a remote address
func ClientID(addr net.Addr) string {
	return addr.String()
}

// Add records a freshly accepted connection
func (r *Registry) Add(id string, w *control.Writer) Session {
	ip := id
	if host, _, err := net.SplitHostPort(id); err == nil {
		ip = host
	}

	s := &Session{
		ID:          id,
		IP:          ip,
		State:       StateConnected,
		ConnectedAt: time.Now(),
		writer:      w,
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return *s
}

// Register stores the viewer's video port and username. It returns the
// updated session and whether this was the first registration.
func (r *Registry) Register(id string, videoPort int, username string) (Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false, ErrUnknownClient
	}
	first := s.State != StateRegistered
	s.VideoPort = videoPort
	if username != "" {
		s.Username = username
	}
	s.State = StateRegistered
	return *s, first, nil
}

// Remove deletes a session. It returns true only for the call that
// actually removed it, so disconnect handling runs once.
func (r *Registry) Remove(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, id)
	s.State = StateDisconnected
	return *s, true
}

// Get returns a copy of a session
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// List returns all sessions ordered by connection time
func (r *Registry) List() []Session {
	r.mu.RLock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Count returns the number of sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Registered returns the number of sessions with a known video port
func (r *Registry) Registered() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, s := range r.sessions {
		if s.State == StateRegistered {
			n++
		}
	}
	return n
}

// Broadcast sends msg to every open command connection. Write failures are
// logged; the failing connection is left to its own handler to clean up.
// It returns the number of connections that accepted the message.
func (r *Registry) Broadcast(msg control.Message) int {
	r.mu.RLock()
	targets := make(map[string]*control.Writer, len(r.sessions))
	for id, s := range r.sessions {
		if s.writer != nil {
			targets[id] = s.writer
		}
	}
	r.mu.RUnlock()

	sent := 0
	for id, w := range targets {
		if err := w.Send(msg); err != nil {
			log.Printf("[WARN] session: broadcast %s to %s failed: %v", msg.Type(), id, err)
			continue
		}
		sent++
	}
	return sent
}

// Summary is a short human-readable description of a session
func (s Session) Summary() string {
	who := s.Username
	if who == "" {
		who = "anonymous"
	}
	port := "-"
	if s.VideoPort != 0 {
		port = strconv.Itoa(s.VideoPort)
	}
	return who + "@" + s.IP + " video:" + port + " (" + string(s.State) + ")"
}
