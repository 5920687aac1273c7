// Package server implements the sharing side: it accepts viewer command
// connections, streams the screen to every registered viewer and injects
// the input they send back.
package server

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/lanshare/lanshare/internal/capture"
	"github.com/lanshare/lanshare/internal/control"
	"github.com/lanshare/lanshare/internal/discovery"
	"github.com/lanshare/lanshare/internal/input"
	"github.com/lanshare/lanshare/internal/logging"
	"github.com/lanshare/lanshare/internal/metrics"
	"github.com/lanshare/lanshare/internal/session"
	"github.com/lanshare/lanshare/internal/stream"
	"github.com/lanshare/lanshare/internal/transport"
)

// AcceptTimeout bounds each Accept so the loop notices Stop
const AcceptTimeout = time.Second

// Options configures a Server
type Options struct {
	// CommandAddr is the TCP listen address, e.g. ":9998"
	CommandAddr string
	// Name is shown to viewers in discovery results
	Name string
	// VideoPort is the default viewer video port advertised in announcements
	VideoPort int

	// Announce enables the discovery broadcaster
	Announce       bool
	DiscoveryPort  int
	AnnounceTarget *net.UDPAddr
	AnnounceBindIP string
	InstanceID     string

	Stream  stream.Options
	Handler control.HandlerOptions

	Metrics  *metrics.Metrics
	History  *metrics.History
	Observer Observer
}

// Status is a snapshot of the server for status endpoints and the CLI
type Status struct {
	Name        string    `json:"name"`
	CommandAddr string    `json:"command_addr"`
	Streaming   bool      `json:"streaming"`
	Clients     int       `json:"clients"`
	Registered  int       `json:"registered"`
	FramesSent  uint64    `json:"frames_sent"`
	Announcing  bool      `json:"announcing"`
	Screen      string    `json:"screen"`
	StartedAt   time.Time `json:"started_at"`
}

// Server is a screen-sharing server
type Server struct {
	opts     Options
	source   capture.Source
	injector input.Injector
	observer Observer
	metrics  *metrics.Metrics

	registry  *session.Registry
	sender    *transport.Sender
	streamer  *stream.Streamer
	announcer *discovery.Announcer

	mu        sync.Mutex
	listener  *net.TCPListener
	cancel    context.CancelFunc
	conns     map[string]net.Conn
	startedAt time.Time
	wg        sync.WaitGroup
}

// New creates a server capturing from source and injecting through injector
func New(source capture.Source, injector input.Injector, opts Options) *Server {
	if opts.CommandAddr == "" {
		opts.CommandAddr = ":9998"
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if injector == nil {
		injector = input.LogInjector{}
	}

	s := &Server{
		opts:     opts,
		source:   source,
		injector: injector,
		observer: opts.Observer,
		metrics:  opts.Metrics,
		registry: session.NewRegistry(),
		sender:   transport.NewSender(opts.Metrics),
		conns:    make(map[string]net.Conn),
	}

	streamOpts := opts.Stream
	streamOpts.Metrics = opts.Metrics
	streamOpts.History = opts.History
	streamOpts.OnStop = s.onStreamHalted
	s.streamer = stream.New(source, s.sender, streamOpts)
	return s
}

// Start binds the command port, starts accepting viewers and, if enabled,
// starts announcing on the LAN
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}

	addr, err := net.ResolveTCPAddr("tcp", s.opts.CommandAddr)
	if err != nil {
		return fmt.Errorf("invalid command address %q: %w", s.opts.CommandAddr, err)
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.CommandAddr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.listener = ln
	s.cancel = cancel
	s.startedAt = time.Now()

	s.wg.Add(1)
	go s.acceptLoop(ctx, ln)

	if s.opts.Announce {
		s.announcer = discovery.NewAnnouncer(discovery.Announcement{
			Name:      s.opts.Name,
			Port:      ln.Addr().(*net.TCPAddr).Port,
			VideoPort: s.opts.VideoPort,
			ID:        s.opts.InstanceID,
		}, s.opts.DiscoveryPort, discovery.AnnouncerOptions{
			BindIP: s.opts.AnnounceBindIP,
			Target: s.opts.AnnounceTarget,
		})
		if err := s.announcer.Start(); err != nil {
			log.Printf("[WARN] server: discovery disabled: %v", err)
			s.observer.OnError(err)
			s.announcer = nil
		}
	}

	log.Printf("[INFO] server: listening for viewers on %s", ln.Addr())
	s.observer.OnStatus("server started, waiting for viewers")
	return nil
}

// Stop tells viewers streaming is over, then closes every connection
func (s *Server) Stop() {
	s.mu.Lock()
	ln, cancel, announcer := s.listener, s.cancel, s.announcer
	s.listener, s.cancel, s.announcer = nil, nil, nil
	s.mu.Unlock()

	if ln == nil {
		return
	}

	if announcer != nil {
		announcer.Stop()
	}
	if !s.StopStreaming() {
		s.registry.Broadcast(&control.Stream{State: control.StreamStopped})
	}

	cancel()
	ln.Close()

	s.mu.Lock()
	for _, c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	log.Printf("[INFO] server: stopped")
	s.observer.OnStatus("server stopped")
}

// Addr returns the command listener address, or nil when stopped
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Registry exposes the viewer sessions
func (s *Server) Registry() *session.Registry {
	return s.registry
}

// Sessions returns the connected viewers, oldest first
func (s *Server) Sessions() []session.Session {
	return s.registry.List()
}

// Sender exposes the video sender, mostly for status and tests
func (s *Server) Sender() *transport.Sender {
	return s.sender
}

// IsStreaming reports whether frames are being sent
func (s *Server) IsStreaming() bool {
	return s.streamer.IsRunning()
}

// StartStreaming starts the video loop and tells every viewer. It returns
// false when streaming was already on.
func (s *Server) StartStreaming() (bool, error) {
	started, err := s.streamer.Start()
	if err != nil {
		s.observer.OnError(err)
		return false, fmt.Errorf("failed to start streaming: %w", err)
	}
	if !started {
		return false, nil
	}
	s.registry.Broadcast(&control.Stream{State: control.StreamStarted})
	s.observer.OnStatus("streaming started")
	return true, nil
}

// StopStreaming stops the video loop and tells every viewer. It returns
// false when streaming was already off.
func (s *Server) StopStreaming() bool {
	if !s.streamer.Stop() {
		return false
	}
	s.registry.Broadcast(&control.Stream{State: control.StreamStopped})
	s.observer.OnStatus("streaming stopped")
	return true
}

// SetEncoding retunes JPEG quality and width on the fly
func (s *Server) SetEncoding(quality, width int) {
	s.streamer.SetEncoding(quality, width)
}

// Status returns a snapshot of the server
func (s *Server) Status() Status {
	s.mu.Lock()
	st := Status{
		Name:       s.opts.Name,
		Announcing: s.announcer != nil && s.announcer.Running(),
		StartedAt:  s.startedAt,
	}
	if s.listener != nil {
		st.CommandAddr = s.listener.Addr().String()
	}
	s.mu.Unlock()

	st.Streaming = s.IsStreaming()
	st.Clients = s.registry.Count()
	st.Registered = s.registry.Registered()
	st.FramesSent = s.streamer.FramesSent()
	b := s.geometry()
	st.Screen = fmt.Sprintf("%dx%d+%d+%d", b.Dx(), b.Dy(), b.Min.X, b.Min.Y)
	return st
}

func (s *Server) geometry() image.Rectangle {
	return s.source.Bounds()
}

func (s *Server) acceptLoop(ctx context.Context, ln *net.TCPListener) {
	defer s.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		ln.SetDeadline(time.Now().Add(AcceptTimeout))

		conn, err := ln.Accept()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("[WARN] server: accept failed: %v", err)
			continue
		}

		id := session.ClientID(conn.RemoteAddr())
		if !s.track(ctx, conn, id) {
			return
		}

		s.wg.Add(1)
		go s.handleConn(conn, id)
	}
}

// track records conn so Stop can close it. A connection accepted after
// Stop has begun is closed here instead, since Stop may already have
// walked the connection map.
func (s *Server) track(ctx context.Context, conn net.Conn, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		conn.Close()
		return false
	}
	s.conns[id] = conn
	return true
}

func (s *Server) handleConn(conn net.Conn, id string) {
	defer s.wg.Done()

	sess := s.registry.Add(id, control.NewWriter(conn))
	s.metrics.ConnectedClients.Inc()
	log.Printf("[INFO] server: viewer connected from %s", id)
	s.observer.OnClientConnected(sess)

	handler := control.NewHandler(s.injector, s.geometry, s.opts.Handler)
	reader := control.NewReader(conn)

	for {
		msg, err := reader.Next()
		if err != nil {
			if control.IsDecodeError(err) {
				kind := "invalid"
				if errors.Is(err, control.ErrUnknownType) {
					kind = "unknown_type"
				}
				s.metrics.ProtocolErrors.WithLabelValues(kind).Inc()
				log.Printf("[WARN] server: %s: %v", id, err)
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				log.Printf("[INFO] server: viewer %s closed the connection", id)
			} else {
				log.Printf("[WARN] server: read from %s failed: %v", id, err)
			}
			break
		}

		s.metrics.Commands.WithLabelValues(string(msg.Type())).Inc()
		s.dispatch(id, handler, msg)
	}

	handler.ReleaseAll()
	s.disconnect(id)
	conn.Close()
}

func (s *Server) dispatch(id string, handler *control.Handler, msg control.Message) {
	switch m := msg.(type) {
	case *control.Register:
		s.register(id, m)
	case *control.Stream:
		logging.Debugf("server: ignoring stream %s notification from viewer %s", m.State, id)
	default:
		if err := handler.Execute(msg); err != nil {
			log.Printf("[WARN] server: %s command from %s: %v", msg.Type(), id, err)
		}
	}
}

func (s *Server) register(id string, m *control.Register) {
	sess, first, err := s.registry.Register(id, m.VideoPort, m.Username)
	if err != nil {
		log.Printf("[WARN] server: register from %s: %v", id, err)
		return
	}
	s.sender.AddTarget(id, sess.VideoAddr())
	if first {
		log.Printf("[INFO] server: %s registered video port %d", sess.Summary(), m.VideoPort)
	} else {
		log.Printf("[INFO] server: %s re-registered video port %d", id, m.VideoPort)
	}

	if !s.IsStreaming() {
		log.Printf("[INFO] server: auto-starting streaming for registered viewer")
		if _, err := s.StartStreaming(); err != nil {
			log.Printf("[ERROR] server: %v", err)
		}
	}
}

// disconnect cleans up a viewer exactly once
func (s *Server) disconnect(id string) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()

	sess, ok := s.registry.Remove(id)
	if !ok {
		return
	}
	s.sender.RemoveTarget(id)
	s.metrics.ConnectedClients.Dec()
	log.Printf("[INFO] server: viewer %s disconnected", id)
	s.observer.OnClientDisconnected(sess)
}

func (s *Server) onStreamHalted(err error) {
	s.registry.Broadcast(&control.Stream{State: control.StreamStopped})
	s.observer.OnError(err)
	s.observer.OnStatus("streaming halted")
}
