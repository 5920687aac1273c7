// Package client is the viewer side: it receives a server's video stream
// and forwards local mouse and keyboard input over the command channel.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lanshare/lanshare/internal/codec"
	"github.com/lanshare/lanshare/internal/control"
	"github.com/lanshare/lanshare/internal/input"
	"github.com/lanshare/lanshare/internal/logging"
	"github.com/lanshare/lanshare/internal/metrics"
	"github.com/lanshare/lanshare/internal/transport"
)

const (
	// DialTimeout bounds the command connection setup
	DialTimeout = 5 * time.Second
	// DefaultCommandPort is used when the server address has no port
	DefaultCommandPort = 9998
)

// ErrNotConnected is returned when sending on a closed client
var ErrNotConnected = errors.New("client: not connected")

// Observer receives viewer events. OnFrame runs on the receive goroutine.
type Observer interface {
	OnFrame(f codec.Frame)
	OnStreamState(state control.StreamState)
	// OnDisconnected fires once; err is nil after a local Close
	OnDisconnected(err error)
}

// Options configures a Client
type Options struct {
	// VideoAddr is the local UDP address for video, "0.0.0.0:0" by default
	VideoAddr   string
	Username    string
	DialTimeout time.Duration
	Metrics     *metrics.Metrics
	Observer    Observer
}

// Client is a connection to one screen-sharing server
type Client struct {
	server   string
	observer Observer

	conn     net.Conn
	writer   *control.Writer
	receiver *transport.Receiver

	latest    atomic.Pointer[codec.Frame]
	state     atomic.Value // control.StreamState
	connected atomic.Bool

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	doneOnce sync.Once
}

// WithDefaultPort appends port to addr when it has none
func WithDefaultPort(addr string, port int) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(port))
}

// Connect binds a local video socket, opens the command connection to
// server and registers the video port
func Connect(ctx context.Context, server string, opts Options) (*Client, error) {
	if opts.VideoAddr == "" {
		opts.VideoAddr = "0.0.0.0:0"
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DialTimeout
	}
	server = WithDefaultPort(server, DefaultCommandPort)

	c := &Client{server: server, observer: opts.Observer}
	c.state.Store(control.StreamStopped)

	receiver, err := transport.Listen(opts.VideoAddr, c.onFrame, opts.Metrics)
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", server)
	if err != nil {
		receiver.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", server, err)
	}

	c.conn = conn
	c.writer = control.NewWriter(conn)
	c.receiver = receiver

	videoPort := receiver.LocalAddr().Port
	if err := c.writer.Send(&control.Register{VideoPort: videoPort, Username: opts.Username}); err != nil {
		conn.Close()
		receiver.Close()
		return nil, fmt.Errorf("failed to register with %s: %w", server, err)
	}
	c.connected.Store(true)
	log.Printf("[INFO] client: connected to %s, receiving video on UDP %d", server, videoPort)

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		receiver.Run(runCtx)
	}()
	go c.controlLoop()

	return c, nil
}

// Close disconnects from the server and waits for the receive goroutines.
// It must not be called from an Observer callback.
func (c *Client) Close() error {
	c.finish(nil)
	c.wg.Wait()
	return nil
}

// Server returns the server command address
func (c *Client) Server() string {
	return c.server
}

// Connected reports whether the command connection is up
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// VideoPort returns the local UDP port frames arrive on
func (c *Client) VideoPort() int {
	return c.receiver.LocalAddr().Port
}

// LatestFrame returns the most recent decoded frame
func (c *Client) LatestFrame() (codec.Frame, bool) {
	f := c.latest.Load()
	if f == nil {
		return codec.Frame{}, false
	}
	return *f, true
}

// FramesReceived returns the number of decoded frames
func (c *Client) FramesReceived() uint64 {
	return c.receiver.FramesReceived()
}

// StreamState returns the last state the server announced
func (c *Client) StreamState() control.StreamState {
	return c.state.Load().(control.StreamState)
}

// Send writes one control message
func (c *Client) Send(msg control.Message) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	logging.InputDebugf("send %s %+v", msg.Type(), msg)
	if err := c.writer.Send(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type(), err)
	}
	return nil
}

// SendMouseMove sends a pointer position given in viewer widget pixels.
// Nothing is sent while the widget has no size.
func (c *Client) SendMouseMove(x, y, width, height float64) error {
	if width == 0 || height == 0 {
		return nil
	}
	return c.Send(&control.Mouse{Action: control.MouseMove, X: x / width, Y: y / height, HasPos: true})
}

// SendMouseClick sends a button press or release at a widget position
func (c *Client) SendMouseClick(x, y, width, height float64, button input.Button, action input.Action) error {
	if width == 0 || height == 0 {
		return nil
	}
	act := control.MousePress
	if action == input.Release {
		act = control.MouseRelease
	}
	return c.Send(&control.Mouse{Action: act, Button: button, X: x / width, Y: y / height, HasPos: true})
}

// SendMouseScroll sends a wheel delta
func (c *Client) SendMouseScroll(dx, dy int) error {
	return c.Send(&control.Mouse{Action: control.MouseScroll, DX: dx, DY: dy})
}

// SendKey presses or releases a single key
func (c *Client) SendKey(name string, action input.Action) error {
	act := control.KeyPress
	if action == input.Release {
		act = control.KeyRelease
	}
	return c.Send(&control.Key{Action: act, Key: name})
}

// SendCombo sends modifiers and main keys as one atomic shortcut, e.g. ("ctrl", "c")
func (c *Client) SendCombo(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.Send(&control.Key{Action: control.KeyCombo, Keys: keys})
}

func (c *Client) onFrame(f codec.Frame) {
	c.latest.Store(&f)
	if c.observer != nil {
		c.observer.OnFrame(f)
	}
}

func (c *Client) controlLoop() {
	defer c.wg.Done()

	reader := control.NewReader(c.conn)
	for {
		msg, err := reader.Next()
		if err != nil {
			if control.IsDecodeError(err) {
				log.Printf("[WARN] client: %v", err)
				continue
			}
			if errors.Is(err, io.EOF) {
				log.Printf("[INFO] client: server %s closed the connection", c.server)
				c.finish(err)
			} else if c.connected.Load() {
				log.Printf("[WARN] client: control read from %s failed: %v", c.server, err)
				c.finish(err)
			}
			return
		}

		switch m := msg.(type) {
		case *control.Stream:
			c.state.Store(m.State)
			log.Printf("[INFO] client: server %s streaming %s", c.server, m.State)
			if c.observer != nil {
				c.observer.OnStreamState(m.State)
			}
		default:
			logging.Debugf("client: ignoring %s message from server", msg.Type())
		}
	}
}

// finish tears the connection down exactly once
func (c *Client) finish(err error) {
	c.doneOnce.Do(func() {
		c.connected.Store(false)
		if c.cancel != nil {
			c.cancel()
		}
		c.conn.Close()
		c.receiver.Close()
		if c.observer != nil {
			c.observer.OnDisconnected(err)
		}
	})
}
