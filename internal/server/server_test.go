package server

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanshare/lanshare/internal/capture"
	"github.com/lanshare/lanshare/internal/codec"
	"github.com/lanshare/lanshare/internal/control"
	"github.com/lanshare/lanshare/internal/input"
	"github.com/lanshare/lanshare/internal/session"
	"github.com/lanshare/lanshare/internal/transport"
)

type recordingObserver struct {
	mu           sync.Mutex
	connected    int
	disconnected int
	statuses     []string
}

func (o *recordingObserver) OnClientConnected(session.Session) {
	o.mu.Lock()
	o.connected++
	o.mu.Unlock()
}

func (o *recordingObserver) OnClientDisconnected(session.Session) {
	o.mu.Lock()
	o.disconnected++
	o.mu.Unlock()
}

func (o *recordingObserver) OnStatus(msg string) {
	o.mu.Lock()
	o.statuses = append(o.statuses, msg)
	o.mu.Unlock()
}

func (o *recordingObserver) OnError(error) {}

func (o *recordingObserver) count(status string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, s := range o.statuses {
		if s == status {
			n++
		}
	}
	return n
}

func (o *recordingObserver) disconnects() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.disconnected
}

func startServer(t *testing.T, rec *input.Recorder) (*Server, *recordingObserver) {
	t.Helper()
	obs := &recordingObserver{}
	s := New(capture.NewPatternSource(320, 200), rec, Options{
		CommandAddr: "127.0.0.1:0",
		Name:        "test",
		Handler:     control.HandlerOptions{TapDelay: -1},
		Observer:    obs,
	})
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)
	return s, obs
}

type viewerConn struct {
	conn  net.Conn
	lines *bufio.Reader
	w     *control.Writer
}

func dial(t *testing.T, s *Server) *viewerConn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", s.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &viewerConn{conn: conn, lines: bufio.NewReader(conn), w: control.NewWriter(conn)}
}

func (v *viewerConn) expectLine(t *testing.T, contains string) {
	t.Helper()
	v.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		line, err := v.lines.ReadString('\n')
		require.NoError(t, err)
		if strings.Contains(line, contains) {
			return
		}
	}
}

func listenVideo(t *testing.T) (*transport.Receiver, <-chan codec.Frame) {
	t.Helper()
	frames := make(chan codec.Frame, 16)
	r, err := transport.Listen("127.0.0.1:0", func(f codec.Frame) {
		select {
		case frames <- f:
		default:
		}
	}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		r.Close()
		<-done
	})
	return r, frames
}

func TestRegistrationStartsStreamingOnce(t *testing.T) {
	s, obs := startServer(t, &input.Recorder{})
	assert.False(t, s.IsStreaming())

	r, frames := listenVideo(t)
	v := dial(t, s)
	require.NoError(t, v.w.Send(&control.Register{VideoPort: r.LocalAddr().Port, Username: "ana"}))

	v.expectLine(t, `"state":"started"`)
	assert.True(t, s.IsStreaming())

	select {
	case f := <-frames:
		assert.Equal(t, 320, f.Image.Bounds().Dx())
	case <-time.After(3 * time.Second):
		t.Fatal("no video frame after registration")
	}

	require.NoError(t, v.w.Send(&control.Register{VideoPort: r.LocalAddr().Port}))
	v2 := dial(t, s)
	require.NoError(t, v2.w.Send(&control.Register{VideoPort: r.LocalAddr().Port}))

	assert.Eventually(t, func() bool { return s.Registry().Registered() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, obs.count("streaming started"))

	sess := s.Registry().List()[0]
	assert.Equal(t, "ana", sess.Username)
}

func TestDisconnectCleansUpOnce(t *testing.T) {
	s, obs := startServer(t, &input.Recorder{})
	r, _ := listenVideo(t)

	v := dial(t, s)
	require.NoError(t, v.w.Send(&control.Register{VideoPort: r.LocalAddr().Port}))
	require.Eventually(t, func() bool { return s.Sender().TargetCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	v.conn.Close()

	require.Eventually(t, func() bool {
		return s.Registry().Count() == 0 && s.Sender().TargetCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, obs.disconnects())
}

func TestInputDispatchAndBadLines(t *testing.T) {
	rec := &input.Recorder{}
	s, _ := startServer(t, rec)
	v := dial(t, s)

	_, err := v.conn.Write([]byte("{oops}\n{\"type\":\"teleport\"}\n"))
	require.NoError(t, err)
	require.NoError(t, v.w.Send(&control.Mouse{Action: control.MouseMove, X: 0.5, Y: 0.5, HasPos: true}))
	require.NoError(t, v.w.Send(&control.Key{Action: control.KeyCombo, Keys: []string{"ctrl", "v"}}))

	want := []string{
		"move(160,100)",
		"key(ctrl,press)", "key(v,press)", "key(v,release)", "key(ctrl,release)",
	}
	assert.Eventually(t, func() bool { return len(rec.Strings()) == len(want) }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, want, rec.Strings())
	assert.Equal(t, 1, s.Registry().Count())
}

func TestDisconnectReleasesHeldModifiers(t *testing.T) {
	rec := &input.Recorder{}
	s, _ := startServer(t, rec)
	v := dial(t, s)

	require.NoError(t, v.w.Send(&control.Key{Action: control.KeyPress, Key: "shift"}))
	require.Eventually(t, func() bool { return len(rec.Strings()) == 1 }, 2*time.Second, 10*time.Millisecond)
	v.conn.Close()

	assert.Eventually(t, func() bool {
		got := rec.Strings()
		return len(got) == 2 && got[1] == "key(shift,release)"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopBroadcastsStopped(t *testing.T) {
	s, _ := startServer(t, &input.Recorder{})
	r, _ := listenVideo(t)

	v := dial(t, s)
	require.NoError(t, v.w.Send(&control.Register{VideoPort: r.LocalAddr().Port}))
	v.expectLine(t, `"state":"started"`)

	s.Stop()
	v.expectLine(t, `"state":"stopped"`)
	assert.False(t, s.IsStreaming())
	assert.Nil(t, s.Addr())
}

func TestConnectionAcceptedDuringStopIsClosed(t *testing.T) {
	s, _ := startServer(t, &input.Recorder{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	local, remote := net.Pipe()
	defer remote.Close()
	assert.False(t, s.track(ctx, local, "late:1"))

	remote.SetReadDeadline(time.Now().Add(time.Second))
	_, err := remote.Read(make([]byte, 1))
	assert.Error(t, err)

	s.mu.Lock()
	_, tracked := s.conns["late:1"]
	s.mu.Unlock()
	assert.False(t, tracked)

	live, other := net.Pipe()
	defer other.Close()
	assert.True(t, s.track(context.Background(), live, "live:1"))
	s.mu.Lock()
	delete(s.conns, "live:1")
	s.mu.Unlock()
	live.Close()
}

func TestSessionsListsRegisteredViewers(t *testing.T) {
	s, _ := startServer(t, &input.Recorder{})
	r, _ := listenVideo(t)

	v := dial(t, s)
	require.NoError(t, v.w.Send(&control.Register{VideoPort: r.LocalAddr().Port, Username: "ana"}))
	v.expectLine(t, `"state":"started"`)

	sessions := s.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "ana", sessions[0].Username)
	assert.Equal(t, session.StateRegistered, sessions[0].State)
}
