package stream

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanshare/lanshare/internal/capture"
	"github.com/lanshare/lanshare/internal/codec"
	"github.com/lanshare/lanshare/internal/metrics"
	"github.com/lanshare/lanshare/internal/transport"
)

type failingSource struct{}

func (failingSource) Capture() (image.Image, error) { return nil, errors.New("no display") }
func (failingSource) Bounds() image.Rectangle       { return image.Rect(0, 0, 0, 0) }

func listen(t *testing.T) (*transport.Receiver, <-chan codec.Frame) {
	t.Helper()
	frames := make(chan codec.Frame, 64)
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

func TestStreamerDeliversFrames(t *testing.T) {
	r, frames := listen(t)

	sender := transport.NewSender(nil)
	sender.AddTarget("viewer", r.LocalAddr())

	s := New(capture.NewPatternSource(320, 240), sender, Options{Quality: 50, Width: 160})
	started, err := s.Start()
	require.NoError(t, err)
	require.True(t, started)
	defer s.Stop()

	again, err := s.Start()
	require.NoError(t, err)
	assert.False(t, again, "second Start must be a no-op")

	var first, second codec.Frame
	select {
	case first = <-frames:
	case <-time.After(3 * time.Second):
		t.Fatal("no frame received")
	}
	select {
	case second = <-frames:
	case <-time.After(3 * time.Second):
		t.Fatal("no second frame received")
	}

	assert.Equal(t, 160, first.Image.Bounds().Dx())
	assert.Equal(t, 120, first.Image.Bounds().Dy())
	assert.Greater(t, second.ID, first.ID)
}

func TestStreamerStop(t *testing.T) {
	sender := transport.NewSender(nil)
	s := New(capture.NewPatternSource(64, 64), sender, Options{})

	assert.False(t, s.Stop())
	_, err := s.Start()
	require.NoError(t, err)
	assert.True(t, s.IsRunning())
	assert.True(t, sender.IsOpen())

	assert.True(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.False(t, sender.IsOpen())
	assert.False(t, s.Stop())
}

func TestTickWithoutTargetsSkipsCapture(t *testing.T) {
	m := metrics.New(nil)
	sender := transport.NewSender(nil)
	s := New(failingSource{}, sender, Options{Metrics: m})

	require.NoError(t, s.Tick())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.FramesDropped.WithLabelValues(metrics.DropCapture)))
}

func TestTickCaptureFailureContinues(t *testing.T) {
	m := metrics.New(nil)
	sender := transport.NewSender(nil)
	require.NoError(t, sender.Open())
	defer sender.Close()
	sender.AddTarget("viewer", nil)

	s := New(failingSource{}, sender, Options{Metrics: m})
	require.NoError(t, s.Tick())
	require.NoError(t, s.Tick())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesDropped.WithLabelValues(metrics.DropCapture)))
}

func TestClosedSocketHaltsLoop(t *testing.T) {
	r, _ := listen(t)
	sender := transport.NewSender(nil)
	sender.AddTarget("viewer", r.LocalAddr())

	stopped := make(chan error, 1)
	s := New(capture.NewPatternSource(64, 64), sender, Options{
		OnStop: func(err error) { stopped <- err },
	})
	_, err := s.Start()
	require.NoError(t, err)

	// Closing the socket underneath the loop simulates the OS invalidating it.
	sender.Close()

	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, transport.ErrSocketClosed)
	case <-time.After(3 * time.Second):
		t.Fatal("loop did not halt")
	}
	assert.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 10*time.Millisecond)
}

func TestHistorySampled(t *testing.T) {
	r, _ := listen(t)
	sender := transport.NewSender(nil)
	sender.AddTarget("viewer", r.LocalAddr())

	h := metrics.NewHistory(10)
	s := New(capture.NewPatternSource(64, 64), sender, Options{History: h})
	_, err := s.Start()
	require.NoError(t, err)
	defer s.Stop()

	require.Eventually(t, func() bool {
		_, ok := h.Latest()
		return ok
	}, 3*time.Second, 50*time.Millisecond)

	latest, _ := h.Latest()
	assert.Equal(t, 1, latest.Clients)
	assert.Positive(t, latest.FramesSent)
}

func TestOversizeFrameIsSentNotDropped(t *testing.T) {
	r, frames := listen(t)
	m := metrics.New(nil)
	sender := transport.NewSender(nil)
	require.NoError(t, sender.Open())
	defer sender.Close()
	sender.AddTarget("viewer", r.LocalAddr())

	s := New(capture.NewPatternSource(320, 240), sender, Options{Quality: 50, Metrics: m})
	s.encoder.MaxBytes = 16

	require.NoError(t, s.Tick())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OversizeFrames))
	assert.Equal(t, 0, testutil.CollectAndCount(m.FramesDropped))
	assert.Equal(t, uint64(1), s.FramesSent())

	select {
	case f := <-frames:
		assert.Equal(t, codec.MinWidth, f.Image.Bounds().Dx())
	case <-time.After(3 * time.Second):
		t.Fatal("oversize frame was not delivered")
	}
}

func TestClosedSocketReleasesLoopContext(t *testing.T) {
	r, _ := listen(t)
	sender := transport.NewSender(nil)
	sender.AddTarget("viewer", r.LocalAddr())

	stopped := make(chan error, 1)
	s := New(capture.NewPatternSource(64, 64), sender, Options{
		OnStop: func(err error) { stopped <- err },
	})
	_, err := s.Start()
	require.NoError(t, err)

	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	sender.Close()
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("loop did not halt")
	}
	<-done

	s.mu.Lock()
	assert.Nil(t, s.cancel)
	s.mu.Unlock()

	// A later Start gets a fresh loop.
	restarted, err := s.Start()
	require.NoError(t, err)
	assert.True(t, restarted)
	assert.True(t, s.Stop())
}
