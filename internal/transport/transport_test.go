package transport

import (
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanshare/lanshare/internal/codec"
	"github.com/lanshare/lanshare/internal/fragment"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func startReceiver(t *testing.T) (*Receiver, <-chan codec.Frame) {
	t.Helper()
	frames := make(chan codec.Frame, 8)
	r, err := Listen("127.0.0.1:0", func(f codec.Frame) { frames <- f }, nil)
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

func waitFrame(t *testing.T, frames <-chan codec.Frame) codec.Frame {
	t.Helper()
	select {
	case f := <-frames:
		return f
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for frame")
		return codec.Frame{}
	}
}

func TestEndToEndShuffledChunks(t *testing.T) {
	r, frames := startReceiver(t)

	s := NewSender(nil)
	require.NoError(t, s.Open())
	defer s.Close()
	s.AddTarget("viewer", r.LocalAddr())

	want := color.RGBA{R: 30, G: 160, B: 220, A: 255}
	data, err := codec.NewEncoder(80, 0).Encode(solid(64, 64, want))
	require.NoError(t, err)

	chunks, err := fragment.Split(7, data, 1000)
	require.NoError(t, err)
	rand.New(rand.NewSource(1)).Shuffle(len(chunks), func(i, j int) { chunks[i], chunks[j] = chunks[j], chunks[i] })

	delivered, err := s.SendFrame(chunks)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	f := waitFrame(t, frames)
	assert.Equal(t, uint32(7), f.ID)
	require.Equal(t, 64, f.Image.Bounds().Dx())

	cr, cg, cb, _ := f.Image.At(10, 50).RGBA()
	assert.InDelta(t, int(want.R), int(cr>>8), 6)
	assert.InDelta(t, int(want.G), int(cg>>8), 6)
	assert.InDelta(t, int(want.B), int(cb>>8), 6)
	assert.Equal(t, uint64(1), r.FramesReceived())
}

func TestSendToMultipleTargets(t *testing.T) {
	r1, frames1 := startReceiver(t)
	r2, frames2 := startReceiver(t)

	s := NewSender(nil)
	require.NoError(t, s.Open())
	defer s.Close()
	s.AddTarget("a", r1.LocalAddr())
	s.AddTarget("b", r2.LocalAddr())
	assert.Equal(t, 2, s.TargetCount())

	data, err := codec.NewEncoder(60, 0).Encode(solid(32, 32, color.RGBA{A: 255}))
	require.NoError(t, err)
	chunks, err := fragment.Split(1, data, 256)
	require.NoError(t, err)

	delivered, err := s.SendFrame(chunks)
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
	waitFrame(t, frames1)
	waitFrame(t, frames2)

	assert.True(t, s.RemoveTarget("a"))
	assert.False(t, s.RemoveTarget("a"))
	_, ok := s.Targets()["b"]
	assert.True(t, ok)
}

func TestSendAfterCloseIsFatal(t *testing.T) {
	s := NewSender(nil)
	require.NoError(t, s.Open())
	s.AddTarget("x", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9})
	require.NoError(t, s.Close())
	assert.False(t, s.IsOpen())

	_, err := s.SendFrame([]fragment.Chunk{{FrameID: 1, Index: 0, Count: 1, Payload: []byte("x")}})
	assert.ErrorIs(t, err, ErrSocketClosed)
}

func TestHandlePacketLegacyAndMalformed(t *testing.T) {
	var got []codec.Frame
	r, err := Listen("127.0.0.1:0", func(f codec.Frame) { got = append(got, f) }, nil)
	require.NoError(t, err)
	defer r.Close()

	data, err := codec.NewEncoder(70, 0).Encode(solid(16, 16, color.RGBA{R: 255, A: 255}))
	require.NoError(t, err)

	r.HandlePacket([]byte(base64.StdEncoding.EncodeToString(data)), nil)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(0), got[0].ID)

	r.HandlePacket([]byte("FRAME:1:0"), nil)
	r.HandlePacket([]byte("FRAME:2:0:1:not-a-jpeg"), nil)
	r.HandlePacket([]byte("START"), nil)
	assert.Len(t, got, 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	r, err := Listen("127.0.0.1:0", nil, nil)
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not observe cancellation")
	}
}
