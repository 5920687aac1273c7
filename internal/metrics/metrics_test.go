package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FramesSent.Inc()
	m.Dropped(DropStale)
	m.Dropped(DropStale)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesSent))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesDropped.WithLabelValues(DropStale)))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["lanshare_video_frames_sent_total"])
	assert.True(t, names["lanshare_video_frames_dropped_total"])
}

func TestNewUnregistered(t *testing.T) {
	// Two unregistered sets must not collide.
	a := New(nil)
	b := New(nil)
	a.ChunksSent.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ChunksSent))
}

func TestHistoryTrims(t *testing.T) {
	h := NewHistory(3)
	for i := int64(1); i <= 5; i++ {
		h.Add(Sample{Timestamp: i, FramesSent: uint64(i)})
	}

	all := h.Since(0)
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].Timestamp)

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(5), latest.FramesSent)

	assert.Len(t, h.Since(4), 1)
	assert.False(t, h.LastUpdate().IsZero())
}

func TestHistoryEmpty(t *testing.T) {
	h := NewHistory(0)
	_, ok := h.Latest()
	assert.False(t, ok)
	assert.Empty(t, h.Since(0))
}
