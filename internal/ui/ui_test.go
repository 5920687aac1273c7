package ui

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRenderPanel(t *testing.T) {
	SetNoColor(true)

	out := RenderPanel("lanshare", []Row{
		{Label: "Name", Value: "office"},
		{Label: "Command", Value: "0.0.0.0:9998"},
	}, 40)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 4)
	for _, l := range lines {
		assert.Equal(t, 40, len([]rune(l)), l)
	}
	assert.Contains(t, lines[1], "Name:    office")
	assert.Contains(t, lines[2], "Command: 0.0.0.0:9998")
}

func TestRenderTable(t *testing.T) {
	SetNoColor(true)

	out := RenderTable([]string{"NAME", "ADDRESS"}, [][]string{
		{"office-pc", "10.0.0.5:9998"},
		{"lab", "10.0.0.7:9998"},
	})
	assert.Equal(t, "NAME       ADDRESS\noffice-pc  10.0.0.5:9998\nlab        10.0.0.7:9998\n", out)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcd...", Truncate("abcdefghij", 7))
}

func TestSpinnerWritesAndClears(t *testing.T) {
	SetNoColor(true)

	var buf safeBuffer
	s := NewSpinnerTo(&buf, "Scanning")
	s.Start()
	s.Start()
	assert.True(t, s.IsRunning())
	assert.Eventually(t, func() bool { return strings.Contains(buf.String(), "Scanning") }, time.Second, 10*time.Millisecond)
	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())
	assert.True(t, strings.HasSuffix(buf.String(), "\r"))
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
