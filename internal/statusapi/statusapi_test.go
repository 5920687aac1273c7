package statusapi

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanshare/lanshare/internal/capture"
	"github.com/lanshare/lanshare/internal/control"
	"github.com/lanshare/lanshare/internal/input"
	"github.com/lanshare/lanshare/internal/metrics"
	"github.com/lanshare/lanshare/internal/server"
	"github.com/lanshare/lanshare/internal/session"
)

type fakeSource struct {
	status   server.Status
	sessions []session.Session
}

func (f fakeSource) Status() server.Status       { return f.status }
func (f fakeSource) Sessions() []session.Session { return f.sessions }

func newTestRouter(t *testing.T) (http.Handler, *metrics.Metrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	hist := metrics.NewHistory(10)
	hist.Add(metrics.Sample{Timestamp: 1000, FramesSent: 10})
	hist.Add(metrics.Sample{Timestamp: 2000, FramesSent: 25, FPS: 15})

	src := fakeSource{
		status: server.Status{Name: "office", Streaming: true, Clients: 1, Registered: 1},
		sessions: []session.Session{
			{ID: "10.0.0.2:50000", IP: "10.0.0.2", VideoPort: 9999, Username: "ana", State: session.StateRegistered, ConnectedAt: time.Unix(100, 0)},
		},
	}
	return NewRouter(src, hist, reg), m
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatus(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := get(t, h, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var st server.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "office", st.Name)
	assert.True(t, st.Streaming)
}

func TestSessions(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := get(t, h, "/api/sessions")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "ana", list[0].Username)

	rec = get(t, h, "/api/sessions/10.0.0.2:50000")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, h, "/api/sessions/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown session")
}

func TestStats(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := get(t, h, "/api/stats?since=1500")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Samples, 1)
	assert.Equal(t, uint64(25), resp.Samples[0].FramesSent)
	require.NotNil(t, resp.Latest)
	assert.Equal(t, int64(2000), resp.Latest.Timestamp)

	rec = get(t, h, "/api/stats?since=soon")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, m := newTestRouter(t)
	m.FramesSent.Add(3)

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "frames_sent_total 3"), rec.Body.String())
}

func TestOptionalRoutes(t *testing.T) {
	h := NewRouter(fakeSource{}, nil, nil)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/stats").Code)

	rec := get(t, h, "/api/sessions")
	assert.Equal(t, "[]\n", rec.Body.String())
}

var _ Source = (*server.Server)(nil)

func TestRouterOverRunningServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	srv := server.New(capture.NewPatternSource(160, 120), &input.Recorder{}, server.Options{
		CommandAddr: "127.0.0.1:0",
		Name:        "lab",
		Metrics:     m,
	})
	require.NoError(t, srv.Start())
	defer srv.Stop()

	video, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer video.Close()

	conn, err := net.DialTimeout("tcp", srv.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, control.NewWriter(conn).Send(&control.Register{
		VideoPort: video.LocalAddr().(*net.UDPAddr).Port,
		Username:  "ana",
	}))

	h := NewRouter(srv, metrics.NewHistory(0), reg)
	require.Eventually(t, func() bool {
		var list []session.Session
		rec := get(t, h, "/api/sessions")
		return rec.Code == http.StatusOK &&
			json.Unmarshal(rec.Body.Bytes(), &list) == nil &&
			len(list) == 1 && list[0].Username == "ana" && list[0].State == session.StateRegistered
	}, 3*time.Second, 20*time.Millisecond)

	rec := get(t, h, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var st server.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "lab", st.Name)
	assert.Equal(t, 1, st.Registered)
	assert.True(t, st.Streaming)

	rec = get(t, h, "/metrics")
	assert.Contains(t, rec.Body.String(), "lanshare_session_connected_clients 1")
}
