// Package metrics exposes Prometheus counters for the video pipeline and
// the control channel
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lanshare"

// Drop reasons used with FramesDropped
const (
	DropMalformed  = "malformed"
	DropDecode     = "decode"
	DropStale      = "stale"
	DropCapture    = "capture"
	DropEncode     = "encode"
	DropFragmented = "fragment"
)

// Metrics holds every collector used by the stream and control components
type Metrics struct {
	FramesSent       prometheus.Counter
	ChunksSent       prometheus.Counter
	BytesSent        prometheus.Counter
	SendErrors       prometheus.Counter
	FrameBytes       prometheus.Histogram
	OversizeFrames   prometheus.Counter
	FramesReceived   prometheus.Counter
	ChunksReceived   prometheus.Counter
	FramesDropped    *prometheus.CounterVec
	ConnectedClients prometheus.Gauge
	Streaming        prometheus.Gauge
	Commands         *prometheus.CounterVec
	ProtocolErrors   *prometheus.CounterVec
	ServersFound     prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is what tests and viewers without an
// HTTP endpoint use.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "video",
			Name:      "frames_sent_total",
			Help:      "Encoded frames sent, counted once per receiver",
		}),
		ChunksSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "video",
			Name:      "chunks_sent_total",
			Help:      "UDP chunk datagrams sent",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "video",
			Name:      "bytes_sent_total",
			Help:      "UDP payload bytes sent",
		}),
		SendErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "video",
			Name:      "send_errors_total",
			Help:      "Failed sendto calls",
		}),
		FrameBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "video",
			Name:      "encoded_frame_bytes",
			Help:      "Size of encoded frames",
			Buckets:   []float64{5000, 10000, 20000, 30000, 45000, 60000, 100000},
		}),
		OversizeFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "video",
			Name:      "oversize_frames_sent_total",
			Help:      "Frames sent over the payload budget after shrinking to the minimum width",
		}),
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "video",
			Name:      "frames_received_total",
			Help:      "Frames reassembled and decoded by a viewer",
		}),
		ChunksReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "video",
			Name:      "chunks_received_total",
			Help:      "Chunk datagrams received by a viewer",
		}),
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "video",
			Name:      "frames_dropped_total",
			Help:      "Frames or chunks dropped by reason",
		}, []string{"reason"}),
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "connected_clients",
			Help:      "Open command connections",
		}),
		Streaming: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "streaming",
			Help:      "1 while the server is streaming video",
		}),
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "commands_total",
			Help:      "Control messages handled by type",
		}, []string{"type"}),
		ProtocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "protocol_errors_total",
			Help:      "Control lines skipped by kind",
		}, []string{"kind"}),
		ServersFound: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "servers_found_total",
			Help:      "Unique servers reported by discovery scans",
		}),
	}
}

// Dropped increments the drop counter for reason
func (m *Metrics) Dropped(reason string) {
	m.FramesDropped.WithLabelValues(reason).Inc()
}
