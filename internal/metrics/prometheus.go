package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the SLIMP3 client
type Metrics struct {
	// Protocol metrics
	PacketsReceived *prometheus.CounterVec
	PacketsSent     *prometheus.CounterVec
	PacketsRejected prometheus.Counter
	DecodeErrors    prometheus.Counter
	SendErrors      prometheus.Counter
	AcksSent        prometheus.Counter
	RemoteCodesSent *prometheus.CounterVec

	// Decoder metrics
	DecoderStarts prometheus.Counter
	DecoderStops  prometheus.Counter
	FeedErrors    prometheus.Counter
	BytesFed      prometheus.Counter
	BufferFill    prometheus.Gauge

	// Volume metrics
	VolumeLevel    prometheus.Gauge
	VolumeRejected prometheus.Counter

	// Display metrics
	DisplayFrames  prometheus.Counter
	DisplayDropped prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// Passing prometheus.DefaultRegisterer exposes them on promhttp.Handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Protocol metrics
		PacketsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slimp3_packets_received_total",
			Help: "Total number of packets received from the server",
		}, []string{"type"}),
		PacketsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slimp3_packets_sent_total",
			Help: "Total number of packets sent to the server",
		}, []string{"type"}),
		PacketsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "slimp3_packets_rejected_total",
			Help: "Total number of datagrams dropped because they came from a foreign source",
		}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "slimp3_decode_errors_total",
			Help: "Total number of datagrams that could not be decoded",
		}),
		SendErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "slimp3_send_errors_total",
			Help: "Total number of failed packet sends",
		}),
		AcksSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "slimp3_acks_sent_total",
			Help: "Total number of audio acknowledgements sent",
		}),
		RemoteCodesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slimp3_remote_codes_sent_total",
			Help: "Total number of remote control codes sent",
		}, []string{"name"}),

		// Decoder metrics
		DecoderStarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "slimp3_decoder_starts_total",
			Help: "Total number of decoder launches",
		}),
		DecoderStops: factory.NewCounter(prometheus.CounterOpts{
			Name: "slimp3_decoder_stops_total",
			Help: "Total number of decoder terminations",
		}),
		FeedErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "slimp3_decoder_feed_errors_total",
			Help: "Total number of failed writes to the decoder",
		}),
		BytesFed: factory.NewCounter(prometheus.CounterOpts{
			Name: "slimp3_decoder_bytes_fed_total",
			Help: "Total number of audio bytes handed to the decoder",
		}),
		BufferFill: factory.NewGauge(prometheus.GaugeOpts{
			Name: "slimp3_buffer_fill_bytes",
			Help: "Unread bytes in the audio ring buffer",
		}),

		// Volume metrics
		VolumeLevel: factory.NewGauge(prometheus.GaugeOpts{
			Name: "slimp3_volume_level",
			Help: "Last volume level applied to the mixer",
		}),
		VolumeRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "slimp3_volume_rejected_total",
			Help: "Total number of volume requests with an out of range level",
		}),

		// Display metrics
		DisplayFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "slimp3_display_frames_total",
			Help: "Total number of display updates received",
		}),
		DisplayDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "slimp3_display_frames_dropped_total",
			Help: "Total number of display frames dropped by slow subscribers",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slimp3_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "slimp3_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "slimp3_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordPacketReceived increments the received counter for a packet type
func (m *Metrics) RecordPacketReceived(packetType string) {
	m.PacketsReceived.WithLabelValues(packetType).Inc()
}

// RecordPacketSent increments the sent counter for a packet type
func (m *Metrics) RecordPacketSent(packetType string) {
	m.PacketsSent.WithLabelValues(packetType).Inc()
}

// RecordPacketRejected increments the foreign source counter
func (m *Metrics) RecordPacketRejected() {
	m.PacketsRejected.Inc()
}

// RecordDecodeError increments the decode errors counter
func (m *Metrics) RecordDecodeError() {
	m.DecodeErrors.Inc()
}

// RecordSendError increments the send errors counter
func (m *Metrics) RecordSendError() {
	m.SendErrors.Inc()
}

// RecordAck increments the acknowledgements counter
func (m *Metrics) RecordAck() {
	m.AcksSent.Inc()
}

// RecordRemoteCode increments the remote code counter for a button
func (m *Metrics) RecordRemoteCode(name string) {
	m.RemoteCodesSent.WithLabelValues(name).Inc()
}

// RecordDecoderStart increments the decoder starts counter
func (m *Metrics) RecordDecoderStart() {
	m.DecoderStarts.Inc()
}

// RecordDecoderStop increments the decoder stops counter
func (m *Metrics) RecordDecoderStop() {
	m.DecoderStops.Inc()
}

// RecordFeed records bytes handed to the decoder
func (m *Metrics) RecordFeed(bytes int) {
	m.BytesFed.Add(float64(bytes))
}

// RecordFeedError increments the feed errors counter
func (m *Metrics) RecordFeedError() {
	m.FeedErrors.Inc()
}

// SetBufferFill sets the ring buffer fill level
func (m *Metrics) SetBufferFill(bytes int) {
	m.BufferFill.Set(float64(bytes))
}

// SetVolumeLevel sets the last applied volume level
func (m *Metrics) SetVolumeLevel(level int) {
	m.VolumeLevel.Set(float64(level))
}

// RecordVolumeRejected increments the rejected volume counter
func (m *Metrics) RecordVolumeRejected() {
	m.VolumeRejected.Inc()
}

// RecordDisplayFrame records a display update and how many subscribers missed it
func (m *Metrics) RecordDisplayFrame(dropped int) {
	m.DisplayFrames.Inc()
	m.DisplayDropped.Add(float64(dropped))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
