package engine

import (
	"net"
	"sync/atomic"

	"github.com/jmullan/gslimp3/internal/protocol"
)

// Statistics is a snapshot of engine activity
type Statistics struct {
	Session         string `json:"session"`
	LocalAddr       string `json:"local_addr"`
	Server          string `json:"server"`
	Control         string `json:"control"`
	BufferFill      int64  `json:"buffer_fill"`
	VolumeLevel     int32  `json:"volume_level"` // -1 until a level is applied
	PacketsReceived uint64 `json:"packets_received"`
	PacketsSent     uint64 `json:"packets_sent"`
	PacketsRejected uint64 `json:"packets_rejected"`
	DecodeErrors    uint64 `json:"decode_errors"`
	SendErrors      uint64 `json:"send_errors"`
	AcksSent        uint64 `json:"acks_sent"`
	BytesFed        uint64 `json:"bytes_fed"`
	FeedErrors      uint64 `json:"feed_errors"`
	DecoderStarts   uint64 `json:"decoder_starts"`
	DisplayFrames   uint64 `json:"display_frames"`
	RemoteCodesSent uint64 `json:"remote_codes_sent"`
}

// counters are written by the loop and read by anyone
type counters struct {
	packetsReceived atomic.Uint64
	packetsSent     atomic.Uint64
	packetsRejected atomic.Uint64
	decodeErrors    atomic.Uint64
	sendErrors      atomic.Uint64
	acksSent        atomic.Uint64
	bytesFed        atomic.Uint64
	feedErrors      atomic.Uint64
	decoderStarts   atomic.Uint64
	displayFrames   atomic.Uint64
	remoteCodesSent atomic.Uint64

	control     atomic.Int32 // -1 before the first audio fragment
	volumeLevel atomic.Int32
	bufferFill  atomic.Int64

	server atomic.Pointer[string]
	local  atomic.Pointer[string]
}

func (c *counters) init(server *net.UDPAddr) {
	c.control.Store(-1)
	c.volumeLevel.Store(-1)
	c.setServer(server)
}

func (c *counters) setServer(addr *net.UDPAddr) {
	s := addr.String()
	c.server.Store(&s)
}

func (c *counters) setLocal(addr net.Addr) {
	s := addr.String()
	c.local.Store(&s)
}

// Statistics returns current engine statistics
func (e *Engine) Statistics() Statistics {
	s := Statistics{
		Session:         e.session,
		Control:         "none",
		BufferFill:      e.stats.bufferFill.Load(),
		VolumeLevel:     e.stats.volumeLevel.Load(),
		PacketsReceived: e.stats.packetsReceived.Load(),
		PacketsSent:     e.stats.packetsSent.Load(),
		PacketsRejected: e.stats.packetsRejected.Load(),
		DecodeErrors:    e.stats.decodeErrors.Load(),
		SendErrors:      e.stats.sendErrors.Load(),
		AcksSent:        e.stats.acksSent.Load(),
		BytesFed:        e.stats.bytesFed.Load(),
		FeedErrors:      e.stats.feedErrors.Load(),
		DecoderStarts:   e.stats.decoderStarts.Load(),
		DisplayFrames:   e.stats.displayFrames.Load(),
		RemoteCodesSent: e.stats.remoteCodesSent.Load(),
	}
	if c := e.stats.control.Load(); c >= 0 {
		s.Control = protocol.ControlState(c).String()
	}
	if p := e.stats.server.Load(); p != nil {
		s.Server = *p
	}
	if p := e.stats.local.Load(); p != nil {
		s.LocalAddr = *p
	}
	return s
}
