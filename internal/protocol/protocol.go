package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/jmullan/gslimp3/internal/identity"
)

// Protocol constants
const (
	// Packet type codes (first header byte)
	TypeDiscovery         = 'd' // client -> server broadcast
	TypeDiscoveryResponse = 'D' // server -> client
	TypeHello             = 'h' // both directions
	TypeAudio             = 'm' // MPEG fragment
	TypeAck               = 'a' // buffer state acknowledgement
	TypeDisplay           = 'l' // LCD/VFD update
	TypeI2C               = '2' // control channel, carries volume requests
	TypeKeepAlive         = 's'
	TypeRemote            = 'i' // infrared remote code

	// Packet structure sizes
	HeaderSize     = 18
	IdentityOffset = 12

	// Offsets inside the audio fragment header
	audioControlOffset  = 1
	audioPointerOffset  = 6
	audioSequenceOffset = 10

	// Offsets inside the acknowledgement
	ackWritePointerOffset = 6
	ackReadPointerOffset  = 8
	ackSequenceOffset     = 10

	// Offsets inside the remote command
	remoteTicksOffset  = 2
	remoteMarkerOffset = 6
	remoteCodeOffset   = 8

	// TicksPerSecond is the rate of the remote receiver's tick counter
	TicksPerSecond = 625000
)

// Fixed bytes carried in outbound packets
var (
	discoveryVersion = []byte{0x00, 0x01, 0x11}
	helloVersion     = []byte{0x01, 0x11}
	remoteMarker     = []byte{0xFF, 0x10}
)

// ErrShortPacket is returned for datagrams that cannot hold a full header
var ErrShortPacket = errors.New("packet too short")

// ControlState is the decoder lifecycle request carried by audio fragments
type ControlState uint8

const (
	ControlDecode    ControlState = 0
	ControlStop      ControlState = 1
	ControlStopReset ControlState = 3
)

// Valid reports whether the server ever sends this state. Value 2 is reserved.
func (c ControlState) Valid() bool {
	return c == ControlDecode || c == ControlStop || c == ControlStopReset
}

func (c ControlState) String() string {
	switch c {
	case ControlDecode:
		return "decode"
	case ControlStop:
		return "stop"
	case ControlStopReset:
		return "stop_reset"
	default:
		return fmt.Sprintf("reserved(%d)", uint8(c))
	}
}

// Packet is a received datagram split into header and payload
// Layout: [Type:1][TypeSpecific:11][Identity or reserved:6][Payload:N]
type Packet struct {
	Type    byte
	Header  []byte // always HeaderSize bytes
	Payload []byte
}

// AudioHeader holds the fields of an 'm' header the client acts on
// Layout: [Type:1][Control:1][Reserved:4][WritePointer:2][Reserved:2][Sequence:2][Reserved:6]
type AudioHeader struct {
	Control      ControlState
	WritePointer uint32 // byte offset into the ring buffer
	Sequence     uint16
}

// Ack reports ring buffer state back to the server
// Layout: [Type:1][Zero:5][WritePointer:2][ReadPointer:2][Sequence:2][Identity:6]
type Ack struct {
	WritePointer uint32 // byte offsets
	ReadPointer  uint32
	Sequence     uint16
	Identity     identity.Address
}

// Remote is an infrared command forwarded to the server
// Layout: [Type:1][Zero:1][Ticks:4][Marker:2][Code:4][Identity:6]
type Remote struct {
	Ticks    uint32
	Code     uint32
	Identity identity.Address
}

// ParsePacket splits a datagram into its header and payload.
// The payload aliases data.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: expected at least %d bytes, got %d", ErrShortPacket, HeaderSize, len(data))
	}

	return &Packet{
		Type:    data[0],
		Header:  data[:HeaderSize],
		Payload: data[HeaderSize:],
	}, nil
}

// ParseAudioHeader decodes the 18-byte header of an audio fragment
func ParseAudioHeader(header []byte) (*AudioHeader, error) {
	if len(header) < HeaderSize {
		return nil, fmt.Errorf("%w: audio header expected %d bytes, got %d", ErrShortPacket, HeaderSize, len(header))
	}
	if header[0] != TypeAudio {
		return nil, fmt.Errorf("not an audio header: type %q", header[0])
	}

	return &AudioHeader{
		Control:      ControlState(header[audioControlOffset]),
		WritePointer: PointerFromWire(binary.BigEndian.Uint16(header[audioPointerOffset:])),
		Sequence:     binary.BigEndian.Uint16(header[audioSequenceOffset:]),
	}, nil
}

// EncodeAudio builds an audio fragment the way the server does. The client
// never sends these; test servers do.
func EncodeAudio(h AudioHeader, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = TypeAudio
	buf[audioControlOffset] = byte(h.Control)
	binary.BigEndian.PutUint16(buf[audioPointerOffset:], PointerToWire(h.WritePointer))
	binary.BigEndian.PutUint16(buf[audioSequenceOffset:], h.Sequence)
	copy(buf[HeaderSize:], payload)
	return buf
}

// PointerFromWire turns a transmitted half-offset into a byte offset
func PointerFromWire(v uint16) uint32 {
	return uint32(v) << 1
}

// PointerToWire turns a byte offset into the transmitted half-offset
func PointerToWire(ptr uint32) uint16 {
	return uint16(ptr >> 1)
}

// EncodeDiscovery builds the 'd' broadcast sent once at startup
func EncodeDiscovery(id identity.Address) []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = TypeDiscovery
	copy(buf[1:], discoveryVersion)
	copy(buf[IdentityOffset:], id[:])
	return buf
}

// EncodeHello builds the 'h' reply to a discovery response or hello request
func EncodeHello(id identity.Address) []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = TypeHello
	copy(buf[1:], helloVersion)
	copy(buf[IdentityOffset:], id[:])
	return buf
}

// EncodeAck builds the 'a' acknowledgement for an audio fragment
func EncodeAck(ack Ack) []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = TypeAck
	binary.BigEndian.PutUint16(buf[ackWritePointerOffset:], PointerToWire(ack.WritePointer))
	binary.BigEndian.PutUint16(buf[ackReadPointerOffset:], PointerToWire(ack.ReadPointer))
	binary.BigEndian.PutUint16(buf[ackSequenceOffset:], ack.Sequence)
	copy(buf[IdentityOffset:], ack.Identity[:])
	return buf
}

// ParseAck decodes an acknowledgement. Pointers come back as byte offsets.
func ParseAck(data []byte) (*Ack, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: ack expected %d bytes, got %d", ErrShortPacket, HeaderSize, len(data))
	}
	if data[0] != TypeAck {
		return nil, fmt.Errorf("not an ack: type %q", data[0])
	}

	ack := &Ack{
		WritePointer: PointerFromWire(binary.BigEndian.Uint16(data[ackWritePointerOffset:])),
		ReadPointer:  PointerFromWire(binary.BigEndian.Uint16(data[ackReadPointerOffset:])),
		Sequence:     binary.BigEndian.Uint16(data[ackSequenceOffset:]),
	}
	copy(ack.Identity[:], data[IdentityOffset:HeaderSize])
	return ack, nil
}

// EncodeRemote builds the 'i' packet for an infrared code
func EncodeRemote(r Remote) []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = TypeRemote
	binary.BigEndian.PutUint32(buf[remoteTicksOffset:], r.Ticks)
	copy(buf[remoteMarkerOffset:], remoteMarker)
	binary.BigEndian.PutUint32(buf[remoteCodeOffset:], r.Code)
	copy(buf[IdentityOffset:], r.Identity[:])
	return buf
}

// ParseRemote decodes an 'i' packet
func ParseRemote(data []byte) (*Remote, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: remote expected %d bytes, got %d", ErrShortPacket, HeaderSize, len(data))
	}
	if data[0] != TypeRemote {
		return nil, fmt.Errorf("not a remote command: type %q", data[0])
	}
	if data[remoteMarkerOffset] != remoteMarker[0] || data[remoteMarkerOffset+1] != remoteMarker[1] {
		return nil, fmt.Errorf("bad remote marker: % x", data[remoteMarkerOffset:remoteMarkerOffset+2])
	}

	r := &Remote{
		Ticks: binary.BigEndian.Uint32(data[remoteTicksOffset:]),
		Code:  binary.BigEndian.Uint32(data[remoteCodeOffset:]),
	}
	copy(r.Identity[:], data[IdentityOffset:HeaderSize])
	return r, nil
}

// Ticks converts elapsed time to the receiver's 32-bit tick counter
func Ticks(elapsed time.Duration) uint32 {
	if elapsed < 0 {
		elapsed = 0
	}
	// 625000 ticks/s is exactly one tick per 1.6µs
	return uint32(uint64(elapsed) * 5 / 8000)
}

// TypeName returns a human-readable label for a packet type code
func TypeName(code byte) string {
	switch code {
	case TypeDiscovery:
		return "discovery"
	case TypeDiscoveryResponse:
		return "discovery_response"
	case TypeHello:
		return "hello"
	case TypeAudio:
		return "audio"
	case TypeAck:
		return "ack"
	case TypeDisplay:
		return "display"
	case TypeI2C:
		return "i2c"
	case TypeKeepAlive:
		return "keepalive"
	case TypeRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// String returns a human-readable representation of the audio header
func (h *AudioHeader) String() string {
	return fmt.Sprintf("AudioHeader{Control:%s, WritePointer:%d, Sequence:%d}", h.Control, h.WritePointer, h.Sequence)
}

// String returns a human-readable representation of the ack
func (a *Ack) String() string {
	return fmt.Sprintf("Ack{WritePointer:%d, ReadPointer:%d, Sequence:%d, Identity:%s}",
		a.WritePointer, a.ReadPointer, a.Sequence, a.Identity)
}
