package display

import (
	"encoding/binary"
	"io"
	"log/slog"
	"sync"
)

// DefaultQueueSize is the number of frames buffered per subscriber
const DefaultQueueSize = 64

// FrameHeaderSize is the length prefix written before each frame
const FrameHeaderSize = 4

// EncodeFrame prefixes payload with its little-endian length
func EncodeFrame(payload []byte) []byte {
	frame := make([]byte, FrameHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[FrameHeaderSize:], payload)
	return frame
}

// Hub distributes display payloads to subscribers.
// Publish never blocks: a subscriber whose queue is full misses the frame.
type Hub struct {
	mu        sync.Mutex
	subs      map[*Subscription]struct{}
	queueSize int
	closed    bool
	logger    *slog.Logger
}

// NewHub creates a hub with the given per-subscriber queue size
func NewHub(queueSize int, logger *slog.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		subs:      make(map[*Subscription]struct{}),
		queueSize: queueSize,
		logger:    logger.With(slog.String("component", "display")),
	}
}

// Publish hands payload to every subscriber and reports how many received
// it and how many dropped it. Subscribers must not modify the payload.
func (h *Hub) Publish(payload []byte) (delivered, dropped int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		select {
		case s.frames <- payload:
			delivered++
		default:
			dropped++
		}
	}

	if dropped > 0 {
		h.logger.Debug("Display subscriber queue full, frame dropped",
			slog.Int("dropped", dropped),
			slog.Int("size", len(payload)),
		)
	}
	return delivered, dropped
}

// Subscribe registers a new consumer. Subscribing to a closed hub returns a
// subscription that is already at end of stream.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{
		hub:    h,
		frames: make(chan []byte, h.queueSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(s.frames)
		s.detached = true
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// Subscribers returns the number of attached consumers
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close detaches every subscriber; their streams end once drained
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		h.detach(s)
	}
}

// detach must be called with mu held
func (h *Hub) detach(s *Subscription) {
	if s.detached {
		return
	}
	s.detached = true
	delete(h.subs, s)
	close(s.frames)
}

// Subscription is one consumer's view of the display stream.
// It implements io.ReadCloser over length-prefixed frames.
type Subscription struct {
	hub      *Hub
	frames   chan []byte
	detached bool // guarded by hub.mu

	pending []byte
}

// Frames returns the raw payload channel, closed when the subscription ends
func (s *Subscription) Frames() <-chan []byte {
	return s.frames
}

// Read blocks until a frame is available and copies its encoded form into p.
// A frame larger than p is returned across several calls.
func (s *Subscription) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		payload, ok := <-s.frames
		if !ok {
			return 0, io.EOF
		}
		s.pending = EncodeFrame(payload)
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Close detaches the subscription from its hub
func (s *Subscription) Close() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.detach(s)
	return nil
}
