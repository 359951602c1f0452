package audio

// RingBufferSize is the size of the appliance's buffer chip in bytes
const RingBufferSize = 131072

// RingBuffer emulates the appliance's circular MPEG buffer.
// The server addresses writes by absolute offset and is authoritative for
// the write pointer; the client only advances the read pointer as it drains
// data into the decoder. A read pointer equal to the write pointer means
// empty. The buffer is not safe for concurrent use.
type RingBuffer struct {
	buf      []byte
	readPtr  uint32
	writePtr uint32
}

// NewRingBuffer creates an empty buffer of RingBufferSize bytes
func NewRingBuffer() *RingBuffer {
	return &RingBuffer{
		buf: make([]byte, RingBufferSize),
	}
}

// Write stores data starting at offset, wrapping past the end of the buffer,
// and moves the write pointer just past the stored bytes. Unread data may be
// overwritten; pacing is the server's job.
func (rb *RingBuffer) Write(offset uint32, data []byte) {
	pos := int(offset % RingBufferSize)
	for len(data) > 0 {
		n := copy(rb.buf[pos:], data)
		data = data[n:]
		pos = (pos + n) % RingBufferSize
	}
	rb.writePtr = uint32(pos)
}

// Read returns up to max bytes from the read pointer. A single call never
// crosses the end of the buffer; the rest comes from the next call.
func (rb *RingBuffer) Read(max int) []byte {
	if rb.IsEmpty() || max <= 0 {
		return nil
	}

	var available uint32
	if rb.writePtr > rb.readPtr {
		available = rb.writePtr - rb.readPtr
	} else {
		available = RingBufferSize - rb.readPtr
	}

	n := available
	if uint32(max) < n {
		n = uint32(max)
	}

	out := make([]byte, n)
	copy(out, rb.buf[rb.readPtr:rb.readPtr+n])
	rb.readPtr = (rb.readPtr + n) % RingBufferSize
	return out
}

// Reset rewinds the read pointer. The write pointer belongs to the server.
func (rb *RingBuffer) Reset() {
	rb.readPtr = 0
}

// IsEmpty reports whether the read pointer has caught up with the write pointer
func (rb *RingBuffer) IsEmpty() bool {
	return rb.readPtr == rb.writePtr
}

// Len returns the number of unread bytes
func (rb *RingBuffer) Len() int {
	return int((rb.writePtr + RingBufferSize - rb.readPtr) % RingBufferSize)
}

// ReadPtr returns the current read pointer
func (rb *RingBuffer) ReadPtr() uint32 {
	return rb.readPtr
}

// WritePtr returns the current write pointer
func (rb *RingBuffer) WritePtr() uint32 {
	return rb.writePtr
}

// Capacity returns the size of the backing storage
func (rb *RingBuffer) Capacity() int {
	return len(rb.buf)
}
