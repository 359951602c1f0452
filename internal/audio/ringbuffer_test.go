package audio

import (
	"bytes"
	"testing"
)

// advanceReadPtr moves both pointers to offset by writing and draining filler
func advanceReadPtr(t *testing.T, rb *RingBuffer, offset uint32) {
	t.Helper()
	rb.Write(0, make([]byte, offset))
	for !rb.IsEmpty() {
		if len(rb.Read(1400)) == 0 {
			t.Fatal("Read returned nothing from a non-empty buffer")
		}
	}
	if rb.ReadPtr() != offset%RingBufferSize {
		t.Fatalf("Expected read pointer %d, got %d", offset, rb.ReadPtr())
	}
}

func pattern(n int, seed byte) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = seed + byte(i%251)
	}
	return data
}

func TestNewRingBuffer(t *testing.T) {
	rb := NewRingBuffer()
	if rb.Capacity() != RingBufferSize {
		t.Errorf("Expected capacity %d, got %d", RingBufferSize, rb.Capacity())
	}
	if !rb.IsEmpty() {
		t.Error("Expected new buffer to be empty")
	}
	if data := rb.Read(100); data != nil {
		t.Errorf("Expected nil read from empty buffer, got %d bytes", len(data))
	}
}

func TestWriteThenRead(t *testing.T) {
	tests := []struct {
		name   string
		offset uint32
		size   int
	}{
		{name: "start of buffer", offset: 0, size: 10},
		{name: "middle of buffer", offset: 5000, size: 1400},
		{name: "ends exactly at boundary", offset: RingBufferSize - 100, size: 100},
		{name: "large block", offset: 1, size: RingBufferSize - 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := NewRingBuffer()
			advanceReadPtr(t, rb, tt.offset)

			data := pattern(tt.size, 7)
			rb.Write(tt.offset, data)

			if rb.Len() != tt.size {
				t.Errorf("Expected %d unread bytes, got %d", tt.size, rb.Len())
			}

			got := rb.Read(tt.size)
			if !bytes.Equal(got, data) {
				t.Errorf("Read %d bytes, data mismatch", len(got))
			}
			if !rb.IsEmpty() {
				t.Error("Expected buffer to be empty after draining")
			}
		})
	}
}

func TestReadAcrossBoundaryTakesTwoCalls(t *testing.T) {
	rb := NewRingBuffer()
	offset := uint32(RingBufferSize - 300)
	advanceReadPtr(t, rb, offset)

	data := pattern(1000, 3)
	rb.Write(offset, data)

	if rb.WritePtr() != 700 {
		t.Fatalf("Expected write pointer 700 after wrap, got %d", rb.WritePtr())
	}

	first := rb.Read(len(data))
	if len(first) != 300 {
		t.Fatalf("Expected first read to stop at the boundary with 300 bytes, got %d", len(first))
	}
	if rb.ReadPtr() != 0 {
		t.Errorf("Expected read pointer to wrap to 0, got %d", rb.ReadPtr())
	}

	second := rb.Read(len(data))
	if len(second) != 700 {
		t.Fatalf("Expected second read of 700 bytes, got %d", len(second))
	}

	if !bytes.Equal(append(first, second...), data) {
		t.Error("Reassembled data does not match written data")
	}
	if !rb.IsEmpty() {
		t.Error("Expected buffer to be empty")
	}
}

func TestReadRespectsMax(t *testing.T) {
	rb := NewRingBuffer()
	rb.Write(0, pattern(3000, 1))

	for _, want := range []int{1400, 1400, 200} {
		if got := len(rb.Read(1400)); got != want {
			t.Errorf("Expected read of %d bytes, got %d", want, got)
		}
	}
	if rb.Read(0) != nil {
		t.Error("Expected nil for zero-length read")
	}
}

func TestWriteOffsetIsReducedModuloCapacity(t *testing.T) {
	rb := NewRingBuffer()
	rb.Write(RingBufferSize+4, []byte{1, 2})
	if rb.WritePtr() != 6 {
		t.Errorf("Expected write pointer 6, got %d", rb.WritePtr())
	}
}

func TestServerOverwritesUnreadData(t *testing.T) {
	rb := NewRingBuffer()
	rb.Write(0, []byte{1, 1, 1, 1})
	rb.Write(0, []byte{2, 2})

	if rb.WritePtr() != 2 {
		t.Errorf("Expected write pointer 2, got %d", rb.WritePtr())
	}
	if got := rb.Read(10); !bytes.Equal(got, []byte{2, 2}) {
		t.Errorf("Expected overwritten bytes, got % x", got)
	}
}

func TestReset(t *testing.T) {
	rb := NewRingBuffer()
	rb.Write(0, pattern(5000, 9))
	rb.Read(1400)

	rb.Reset()
	if rb.ReadPtr() != 0 {
		t.Errorf("Expected read pointer 0 after reset, got %d", rb.ReadPtr())
	}
	if rb.WritePtr() != 5000 {
		t.Errorf("Reset must not touch the write pointer, got %d", rb.WritePtr())
	}

	// Once the server rewinds too, reset leaves the buffer empty
	rb.Write(RingBufferSize-10, pattern(10, 0))
	rb.Reset()
	if !rb.IsEmpty() {
		t.Error("Expected empty buffer when both pointers are at 0")
	}
}

func TestFullBufferLooksEmpty(t *testing.T) {
	// Writing exactly one capacity's worth leaves the pointers equal, so the
	// buffer reports empty. The server never fills the chip completely.
	rb := NewRingBuffer()
	rb.Write(0, make([]byte, RingBufferSize))
	if !rb.IsEmpty() {
		t.Error("Expected a completely filled buffer to be indistinguishable from empty")
	}
}
