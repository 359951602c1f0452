package testutil

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/jmullan/gslimp3/internal/decoder"
)

// FakeLauncher hands out in-memory decoder handles
type FakeLauncher struct {
	// LaunchErr, when set, is returned by every Launch call
	LaunchErr error

	// WriteErr, when set, makes every write to launched handles fail
	WriteErr error

	mu      sync.Mutex
	handles []*FakeHandle
}

// Launch records a new FakeHandle
func (f *FakeLauncher) Launch() (decoder.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.LaunchErr != nil {
		return nil, f.LaunchErr
	}
	h := NewFakeHandle()
	h.failWrites = f.WriteErr
	f.handles = append(f.handles, h)
	return h, nil
}

// Launches returns how many handles were started
func (f *FakeLauncher) Launches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

// Last returns the most recently started handle, or nil
func (f *FakeLauncher) Last() *FakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.handles) == 0 {
		return nil
	}
	return f.handles[len(f.handles)-1]
}

// ErrFakePipeClosed is returned by writes to an exited FakeHandle
var ErrFakePipeClosed = errors.New("fake decoder pipe closed")

// FakeHandle collects everything written to it
type FakeHandle struct {
	mu         sync.Mutex
	data       bytes.Buffer
	writes     int
	failWrites error
	terminated bool

	exited   chan struct{}
	exitOnce sync.Once
}

// NewFakeHandle returns a live handle
func NewFakeHandle() *FakeHandle {
	return &FakeHandle{exited: make(chan struct{})}
}

func (h *FakeHandle) Write(p []byte) (int, error) {
	select {
	case <-h.exited:
		return 0, ErrFakePipeClosed
	default:
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failWrites != nil {
		return 0, h.failWrites
	}
	h.writes++
	return h.data.Write(p)
}

func (h *FakeHandle) Exited() <-chan struct{} {
	return h.exited
}

func (h *FakeHandle) Terminate(time.Duration) error {
	h.mu.Lock()
	h.terminated = true
	h.mu.Unlock()
	h.Exit()
	return nil
}

// Exit simulates the program dying on its own
func (h *FakeHandle) Exit() {
	h.exitOnce.Do(func() { close(h.exited) })
}

// FailWrites makes every later write return err while the handle stays alive
func (h *FakeHandle) FailWrites(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failWrites = err
}

// Bytes returns a copy of everything written so far
func (h *FakeHandle) Bytes() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return bytes.Clone(h.data.Bytes())
}

// Writes returns the number of successful writes
func (h *FakeHandle) Writes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.writes
}

// Terminated reports whether Terminate was called
func (h *FakeHandle) Terminated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminated
}
