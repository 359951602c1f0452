package decoder

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmullan/gslimp3/internal/audio"
)

// FeedChunkSize is the largest number of bytes handed to the decoder per feed
const FeedChunkSize = 1400

// DefaultStopTimeout bounds how long Stop waits before killing the decoder
const DefaultStopTimeout = 5 * time.Second

var (
	// ErrFeed wraps any failure to deliver audio to the decoder
	ErrFeed = errors.New("decoder feed failed")

	// ErrNotRunning is returned when feeding a decoder that is not running
	ErrNotRunning = errors.New("decoder not running")
)

// Handle is a running decoder program
type Handle interface {
	io.Writer

	// Exited is closed once the program has terminated
	Exited() <-chan struct{}

	// Terminate asks the program to exit and waits at most timeout before
	// forcing it. It returns once the program is gone.
	Terminate(timeout time.Duration) error
}

// Launcher starts decoder programs
type Launcher interface {
	Launch() (Handle, error)
}

// Process drives a decoder program from a ring buffer.
// All methods must be called from a single goroutine; the only other
// goroutine involved is the pipe writer, which never touches the buffer.
type Process struct {
	launcher    Launcher
	buffer      *audio.RingBuffer
	logger      *slog.Logger
	stopTimeout time.Duration

	handle     Handle
	inflight   bool // a written chunk's outcome has not been collected yet
	chunks     chan []byte
	ready      chan error
	quit       chan struct{}
	writerDone chan struct{}
}

// NewProcess creates a decoder supervisor draining buffer.
// A nil launcher disables decoding entirely.
func NewProcess(launcher Launcher, buffer *audio.RingBuffer, stopTimeout time.Duration, logger *slog.Logger) *Process {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Process{
		launcher:    launcher,
		buffer:      buffer,
		logger:      logger.With(slog.String("component", "decoder")),
		stopTimeout: stopTimeout,
	}
}

// Start launches the decoder unless it is already running.
// It reports whether a new program was started.
func (p *Process) Start() (bool, error) {
	if p.launcher == nil || p.Running() {
		return false, nil
	}

	// A previous program may have died on its own
	p.release()

	h, err := p.launcher.Launch()
	if err != nil {
		return false, fmt.Errorf("failed to launch decoder: %w", err)
	}

	p.handle = h
	p.chunks = make(chan []byte, 1)
	p.ready = make(chan error)
	p.quit = make(chan struct{})
	p.writerDone = make(chan struct{})

	go writeLoop(h, p.chunks, p.ready, p.quit, p.writerDone)

	if pp, ok := h.(interface{ Pid() int }); ok {
		p.logger.Info("Decoder started", slog.Int("pid", pp.Pid()))
	} else {
		p.logger.Info("Decoder started")
	}
	return true, nil
}

// Stop terminates a running decoder and rewinds the ring buffer's read pointer
func (p *Process) Stop() error {
	if p.handle == nil {
		return nil
	}

	running := p.Running()
	var err error
	if running {
		err = p.handle.Terminate(p.stopTimeout)
	}
	p.release()

	if running {
		p.buffer.Reset()
		p.logger.Info("Decoder stopped")
	}
	return err
}

// Reset rewinds the ring buffer's read pointer
func (p *Process) Reset() {
	p.buffer.Reset()
}

// Running reports whether a decoder program is alive
func (p *Process) Running() bool {
	if p.handle == nil {
		return false
	}
	select {
	case <-p.handle.Exited():
		return false
	default:
		return true
	}
}

// HasPendingData reports whether the ring buffer holds unread audio
func (p *Process) HasPendingData() bool {
	return !p.buffer.IsEmpty()
}

// Pending reports whether Ready should be waited on: either audio is
// buffered or the outcome of the last write is still to be collected
func (p *Process) Pending() bool {
	return p.inflight || p.HasPendingData()
}

// Ready returns a channel that yields once the decoder can accept the next
// chunk. The value received is the outcome of the previous write and must be
// passed to Feed. Ready is nil unless the decoder is running, so selecting
// on it blocks forever.
func (p *Process) Ready() <-chan error {
	if !p.Running() {
		return nil
	}
	return p.ready
}

// Feed hands up to FeedChunkSize bytes from the ring buffer to the decoder.
// It must only be called after receiving from Ready, with the received value.
func (p *Process) Feed(prev error) (int, error) {
	p.inflight = false
	if prev != nil {
		return 0, fmt.Errorf("%w: %w", ErrFeed, prev)
	}
	if p.handle == nil {
		return 0, fmt.Errorf("%w: %w", ErrFeed, ErrNotRunning)
	}

	chunk := p.buffer.Read(FeedChunkSize)

	// The writer is waiting for exactly one chunk, even an empty one
	p.chunks <- chunk
	p.inflight = len(chunk) > 0
	return len(chunk), nil
}

// release stops the pipe writer and forgets the current handle
func (p *Process) release() {
	if p.handle == nil {
		return
	}
	close(p.quit)
	<-p.writerDone

	p.handle = nil
	p.inflight = false
	p.chunks = nil
	p.ready = nil
	p.quit = nil
	p.writerDone = nil
}

// writeLoop alternates between announcing readiness and writing one chunk.
// Each announcement carries the result of the previous write.
func writeLoop(w io.Writer, chunks <-chan []byte, ready chan<- error, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var err error
	for {
		select {
		case ready <- err:
		case <-quit:
			return
		}

		select {
		case chunk := <-chunks:
			err = nil
			if len(chunk) > 0 {
				_, err = w.Write(chunk)
			}
		case <-quit:
			return
		}
	}
}
