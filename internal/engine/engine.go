package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jmullan/gslimp3/internal/audio"
	"github.com/jmullan/gslimp3/internal/config"
	"github.com/jmullan/gslimp3/internal/decoder"
	"github.com/jmullan/gslimp3/internal/display"
	"github.com/jmullan/gslimp3/internal/identity"
	"github.com/jmullan/gslimp3/internal/logging"
	"github.com/jmullan/gslimp3/internal/metrics"
	"github.com/jmullan/gslimp3/internal/protocol"
	"github.com/jmullan/gslimp3/internal/volume"
)

const (
	// recvBufferSize fits the largest UDP datagram the server sends
	recvBufferSize = 65536

	// inboundQueueSize is the number of datagrams buffered between the
	// socket reader and the loop
	inboundQueueSize = 64
)

// Config describes the network side of the engine
type Config struct {
	Server    *net.UDPAddr // 255.255.255.255 enables server discovery
	BasePort  int
	PortRange int
	Identity  identity.Address
}

// Options supplies the engine's collaborators. Any of them may be nil.
type Options struct {
	Launcher           decoder.Launcher
	DecoderStopTimeout time.Duration
	Volume             *volume.Controller
	Display            *display.Hub
	Metrics            *metrics.Metrics
	Logger             *slog.Logger
}

// Command asks the engine to send a remote control code
type Command struct {
	Name string
	Code uint32
}

type datagram struct {
	data []byte
	from *net.UDPAddr
	err  error
}

// Engine is a SLIMP3 protocol client bound to one UDP socket.
// Bind must return before Run is called and Run owns the engine; Statistics,
// LocalAddr and Session are safe to call from anywhere once Bind returned.
type Engine struct {
	cfg      Config
	identity identity.Address
	session  string
	started  time.Time

	conn *net.UDPConn

	// Loop state
	server     *net.UDPAddr
	learning   bool
	buffer     *audio.RingBuffer
	decoder    *decoder.Process
	control    protocol.ControlState
	hasControl bool
	feedFailed bool

	volume  *volume.Controller
	display *display.Hub
	metrics *metrics.Metrics
	logger  *slog.Logger

	stats counters
}

// New creates an engine. The tick counter of remote codes starts now.
func New(cfg Config, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewMetrics(prometheus.NewRegistry())
	}

	session := uuid.NewString()
	logger = logger.With(
		slog.String("component", "engine"),
		slog.String("session", session),
	)

	buffer := audio.NewRingBuffer()
	server := cloneAddr(cfg.Server)

	e := &Engine{
		cfg:      cfg,
		identity: cfg.Identity,
		session:  session,
		started:  time.Now(),
		server:   server,
		learning: server.IP.Equal(net.IPv4bcast),
		buffer:   buffer,
		decoder:  decoder.NewProcess(opts.Launcher, buffer, opts.DecoderStopTimeout, logger),
		volume:   opts.Volume,
		display:  opts.Display,
		metrics:  m,
		logger:   logger,
	}
	e.stats.init(server)
	return e
}

// Bind opens the client socket on the first free port of the configured
// range and enables broadcast on it
func (e *Engine) Bind() error {
	if e.conn != nil {
		return nil
	}

	lc := net.ListenConfig{Control: enableBroadcast}

	var lastErr error
	for port := e.cfg.BasePort; port < e.cfg.BasePort+e.cfg.PortRange; port++ {
		pc, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort("", strconv.Itoa(port)))
		if err != nil {
			e.logger.Debug("Port unavailable", slog.Int("port", port), slog.String("error", err.Error()))
			lastErr = err
			continue
		}

		e.conn = pc.(*net.UDPConn)
		e.stats.setLocal(e.conn.LocalAddr())
		e.logger.Info("Client socket bound",
			slog.String("address", e.conn.LocalAddr().String()),
			slog.String("identity", e.identity.String()),
		)
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("empty port range")
	}
	return &BindExhaustionError{Base: e.cfg.BasePort, Range: e.cfg.PortRange, Err: lastErr}
}

// LocalAddr returns the bound socket address, or nil before Bind
func (e *Engine) LocalAddr() net.Addr {
	if e.conn == nil {
		return nil
	}
	return e.conn.LocalAddr()
}

// Session returns the identifier attached to this engine's log lines
func (e *Engine) Session() string {
	return e.session
}

// Run announces the client and processes events until ctx is cancelled or
// the socket fails. Cancellation is a clean exit and returns nil. The
// decoder is stopped and the socket closed before Run returns.
func (e *Engine) Run(ctx context.Context, commands <-chan Command) error {
	if err := e.Bind(); err != nil {
		return err
	}

	inbound := make(chan datagram, inboundQueueSize)
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go e.receiveLoop(inbound, done, &wg)
	defer e.shutdown(done, &wg)

	e.logger.Info("Engine started", slog.String("server", e.server.String()))
	e.sendPacket(protocol.TypeDiscovery, protocol.EncodeDiscovery(e.identity))

	for {
		var ready <-chan error
		if e.wantsFeed() {
			ready = e.decoder.Ready()
		}

		select {
		case <-ctx.Done():
			e.logger.Info("Engine stopping due to context cancellation")
			return nil

		case d := <-inbound:
			if d.err != nil {
				e.logger.Error("Failed to receive packet", slog.String("error", d.err.Error()))
				return fmt.Errorf("receive failed: %w", d.err)
			}
			e.handleDatagram(d.data, d.from)

		case err := <-ready:
			e.feed(err)

		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			e.sendRemote(cmd)
		}
	}
}

// receiveLoop copies datagrams off the socket. It exits after the first
// read error or once done is closed.
func (e *Engine) receiveLoop(out chan<- datagram, done <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	buf := make([]byte, recvBufferSize)
	for {
		n, from, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-done:
			case out <- datagram{err: err}:
			}
			return
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		select {
		case out <- datagram{data: data, from: from}:
		case <-done:
			return
		}
	}
}

func (e *Engine) shutdown(done chan struct{}, wg *sync.WaitGroup) {
	e.stopDecoder()

	close(done)
	if err := e.conn.Close(); err != nil {
		e.logger.Warn("Error closing client socket", slog.String("error", err.Error()))
	}
	wg.Wait()

	stats := e.Statistics()
	e.logger.Info("Engine stopped",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("packets_sent", stats.PacketsSent),
		slog.Uint64("bytes_fed", stats.BytesFed),
	)
}

// wantsFeed reports whether decoder readiness should be waited on
func (e *Engine) wantsFeed() bool {
	return e.hasControl &&
		e.control == protocol.ControlDecode &&
		!e.feedFailed &&
		e.decoder.Pending()
}

func (e *Engine) handleDatagram(data []byte, from *net.UDPAddr) {
	e.stats.packetsReceived.Add(1)

	if err := e.acceptSource(from); err != nil {
		e.stats.packetsRejected.Add(1)
		e.metrics.RecordPacketRejected()
		e.logger.Warn("Dropping packet",
			slog.String("source", from.String()),
			slog.String("server", e.server.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	pkt, err := protocol.ParsePacket(data)
	if err != nil {
		e.recordDecodeError(data, err)
		return
	}
	e.metrics.RecordPacketReceived(protocol.TypeName(pkt.Type))

	switch pkt.Type {
	case protocol.TypeDiscoveryResponse, protocol.TypeHello:
		e.sendPacket(protocol.TypeHello, protocol.EncodeHello(e.identity))
	case protocol.TypeAudio:
		e.handleAudio(pkt)
	case protocol.TypeDisplay:
		e.handleDisplay(pkt.Payload)
	case protocol.TypeI2C:
		e.handleI2C(pkt.Payload)
	case protocol.TypeKeepAlive:
	default:
		e.logger.Debug("Ignoring unknown packet type",
			slog.String("type", fmt.Sprintf("0x%02x", pkt.Type)),
			slog.Int("size", len(data)),
		)
	}
}

// acceptSource narrows a broadcast server to the first host that answers and
// rejects every other host afterwards. Only the IP is compared; the
// configured server port is kept.
func (e *Engine) acceptSource(from *net.UDPAddr) error {
	if e.learning {
		e.server = &net.UDPAddr{IP: from.IP, Port: e.server.Port}
		e.learning = false
		e.stats.setServer(e.server)
		e.logger.Info("Learned server address", slog.String("server", e.server.String()))
		return nil
	}
	if !from.IP.Equal(e.server.IP) {
		return fmt.Errorf("%w: %s", ErrForeignSource, from.IP)
	}
	return nil
}

func (e *Engine) recordDecodeError(data []byte, err error) {
	e.stats.decodeErrors.Add(1)
	e.metrics.RecordDecodeError()
	e.logger.Warn("Failed to decode packet",
		slog.Int("size", len(data)),
		slog.String("error", err.Error()),
	)
}

func (e *Engine) handleAudio(pkt *protocol.Packet) {
	h, err := protocol.ParseAudioHeader(pkt.Header)
	if err != nil {
		e.recordDecodeError(pkt.Header, err)
		return
	}

	e.applyControl(h.Control)

	e.buffer.Write(h.WritePointer, pkt.Payload)
	e.updateBufferFill()

	ack := protocol.EncodeAck(protocol.Ack{
		WritePointer: e.buffer.WritePtr(),
		ReadPointer:  e.buffer.ReadPtr(),
		Sequence:     h.Sequence,
		Identity:     e.identity,
	})
	if e.sendPacket(protocol.TypeAck, ack) {
		e.stats.acksSent.Add(1)
		e.metrics.RecordAck()
	}
}

// applyControl drives the decoder lifecycle. Reserved values leave both the
// state and the decoder untouched.
func (e *Engine) applyControl(c protocol.ControlState) {
	switch c {
	case protocol.ControlDecode:
		started, err := e.decoder.Start()
		if err != nil {
			e.logger.Error("Failed to start decoder", slog.String("error", err.Error()))
		}
		if started {
			e.feedFailed = false
			e.stats.decoderStarts.Add(1)
			e.metrics.RecordDecoderStart()
		}
	case protocol.ControlStop:
		e.stopDecoder()
	case protocol.ControlStopReset:
		e.stopDecoder()
		e.decoder.Reset()
		e.updateBufferFill()
	default:
		e.logger.Warn("Ignoring reserved control state", slog.Int("control", int(c)))
		return
	}

	if !e.hasControl || e.control != c {
		e.logger.Debug("Control state changed", slog.String("control", c.String()))
	}
	e.control = c
	e.hasControl = true
	e.stats.control.Store(int32(c))
}

func (e *Engine) stopDecoder() {
	running := e.decoder.Running()
	if err := e.decoder.Stop(); err != nil {
		e.logger.Warn("Error stopping decoder", slog.String("error", err.Error()))
	}
	e.feedFailed = false
	if running {
		e.metrics.RecordDecoderStop()
	}
}

func (e *Engine) feed(prev error) {
	n, err := e.decoder.Feed(prev)
	if err != nil {
		e.feedFailed = true
		e.stats.feedErrors.Add(1)
		e.metrics.RecordFeedError()
		e.logger.Error("Decoder died unexpectedly", slog.String("error", err.Error()))

		code, _ := protocol.RemoteCode(protocol.RemotePause)
		e.sendRemote(Command{Name: protocol.RemotePause, Code: code})
		return
	}

	e.stats.bytesFed.Add(uint64(n))
	e.metrics.RecordFeed(n)
	e.updateBufferFill()
}

func (e *Engine) handleDisplay(payload []byte) {
	e.stats.displayFrames.Add(1)
	if e.display == nil {
		e.metrics.RecordDisplayFrame(0)
		return
	}
	_, dropped := e.display.Publish(payload)
	e.metrics.RecordDisplayFrame(dropped)
}

func (e *Engine) handleI2C(payload []byte) {
	if e.volume == nil {
		return
	}

	level, err := e.volume.DecodeAndApply(payload)
	switch {
	case err == nil:
		e.stats.volumeLevel.Store(int32(level))
		e.metrics.SetVolumeLevel(level)
	case errors.Is(err, volume.ErrLevelOutOfRange):
		e.metrics.RecordVolumeRejected()
	}
}

func (e *Engine) sendRemote(cmd Command) {
	r := protocol.Remote{
		Ticks:    protocol.Ticks(time.Since(e.started)),
		Code:     cmd.Code,
		Identity: e.identity,
	}
	if e.sendPacket(protocol.TypeRemote, protocol.EncodeRemote(r)) {
		e.stats.remoteCodesSent.Add(1)
		e.metrics.RecordRemoteCode(cmd.Name)
		e.logger.Debug("Remote code sent",
			slog.String("name", cmd.Name),
			slog.String("code", fmt.Sprintf("0x%08x", cmd.Code)),
		)
	}
}

// sendPacket writes one datagram to the server. Failures are counted and
// logged, never fatal.
func (e *Engine) sendPacket(packetType byte, data []byte) bool {
	if _, err := e.conn.WriteToUDP(data, e.server); err != nil {
		e.stats.sendErrors.Add(1)
		e.metrics.RecordSendError()
		e.logger.Warn("Failed to send packet",
			slog.String("type", protocol.TypeName(packetType)),
			slog.String("server", e.server.String()),
			slog.String("error", err.Error()),
		)
		return false
	}

	e.stats.packetsSent.Add(1)
	e.metrics.RecordPacketSent(protocol.TypeName(packetType))
	return true
}

func (e *Engine) updateBufferFill() {
	fill := e.buffer.Len()
	e.stats.bufferFill.Store(int64(fill))
	e.metrics.SetBufferFill(fill)
}

func cloneAddr(a *net.UDPAddr) *net.UDPAddr {
	if a == nil {
		return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1).To4(), Port: config.DefaultServerPort}
	}
	ip := make(net.IP, len(a.IP))
	copy(ip, a.IP)
	return &net.UDPAddr{IP: ip, Port: a.Port, Zone: a.Zone}
}
