package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jmullan/gslimp3/internal/config"
	"github.com/jmullan/gslimp3/internal/display"
	"github.com/jmullan/gslimp3/internal/identity"
	"github.com/jmullan/gslimp3/internal/protocol"
	"github.com/jmullan/gslimp3/internal/testutil"
)

const testMAC = "00:04:20:12:34:56"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type lockedMixer struct {
	mu     sync.Mutex
	levels []int
}

func (m *lockedMixer) SetLevel(control string, left, right int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels = append(m.levels, left)
	return nil
}

func (m *lockedMixer) Levels() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.levels...)
}

// fakeServer is the streaming server side of a loopback conversation
type fakeServer struct {
	t    *testing.T
	conn *net.UDPConn
	peer *net.UDPAddr
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("Failed to open fake server socket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &fakeServer{t: t, conn: conn}
}

func (s *fakeServer) Port() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

// expect reads the next packet and remembers where it came from
func (s *fakeServer) expect(packetType byte) []byte {
	s.t.Helper()
	buf := make([]byte, 2048)
	if err := s.conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		s.t.Fatalf("SetReadDeadline failed: %v", err)
	}
	n, from, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		s.t.Fatalf("Expected %q packet, got error: %v", packetType, err)
	}
	if buf[0] != packetType {
		s.t.Fatalf("Expected %q packet, got %q", packetType, buf[0])
	}
	s.peer = from
	return buf[:n]
}

func (s *fakeServer) send(packetType byte, payload []byte) {
	s.t.Helper()
	data := make([]byte, protocol.HeaderSize, protocol.HeaderSize+len(payload))
	data[0] = packetType
	data = append(data, payload...)
	if _, err := s.conn.WriteToUDP(data, s.peer); err != nil {
		s.t.Fatalf("Failed to send to client: %v", err)
	}
}

func testConfig(t *testing.T, serverPort int) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = serverPort
	cfg.Client.BasePort = 0
	cfg.Client.PortRange = 1
	cfg.Client.HardwareAddress = testMAC
	cfg.Client.LockDir = t.TempDir()
	cfg.Decoder.Command = ""
	cfg.Decoder.StopTimeout = 1
	return cfg
}

func newTestClient(t *testing.T, cfg *config.Config, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithLauncher(&testutil.FakeLauncher{}), WithMixer(nil)}, opts...)
	c, err := New(cfg, testLogger(), opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func volumeRequest(value uint32) []byte {
	p := []byte{0x73, 0x77, 0x3A, 0x77, 0x68, 0x77, 0xB0}
	p = append(p, make([]byte, 25-len(p))...)
	p[18] = byte(value >> 8)
	p[20] = byte(value)
	p[24] = byte(value >> 16)
	return p
}

func TestNewRejectsBadServer(t *testing.T) {
	tests := []struct {
		name string
		host string
		port int
		want error
	}{
		{name: "port zero", host: "127.0.0.1", port: 0, want: config.ErrInvalidPort},
		{name: "port too large", host: "127.0.0.1", port: 65536, want: config.ErrInvalidPort},
		{name: "empty host", host: "", port: 3483, want: config.ErrInvalidHost},
		{name: "ipv6 host", host: "::1", port: 3483, want: config.ErrInvalidHost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, tt.port)
			cfg.Server.Host = tt.host

			_, err := New(cfg, testLogger())
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
			var cfgErr *config.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Errorf("Expected a ConfigurationError, got %T", err)
			}
		})
	}
}

func TestSetServerAndPort(t *testing.T) {
	c := newTestClient(t, testConfig(t, 3483))

	if err := c.SetServer("10.1.2.3"); err != nil {
		t.Fatalf("SetServer failed: %v", err)
	}
	if got := c.Server().String(); got != "10.1.2.3:3483" {
		t.Errorf("Expected server 10.1.2.3:3483, got %s", got)
	}

	if err := c.SetServer(""); !errors.Is(err, config.ErrInvalidHost) {
		t.Errorf("Expected ErrInvalidHost, got %v", err)
	}
	if err := c.SetServerPort(70000); !errors.Is(err, config.ErrInvalidPort) {
		t.Errorf("Expected ErrInvalidPort, got %v", err)
	}
	if got := c.Server().String(); got != "10.1.2.3:3483" {
		t.Errorf("Rejected values must not change the server, got %s", got)
	}

	if err := c.SetServerPort(4000); err != nil {
		t.Fatalf("SetServerPort failed: %v", err)
	}
	if err := c.SetServer("255.255.255.255"); err != nil {
		t.Fatalf("SetServer broadcast failed: %v", err)
	}
	if got := c.Server().String(); got != "255.255.255.255:4000" {
		t.Errorf("Expected server 255.255.255.255:4000, got %s", got)
	}
}

func TestSendRemoteCodeWhileDisconnected(t *testing.T) {
	c := newTestClient(t, testConfig(t, 3483))

	if err := c.SendRemoteCode("PLAY"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if err := c.SendRemoteCode("NO_SUCH_BUTTON"); !errors.Is(err, ErrUnknownRemoteCode) {
		t.Errorf("Expected ErrUnknownRemoteCode, got %v", err)
	}
	if c.Connected() {
		t.Error("Expected a new client to be disconnected")
	}
	if c.Done() != nil {
		t.Error("Expected nil Done channel before Connect")
	}
	if err := c.Disconnect(); err != nil {
		t.Errorf("Disconnect without Connect should be a no-op, got %v", err)
	}

	stats := c.Statistics()
	if stats.Control != "none" || stats.VolumeLevel != -1 {
		t.Errorf("Unexpected statistics before Connect: %+v", stats)
	}
}

func TestConnectSendsRemoteCode(t *testing.T) {
	baseline := testutil.Baseline()

	server := newFakeServer(t)
	c := newTestClient(t, testConfig(t, server.Port()))

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !c.Connected() {
		t.Fatal("Expected client to be connected")
	}
	if c.Session() == "" {
		t.Error("Expected a session id once connected")
	}

	want, _ := identity.Parse(testMAC)
	if !bytes.Equal(server.expect(protocol.TypeDiscovery), protocol.EncodeDiscovery(want)) {
		t.Error("Discovery packet does not carry the configured identity")
	}

	if err := c.SendRemoteCode("play"); err != nil {
		t.Fatalf("SendRemoteCode failed: %v", err)
	}

	r, err := protocol.ParseRemote(server.expect(protocol.TypeRemote))
	if err != nil {
		t.Fatalf("ParseRemote failed: %v", err)
	}
	if r.Code != 0x768910ef {
		t.Errorf("Expected PLAY code 0x768910ef, got 0x%08x", r.Code)
	}
	if r.Identity != want {
		t.Errorf("Expected identity %s, got %s", want, r.Identity)
	}

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if c.Connected() {
		t.Error("Expected client to be disconnected")
	}
	if err := c.SendRemoteCode("PLAY"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected after Disconnect, got %v", err)
	}
	if got := c.Statistics().RemoteCodesSent; got != 1 {
		t.Errorf("Expected 1 remote code sent, got %d", got)
	}

	testutil.AssertNoGoroutineLeaks(t, baseline, 2)
}

func TestConnectTwice(t *testing.T) {
	server := newFakeServer(t)
	c := newTestClient(t, testConfig(t, server.Port()))

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("Expected ErrAlreadyConnected, got %v", err)
	}
}

func TestReconnectAfterDisconnect(t *testing.T) {
	server := newFakeServer(t)
	c := newTestClient(t, testConfig(t, server.Port()))

	for i := 0; i < 2; i++ {
		if err := c.Connect(context.Background()); err != nil {
			t.Fatalf("Connect %d failed: %v", i, err)
		}
		server.expect(protocol.TypeDiscovery)
		if err := c.Disconnect(); err != nil {
			t.Fatalf("Disconnect %d failed: %v", i, err)
		}
	}
}

func TestLockPreventsDuplicateIdentity(t *testing.T) {
	server := newFakeServer(t)
	cfg := testConfig(t, server.Port())

	first := newTestClient(t, cfg)
	second := newTestClient(t, cfg)

	if err := first.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := second.Connect(context.Background()); !errors.Is(err, ErrLocked) {
		t.Fatalf("Expected ErrLocked, got %v", err)
	}

	if err := first.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if err := second.Connect(context.Background()); err != nil {
		t.Errorf("Expected lock to be free after Disconnect, got %v", err)
	}
}

func TestContextCancellationDisconnects(t *testing.T) {
	server := newFakeServer(t)
	c := newTestClient(t, testConfig(t, server.Port()))

	ctx, cancel := context.WithCancel(context.Background())
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	cancel()

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Engine did not stop after context cancellation")
	}
	if c.Connected() {
		t.Error("Expected client to be disconnected")
	}
	if err := c.Err(); err != nil {
		t.Errorf("Expected clean stop, got %v", err)
	}
}

func TestDisplayStream(t *testing.T) {
	server := newFakeServer(t)
	c := newTestClient(t, testConfig(t, server.Port()))

	sub := c.Display()
	defer sub.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	server.expect(protocol.TypeDiscovery)

	payload := []byte("Now playing")
	server.send(protocol.TypeDisplay, payload)

	want := display.EncodeFrame(payload)
	got := make([]byte, len(want))

	done := make(chan error, 1)
	go func() {
		_, err := io.ReadFull(sub, got)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("No display frame received")
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Expected frame % x, got % x", want, got)
	}
}

func TestSetVolumeControl(t *testing.T) {
	server := newFakeServer(t)
	mixer := &lockedMixer{}
	cfg := testConfig(t, server.Port())
	cfg.Volume.Enabled = true
	c := newTestClient(t, cfg, WithMixer(mixer))

	sub := c.Display()
	defer sub.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	server.expect(protocol.TypeDiscovery)

	// A display frame sent after the volume request marks that the engine
	// has handled it
	flush := func() {
		t.Helper()
		server.send(protocol.TypeDisplay, []byte("x"))
		select {
		case <-sub.Frames():
		case <-time.After(2 * time.Second):
			t.Fatal("Engine did not process packets")
		}
	}

	c.SetVolumeControl(false)
	server.send(protocol.TypeI2C, volumeRequest(0x20000))
	flush()
	if levels := mixer.Levels(); len(levels) != 0 {
		t.Fatalf("Expected no mixer update while disabled, got %v", levels)
	}

	c.SetVolumeControl(true)
	server.send(protocol.TypeI2C, volumeRequest(0x20000))
	flush()
	levels := mixer.Levels()
	if len(levels) != 1 || levels[0] != 50 {
		t.Errorf("Expected one update to level 50, got %v", levels)
	}
	if got := c.Statistics().VolumeLevel; got != 50 {
		t.Errorf("Expected volume level 50 in statistics, got %d", got)
	}
}

func TestSetDecoder(t *testing.T) {
	c := newTestClient(t, testConfig(t, 3483))

	c.SetDecoder("")
	if c.launcher != nil {
		t.Error("Expected empty command to disable the decoder")
	}

	c.SetDecoder("mpg123 -q -")
	if c.launcher == nil {
		t.Fatal("Expected a launcher for a non-empty command")
	}
	if c.cfg.Decoder.Command != "mpg123 -q -" {
		t.Errorf("Expected command to be recorded, got %q", c.cfg.Decoder.Command)
	}
}

func TestLockPath(t *testing.T) {
	cfg := testConfig(t, 3483)
	c := newTestClient(t, cfg)

	id, _ := identity.Parse(testMAC)
	want := cfg.Client.LockDir + string(os.PathSeparator) + "slimp3-000420123456.lock"
	if got := c.LockPath(id); got != want {
		t.Errorf("Expected lock path %s, got %s", want, got)
	}
}
