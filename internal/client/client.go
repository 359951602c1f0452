package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jmullan/gslimp3/internal/config"
	"github.com/jmullan/gslimp3/internal/decoder"
	"github.com/jmullan/gslimp3/internal/display"
	"github.com/jmullan/gslimp3/internal/engine"
	"github.com/jmullan/gslimp3/internal/identity"
	"github.com/jmullan/gslimp3/internal/metrics"
	"github.com/jmullan/gslimp3/internal/protocol"
	"github.com/jmullan/gslimp3/internal/volume"
)

// commandQueueSize is the number of remote codes that may wait for the engine
const commandQueueSize = 16

// Option customizes a Client
type Option func(*Client)

// WithLauncher replaces the decoder launcher built from the configuration
func WithLauncher(l decoder.Launcher) Option {
	return func(c *Client) {
		c.launcher = l
	}
}

// WithMixer replaces the OSS mixer built from the configuration
func WithMixer(m volume.Mixer) Option {
	return func(c *Client) {
		c.mixer = m
		c.mixerSet = true
	}
}

// WithRegistry registers the client's metrics on reg instead of a private
// registry
func WithRegistry(reg *prometheus.Registry) Option {
	return func(c *Client) {
		c.registry = reg
	}
}

// connection is one run of the protocol engine
type connection struct {
	engine   *engine.Engine
	commands chan engine.Command
	cancel   context.CancelFunc
	done     chan struct{}
	err      error // set before done is closed
}

func (c *connection) finished() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Client is a SLIMP3 player. It can connect and disconnect repeatedly; the
// volume controller, display hub and metrics outlive individual connections.
type Client struct {
	mu sync.Mutex // serializes configuration and lifecycle changes

	cfg      config.Config
	server   *net.UDPAddr
	launcher decoder.Launcher
	mixer    volume.Mixer
	mixerSet bool
	resolver *identity.Resolver

	registry *prometheus.Registry
	metrics  *metrics.Metrics
	volume   *volume.Controller
	display  *display.Hub
	logger   *slog.Logger

	current atomic.Pointer[connection]
}

// New creates a disconnected client. The server host is resolved here so a
// bad host or port is reported before anything is started.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	server, err := cfg.ServerAddr()
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:      *cfg,
		server:   server,
		resolver: identity.NewResolver(cfg.Client.Interface, cfg.Client.HardwareAddress),
		logger:   logger.With(slog.String("component", "client")),
	}
	if cfg.Decoder.Command != "" {
		c.launcher = newExecLauncher(cfg.Decoder.Command)
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.registry == nil {
		c.registry = prometheus.NewRegistry()
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	c.metrics = metrics.NewMetrics(c.registry)

	if !c.mixerSet {
		c.mixer = volume.NewOSSMixer(cfg.Volume.Device)
	}
	c.volume = volume.NewController(c.mixer, cfg.Volume.Control, cfg.Volume.Enabled, logger)
	c.display = display.NewHub(cfg.Display.QueueSize, logger)

	return c, nil
}

func newExecLauncher(command string) decoder.Launcher {
	return &decoder.ExecLauncher{Command: command, Stderr: os.Stderr}
}

// SetServer changes the server host used by the next Connect.
// The limited broadcast address makes the client discover its server.
func (c *Client) SetServer(host string) error {
	ip, err := config.ResolveServer(host)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Server.Host = host
	c.server = &net.UDPAddr{IP: ip, Port: c.server.Port}
	return nil
}

// SetServerPort changes the server port used by the next Connect
func (c *Client) SetServerPort(port int) error {
	if err := config.ValidatePort("port", port); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Server.Port = port
	c.server = &net.UDPAddr{IP: c.server.IP, Port: port}
	return nil
}

// SetDecoder changes the decoder command line used by the next Connect.
// An empty command disables playback.
func (c *Client) SetDecoder(command string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Decoder.Command = command
	if command == "" {
		c.launcher = nil
		return
	}
	c.launcher = newExecLauncher(command)
}

// SetVolumeControl turns mixer updates on or off, also while connected
func (c *Client) SetVolumeControl(enabled bool) {
	c.volume.SetEnabled(enabled)
}

// Server returns the configured server endpoint
func (c *Client) Server() *net.UDPAddr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &net.UDPAddr{IP: c.server.IP, Port: c.server.Port}
}

// Identity returns the hardware address announced to the server. It is the
// zero address when the interface could not be resolved.
func (c *Client) Identity() identity.Address {
	addr, _ := c.resolver.Resolve()
	return addr
}

// Connect binds the client socket and starts the protocol engine in its own
// goroutine. It returns once the socket is bound; the engine keeps running
// until Disconnect is called, ctx is cancelled or the socket fails.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev := c.current.Load(); prev != nil {
		if !prev.finished() {
			return ErrAlreadyConnected
		}
		prev.cancel()
	}

	id, err := c.resolver.Resolve()
	if err != nil {
		c.logger.Warn("Failed to resolve hardware address, using zero identity",
			slog.String("interface", c.cfg.Client.Interface),
			slog.String("error", err.Error()),
		)
	}

	lock, err := c.acquireLock(id)
	if err != nil {
		return err
	}

	eng := engine.New(engine.Config{
		Server:    c.server,
		BasePort:  c.cfg.Client.BasePort,
		PortRange: c.cfg.Client.PortRange,
		Identity:  id,
	}, engine.Options{
		Launcher:           c.launcher,
		DecoderStopTimeout: c.cfg.Decoder.GetStopTimeoutDuration(),
		Volume:             c.volume,
		Display:            c.display,
		Metrics:            c.metrics,
		Logger:             c.logger,
	})

	if err := eng.Bind(); err != nil {
		c.releaseLock(lock)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	conn := &connection{
		engine:   eng,
		commands: make(chan engine.Command, commandQueueSize),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	c.current.Store(conn)

	go c.run(runCtx, conn, lock)

	c.logger.Info("Client connected",
		slog.String("server", c.server.String()),
		slog.String("local", eng.LocalAddr().String()),
		slog.String("identity", id.String()),
		slog.String("session", eng.Session()),
	)
	return nil
}

func (c *Client) run(ctx context.Context, conn *connection, lock *flock.Flock) {
	defer close(conn.done)

	err := conn.engine.Run(ctx, conn.commands)
	c.releaseLock(lock)

	if err != nil {
		c.logger.Error("Engine stopped", slog.String("error", err.Error()))
		conn.err = err
		return
	}
	c.logger.Info("Client disconnected")
}

// Disconnect stops the engine and waits until it has stopped the decoder
// and closed its socket. It returns the error that ended the engine, if the
// engine failed on its own.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn := c.current.Load()
	if conn == nil {
		return nil
	}
	conn.cancel()
	<-conn.done
	return conn.err
}

// Close disconnects and ends every display subscription
func (c *Client) Close() error {
	err := c.Disconnect()
	c.display.Close()
	return err
}

// Connected reports whether the engine is running
func (c *Client) Connected() bool {
	conn := c.current.Load()
	return conn != nil && !conn.finished()
}

// Done returns a channel closed when the current engine stops. Before the
// first Connect it returns nil.
func (c *Client) Done() <-chan struct{} {
	if conn := c.current.Load(); conn != nil {
		return conn.done
	}
	return nil
}

// Err returns the error that stopped the last engine, or nil while it runs
// or after a clean disconnect
func (c *Client) Err() error {
	conn := c.current.Load()
	if conn == nil || !conn.finished() {
		return nil
	}
	return conn.err
}

// SendRemoteCode asks the engine to send the infrared code of a remote
// control button. Names are matched case-insensitively.
func (c *Client) SendRemoteCode(name string) error {
	code, ok := protocol.RemoteCode(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRemoteCode, name)
	}

	conn := c.current.Load()
	if conn == nil || conn.finished() {
		return ErrNotConnected
	}

	select {
	case conn.commands <- engine.Command{Name: protocol.NormalizeRemoteName(name), Code: code}:
		return nil
	default:
		return ErrCommandQueueFull
	}
}

// Display subscribes to display updates. Reading yields length-prefixed
// frames; Close unsubscribes.
func (c *Client) Display() *display.Subscription {
	return c.display.Subscribe()
}

// Statistics returns the counters of the current or last engine
func (c *Client) Statistics() engine.Statistics {
	conn := c.current.Load()
	if conn == nil {
		return engine.Statistics{Control: "none", VolumeLevel: -1, Server: c.Server().String()}
	}
	return conn.engine.Statistics()
}

// Session returns the session id of the current or last engine
func (c *Client) Session() string {
	if conn := c.current.Load(); conn != nil {
		return conn.engine.Session()
	}
	return ""
}

// Registry returns the registry holding the client's metrics
func (c *Client) Registry() *prometheus.Registry {
	return c.registry
}

// Metrics returns the client's metrics
func (c *Client) Metrics() *metrics.Metrics {
	return c.metrics
}

// LockPath returns the lock file guarding the given identity
func (c *Client) LockPath(id identity.Address) string {
	dir := c.cfg.Client.LockDir
	if dir == "" {
		dir = os.TempDir()
	}
	name := "slimp3-" + strings.ReplaceAll(id.String(), ":", "") + ".lock"
	return filepath.Join(dir, name)
}

func (c *Client) acquireLock(id identity.Address) (*flock.Flock, error) {
	path := c.LockPath(id)
	lock := flock.New(path)

	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return lock, nil
}

func (c *Client) releaseLock(lock *flock.Flock) {
	if err := lock.Unlock(); err != nil {
		c.logger.Warn("Failed to release lock",
			slog.String("path", lock.Path()),
			slog.String("error", err.Error()),
		)
	}
}
