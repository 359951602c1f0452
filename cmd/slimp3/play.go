package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmullan/gslimp3/internal/client"
	"github.com/jmullan/gslimp3/internal/config"
	"github.com/jmullan/gslimp3/internal/engine"
	"github.com/jmullan/gslimp3/internal/logging"
	"github.com/jmullan/gslimp3/internal/server"
	"github.com/jmullan/gslimp3/internal/version"
)

const shutdownTimeout = 10 * time.Second

type playOptions struct {
	server    string
	port      int
	decoder   string
	iface     string
	mac       string
	noVolume  bool
	httpPort  int
	readStdin bool
}

func newPlayCommand(ctx *commandContext) *cobra.Command {
	var opts playOptions

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Connect to a SLIMP3 server and play its stream",
		Long: `Connect to a SLIMP3 server and play its stream.

Remote control button names (see "slimp3 codes") are read from stdin,
one per line, and sent to the server. Use --server 255.255.255.255 to
let the first server that answers the discovery broadcast adopt the player.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := opts.apply(cmd, cfg); err != nil {
				return err
			}
			return runPlay(cmd.Context(), cfg, cmd.InOrStdin(), opts.readStdin)
		},
	}

	cmd.Flags().StringVarP(&opts.server, "server", "s", "", "Server host or 255.255.255.255 to discover")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Server UDP port")
	cmd.Flags().StringVarP(&opts.decoder, "decoder", "d", "", "Decoder command line reading MPEG from stdin")
	cmd.Flags().StringVarP(&opts.iface, "interface", "i", "", "Network interface whose hardware address identifies the player")
	cmd.Flags().StringVar(&opts.mac, "mac", "", "Hardware address to announce instead of the interface's")
	cmd.Flags().BoolVar(&opts.noVolume, "no-volume", false, "Ignore volume changes from the server")
	cmd.Flags().IntVar(&opts.httpPort, "http-port", 0, "Serve the status API on this port")
	cmd.Flags().BoolVar(&opts.readStdin, "stdin", true, "Read remote control button names from stdin")

	return cmd
}

// apply copies explicitly set flags over the configuration and validates it
func (o *playOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.Server.Host = o.server
	}
	if flags.Changed("port") {
		cfg.Server.Port = o.port
	}
	if flags.Changed("decoder") {
		cfg.Decoder.Command = o.decoder
	}
	if flags.Changed("interface") {
		cfg.Client.Interface = o.iface
	}
	if flags.Changed("mac") {
		cfg.Client.HardwareAddress = o.mac
	}
	if o.noVolume {
		cfg.Volume.Enabled = false
	}
	if flags.Changed("http-port") {
		cfg.HTTP.Enabled = true
		cfg.HTTP.Port = o.httpPort
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func runPlay(cmdCtx context.Context, cfg *config.Config, stdin io.Reader, readStdin bool) error {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, closeLog := logging.New(cfg.Logging)
	defer closeLog()

	logger.Info("Player starting",
		slog.String("version", version.Version),
		slog.String("server", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)),
		slog.String("decoder", cfg.Decoder.Command),
		slog.Bool("volume_control", cfg.Volume.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	c, err := client.New(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, c, c.Metrics(), c.Registry())
		if err := httpServer.Start(); err != nil {
			return err
		}
	}

	if err := c.Connect(signalCtx); err != nil {
		var bindErr *engine.BindExhaustionError
		if errors.As(err, &bindErr) {
			logger.Error("No local port available", slog.String("error", err.Error()))
		}
		stopHTTP(httpServer, logger)
		return err
	}

	if readStdin {
		go forwardRemoteCodes(stdin, c, logger)
	}

	select {
	case <-signalCtx.Done():
		logger.Info("Received shutdown signal")
	case <-c.Done():
		logger.Info("Engine stopped")
	}

	logger.Info("Starting graceful shutdown...")
	stopHTTP(httpServer, logger)

	if err := c.Disconnect(); err != nil {
		return fmt.Errorf("engine failed: %w", err)
	}
	logger.Info("Player stopped")
	return nil
}

func stopHTTP(h *server.HTTPServer, logger *slog.Logger) {
	if h == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := h.Stop(ctx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}
}

// remoteSender is the part of the client used by forwardRemoteCodes
type remoteSender interface {
	SendRemoteCode(name string) error
}

// forwardRemoteCodes sends one remote code per non-empty input line until
// the reader is exhausted
func forwardRemoteCodes(r io.Reader, c remoteSender, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		if err := c.SendRemoteCode(name); err != nil {
			logger.Warn("Remote code not sent",
				slog.String("name", name),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		logger.Warn("Stopped reading remote codes", slog.String("error", err.Error()))
	}
}
