package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmullan/gslimp3/internal/client"
	"github.com/jmullan/gslimp3/internal/config"
	"github.com/jmullan/gslimp3/internal/display"
	"github.com/jmullan/gslimp3/internal/engine"
	"github.com/jmullan/gslimp3/internal/identity"
	"github.com/jmullan/gslimp3/internal/metrics"
	"github.com/jmullan/gslimp3/internal/protocol"
	"github.com/jmullan/gslimp3/internal/version"
)

// displayWriteTimeout bounds a single websocket write
const displayWriteTimeout = 5 * time.Second

// Controller is the part of the client exposed over HTTP
type Controller interface {
	Connected() bool
	Session() string
	Identity() identity.Address
	Statistics() engine.Statistics
	SendRemoteCode(name string) error
	Display() *display.Subscription
}

// HTTPServer provides HTTP API endpoints for monitoring and remote control
type HTTPServer struct {
	server   *http.Server
	router   chi.Router
	logger   *slog.Logger
	config   *config.Config
	client   Controller
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader

	// Server state
	startTime time.Time
	mu        sync.Mutex
	listener  net.Listener
	sockets   map[*websocket.Conn]struct{}
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, c Controller, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	h := &HTTPServer{
		logger:   logger.With(slog.String("component", "http")),
		config:   appConfig,
		client:   c,
		metrics:  m,
		gatherer: gatherer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		startTime: time.Now(),
		sockets:   make(map[*websocket.Conn]struct{}),
	}

	h.router = chi.NewRouter()
	h.setupRoutes(h.router)

	h.server = &http.Server{
		Addr:        net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port)),
		Handler:     h.router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(r chi.Router) {
	r.Use(middleware.Recoverer)

	r.Get("/", h.withMetrics("/", h.handleRoot))
	r.Get("/health", h.withMetrics("/health", h.handleHealth))
	r.Get("/stats", h.withMetrics("/stats", h.handleStats))
	r.Get("/config", h.withMetrics("/config", h.handleConfig))
	r.Get("/codes", h.withMetrics("/codes", h.handleCodes))
	r.Post("/remote/{name}", h.withMetrics("/remote/{name}", h.handleRemote))

	// Long-lived; request duration would be meaningless
	r.Get("/display", h.handleDisplay)

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}

// Handler returns the router, for embedding or tests
func (h *HTTPServer) Handler() http.Handler {
	return h.router
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		handler(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(startTime).Seconds()
		h.metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(status), duration)

		if status >= 400 {
			errorType := "client_error"
			if status >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// Start binds the listen address and serves in the background
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}

	h.mu.Lock()
	h.listener = ln
	h.mu.Unlock()

	h.logger.Info("Starting HTTP API server",
		slog.String("address", ln.Addr().String()),
	)

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start
func (h *HTTPServer) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Stop closes display streams and gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	h.mu.Lock()
	for conn := range h.sockets {
		conn.Close()
		delete(h.sockets, conn)
	}
	h.mu.Unlock()

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := h.client.Connected()

	status, code := "healthy", http.StatusOK
	if !connected {
		status, code = "disconnected", http.StatusServiceUnavailable
	}

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "gslimp3",
			"version": version.Version,
		},
		"client": map[string]interface{}{
			"connected": connected,
			"session":   h.client.Session(),
			"identity":  h.client.Identity().String(),
		},
	}

	writeJSON(w, code, health)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"connected": h.client.Connected(),
		"engine":    h.client.Statistics(),
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg := map[string]interface{}{
		"server": map[string]interface{}{
			"host": h.config.Server.Host,
			"port": h.config.Server.Port,
		},
		"client": map[string]interface{}{
			"base_port":  h.config.Client.BasePort,
			"port_range": h.config.Client.PortRange,
			"interface":  h.config.Client.Interface,
		},
		"decoder": map[string]interface{}{
			"command":      h.config.Decoder.Command,
			"stop_timeout": h.config.Decoder.StopTimeout,
		},
		"volume": map[string]interface{}{
			"enabled": h.config.Volume.Enabled,
			"device":  h.config.Volume.Device,
			"control": h.config.Volume.Control,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, cfg)
}

// RemoteCodeInfo is one row of the /codes listing
type RemoteCodeInfo struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// handleCodes implements the /codes endpoint
func (h *HTTPServer) handleCodes(w http.ResponseWriter, r *http.Request) {
	names := protocol.RemoteCodeNames()
	codes := make([]RemoteCodeInfo, 0, len(names))
	for _, name := range names {
		code, _ := protocol.RemoteCode(name)
		codes = append(codes, RemoteCodeInfo{Name: name, Code: fmt.Sprintf("0x%08x", code)})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total": len(codes),
		"codes": codes,
	})
}

// handleRemote implements the POST /remote/{name} endpoint
func (h *HTTPServer) handleRemote(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	err := h.client.SendRemoteCode(name)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"name":   protocol.NormalizeRemoteName(name),
			"status": "queued",
		})
	case errors.Is(err, client.ErrUnknownRemoteCode):
		http.Error(w, "Unknown remote code", http.StatusNotFound)
	case errors.Is(err, client.ErrNotConnected):
		http.Error(w, "Client not connected", http.StatusServiceUnavailable)
	case errors.Is(err, client.ErrCommandQueueFull):
		http.Error(w, "Command queue full", http.StatusTooManyRequests)
	default:
		h.logger.Error("Failed to send remote code",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleDisplay streams raw display payloads as binary websocket messages
func (h *HTTPServer) handleDisplay(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.metrics.RecordHTTPError(r.Method, "/display", "upgrade_failed")
		return
	}

	h.mu.Lock()
	h.sockets[conn] = struct{}{}
	h.mu.Unlock()

	sub := h.client.Display()
	defer func() {
		sub.Close()
		h.mu.Lock()
		delete(h.sockets, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	h.logger.Debug("Display stream opened", slog.String("remote", r.RemoteAddr))

	// The peer never sends anything useful; reading detects when it leaves
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case payload, ok := <-sub.Frames():
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "display closed"),
					time.Now().Add(time.Second))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(displayWriteTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				h.logger.Debug("Display stream write failed", slog.String("error", err.Error()))
				return
			}
		case <-gone:
			h.logger.Debug("Display stream closed", slog.String("remote", r.RemoteAddr))
			return
		}
	}
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	apiDoc := map[string]interface{}{
		"service": "gslimp3",
		"version": version.Version,
		"endpoints": map[string]interface{}{
			"GET /":               "API documentation",
			"GET /health":         "Client health check",
			"GET /stats":          "Protocol engine statistics",
			"GET /config":         "Client configuration",
			"GET /codes":          "Remote control code table",
			"POST /remote/{name}": "Send a remote control button press",
			"GET /display":        "Display updates (websocket, binary frames)",
			"GET /metrics":        "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}
