package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jmullan/gslimp3/internal/client"
	"github.com/jmullan/gslimp3/internal/config"
	"github.com/jmullan/gslimp3/internal/display"
	"github.com/jmullan/gslimp3/internal/engine"
	"github.com/jmullan/gslimp3/internal/identity"
	"github.com/jmullan/gslimp3/internal/metrics"
	"github.com/jmullan/gslimp3/internal/protocol"
)

type fakeController struct {
	mu        sync.Mutex
	connected bool
	sendErr   error
	sent      []string
	hub       *display.Hub
}

func (f *fakeController) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeController) Session() string { return "test-session" }

func (f *fakeController) Identity() identity.Address {
	return identity.Address{0x00, 0x04, 0x20, 0x01, 0x02, 0x03}
}

func (f *fakeController) Statistics() engine.Statistics {
	return engine.Statistics{Session: "test-session", Control: "decode", PacketsReceived: 42, VolumeLevel: -1}
}

func (f *fakeController) SendRemoteCode(name string) error {
	if _, ok := protocol.RemoteCode(name); !ok {
		return fmt.Errorf("%w: %q", client.ErrUnknownRemoteCode, name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return client.ErrNotConnected
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, name)
	return nil
}

func (f *fakeController) Display() *display.Subscription {
	return f.hub.Subscribe()
}

func (f *fakeController) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newTestServer(t *testing.T, fc *fakeController) (*HTTPServer, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	if fc.hub == nil {
		fc.hub = display.NewHub(8, logger)
	}

	reg := prometheus.NewRegistry()
	h := NewHTTPServer(config.HTTPConfig{Address: "127.0.0.1", Port: 0}, logger,
		config.Default(), fc, metrics.NewMetrics(reg), reg)

	ts := httptest.NewServer(h.Handler())
	t.Cleanup(ts.Close)
	return h, ts
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return body
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		connected  bool
		wantCode   int
		wantStatus string
	}{
		{name: "connected", connected: true, wantCode: http.StatusOK, wantStatus: "healthy"},
		{name: "disconnected", connected: false, wantCode: http.StatusServiceUnavailable, wantStatus: "disconnected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts := newTestServer(t, &fakeController{connected: tt.connected})

			resp, err := http.Get(ts.URL + "/health")
			if err != nil {
				t.Fatalf("GET /health failed: %v", err)
			}
			if resp.StatusCode != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, resp.StatusCode)
			}

			body := decodeBody(t, resp)
			if body["status"] != tt.wantStatus {
				t.Errorf("Expected status %q, got %v", tt.wantStatus, body["status"])
			}
			c := body["client"].(map[string]interface{})
			if c["identity"] != "00:04:20:01:02:03" {
				t.Errorf("Unexpected identity %v", c["identity"])
			}
		})
	}
}

func TestRemote(t *testing.T) {
	tests := []struct {
		name      string
		button    string
		connected bool
		sendErr   error
		wantCode  int
	}{
		{name: "known button", button: "play", connected: true, wantCode: http.StatusAccepted},
		{name: "unknown button", button: "eject", connected: true, wantCode: http.StatusNotFound},
		{name: "not connected", button: "pause", connected: false, wantCode: http.StatusServiceUnavailable},
		{name: "queue full", button: "rew", connected: true, sendErr: client.ErrCommandQueueFull, wantCode: http.StatusTooManyRequests},
		{name: "other failure", button: "rew", connected: true, sendErr: io.ErrClosedPipe, wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeController{connected: tt.connected, sendErr: tt.sendErr}
			_, ts := newTestServer(t, fc)

			resp, err := http.Post(ts.URL+"/remote/"+tt.button, "application/json", nil)
			if err != nil {
				t.Fatalf("POST failed: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, resp.StatusCode)
			}

			sent := fc.Sent()
			if tt.wantCode == http.StatusAccepted {
				if len(sent) != 1 || sent[0] != tt.button {
					t.Errorf("Expected %q to be sent, got %v", tt.button, sent)
				}
			} else if len(sent) != 0 {
				t.Errorf("Expected nothing sent, got %v", sent)
			}
		})
	}
}

func TestRemoteRequiresPost(t *testing.T) {
	_, ts := newTestServer(t, &fakeController{connected: true})

	resp, err := http.Get(ts.URL + "/remote/play")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected status %d, got %d", http.StatusMethodNotAllowed, resp.StatusCode)
	}
}

func TestCodes(t *testing.T) {
	_, ts := newTestServer(t, &fakeController{})

	resp, err := http.Get(ts.URL + "/codes")
	if err != nil {
		t.Fatalf("GET /codes failed: %v", err)
	}
	body := decodeBody(t, resp)

	want := len(protocol.RemoteCodeNames())
	if int(body["total"].(float64)) != want {
		t.Errorf("Expected %d codes, got %v", want, body["total"])
	}

	found := false
	for _, row := range body["codes"].([]interface{}) {
		entry := row.(map[string]interface{})
		if entry["name"] == "PLAY" {
			found = true
			if entry["code"] != "0x768910ef" {
				t.Errorf("Expected PLAY code 0x768910ef, got %v", entry["code"])
			}
		}
	}
	if !found {
		t.Error("PLAY missing from code listing")
	}
}

func TestStats(t *testing.T) {
	_, ts := newTestServer(t, &fakeController{connected: true})

	resp, err := http.Get(ts.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats failed: %v", err)
	}
	body := decodeBody(t, resp)

	eng := body["engine"].(map[string]interface{})
	if eng["packets_received"].(float64) != 42 {
		t.Errorf("Expected 42 packets received, got %v", eng["packets_received"])
	}
	if eng["control"] != "decode" {
		t.Errorf("Expected control decode, got %v", eng["control"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, &fakeController{connected: true})

	resp, err := http.Get(ts.URL + "/codes")
	if err != nil {
		t.Fatalf("GET /codes failed: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read metrics: %v", err)
	}

	if !strings.Contains(string(data), `slimp3_http_requests_total{endpoint="/codes",method="GET",status_code="200"} 1`) {
		t.Errorf("Expected request counter for /codes in:\n%s", data)
	}
}

func TestDisplayWebsocket(t *testing.T) {
	fc := &fakeController{connected: true}
	_, ts := newTestServer(t, fc)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/display"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for fc.hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Websocket never subscribed to the display hub")
		}
		time.Sleep(5 * time.Millisecond)
	}

	payload := []byte{0x02, 'H', 'i'}
	fc.hub.Publish(payload)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Errorf("Expected binary message, got %d", kind)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("Expected % x, got % x", payload, data)
	}

	fc.hub.Close()
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("Expected going-away close, got %v", err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for fc.hub.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Subscription not released after stream ended")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartAndStop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	fc := &fakeController{connected: true, hub: display.NewHub(1, logger)}
	reg := prometheus.NewRegistry()
	h := NewHTTPServer(config.HTTPConfig{Address: "127.0.0.1", Port: 0}, logger,
		config.Default(), fc, metrics.NewMetrics(reg), reg)

	if h.Addr() != nil {
		t.Error("Expected no address before Start")
	}
	if err := h.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp, err := http.Get("http://" + h.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if err := h.Stop(context.Background()); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
