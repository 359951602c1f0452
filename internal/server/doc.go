// Package server implements the status and remote control HTTP API of the client.
// It exposes engine statistics, the remote code table, button presses,
// a websocket stream of display updates and Prometheus metrics.
package server
