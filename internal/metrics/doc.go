// Package metrics defines the Prometheus instrumentation of the client.
package metrics
