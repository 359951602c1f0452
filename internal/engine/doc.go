// Package engine runs the SLIMP3 client protocol.
//
// An Engine owns one UDP socket and a single event loop. The loop waits on
// inbound datagrams, decoder readiness, remote commands from the caller and
// cancellation, and services exactly one of them per iteration. All protocol
// state lives in that loop: the ring buffer, the control state, the decoder
// and the server endpoint. Helper goroutines only move bytes.
package engine
