package client

import "errors"

var (
	// ErrNotConnected is returned when a command needs a running engine
	ErrNotConnected = errors.New("client is not connected")

	// ErrAlreadyConnected is returned by Connect while an engine is running
	ErrAlreadyConnected = errors.New("client is already connected")

	// ErrUnknownRemoteCode is returned for a button name missing from the
	// remote control table
	ErrUnknownRemoteCode = errors.New("unknown remote code")

	// ErrCommandQueueFull is returned when the engine is not draining
	// commands fast enough
	ErrCommandQueueFull = errors.New("command queue full")

	// ErrLocked is returned when another client holds the lock for the same
	// hardware identity
	ErrLocked = errors.New("another client with this identity is running")
)
