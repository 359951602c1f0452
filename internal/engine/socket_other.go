//go:build !unix

package engine

import "syscall"

// enableBroadcast is a no-op here; discovery needs an explicit server host
func enableBroadcast(network, address string, c syscall.RawConn) error {
	return nil
}
