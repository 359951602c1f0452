//go:build unix

package engine

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// enableBroadcast lets the socket send discovery packets to 255.255.255.255
func enableBroadcast(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return serr
}
