//go:build !unix

package decoder

import (
	"errors"
	"io"
)

// DefaultShell interprets decoder command lines
const DefaultShell = "/bin/sh"

// ExecLauncher runs a decoder command line through a shell
type ExecLauncher struct {
	Command string
	Shell   string
	Stderr  io.Writer
}

// Launch is not supported on this platform
func (l *ExecLauncher) Launch() (Handle, error) {
	return nil, errors.New("external decoders are only supported on unix systems")
}
