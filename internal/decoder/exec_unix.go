//go:build unix

package decoder

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultShell interprets decoder command lines
const DefaultShell = "/bin/sh"

// ExecLauncher runs a decoder command line through a shell.
// The program's standard output is discarded.
type ExecLauncher struct {
	Command string
	Shell   string
	Stderr  io.Writer
}

// Launch starts the command in its own process group
func (l *ExecLauncher) Launch() (Handle, error) {
	if l.Command == "" {
		return nil, errors.New("decoder command is empty")
	}

	shell := l.Shell
	if shell == "" {
		shell = DefaultShell
	}

	cmd := exec.Command(shell, "-c", l.Command)
	cmd.Stderr = l.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %q: %w", l.Command, err)
	}

	h := &execHandle{
		cmd:    cmd,
		stdin:  stdin,
		exited: make(chan struct{}),
	}
	go func() {
		h.waitErr = cmd.Wait()
		close(h.exited)
	}()

	return h, nil
}

type execHandle struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	exited  chan struct{}
	waitErr error
}

func (h *execHandle) Write(p []byte) (int, error) {
	return h.stdin.Write(p)
}

func (h *execHandle) Exited() <-chan struct{} {
	return h.exited
}

// Terminate signals the whole process group so the shell's children go too
func (h *execHandle) Terminate(timeout time.Duration) error {
	select {
	case <-h.exited:
		return nil
	default:
	}

	pgid := -h.cmd.Process.Pid
	_ = h.stdin.Close()

	if err := unix.Kill(pgid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("failed to signal decoder: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.exited:
		return nil
	case <-timer.C:
	}

	_ = unix.Kill(pgid, unix.SIGKILL)
	<-h.exited
	return fmt.Errorf("decoder did not exit within %s and was killed", timeout)
}

// Pid returns the process id of the shell
func (h *execHandle) Pid() int {
	return h.cmd.Process.Pid
}
