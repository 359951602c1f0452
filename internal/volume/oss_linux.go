//go:build linux

package volume

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// OSS ioctl requests: _IOR('M', 0xfe, int) and _IOWR('M', ch, int)
const (
	mixerReadDevmask = 0x80044dfe
	mixerWriteBase   = 0xc0044d00
)

func (m *OSSMixer) write(ch int, value int) error {
	fd, err := unix.Open(m.device, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrMixerUnavailable, m.device, err)
	}
	defer unix.Close(fd)

	mask, err := unix.IoctlGetInt(fd, mixerReadDevmask)
	if err != nil {
		return fmt.Errorf("%w: read device mask: %w", ErrMixerUnavailable, err)
	}
	if mask&(1<<ch) == 0 {
		return fmt.Errorf("%w: control %s not present on %s", ErrMixerUnavailable, ossControls[ch], m.device)
	}

	if err := unix.IoctlSetPointerInt(fd, uint(mixerWriteBase|ch), value); err != nil {
		return fmt.Errorf("failed to set %s: %w", ossControls[ch], err)
	}
	return nil
}
