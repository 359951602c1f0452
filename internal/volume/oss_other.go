//go:build !linux

package volume

import "fmt"

func (m *OSSMixer) write(ch int, value int) error {
	return fmt.Errorf("%w: OSS mixers are only supported on linux", ErrMixerUnavailable)
}
