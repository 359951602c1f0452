package volume

import (
	"fmt"
	"strings"
)

// DefaultDevice is the usual OSS mixer device node
const DefaultDevice = "/dev/mixer"

// ossControls lists OSS mixer channels in device-number order
var ossControls = []string{
	"vol", "bass", "treble", "synth", "pcm", "speaker", "line", "mic", "cd",
	"mix", "pcm2", "rec", "igain", "ogain", "line1", "line2", "line3",
	"dig1", "dig2", "dig3", "phin", "phout", "video", "radio", "monitor",
}

// ControlChannel returns the OSS channel number of a named control
func ControlChannel(name string) (int, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, c := range ossControls {
		if c == name {
			return i, true
		}
	}
	return 0, false
}

// ControlNames returns the recognised mixer control names
func ControlNames() []string {
	return append([]string(nil), ossControls...)
}

// OSSMixer drives an Open Sound System mixer device.
// The device is opened for each update so a mixer that appears or vanishes
// at runtime is handled without restarting.
type OSSMixer struct {
	device string
}

// NewOSSMixer creates a mixer bound to a device node
func NewOSSMixer(device string) *OSSMixer {
	if device == "" {
		device = DefaultDevice
	}
	return &OSSMixer{device: device}
}

// Device returns the mixer device path
func (m *OSSMixer) Device() string {
	return m.device
}

// SetLevel sets the left and right levels of a control, each 0..100
func (m *OSSMixer) SetLevel(control string, left, right int) error {
	ch, ok := ControlChannel(control)
	if !ok {
		return fmt.Errorf("%w: unknown control %q", ErrMixerUnavailable, control)
	}
	if left < 0 || left > 100 || right < 0 || right > 100 {
		return fmt.Errorf("%w: %d/%d", ErrLevelOutOfRange, left, right)
	}
	return m.write(ch, left|right<<8)
}
