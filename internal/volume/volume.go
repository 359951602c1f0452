package volume

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
)

// MinPayloadSize is the shortest volume request that carries all value bytes
const MinPayloadSize = 25

// fullScale is the register value that maps to level 100
const fullScale = 0x80000

var signature = []byte{0x73, 0x77, 0x3A, 0x77, 0x68, 0x77, 0xB0}

var (
	ErrNotVolumeRequest = errors.New("payload is not a volume request")
	ErrShortPayload     = errors.New("volume request too short")
	ErrLevelOutOfRange  = errors.New("volume level out of range")
	ErrDisabled         = errors.New("volume control disabled")
	ErrMixerUnavailable = errors.New("mixer unavailable")
)

// Mixer sets the level of a named control
type Mixer interface {
	SetLevel(control string, left, right int) error
}

// IsRequest reports whether payload starts with the volume signature
func IsRequest(payload []byte) bool {
	return bytes.HasPrefix(payload, signature)
}

// Decode extracts the 24-bit register value from a volume request
func Decode(payload []byte) (uint32, error) {
	if !IsRequest(payload) {
		return 0, ErrNotVolumeRequest
	}
	if len(payload) < MinPayloadSize {
		return 0, fmt.Errorf("%w: expected %d bytes, got %d", ErrShortPayload, MinPayloadSize, len(payload))
	}
	return uint32(payload[24])<<16 | uint32(payload[18])<<8 | uint32(payload[20]), nil
}

// Level maps a register value onto the mixer scale
func Level(value uint32) int {
	return int(math.Sqrt(float64(value)/fullScale) * 100)
}

// Controller applies volume requests to a mixer control
type Controller struct {
	mixer   Mixer
	control string
	enabled atomic.Bool
	logger  *slog.Logger
}

// NewController creates a controller for one mixer control. A nil mixer is
// allowed; requests are then decoded but never applied.
func NewController(mixer Mixer, control string, enabled bool, logger *slog.Logger) *Controller {
	c := &Controller{
		mixer:   mixer,
		control: control,
		logger:  logger.With(slog.String("component", "volume")),
	}
	c.enabled.Store(enabled)
	return c
}

// SetEnabled turns mixer updates on or off. Safe for concurrent use.
func (c *Controller) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
}

// Enabled reports whether mixer updates are applied
func (c *Controller) Enabled() bool {
	return c.enabled.Load()
}

// Control returns the name of the mixer control being driven
func (c *Controller) Control() string {
	return c.control
}

// DecodeAndApply decodes a volume request and sets both channels of the
// mixer control to the resulting level. The decoded level is returned even
// when it was not applied. None of the errors are fatal to the caller.
func (c *Controller) DecodeAndApply(payload []byte) (int, error) {
	value, err := Decode(payload)
	if err != nil {
		c.logger.Debug("Ignoring I2C payload",
			slog.Int("size", len(payload)),
			slog.String("reason", err.Error()),
		)
		return 0, err
	}

	level := Level(value)

	if !c.Enabled() {
		c.logger.Debug("Volume control disabled, ignoring request", slog.Int("level", level))
		return level, ErrDisabled
	}

	if level < 0 || level > 100 {
		c.logger.Warn("Wrong volume level",
			slog.Int("level", level),
			slog.Uint64("value", uint64(value)),
		)
		return level, fmt.Errorf("%w: %d", ErrLevelOutOfRange, level)
	}

	if c.mixer == nil {
		c.logger.Warn("No mixer configured", slog.Int("level", level))
		return level, ErrMixerUnavailable
	}

	if err := c.mixer.SetLevel(c.control, level, level); err != nil {
		c.logger.Warn("Failed to set volume",
			slog.String("control", c.control),
			slog.Int("level", level),
			slog.String("error", err.Error()),
		)
		return level, err
	}

	c.logger.Debug("Volume set", slog.String("control", c.control), slog.Int("level", level))
	return level, nil
}
