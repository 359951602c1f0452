// Package volume decodes the appliance's volume sub-protocol and applies the
// result to a sound mixer.
//
// The server drives volume by writing raw register values to the appliance's
// audio chip over its I2C bus. Requests are recognised by a fixed 7-byte
// signature; the 24-bit register value is mapped onto a 0..100 level with a
// square-root curve and applied to both channels of one mixer control.
package volume
