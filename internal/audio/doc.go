// Package audio emulates the SLIMP3 buffer chip.
// The server writes MPEG data into a fixed-size circular buffer at offsets of
// its choosing; the client drains it in contiguous runs toward the decoder and
// reports the read pointer back in acknowledgements.
package audio
