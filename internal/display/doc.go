// Package display fans display updates out to local consumers.
// Frames are delivered either raw or as a byte stream in which each frame is
// preceded by its length as a 4-byte little-endian integer.
package display
