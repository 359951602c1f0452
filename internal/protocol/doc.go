// Package protocol implements the SLIMP3 wire format.
// Every packet starts with an 18-byte header whose first byte selects the
// packet type. Fields are encoded with explicit widths and byte orders, and
// all outbound packets carry the client's hardware identity at offset 12.
// The package also holds the infrared remote code table.
package protocol
