// Package identity resolves the 6-byte hardware identifier the client uses to
// introduce itself to the server.
package identity
