// Package client is the public face of the SLIMP3 client. It resolves
// configuration, owns the long-lived collaborators (volume controller,
// display hub, metrics) and runs one protocol engine per connection in its
// own goroutine, talking to it only through a command channel.
package client
