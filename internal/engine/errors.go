package engine

import (
	"errors"
	"fmt"
)

// ErrForeignSource marks a datagram from a host other than the server
var ErrForeignSource = errors.New("packet from wrong source")

// BindExhaustionError is returned when no port in the client range is free
type BindExhaustionError struct {
	Base  int
	Range int
	Err   error // last bind failure
}

func (e *BindExhaustionError) Error() string {
	return fmt.Sprintf("no free UDP port in %d..%d: %v", e.Base, e.Base+e.Range-1, e.Err)
}

func (e *BindExhaustionError) Unwrap() error {
	return e.Err
}
