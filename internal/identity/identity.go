package identity

import (
	"errors"
	"fmt"
	"net"
	"sync"
)

// Size is the length of a hardware identifier on the wire
const Size = 6

// Address is the 6-byte link-layer address that tags every outgoing packet
type Address [Size]byte

// ErrInvalidAddress is returned when a hardware address is not 6 bytes long
var ErrInvalidAddress = errors.New("hardware address must be 6 bytes")

// String formats the address as colon-separated hex
func (a Address) String() string {
	return net.HardwareAddr(a[:]).String()
}

// IsZero reports whether the address is all zero bytes
func (a Address) IsZero() bool {
	return a == Address{}
}

// Parse parses a textual MAC address such as "00:04:20:01:02:03"
func Parse(s string) (Address, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return Address{}, fmt.Errorf("parse hardware address %q: %w", s, err)
	}
	return FromHardwareAddr(hw)
}

// FromHardwareAddr converts a net.HardwareAddr, rejecting anything but 6 bytes
func FromHardwareAddr(hw net.HardwareAddr) (Address, error) {
	var a Address
	if len(hw) != Size {
		return a, fmt.Errorf("%w: got %d", ErrInvalidAddress, len(hw))
	}
	copy(a[:], hw)
	return a, nil
}

// Resolver looks up the hardware address of a network interface once and
// caches the result. An explicit override takes precedence over the lookup.
type Resolver struct {
	iface    string
	override string

	// lookup is swapped out in tests
	lookup func(name string) (*net.Interface, error)

	once sync.Once
	addr Address
	err  error
}

// NewResolver creates a resolver for the named interface
func NewResolver(iface, override string) *Resolver {
	return &Resolver{
		iface:    iface,
		override: override,
		lookup:   net.InterfaceByName,
	}
}

// Resolve returns the cached address, resolving it on first use.
// When resolution fails the zero address is returned alongside the error so
// callers can keep running with an anonymous identity.
func (r *Resolver) Resolve() (Address, error) {
	r.once.Do(func() {
		r.addr, r.err = r.resolve()
	})
	return r.addr, r.err
}

func (r *Resolver) resolve() (Address, error) {
	if r.override != "" {
		return Parse(r.override)
	}

	ifi, err := r.lookup(r.iface)
	if err != nil {
		return Address{}, fmt.Errorf("lookup interface %s: %w", r.iface, err)
	}

	addr, err := FromHardwareAddr(ifi.HardwareAddr)
	if err != nil {
		return Address{}, fmt.Errorf("interface %s: %w", r.iface, err)
	}
	return addr, nil
}
