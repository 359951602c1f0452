package config

import (
	"context"
	"fmt"
	"net"
	"time"
)

// resolveTimeout bounds hostname lookups
const resolveTimeout = 10 * time.Second

// lookupIPv4 is replaced in tests
var lookupIPv4 = func(ctx context.Context, host string) ([]net.IP, error) {
	return net.DefaultResolver.LookupIP(ctx, "ip4", host)
}

// ResolveServer turns a host into an IPv4 address. The limited broadcast
// address is accepted as is; it means "discover the server".
func ResolveServer(host string) (net.IP, error) {
	if host == "" {
		return nil, &ConfigurationError{Field: "host", Value: host, Err: ErrInvalidHost}
	}

	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
		return nil, &ConfigurationError{Field: "host", Value: host, Err: fmt.Errorf("%w: not an IPv4 address", ErrInvalidHost)}
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	ips, err := lookupIPv4(ctx, host)
	if err != nil {
		return nil, &ConfigurationError{Field: "host", Value: host, Err: fmt.Errorf("%w: %w", ErrInvalidHost, err)}
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, &ConfigurationError{Field: "host", Value: host, Err: fmt.Errorf("%w: no IPv4 address", ErrInvalidHost)}
}

// ServerAddr resolves the configured server endpoint
func (c *Config) ServerAddr() (*net.UDPAddr, error) {
	if err := ValidatePort("port", c.Server.Port); err != nil {
		return nil, err
	}
	ip, err := ResolveServer(c.Server.Host)
	if err != nil {
		return nil, err
	}
	return &net.UDPAddr{IP: ip, Port: c.Server.Port}, nil
}
