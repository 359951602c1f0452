package config

import (
	"errors"
	"fmt"
)

// ErrInvalidHost is wrapped by ConfigurationError when a server host is
// empty or cannot be resolved to an IPv4 address
var ErrInvalidHost = errors.New("invalid server host")

// ConfigurationError reports an invalid configuration value
type ConfigurationError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
