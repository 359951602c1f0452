package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jmullan/gslimp3/internal/identity"
)

// Default protocol ports
const (
	DefaultServerPort = 3483
	DefaultBasePort   = 3484
	DefaultPortRange  = 10
)

// Config represents the complete client configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Client  ClientConfig  `yaml:"client"`
	Decoder DecoderConfig `yaml:"decoder"`
	Volume  VolumeConfig  `yaml:"volume"`
	Display DisplayConfig `yaml:"display"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig identifies the streaming server
type ServerConfig struct {
	Host string `yaml:"host"` // hostname, IPv4 literal or 255.255.255.255 to discover
	Port int    `yaml:"port"`
}

// ClientConfig contains local socket and identity configuration
type ClientConfig struct {
	BasePort        int    `yaml:"base_port"`
	PortRange       int    `yaml:"port_range"`
	Interface       string `yaml:"interface"`
	HardwareAddress string `yaml:"hardware_address"` // overrides the interface address
	LockDir         string `yaml:"lock_dir"`
}

// DecoderConfig contains external decoder configuration
type DecoderConfig struct {
	Command     string `yaml:"command"`      // empty disables playback
	StopTimeout int    `yaml:"stop_timeout"` // seconds
}

// VolumeConfig contains mixer configuration
type VolumeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Device  string `yaml:"device"`
	Control string `yaml:"control"`
}

// DisplayConfig contains display stream configuration
type DisplayConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// HTTPConfig contains status API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration that talks to a server on localhost
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: DefaultServerPort,
		},
		Client: ClientConfig{
			BasePort:  DefaultBasePort,
			PortRange: DefaultPortRange,
			Interface: "eth0",
		},
		Decoder: DecoderConfig{
			Command:     "madplay -Q -",
			StopTimeout: 5,
		},
		Volume: VolumeConfig{
			Enabled: true,
			Device:  "/dev/mixer",
			Control: "pcm",
		},
		Display: DisplayConfig{
			QueueSize: 64,
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Address: "127.0.0.1",
			Port:    9483,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
			Output: "stderr",
		},
	}
}

// Load reads and parses the configuration file on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Client.Validate(); err != nil {
		return fmt.Errorf("client config: %w", err)
	}

	if err := c.Decoder.Validate(); err != nil {
		return fmt.Errorf("decoder config: %w", err)
	}

	if err := c.Volume.Validate(); err != nil {
		return fmt.Errorf("volume config: %w", err)
	}

	if err := c.Display.Validate(); err != nil {
		return fmt.Errorf("display config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration. Host resolution is deferred to
// ResolveServer so a config file can be checked offline.
func (s *ServerConfig) Validate() error {
	if s.Host == "" {
		return &ConfigurationError{Field: "host", Value: s.Host, Err: ErrInvalidHost}
	}
	return ValidatePort("port", s.Port)
}

// Validate validates client configuration
func (c *ClientConfig) Validate() error {
	if err := ValidatePort("base_port", c.BasePort); err != nil {
		return err
	}

	if c.PortRange < 1 {
		return fmt.Errorf("port_range must be at least 1, got %d", c.PortRange)
	}

	if c.BasePort+c.PortRange-1 > 65535 {
		return fmt.Errorf("port range %d+%d exceeds 65535", c.BasePort, c.PortRange)
	}

	if c.HardwareAddress != "" {
		if _, err := identity.Parse(c.HardwareAddress); err != nil {
			return &ConfigurationError{Field: "hardware_address", Value: c.HardwareAddress, Err: err}
		}
	} else if c.Interface == "" {
		return fmt.Errorf("interface cannot be empty without hardware_address")
	}

	return nil
}

// Validate validates decoder configuration
func (d *DecoderConfig) Validate() error {
	if d.StopTimeout < 1 {
		return fmt.Errorf("stop_timeout must be at least 1 second, got %d", d.StopTimeout)
	}
	return nil
}

// Validate validates volume configuration
func (v *VolumeConfig) Validate() error {
	if v.Enabled {
		if v.Device == "" {
			return fmt.Errorf("device cannot be empty when volume control is enabled")
		}
		if v.Control == "" {
			return fmt.Errorf("control cannot be empty when volume control is enabled")
		}
	}
	return nil
}

// Validate validates display configuration
func (d *DisplayConfig) Validate() error {
	if d.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", d.QueueSize)
	}
	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true, "auto": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'auto', 'json' or 'text', got '%s'", l.Format)
	}

	// Anything other than stdout or stderr is a file path
	return nil
}

// GetStopTimeoutDuration returns the decoder stop timeout as a time.Duration
func (d *DecoderConfig) GetStopTimeoutDuration() time.Duration {
	return time.Duration(d.StopTimeout) * time.Second
}

// ErrInvalidPort is wrapped by ConfigurationError for out of range ports
var ErrInvalidPort = errors.New("port must be between 1 and 65535")

// ValidatePort checks a UDP port number
func ValidatePort(field string, port int) error {
	if port < 1 || port > 65535 {
		return &ConfigurationError{Field: field, Value: fmt.Sprint(port), Err: ErrInvalidPort}
	}
	return nil
}
