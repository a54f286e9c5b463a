package workerconfig

import (
	"fmt"
	"os"

	"github.com/mediaforge/sfuworker/limits"
	"gopkg.in/yaml.v3"
)

// Config is the worker's startup configuration, normally supplied by the
// supervisor as a YAML file named on the command line (spec §6:
// "Environment. Two file descriptors ... are inherited from the
// supervisor").
type Config struct {
	// ChannelReadFD and ChannelWriteFD are the inherited file descriptor
	// numbers for the control channel's two directions.
	ChannelReadFD  int `yaml:"channelReadFd"`
	ChannelWriteFD int `yaml:"channelWriteFd"`

	// ChannelBufferSize overrides limits.DefaultChannelBufferSize when
	// positive; zero means "use the default".
	ChannelBufferSize int `yaml:"channelBufferSize"`

	// LogLevel is parsed by workerlog.SetLevel; unset or unrecognized
	// falls back to info.
	LogLevel string `yaml:"logLevel"`
}

// Load reads and parses a YAML config file at path, then applies defaults
// for any unset field.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading worker config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing worker config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating worker config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ChannelBufferSize == 0 {
		c.ChannelBufferSize = limits.DefaultChannelBufferSize
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate rejects a config naming a buffer size outside the bounds this
// worker can safely allocate.
func (c *Config) Validate() error {
	if c.ChannelBufferSize <= 0 || c.ChannelBufferSize > limits.MaxProcessingBuffer {
		return fmt.Errorf("channelBufferSize %d out of range [1, %d]", c.ChannelBufferSize, limits.MaxProcessingBuffer)
	}
	if c.ChannelReadFD < 0 || c.ChannelWriteFD < 0 {
		return fmt.Errorf("channel file descriptors must be non-negative, got read=%d write=%d", c.ChannelReadFD, c.ChannelWriteFD)
	}
	return nil
}
