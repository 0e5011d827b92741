package broker

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Config holds all tunable parameters of the broker.
type Config struct {
	// Listener settings
	BindAddress string `yaml:"bind_address" mapstructure:"bind_address"`
	BindPort    int    `yaml:"bind_port" mapstructure:"bind_port"`

	// Frame and handshake settings
	MaxFrameSize int64         `yaml:"max_frame_size" mapstructure:"max_frame_size"`
	CloseTimeout time.Duration `yaml:"close_timeout" mapstructure:"close_timeout"`

	// Command and receive settings
	CommandTimeout time.Duration `yaml:"command_timeout" mapstructure:"command_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`

	// Worker teardown settings
	JoinTimeout  time.Duration `yaml:"join_timeout" mapstructure:"join_timeout"`
	DrainTimeout time.Duration `yaml:"drain_timeout" mapstructure:"drain_timeout"`

	// Rejected clients sleep a uniform random delay in [BackoffMin,
	// BackoffMax] before being dropped, so fleet-wide retries desynchronize.
	BackoffMin time.Duration `yaml:"backoff_min" mapstructure:"backoff_min"`
	BackoffMax time.Duration `yaml:"backoff_max" mapstructure:"backoff_max"`

	// ConfigMode forces every worker into the configuration-only variant.
	ConfigMode bool `yaml:"config_mode" mapstructure:"config_mode"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		BindAddress:    "0.0.0.0",
		BindPort:       8080,
		MaxFrameSize:   DefaultMaxFrameSize,
		CloseTimeout:   DefaultCloseTimeout,
		CommandTimeout: DefaultCommandTimeout,
		ReadTimeout:    DefaultReadTimeout,
		JoinTimeout:    DefaultJoinTimeout,
		DrainTimeout:   DefaultDrainTimeout,
		BackoffMin:     DefaultBackoffMin,
		BackoffMax:     DefaultBackoffMax,
		ConfigMode:     false,
	}
}

// LoadConfig loads configuration from a YAML file with environment variable
// overrides.
func LoadConfig(filename string) (*Config, error) {
	config := DefaultConfig()

	if filename != "" {
		if _, err := os.Stat(filename); err == nil {
			data, err := os.ReadFile(filename)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
			}
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
			}
		}
	}

	config.applyEnvironmentOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func (c *Config) applyEnvironmentOverrides() {
	if val := os.Getenv("DROVER_BIND_ADDRESS"); val != "" {
		c.BindAddress = val
	}
	if val := os.Getenv("DROVER_BIND_PORT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			c.BindPort = i
		}
	}
	if val := os.Getenv("DROVER_MAX_FRAME_SIZE"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.MaxFrameSize = i
		}
	}
	if val := os.Getenv("DROVER_CLOSE_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.CloseTimeout = duration
		}
	}
	if val := os.Getenv("DROVER_COMMAND_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.CommandTimeout = duration
		}
	}
	if val := os.Getenv("DROVER_READ_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.ReadTimeout = duration
		}
	}
	if val := os.Getenv("DROVER_JOIN_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.JoinTimeout = duration
		}
	}
	if val := os.Getenv("DROVER_DRAIN_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.DrainTimeout = duration
		}
	}
	if val := os.Getenv("DROVER_CONFIG_MODE"); val != "" {
		c.ConfigMode = val == "true" || val == "1"
	}
}

// Validate validates the configuration parameters.
func (c *Config) Validate() error {
	if c.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}
	if c.BindPort <= 0 || c.BindPort > 65535 {
		return fmt.Errorf("bind_port must be in (0, 65535]")
	}
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("max_frame_size must be positive")
	}
	if c.CloseTimeout <= 0 {
		return fmt.Errorf("close_timeout must be positive")
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command_timeout must be positive")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}
	if c.JoinTimeout <= 0 {
		return fmt.Errorf("join_timeout must be positive")
	}
	if c.DrainTimeout <= 0 {
		return fmt.Errorf("drain_timeout must be positive")
	}
	if c.BackoffMin <= 0 {
		return fmt.Errorf("backoff_min must be positive")
	}
	if c.BackoffMax < c.BackoffMin {
		return fmt.Errorf("backoff_max must be >= backoff_min")
	}
	return nil
}

// Endpoint returns the listener address in host:port form.
func (c *Config) Endpoint() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.BindPort)
}

// String returns a string representation of the configuration.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}
