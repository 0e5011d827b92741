// Package config provides service configuration functionality.
package config

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// LokiConfig holds the settings of the Loki log shipping hook.
type LokiConfig struct {
	Address string            `mapstructure:"address"`
	Labels  map[string]string `mapstructure:"labels"`
}

// LogConfig holds the logging settings of a service.
type LogConfig struct {
	Formatter string     `mapstructure:"formatter"`
	Level     string     `mapstructure:"level"`
	Loki      LokiConfig `mapstructure:"loki"`
}

// DeviceConfig is one device inventory entry.
type DeviceConfig struct {
	Origin string `mapstructure:"origin"`
	Active bool   `mapstructure:"active"`
}

// AuthConfig is one handshake credential.
type AuthConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// LoadConfigWithDefaults populates config from a named YAML file with the
// provided defaults and DROVER_* environment overrides applied. A missing
// config file is not an error; the defaults then stand.
func LoadConfigWithDefaults(name string, config interface{}, defaults map[string]interface{}) error {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/drover")
	v.AddConfigPath("/etc/drover")
	if path := os.Getenv("DROVER_CONFIG"); path != "" {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("drover")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	return v.Unmarshal(config)
}
