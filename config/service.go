package config

import (
	"sync"

	"github.com/geoffjay/drover/broker"

	log "github.com/sirupsen/logrus"
)

// Config represents the droverd service configuration structure.
type Config struct {
	Env     string         `mapstructure:"env"`
	Broker  broker.Config  `mapstructure:"broker"`
	Log     LogConfig      `mapstructure:"log"`
	Devices []DeviceConfig `mapstructure:"devices"`
	Auths   []AuthConfig   `mapstructure:"auths"`
}

var lock = &sync.Mutex{}
var instance *Config

var defaults = map[string]interface{}{
	"env":           "development",
	"log.formatter": "text",
	"log.level":     "info",

	"broker.bind_address":    "0.0.0.0",
	"broker.bind_port":       8080,
	"broker.max_frame_size":  broker.DefaultMaxFrameSize,
	"broker.close_timeout":   "10s",
	"broker.command_timeout": "30s",
	"broker.read_timeout":    "4s",
	"broker.join_timeout":    "10s",
	"broker.drain_timeout":   "30s",
	"broker.backoff_min":     "3s",
	"broker.backoff_max":     "15s",
	"broker.config_mode":     false,
}

// GetConfig returns the service configuration singleton.
func GetConfig() *Config {
	if instance == nil {
		lock.Lock()
		defer lock.Unlock()
		if instance == nil {
			if err := LoadConfigWithDefaults("droverd", &instance, defaults); err != nil {
				log.Fatalf("error reading config file: %s\n", err)
			}
		}
	}

	log.Tracef("config: %+v", instance)

	return instance
}
