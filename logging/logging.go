// Package logging initializes the process-wide logrus logger from service
// configuration.
package logging

import (
	"github.com/geoffjay/drover/config"

	log "github.com/sirupsen/logrus"
	"github.com/yukitsune/lokirus"
)

// Initialize applies the log level, formatter and optional Loki hook from
// the given configuration to the standard logger.
func Initialize(cfg config.LogConfig) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	switch cfg.Formatter {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	if cfg.Loki.Address != "" {
		opts := lokirus.NewLokiHookOptions().
			WithStaticLabels(labelsFrom(cfg.Loki.Labels))
		hook := lokirus.NewLokiHookWithOpts(
			cfg.Loki.Address,
			opts,
			log.InfoLevel,
			log.WarnLevel,
			log.ErrorLevel,
			log.FatalLevel)
		log.AddHook(hook)
	}
}

func labelsFrom(labels map[string]string) lokirus.Labels {
	out := lokirus.Labels{}
	for key, value := range labels {
		out[key] = value
	}
	return out
}
