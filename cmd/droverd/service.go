package main

import (
	"github.com/geoffjay/drover/broker"
	"github.com/geoffjay/drover/config"
	"github.com/geoffjay/drover/mapping"
	"github.com/geoffjay/drover/worker"

	log "github.com/sirupsen/logrus"
)

type service struct {
	server    *broker.Server
	inventory *mapping.Static
}

func (s *service) init(cfg *config.Config) {
	log.WithFields(log.Fields{
		"service": "droverd",
		"context": "service.init",
	}).Debug("initializing")
	SetStatus(StatusInitializing)

	if err := cfg.Broker.Validate(); err != nil {
		log.WithError(err).Fatal("invalid broker configuration")
	}

	s.inventory = mapping.NewStatic(cfg.Devices, cfg.Auths)
	log.WithField("devices", len(cfg.Devices)).Debug("device inventory loaded")

	factory := worker.NewFactory(s.inventory)
	s.server = broker.NewServer(&cfg.Broker, s.inventory, s.inventory, factory)
}

func (s *service) start() error {
	log.WithFields(log.Fields{
		"service": "droverd",
		"context": "service.start",
	}).Debug("starting")
	return s.server.Start()
}

func (s *service) stop() error {
	log.WithFields(log.Fields{
		"service": "droverd",
		"context": "service.stop",
	}).Debug("stopping")
	return s.server.Stop()
}
