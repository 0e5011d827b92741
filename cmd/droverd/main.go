// Package main provides the main entry point for the droverd daemon.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geoffjay/drover/config"
	"github.com/geoffjay/drover/logging"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "droverd",
		Short: "Device connection broker daemon",
		Long: `droverd accepts persistent connections from a fleet of mobile devices,
pairs each device with a worker and brokers command traffic between them.`,
		RunE: runService,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file to use instead of the search path")
}

func runService(_ *cobra.Command, _ []string) error {
	if cfgFile != "" {
		_ = os.Setenv("DROVER_CONFIG", cfgFile)
	}

	cfg := config.GetConfig()
	logging.Initialize(cfg.Log)

	svc := &service{}
	svc.init(cfg)

	if err := svc.start(); err != nil {
		SetLastError(err)
		SetStatus(StatusFailed)
		return err
	}
	SetStatus(StatusRunning)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	SetStatus(StatusStopping)
	if err := svc.stop(); err != nil {
		SetLastError(err)
	}
	SetStatus(StatusStopped)

	log.WithFields(log.Fields{
		"uptime": Uptime().Round(time.Second),
		"errors": GetErrorCount(),
	}).Info("droverd exited")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
