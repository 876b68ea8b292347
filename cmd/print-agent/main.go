// The print agent: one process per physical device. It polls the printflow
// server for pending jobs addressed to its device, claims them, runs the
// configured print command, and reports the outcome.
//
// PRINTFLOW_SERVER_URL: base URL of the printflow server
// PRINTFLOW_DEVICE_ID: identity of the device this agent serves
// PRINTFLOW_DEVICE_KEY: key issued at device registration
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fiscaldesk/printflow/internal/agent"
	"github.com/fiscaldesk/printflow/internal/config"
	"github.com/fiscaldesk/printflow/internal/logging"
)

func main() {
	configPath := flag.String("config", "print-agent.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logging.New(cfg.Logging)

	if cfg.Agent.DeviceID == "" || cfg.Agent.DeviceKey == "" {
		log.Fatal("agent requires a device id and key")
	}
	if cfg.Agent.PrintCommand == "" {
		log.Fatal("agent requires a print command")
	}

	source := agent.NewClient(cfg.Agent.ServerURL, cfg.Agent.DeviceID, cfg.Agent.DeviceKey, cfg.Agent.PrintTimeout)
	printer := agent.NewCommandPrinter(cfg.Agent.PrintCommand, cfg.Agent.PrintArgs...)

	poller := agent.NewPoller(source, printer, agent.Config{
		DeviceID:     cfg.Agent.DeviceID,
		PollInterval: cfg.Agent.PollInterval,
		PrintTimeout: cfg.Agent.PrintTimeout,
		WorkerCount:  cfg.Agent.WorkerCount,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := poller.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start poller")
	}
	log.WithField("device_id", cfg.Agent.DeviceID).Info("agent polling")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	cancel()
	poller.Stop()
}
