// The printflow server: HTTP API for job producers and print agents, plus
// the background maintenance loops.
//
// PRINTFLOW_PORT: HTTP listen port
// PRINTFLOW_DB_PATH: sqlite database path
// PRINTFLOW_JWT_SECRET: signing secret for user and agent tokens
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fiscaldesk/printflow/internal/api"
	"github.com/fiscaldesk/printflow/internal/api/middleware"
	"github.com/fiscaldesk/printflow/internal/config"
	"github.com/fiscaldesk/printflow/internal/db"
	"github.com/fiscaldesk/printflow/internal/jobstore"
	"github.com/fiscaldesk/printflow/internal/logging"
	"github.com/fiscaldesk/printflow/internal/notes"
	"github.com/fiscaldesk/printflow/internal/notify"
	"github.com/fiscaldesk/printflow/internal/sweeper"
)

func main() {
	configPath := flag.String("config", "printflow.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logging.New(cfg.Logging)

	conn, err := db.Open(db.Config{Path: cfg.Database.Path})
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer conn.Close()

	jobs := jobstore.NewStore(conn, log)
	noteStore := notes.NewStore(conn, log)
	devices := db.NewDeviceStore(conn)

	var sender *notify.Sender
	if cfg.Notify.Enabled {
		sender = notify.NewSender(cfg.Notify, log)
		sender.Start()
		defer sender.Stop()
		jobs.SetNotifier(sender)
	}

	auth, err := middleware.NewAuth(cfg.Server.JWTSecret, devices)
	if err != nil {
		log.WithError(err).Fatal("failed to set up auth")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sw := sweeper.New(jobs, sweeper.Config{
		Interval:   cfg.Sweeper.Interval,
		Retention:  cfg.Sweeper.Retention,
		ClaimLease: cfg.Agent.ClaimLease,
	}, log)
	sw.Start(ctx)
	defer sw.Stop()

	router := api.NewRouter(api.Deps{
		Jobs:    jobs,
		Notes:   noteStore,
		Devices: devices,
		Auth:    auth,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	cancel()
	if err := server.Shutdown(context.Background()); err != nil {
		log.WithError(err).Error("shutdown failed")
	}
}
