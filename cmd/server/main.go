// Package main is the entry point for the swarm trading simulation.
//
// Startup sequence: load configuration, wire every component through the
// DI container, start the paper exchange feed and the agent scheduler's
// tick loop, start the status/control HTTP server, then block for a
// shutdown signal and unwind in reverse.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/swarmtrader/internal/config"
	"github.com/aristath/swarmtrader/internal/di"
	"github.com/aristath/swarmtrader/internal/server"
	"github.com/aristath/swarmtrader/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})
	log.Info().Msg("starting swarm trader")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to wire dependencies")
	}
	defer container.Close()

	if feeder, ok := container.Connector.(interface{ StartFeed() }); ok {
		feeder.StartFeed()
		log.Info().Msg("paper exchange feed started")
	}

	if err := container.Scheduler.StartTickLoop(cfg.Runtime.TickInterval); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler tick loop")
	}
	log.Info().Int("agents", container.Scheduler.AgentCount()).Msg("scheduler started")

	srv := server.New(server.Config{
		Port:       cfg.Port,
		Log:        log,
		Bus:        container.Bus,
		Scheduler:  container.Scheduler,
		Registry:   container.Registry,
		Risk:       container.Risk,
		Builder:    container.Builder,
		PatternsDB: container.PatternsDB,
		TradesDB:   container.TradesDB,
		DevMode:    os.Getenv("DEV_MODE") == "true",
	})

	go func() {
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Fatal().Err(err).Msg("failed to start status server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("status server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutdown signal received")

	container.Scheduler.Stop()

	backupCtx, backupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	container.Backup.Run(backupCtx)
	backupCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("status server forced to shutdown")
	}

	log.Info().Msg("shutdown complete")
}
