package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/theblitlabs/parity-monitor/internal/api"
	"github.com/theblitlabs/parity-monitor/internal/broadcast"
	"github.com/theblitlabs/parity-monitor/internal/config"
	"github.com/theblitlabs/parity-monitor/internal/monitoring/health"
	"github.com/theblitlabs/parity-monitor/internal/monitoring/metrics"
	"github.com/theblitlabs/parity-monitor/internal/server"
	"github.com/theblitlabs/parity-monitor/internal/telemetry"
	"github.com/theblitlabs/parity-monitor/pkg/logger"
)

const (
	probeTimeout    = 5 * time.Second
	shutdownTimeout = 15 * time.Second
)

func RunServer(configPath string) {
	log := logger.WithComponent("server")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runServer(ctx, cfg); err != nil {
		stop()
		log.Fatal().Err(err).Msg("Server stopped with error")
	}
	log.Info().Msg("Server stopped")
}

func runServer(ctx context.Context, cfg *config.Config) error {
	log := logger.WithComponent("server")

	sampler := metrics.NewHostSampler()
	collector := metrics.NewCollector(sampler, sampler, cfg.Sampler.MeasureWindow)

	probeCtx, cancelProbe := context.WithTimeout(ctx, probeTimeout)
	err := collector.Probe(probeCtx)
	cancelProbe()
	if err != nil {
		return fmt.Errorf("host metrics check failed: %w", err)
	}

	specs, err := cfg.Server.Listeners()
	if err != nil {
		return err
	}

	shutdownTelemetry, err := telemetry.InitTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.Error().Err(err).Msg("Telemetry shutdown failed")
		}
	}()

	hub := broadcast.NewServer(broadcast.Config{
		CycleInterval:  cfg.Sampler.CycleInterval,
		WriteWait:      cfg.Server.Websocket.WriteWait,
		MaxMessageSize: cfg.Server.Websocket.MaxMessageSize,
		Endpoint:       cfg.Server.Endpoint,
	}, collector)

	checker := health.NewHealthChecker(cfg.Health.Interval, collector, hub)
	checker.Start()
	defer checker.Stop()

	router := api.NewRouter(checker, hub)
	srv := server.NewServer(router, specs)
	if err := srv.Listen(); err != nil {
		return err
	}
	for name, addr := range srv.Addrs() {
		log.Info().
			Str("listener", name).
			Str("addr", addr).
			Str("endpoint", cfg.Server.Endpoint).
			Dur("cycle_interval", cfg.Sampler.CycleInterval).
			Dur("measure_window", collector.Window()).
			Msg("Server listening")
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(context.Background())
	}()

	var runErr error
	serveDone := false
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received, gracefully shutting down...")
	case err := <-hub.Errors():
		runErr = fmt.Errorf("sampling stopped: %w", err)
	case err := <-serveErr:
		serveDone = true
		runErr = err
		if runErr == nil {
			runErr = errors.New("server stopped unexpectedly")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownStart := time.Now()
	if err := hub.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Session shutdown error")
	}
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	if !serveDone {
		if err := <-serveErr; err != nil && runErr == nil {
			runErr = err
		}
	}

	log.Info().
		Dur("duration", time.Since(shutdownStart)).
		Msg("Shutdown complete")
	return runErr
}
