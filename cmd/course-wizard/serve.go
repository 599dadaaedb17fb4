package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	apiserver "github.com/Harvard-University-iCommons/canvas-site-wizard/internal/api_server"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/internal/config"
	"github.com/Harvard-University-iCommons/canvas-site-wizard/pkg/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the course creation API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}
		initLogger(cfg)
		defer func() { _ = zap.S().Sync() }()

		zap.S().Info("Starting course-wizard API service")
		defer zap.S().Info("API service stopped")

		s, err := initStore(cfg)
		if err != nil {
			zap.S().Fatalf("initializing data store: %v", err)
		}
		defer s.Close()

		if err := s.InitialMigration(); err != nil {
			zap.S().Fatalf("running initial migration: %v", err)
		}

		services, err := buildServices(cfg, s)
		if err != nil {
			zap.S().Fatalf("building services: %v", err)
		}

		metrics.RegisterJobStatsCollector(s, cfg.Service.LongRunningAge)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				zap.S().Fatalf("creating listener: %s", err)
			}

			server := apiserver.New(cfg, s, services.engine, services.finalizer, listener)
			if err := server.Run(ctx); err != nil {
				zap.S().Fatalf("Error running server: %s", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				zap.S().Fatalf("creating metrics listener: %s", err)
			}

			metricsServer := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener)
			if err := metricsServer.Run(ctx); err != nil {
				zap.S().Fatalf("Error running metrics server: %s", err)
			}
		}()

		<-ctx.Done()
		return nil
	},
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
