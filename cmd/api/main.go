package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/congo-pay/remittance/internal/config"
	"github.com/congo-pay/remittance/internal/infra"
	"github.com/congo-pay/remittance/internal/logging"
	"github.com/congo-pay/remittance/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.AppName)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var backends server.Backends

	if cfg.DatabaseURL != "" {
		if err := infra.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.AppName)
		if err != nil {
			return err
		}
		defer db.Close()
		backends.DB = db
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory ledger and event log")
	}

	if cfg.RedisURL != "" {
		cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
		backends.Cache = cache
	} else {
		logger.Warn("REDIS_URL not set, wallet record is kept in memory")
	}

	if cfg.NATSURL != "" {
		nc, err := infra.NewNATSConn(cfg.NATSURL, cfg.AppName)
		if err != nil {
			return err
		}
		defer nc.Drain() // nolint:errcheck
		backends.NATS = nc
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := server.New(ctx, cfg, backends, registry, logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}

	logger.Info("remittance engine started",
		"addr", cfg.Address(),
		"env", cfg.AppEnv,
		"provider", cfg.Provider.Name,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Listen()
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
