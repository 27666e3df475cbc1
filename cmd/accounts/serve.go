// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/account"
	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/pkg/errutil"
)

const (
	shutdownTimeout  = 5 * time.Second
	readinessTimeout = 2 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the accounts service",
		Long: `Run the accounts service: connect the stores, expose metrics and health
probes, and periodically sweep expired refresh tokens and revocations.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return oops.With("operation", "validate configuration").Wrap(err)
			}
			return runServe(cmd, cfg, deps)
		},
	}
}

func runServe(cmd *cobra.Command, cfg *config.Config, deps *Deps) error {
	logger := setupLogging(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info("starting accounts service",
		"storage_driver", cfg.Storage.Driver,
		"redis", cfg.Redis.Addr != "",
		"kafka", len(cfg.Kafka.Brokers) > 0,
	)

	if cfg.Database.AutoMigrate && cfg.Storage.Driver == config.DriverPostgres {
		if err := autoMigrate(cfg, deps, logger); err != nil {
			return err
		}
	}

	var (
		ready   atomic.Bool
		stores  atomic.Pointer[Stores]
		metrics account.MetricsRecorder
		obs     ObservabilityServer
	)

	if cfg.Observability.Addr != "" {
		obs = deps.ObservabilityServerFactory(cfg.Observability.Addr, func() bool {
			if !ready.Load() {
				return false
			}
			s := stores.Load()
			if s == nil || s.Ping == nil {
				return true
			}
			pingCtx, pingCancel := context.WithTimeout(context.Background(), readinessTimeout)
			defer pingCancel()
			return s.Ping(pingCtx) == nil
		})
		obsErrCh, err := obs.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.Observability.Addr).Wrap(err)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := obs.Stop(shutdownCtx); err != nil {
				logger.Warn("error stopping observability server", "error", err)
			}
		}()
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		if m := obs.Metrics(); m != nil {
			metrics = m
		}
	}

	rt, err := buildRuntime(ctx, cfg, deps, logger, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			errutil.LogError(logger, "error closing stores", err)
		}
	}()
	stores.Store(rt.stores)

	sweepOpts := []account.SweeperOption{
		account.WithSweepInterval(cfg.Sweep.Interval),
		account.WithSweepClock(deps.Clock),
		account.WithSweepLogger(logger),
	}
	if metrics != nil {
		sweepOpts = append(sweepOpts, account.WithSweepMetrics(metrics))
	}
	sweeper, err := account.NewSweeper(rt.stores.Refresh, rt.stores.Revoked, sweepOpts...)
	if err != nil {
		return err //nolint:wrapcheck // account errors carry their own codes
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	ready.Store(true)
	cmd.Println("Accounts service started")
	logger.Info("accounts service ready", "sweep_interval", cfg.Sweep.Interval)

	<-ctx.Done()
	ready.Store(false)
	logger.Info("shutting down...")

	wg.Wait()
	logger.Info("shutdown complete")
	return nil
}

func autoMigrate(cfg *config.Config, deps *Deps, logger *slog.Logger) error {
	m, err := deps.MigratorFactory(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("error closing migrator", "error", closeErr)
		}
	}()
	if err := m.Up(); err != nil {
		return err //nolint:wrapcheck // store errors carry their own codes
	}
	logger.Info("database migrations applied")
	return nil
}

// monitorServerErrors cancels ctx when the server reports an error. It exits
// when an error arrives, the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
