// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/ironcore-dev/opennaas-am/internal/config"
	"github.com/ironcore-dev/opennaas-am/internal/manager"
	"github.com/ironcore-dev/opennaas-am/internal/opennaas"
	"github.com/ironcore-dev/opennaas-am/internal/reconcile"
	"github.com/ironcore-dev/opennaas-am/internal/server"
	"github.com/ironcore-dev/opennaas-am/internal/store"
	"github.com/ironcore-dev/opennaas-am/internal/worker"
)

func main() {
	var configPath string
	var logLevel string

	cmd := &cobra.Command{
		Use:          "opennaas-am",
		Short:        "OpenNaaS ROADM aggregate manager",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			log, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, log)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to the configuration file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (logr.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return logr.Logger{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(zapLevel)
	zl, err := zc.Build()
	if err != nil {
		return logr.Logger{}, fmt.Errorf("failed to build logger: %w", err)
	}
	return zapr.NewLogger(zl), nil
}

func run(ctx context.Context, cfg *config.Config, log logr.Logger) error {
	log.Info("starting aggregate manager",
		"controller", fmt.Sprintf("%s:%d", cfg.OpenNaaS.ServerAddress, cfg.OpenNaaS.ServerPort),
		"dbDir", cfg.OpenNaaS.DBDir)

	st, err := store.Open(cfg.OpenNaaS.DBDir, log.WithName("store"))
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error(err, "failed to close store")
		}
	}()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	client := opennaas.New(cfg.OpenNaaS.ServerAddress, cfg.OpenNaaS.ServerPort,
		cfg.OpenNaaS.User, cfg.OpenNaaS.Password,
		opennaas.WithLogger(log.WithName("opennaas")))

	mgr := manager.New(st, client, cfg.OpenNaaS.ReservationTTL(), log.WithName("manager"))
	fsm := reconcile.New(client, st, cfg.OpenNaaS.UpdateStep, log.WithName("reconcile"))

	runner := worker.NewRunner(log.WithName("worker"))
	runner.Add("update_resources", cfg.OpenNaaS.UpdateInterval(), fsm.Step)
	runner.Add("check_resources_expiration", cfg.OpenNaaS.ExpireInterval(), mgr.CheckExpiration)

	ops := server.New(cfg.ListenAddress, mgr, st.Ping, log.WithName("server"))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(ctx) })
	g.Go(func() error { return ops.Run(ctx) })
	err = g.Wait()
	log.Info("aggregate manager stopped")
	return err
}
