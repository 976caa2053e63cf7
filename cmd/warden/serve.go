// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/warden-works/warden/governance"
	"github.com/warden-works/warden/guard"
	"github.com/warden-works/warden/ledger"
	"github.com/warden-works/warden/lib/clock"
	"github.com/warden-works/warden/lib/config"
	"github.com/warden-works/warden/lib/llm"
	"github.com/warden-works/warden/policy"
	"github.com/warden-works/warden/router"
	"github.com/warden-works/warden/sentinel"
)

// runServe is the daemon lifecycle: integrity guard, then ledger,
// then router, then the expiry sweep loop until a shutdown signal.
// The router is the embedding surface for the rest of the system;
// transports (HTTP, chat) live outside this repository and call the
// router in-process.
func runServe(args []string) error {
	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to the warden config file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	path, err := config.Locate(*configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	policies, err := policy.LoadSet(cfg.Paths.Policies)
	if err != nil {
		return err
	}

	bootGuard, err := guard.New(guard.Config{
		DataDir:             cfg.Paths.DataDir,
		LockPath:            cfg.Paths.Lock,
		StoreLockPath:       cfg.Paths.StoreLock,
		ChainPath:           cfg.Paths.Chain,
		RequiredCredentials: cfg.GuardCredentials(),
		Logger:              logger,
	})
	if err != nil {
		return err
	}
	if err := bootGuard.Check(); err != nil {
		return err
	}
	defer bootGuard.Release()

	auditLedger, err := ledger.Open(ledger.Config{
		EventDBPath: cfg.Paths.EventDB,
		ChainPath:   cfg.Paths.Chain,
		Clock:       clock.Real(),
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer auditLedger.Close()

	validator, err := governance.NewGrantValidator(cfg.Grants)
	if err != nil {
		return err
	}

	scanner := sentinel.Tiered{Heuristic: sentinel.Heuristic{}}
	if cfg.Sentinel.Enabled {
		provider := llm.NewAnthropic(nil, cfg.Sentinel.Endpoint,
			os.Getenv(cfg.Sentinel.APIKeyEnv), cfg.Sentinel.Model)
		scanner.Semantic = sentinel.NewSemantic(provider, cfg.Sentinel.Timeout)
	}

	channelRouter, err := router.New(router.Config{
		Policies:  policies,
		Ledger:    auditLedger,
		Validator: validator,
		Scanner:   scanner,
		Clock:     clock.Real(),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("warden running",
		"data_dir", cfg.Paths.DataDir,
		"policies", cfg.Paths.Policies,
		"sentinel_semantic", cfg.Sentinel.Enabled,
	)

	ticker := time.NewTicker(cfg.ExpirySweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-ticker.C:
			if expired := channelRouter.ExpireChannels(context.Background()); len(expired) > 0 {
				logger.Info("expired channels", "count", len(expired))
			}
		}
	}
}
