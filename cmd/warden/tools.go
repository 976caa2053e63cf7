// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/warden-works/warden/guard"
	"github.com/warden-works/warden/ledger"
	"github.com/warden-works/warden/lib/config"
	"github.com/warden-works/warden/lib/process"
	"github.com/warden-works/warden/policy"
)

func loadConfigFlag(name string, args []string) (*config.Config, error) {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to the warden config file")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	path, err := config.Locate(*configPath)
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

// runVerify replays the decision chain and reports the first broken
// entry, if any. Exits nonzero on a broken chain so scripts can gate
// on it.
func runVerify(args []string) error {
	cfg, err := loadConfigFlag("verify", args)
	if err != nil {
		return err
	}
	chain, err := ledger.OpenChain(cfg.Paths.Chain)
	if err != nil {
		return err
	}
	entries, err := chain.Entries()
	if err != nil {
		return err
	}
	valid, brokenIndex, err := chain.Verify()
	if err != nil {
		return err
	}
	if !valid {
		return fmt.Errorf("chain %s: INVALID at entry %d of %d (entries before it verify)",
			cfg.Paths.Chain, brokenIndex, len(entries))
	}
	fmt.Printf("chain %s: valid (%d entries)\n", cfg.Paths.Chain, len(entries))
	return nil
}

// runRepair clears confirmed-stale locks and quarantines a broken
// chain.
func runRepair(args []string) error {
	cfg, err := loadConfigFlag("repair", args)
	if err != nil {
		return err
	}
	bootGuard, err := guard.New(guard.Config{
		DataDir:       cfg.Paths.DataDir,
		LockPath:      cfg.Paths.Lock,
		StoreLockPath: cfg.Paths.StoreLock,
		ChainPath:     cfg.Paths.Chain,
		Logger:        slog.New(slog.NewTextHandler(os.Stderr, nil)),
	})
	if err != nil {
		return err
	}
	report, err := bootGuard.Repair()
	if err != nil {
		return err
	}
	fmt.Printf("process lock cleared: %v\n", report.ProcessLockCleared)
	fmt.Printf("store lock cleared:   %v\n", report.StoreLockCleared)
	if report.ChainQuarantinedTo != "" {
		fmt.Printf("chain quarantined to: %s\n", report.ChainQuarantinedTo)
	} else {
		fmt.Println("chain: intact, no re-base needed")
	}
	return nil
}

// runStatus prints lock ownership, chain health, and recent ledger
// activity.
func runStatus(args []string) error {
	cfg, err := loadConfigFlag("status", args)
	if err != nil {
		return err
	}

	pid, err := guard.LockOwner(cfg.Paths.Lock)
	switch {
	case err != nil:
		fmt.Printf("lock:  unreadable (%v)\n", err)
	case pid == 0:
		fmt.Println("lock:  free")
	case process.Alive(pid):
		fmt.Printf("lock:  held by live pid %d\n", pid)
	default:
		fmt.Printf("lock:  stale (dead pid %d)\n", pid)
	}

	chain, err := ledger.OpenChain(cfg.Paths.Chain)
	if err != nil {
		return err
	}
	entries, err := chain.Entries()
	if err != nil {
		return err
	}
	valid, brokenIndex, err := chain.Verify()
	if err != nil {
		return err
	}
	if valid {
		fmt.Printf("chain: valid (%d entries)\n", len(entries))
	} else {
		fmt.Printf("chain: BROKEN at entry %d of %d\n", brokenIndex, len(entries))
	}

	auditLedger, err := ledger.Open(ledger.Config{
		EventDBPath: cfg.Paths.EventDB,
		ChainPath:   cfg.Paths.Chain,
	})
	if err != nil {
		return err
	}
	defer auditLedger.Close()
	events, err := auditLedger.Events(context.Background(), 5)
	if err != nil {
		return err
	}
	fmt.Printf("ledger: %d recent events\n", len(events))
	for _, event := range events {
		fmt.Printf("  %s  %-18s %s %s -> %s (%s)\n",
			event.Timestamp.Format("2006-01-02 15:04:05"),
			event.Type, event.ActorID, event.Action, event.Target, event.Status)
	}
	return nil
}

// runLint parses a policy file and reports what it declares.
func runLint(args []string) error {
	flags := pflag.NewFlagSet("lint", pflag.ContinueOnError)
	file := flags.String("file", "", "policy file to lint (defaults to the configured one)")
	configPath := flags.String("config", "", "path to the warden config file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	target := *file
	if target == "" {
		path, err := config.Locate(*configPath)
		if err != nil {
			return err
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		target = cfg.Paths.Policies
	}

	set, err := policy.LoadSet(target)
	if err != nil {
		return err
	}
	fmt.Printf("%s: ok\n", target)
	fmt.Printf("most restrictive policy: %q\n", set.MostRestrictive().ID)
	return nil
}
