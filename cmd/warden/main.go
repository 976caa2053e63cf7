// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Command warden runs the governed channel router and its operator
// tooling: boot the daemon, verify or repair the decision chain, and
// inspect runtime state.
package main

import (
	"fmt"
	"os"

	"github.com/warden-works/warden/lib/process"
)

const usage = `usage: warden <command> [flags]

commands:
  serve    boot the integrity guard and run the router daemon
  verify   verify the decision chain and exit
  repair   clear stale locks and quarantine a broken chain
  status   show lock, chain, and ledger state
  lint     parse and validate a policy file

Run 'warden <command> --help' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "verify":
		err = runVerify(os.Args[2:])
	case "repair":
		err = runRepair(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "lint":
		err = runLint(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "warden: unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		process.Fatal(err)
	}
}
