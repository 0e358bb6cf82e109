// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"os"

	relayerr "github.com/sigil-dev/chatrelay/pkg/errors"
)

// Exit codes: 1 for runtime failures, 2 for bad input or configuration.
const (
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if relayerr.IsInvalidInput(err) {
		return exitUsage
	}
	return exitFailure
}
