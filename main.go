// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Tandem - Body/Engine Vehicle Electronics Core
//
// Runs the two controllers in one process and provides the client tooling
// for Engine's command port: live monitoring, error detection, command
// sending and telemetry relaying.

package main

import (
	"os"

	"github.com/Thermoquad/tandem/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
