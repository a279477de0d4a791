// Underwriter - Bank-statement scorecards for merchant cash advance underwriting.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/underwriter/internal/commands"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	_ = godotenv.Load()

	commands.Version = Version
	commands.Commit = Commit
	commands.BuildDate = BuildDate

	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
