package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/installer/cmd/froyo-installer/commands"
	"github.com/openfroyo/installer/pkg/engine"
)

// Version information (set via ldflags during build)
var (
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	err := commands.Execute(context.Background(), engine.Version, Commit, BuildDate)
	if err == nil {
		return
	}

	if engine.IsCancelled(err) {
		commands.PrintCancelled(err)
		os.Exit(1)
	}
	log.Error().Err(err).Msg("Command execution failed")
	os.Exit(1)
}
