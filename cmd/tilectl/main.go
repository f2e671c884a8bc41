package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"

	"github.com/louisbranch/tileduel/internal/cmd/tilectl"
	"github.com/louisbranch/tileduel/internal/platform/config"
)

func main() {
	root, err := tilectl.NewRootCommand()
	if err != nil {
		config.Exitf("parse env: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		pterm.Error.Println(err)
		stop()
		os.Exit(1)
	}
}
