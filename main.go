// The main package for the collectord executable.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/JakeFAU/blogi-collector/cmd"
)

// main defers all execution to the Cobra CLI, cancelling on SIGINT/SIGTERM.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cmd.Execute(ctx)
}
