// Package cli provides the command-line interface of the bot.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Execute runs the root command until it returns or the process receives
// SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
