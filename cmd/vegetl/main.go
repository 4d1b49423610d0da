// Command vegetl converts vegetation plot exports into AKVEG ingestion
// tables. Every command is a one-shot batch run driven by a dataset recipe
// and environment configuration.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("vegetl failed", "error", err)
		stop()
		os.Exit(1)
	}
}
