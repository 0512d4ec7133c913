// Package main is the entry point of the peace and security connector.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"peacesecurity/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cli.Execute(ctx)

	stop()

	if err != nil {
		os.Exit(1)
	}
}
