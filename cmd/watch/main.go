// Command watch draws live rounds from a server's observer stream.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"mineopoly.ai/internal/cmd/watch"
	"mineopoly.ai/internal/platform/config"
)

func main() {
	cfg, err := watch.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := watch.Run(ctx, cfg, os.Stdout); err != nil {
		config.Exitf("watch: %v", err)
	}
}
