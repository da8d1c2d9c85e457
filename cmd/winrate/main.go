// Command winrate plays many independent rounds and reports a strategy's win rate per board size.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"mineopoly.ai/internal/cmd/winrate"
	"mineopoly.ai/internal/platform/config"
)

func main() {
	cfg, err := winrate.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	logger := log.New(os.Stderr, "[winrate] ", log.LstdFlags|log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := winrate.Run(ctx, cfg, os.Stdout, logger); err != nil {
		config.Exitf("winrate: %v", err)
	}
}
