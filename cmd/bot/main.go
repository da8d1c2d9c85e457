// Command bot plays rounds against a lobby server with a local strategy.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mineopoly.ai/internal/platform/config"
	"mineopoly.ai/internal/sim/strategy/luastrat"
	"mineopoly.ai/internal/transport/ws"
)

type botConfig struct {
	URL      string `env:"BOT_URL" envDefault:"ws://localhost:8080/v1/ws"`
	Strategy string `env:"BOT_STRATEGY" envDefault:"greedy"`
	Token    string `env:"TOKEN"`
	Rounds   int    `env:"BOT_ROUNDS" envDefault:"1"`
}

func main() {
	var cfg botConfig
	if err := config.ParseEnv(&cfg); err != nil {
		config.Exitf("%v", err)
	}
	flag.StringVar(&cfg.URL, "url", cfg.URL, "lobby ws url")
	flag.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "greedy, random, idle or lua:<path>")
	flag.StringVar(&cfg.Token, "token", cfg.Token, "HELLO auth token")
	flag.IntVar(&cfg.Rounds, "rounds", cfg.Rounds, "rounds to play (0 = until interrupted)")
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	newStrategy, err := luastrat.Resolve(cfg.Strategy, logger)
	if err != nil {
		config.Exitf("strategy: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wins, losses, draws int
	for n := 0; cfg.Rounds == 0 || n < cfg.Rounds; n++ {
		s := newStrategy()
		res, err := ws.Play(ctx, cfg.URL, s, cfg.Token)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Printf("round %d: %v", n+1, err)
			if errors.Is(err, ws.ErrRejected) {
				os.Exit(1)
			}
			time.Sleep(time.Second)
			continue
		}
		switch {
		case res.Own > res.Opponent:
			wins++
		case res.Own < res.Opponent:
			losses++
		default:
			draws++
		}
		logger.Printf("%s as %s vs %s: %d-%d after %d turns", res.RoundID, res.Welcome.Color, res.Welcome.Opponent, res.Own, res.Opponent, res.Turns)
	}
	logger.Printf("%s: %d won, %d lost, %d drawn", cfg.Strategy, wins, losses, draws)
}
