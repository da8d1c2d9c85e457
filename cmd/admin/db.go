package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mineopoly.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to the server index)")
	limit := fs.Int("limit", 20, "result limit (rounds)")
	roundID := fs.String("round", "", "round id (turns)")
	_ = fs.Parse(args)

	q := "rounds"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "rounds.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch q {
	case "rounds":
		if *limit <= 0 {
			*limit = 20
		}
		rows, err := idx.ListRounds(ctx, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(r)
		}

	case "winrates":
		rates, err := idx.WinRates(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, w := range rates {
			fmt.Printf("%-16s rounds=%-6d wins=%-6d draws=%-5d ceilings=%-5d win%%=%5.1f mean_score=%.1f\n",
				w.Strategy, w.Rounds, w.Wins, w.Draws, w.Ceilings, 100*w.Rate(), w.MeanScore)
		}

	case "turns":
		if strings.TrimSpace(*roundID) == "" {
			fmt.Fprintln(os.Stderr, "missing -round")
			os.Exit(2)
		}
		turns, err := idx.Turns(ctx, *roundID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		if len(turns) == 0 {
			fmt.Fprintln(os.Stderr, "no turns indexed for", *roundID)
			os.Exit(1)
		}
		for _, t := range turns {
			printJSON(t)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown query %q (want rounds, winrates or turns)\n", q)
		os.Exit(2)
	}
}
