// Package winrate parses batch evaluation flags and prints per-board-size win rates.
package winrate

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"text/tabwriter"

	"mineopoly.ai/internal/persistence/indexdb"
	"mineopoly.ai/internal/platform/config"
	"mineopoly.ai/internal/sim/batch"
	"mineopoly.ai/internal/sim/strategy/luastrat"
	"mineopoly.ai/internal/sim/tuning"
)

// Config holds batch configuration. Zero Rounds, Parallel and Sizes fall back to tuning.yaml.
type Config struct {
	Candidate  string  `env:"CANDIDATE" envDefault:"greedy"`
	Opponent   string  `env:"OPPONENT" envDefault:"random"`
	Rounds     int     `env:"ROUNDS"`
	Parallel   int     `env:"PARALLEL"`
	Sizes      []int   `env:"SIZES" envSeparator:","`
	Seed       int64   `env:"SEED" envDefault:"1"`
	TuningPath string  `env:"TUNING" envDefault:"./configs/tuning.yaml"`
	DBPath     string  `env:"WINRATE_DB"`
	JSON       bool    `env:"WINRATE_JSON"`
	MinRate    float64 `env:"MIN_RATE"`
}

// ErrBelowMinRate is returned when a board size misses Config.MinRate.
var ErrBelowMinRate = errors.New("win rate below minimum")

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	sizes := joinInts(cfg.Sizes)
	fs.StringVar(&cfg.Candidate, "candidate", cfg.Candidate, "strategy under test: greedy, random, idle or lua:<path>")
	fs.StringVar(&cfg.Opponent, "opponent", cfg.Opponent, "opponent strategy")
	fs.IntVar(&cfg.Rounds, "rounds", cfg.Rounds, "rounds per board size (0 = tuning batch.rounds)")
	fs.IntVar(&cfg.Parallel, "parallel", cfg.Parallel, "concurrent rounds (0 = tuning batch.parallel)")
	fs.StringVar(&sizes, "sizes", sizes, "comma-separated board sizes (empty = tuning batch.board_sizes)")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "seed of round 0; round i uses seed+i")
	fs.StringVar(&cfg.TuningPath, "tuning", cfg.TuningPath, "path to tuning.yaml")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite index to record every round into (optional)")
	fs.BoolVar(&cfg.JSON, "json", cfg.JSON, "print the report as JSON")
	fs.Float64Var(&cfg.MinRate, "min_rate", cfg.MinRate, "fail if any board size wins less than this fraction")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	parsed, err := parseInts(sizes)
	if err != nil {
		return Config{}, fmt.Errorf("-sizes: %w", err)
	}
	cfg.Sizes = parsed
	return cfg, nil
}

// Run plays the batch and writes the report to out.
func Run(ctx context.Context, cfg Config, out io.Writer, logger *log.Logger) error {
	tune, err := tuning.Load(cfg.TuningPath)
	if errors.Is(err, os.ErrNotExist) {
		tune, err = tuning.Parse(nil)
	}
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}
	candidate, err := luastrat.Resolve(cfg.Candidate, logger)
	if err != nil {
		return fmt.Errorf("candidate: %w", err)
	}
	opponent, err := luastrat.Resolve(cfg.Opponent, logger)
	if err != nil {
		return fmt.Errorf("opponent: %w", err)
	}

	bc := batch.Config{
		Rounds:      firstNonZero(cfg.Rounds, tune.Batch.Rounds),
		Parallel:    firstNonZero(cfg.Parallel, tune.Batch.Parallel),
		BoardSizes:  cfg.Sizes,
		Seed:        cfg.Seed,
		MatchConfig: tune.MatchConfigFor,
		Candidate:   candidate,
		Opponent:    opponent,
	}
	if len(bc.BoardSizes) == 0 {
		bc.BoardSizes = tune.Batch.BoardSizes
	}

	if cfg.DBPath != "" {
		idx, err := indexdb.OpenSQLite(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
		var n atomic.Uint64
		bc.OnRound = func(r batch.RoundResult) {
			id := fmt.Sprintf("batch-%d-%d-%d", cfg.Seed, r.BoardSize, r.Index)
			idx.RecordRound(indexdb.RoundFromResult(id, r.Result, ""))
			if done := n.Add(1); done%500 == 0 {
				logger.Printf("%d rounds played", done)
			}
		}
		defer func() {
			if err := idx.Flush(context.Background()); err != nil {
				logger.Printf("flush index: %v", err)
			}
		}()
	}

	rep, err := batch.Run(ctx, bc)
	if err != nil {
		return err
	}
	if cfg.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
	} else if err := writeTable(out, rep); err != nil {
		return err
	}

	if cfg.MinRate > 0 {
		for _, s := range rep.Sizes {
			if s.WinRate < cfg.MinRate {
				return fmt.Errorf("%w: size %d won %.3f, want >= %.3f", ErrBelowMinRate, s.BoardSize, s.WinRate, cfg.MinRate)
			}
		}
	}
	return nil
}

func writeTable(out io.Writer, rep batch.Report) error {
	fmt.Fprintf(out, "%s vs %s\n", rep.Candidate, rep.Opponent)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "size\trounds\twins\tlosses\tdraws\tceilings\twin%\tscore mean\tscore p50\tscore p90\topp mean\tturns p50\t")
	for _, s := range rep.Sizes {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t%.1f\t%.1f\t%.0f\t%.0f\t%.1f\t%.0f\t\n",
			s.BoardSize, s.Rounds, s.Wins, s.Losses, s.Draws, s.Ceilings, 100*s.WinRate,
			s.Score.Mean, s.Score.P50, s.Score.P90, s.OpponentScore.Mean, s.Turns.P50)
	}
	return tw.Flush()
}

func firstNonZero(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}
