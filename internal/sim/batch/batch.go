// Package batch measures a strategy's win rate over many independent rounds.
package batch

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"mineopoly.ai/internal/sim/board"
	"mineopoly.ai/internal/sim/match"
	"mineopoly.ai/internal/sim/strategy"
)

type Config struct {
	// Rounds is played per board size.
	Rounds     int
	Parallel   int
	BoardSizes []int
	// Seed of round i on any size is Seed+i.
	Seed int64

	// MatchConfig returns the rules for one board size.
	MatchConfig func(size int) (match.Config, error)
	Candidate   func() strategy.Strategy
	Opponent    func() strategy.Strategy

	// OnRound is called from worker goroutines as rounds finish.
	OnRound func(RoundResult)
}

type RoundResult struct {
	BoardSize      int
	Index          int
	Seed           int64
	CandidateColor board.Color
	Result         match.Result
	// Won is set only when the candidate ended the round by reaching the winning score.
	Won bool
}

func (r RoundResult) CandidateScore() int { return r.Result.Scores[r.CandidateColor] }

func (r RoundResult) OpponentScore() int { return r.Result.Scores[r.CandidateColor.Opponent()] }

type SizeReport struct {
	BoardSize     int     `json:"board_size"`
	Rounds        int     `json:"rounds"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	Draws         int     `json:"draws"`
	Ceilings      int     `json:"ceilings"`
	WinRate       float64 `json:"win_rate"`
	Score         Stats   `json:"score"`
	OpponentScore Stats   `json:"opponent_score"`
	Turns         Stats   `json:"turns"`
}

type Report struct {
	Candidate string       `json:"candidate"`
	Opponent  string       `json:"opponent"`
	Sizes     []SizeReport `json:"sizes"`
}

func (c *Config) applyDefaults() {
	if c.Rounds == 0 {
		c.Rounds = 1000
	}
	if c.Parallel <= 0 {
		c.Parallel = 4
	}
	if len(c.BoardSizes) == 0 {
		c.BoardSizes = []int{14, 20, 26, 32}
	}
	if c.MatchConfig == nil {
		c.MatchConfig = func(size int) (match.Config, error) { return match.Config{BoardSize: size}, nil }
	}
	if c.Opponent == nil {
		c.Opponent = func() strategy.Strategy { return strategy.NewRandom() }
	}
}

// Run plays every round and summarizes them per board size. The candidate plays
// Red in even rounds and Blue in odd ones. Results do not depend on Parallel.
func Run(ctx context.Context, cfg Config) (Report, error) {
	cfg.applyDefaults()
	if cfg.Candidate == nil {
		return Report{}, errors.New("batch: no candidate strategy")
	}
	if cfg.Rounds < 0 {
		return Report{}, fmt.Errorf("batch: rounds must be >= 0, got %d", cfg.Rounds)
	}
	rep := Report{Candidate: cfg.Candidate().Name(), Opponent: cfg.Opponent().Name()}

	for _, size := range cfg.BoardSizes {
		mc, err := cfg.MatchConfig(size)
		if err != nil {
			return rep, fmt.Errorf("board size %d: %w", size, err)
		}
		mc.BoardSize = size

		results := make([]RoundResult, cfg.Rounds)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Parallel)
		for i := 0; i < cfg.Rounds; i++ {
			g.Go(func() error {
				r, err := playOne(gctx, mc, cfg, i)
				if err != nil {
					return fmt.Errorf("board size %d round %d: %w", size, i, err)
				}
				results[i] = r
				if cfg.OnRound != nil {
					cfg.OnRound(r)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return rep, err
		}
		rep.Sizes = append(rep.Sizes, summarize(size, results))
	}
	return rep, nil
}

func playOne(ctx context.Context, mc match.Config, cfg Config, i int) (RoundResult, error) {
	seed := cfg.Seed + int64(i)
	color := board.Red
	red, blue := cfg.Candidate(), cfg.Opponent()
	if i%2 == 1 {
		color = board.Blue
		red, blue = blue, red
	}
	e, err := match.New(mc, red, blue, seed)
	if err != nil {
		return RoundResult{}, err
	}
	res, err := e.Run(ctx)
	if err != nil {
		return RoundResult{}, err
	}
	won := (res.State == match.RedWin && color == board.Red) || (res.State == match.BlueWin && color == board.Blue)
	return RoundResult{
		BoardSize:      mc.BoardSize,
		Index:          i,
		Seed:           seed,
		CandidateColor: color,
		Result:         res,
		Won:            won && res.Scores[color] >= e.Config().WinningScore,
	}, nil
}

func summarize(size int, results []RoundResult) SizeReport {
	sr := SizeReport{BoardSize: size, Rounds: len(results)}
	own := make([]int, 0, len(results))
	opp := make([]int, 0, len(results))
	turns := make([]int, 0, len(results))
	for _, r := range results {
		switch {
		case r.Won:
			sr.Wins++
		case r.Result.State == match.Draw:
			sr.Draws++
		case r.Result.State == match.MaxTurnsReached:
			sr.Ceilings++
		default:
			sr.Losses++
		}
		own = append(own, r.CandidateScore())
		opp = append(opp, r.OpponentScore())
		turns = append(turns, r.Result.Turns)
	}
	if sr.Rounds > 0 {
		sr.WinRate = float64(sr.Wins) / float64(sr.Rounds)
	}
	sr.Score = calcStats(own)
	sr.OpponentScore = calcStats(opp)
	sr.Turns = calcStats(turns)
	return sr
}
