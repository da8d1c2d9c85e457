package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	persistlog "mineopoly.ai/internal/persistence/log"
	"mineopoly.ai/internal/persistence/replayfile"
	"mineopoly.ai/internal/sim/board"
	"mineopoly.ai/internal/sim/match"
	"mineopoly.ai/internal/sim/replay"
)

func main() {
	var (
		replayPath = flag.String("replay", "", "path to .replay.zst")
		turnLog    = flag.String("turns", "", "turn log turns-<round>.jsonl.zst to check digests against (optional)")
		verify     = flag.Bool("verify", true, "re-resolve the round and compare outcome, scores and digest")
		timeline   = flag.Bool("timeline", false, "print one line per turn")
	)
	flag.Parse()

	if *replayPath == "" {
		fmt.Fprintln(os.Stderr, "missing -replay")
		os.Exit(2)
	}

	rep, err := replayfile.Read(*replayPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read replay:", err)
		os.Exit(1)
	}
	h, res := rep.Header(), rep.Result()
	fmt.Printf("replay v%d seed=%d red=%s blue=%s size=%d max_turns=%d winning_score=%d settlement=%s\n",
		h.Version, h.Seed, h.Red, h.Blue, h.Rules.BoardSize, h.Rules.MaxTurns, h.Rules.WinningScore, h.Rules.Settlement)
	fmt.Printf("result %s scores=%d-%d turns=%d digest=%s\n", res.Outcome, res.Scores[board.Red], res.Scores[board.Blue], res.Turns, res.Digest)

	ctx := context.Background()
	if *timeline || *turnLog != "" {
		if err := stepThrough(ctx, rep, *turnLog, *timeline); err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	if !*verify {
		return
	}
	if err := match.Verify(ctx, rep); err != nil {
		fmt.Fprintln(os.Stderr, "verify:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: verified %d turns\n", res.Turns)
}

// stepThrough replays turn by turn, optionally printing a timeline and checking
// each turn's digest against a recorded turn log.
func stepThrough(ctx context.Context, rep *replay.Replay, turnLogPath string, show bool) error {
	var logged []match.TurnLogEntry
	if turnLogPath != "" {
		var err error
		logged, err = persistlog.ReadTurns(turnLogPath)
		if err != nil {
			return fmt.Errorf("read turn log: %w", err)
		}
	}
	e, err := match.NewViewer(rep)
	if err != nil {
		return err
	}
	var checked int
	for !e.State().Terminal() {
		turn := e.Turn()
		if err := e.Step(ctx); err != nil {
			return err
		}
		if show {
			red, blue := e.Player(board.Red), e.Player(board.Blue)
			fmt.Printf("%4d  red %-18s %3d %v  blue %-18s %3d %v\n",
				turn, rep.At(2*turn).Action, red.Score, red.Pos, rep.At(2*turn+1).Action, blue.Score, blue.Pos)
		}
		if turn < len(logged) {
			if logged[turn].Turn != turn {
				return fmt.Errorf("turn log entry %d is for turn %d", turn, logged[turn].Turn)
			}
			if got := e.Digest(); got != logged[turn].Digest {
				return fmt.Errorf("digest mismatch at turn %d: got=%s want=%s", turn, got, logged[turn].Digest)
			}
			checked++
		}
	}
	if turnLogPath != "" {
		fmt.Printf("turn log ok: checked=%d turns\n", checked)
	}
	return nil
}
