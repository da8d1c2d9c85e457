package match

import (
	"context"
	"fmt"
	"time"

	"mineopoly.ai/internal/sim/board"
	"mineopoly.ai/internal/sim/encoding"
	"mineopoly.ai/internal/sim/replay"
	"mineopoly.ai/internal/sim/strategy"
)

// Scripted strategies answer instantly; the budget only has to survive a slow scheduler.
const viewerBudget = 5 * time.Second

// NewViewer rebuilds a recorded round. Both players replay their logged actions,
// so stepping the engine reproduces the original board, prices, and scores.
func NewViewer(rep *replay.Replay, opts ...Option) (*Engine, error) {
	h := rep.Header()
	if h.Rules.BoardSize <= 0 || h.Rules.BoardSize > board.MaxSize {
		return nil, &replay.FormatError{Reason: fmt.Sprintf("board size %d outside [1,%d]", h.Rules.BoardSize, board.MaxSize)}
	}
	cfg, err := ConfigFromRules(h.Rules)
	if err != nil {
		return nil, err
	}
	cfg.StrategyBudget = viewerBudget

	if l := h.Rules.Layout; l != nil {
		n := h.Rules.BoardSize * h.Rules.BoardSize
		tiles, err := encoding.DecodeTiles(l.Tiles, n)
		if err != nil {
			return nil, &replay.FormatError{Reason: "layout tiles", Err: err}
		}
		yields, err := encoding.DecodeCounts(l.Yields, n)
		if err != nil {
			return nil, &replay.FormatError{Reason: "layout yields", Err: err}
		}
		b, err := board.FromTiles(h.Rules.BoardSize, tiles, yields)
		if err != nil {
			return nil, &replay.FormatError{Reason: "layout", Err: err}
		}
		opts = append(opts, WithBoard(b))
	}

	red := strategy.NewScripted(h.Red, rep.Actions(board.Red))
	blue := strategy.NewScripted(h.Blue, rep.Actions(board.Blue))
	e, err := New(cfg, red, blue, h.Seed, opts...)
	if err != nil {
		return nil, &replay.FormatError{Reason: "rules", Err: err}
	}
	return e, nil
}

// Verify re-resolves rep and checks that every recorded action, the outcome, the scores,
// and the final state digest come out the same.
func Verify(ctx context.Context, rep *replay.Replay, opts ...Option) error {
	e, err := NewViewer(rep, opts...)
	if err != nil {
		return err
	}
	want := rep.Result()
	for e.Turn() < want.Turns {
		if e.State().Terminal() {
			return mismatch("round ended after %d turns, replay records %d", e.Turn(), want.Turns)
		}
		if err := e.Step(ctx); err != nil {
			return err
		}
	}
	if !e.State().Terminal() {
		return mismatch("replay ends at turn %d but the round is still running", want.Turns)
	}

	got := e.Result()
	for i := 0; i < rep.Len(); i++ {
		a, b := rep.At(i), got.Replay.At(i)
		if a.Action != b.Action {
			return mismatch("turn %d %s: recorded %s resolves to %s", a.Turn, a.Color, a.Action, b.Action)
		}
	}
	if got.State.outcome() != want.Outcome {
		return mismatch("outcome %s, replay records %s", got.State.outcome(), want.Outcome)
	}
	if got.Scores != want.Scores {
		return mismatch("scores %v, replay records %v", got.Scores, want.Scores)
	}
	if want.Digest != "" && got.Digest != want.Digest {
		return mismatch("digest %s, replay records %s", got.Digest, want.Digest)
	}
	return nil
}

func mismatch(format string, args ...any) error {
	return &replay.FormatError{Reason: "verify: " + fmt.Sprintf(format, args...)}
}
