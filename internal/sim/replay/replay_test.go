package replay

import (
	"errors"
	"testing"

	"mineopoly.ai/internal/sim/board"
	"mineopoly.ai/internal/sim/economy"
	"mineopoly.ai/internal/sim/strategy"
)

func header() Header {
	return Header{Version: Version, Seed: 5, Rules: Rules{BoardSize: 4}, Red: "a", Blue: "b"}
}

func TestRecorder_OrderAndSeal(t *testing.T) {
	r := NewRecorder(header())
	if err := r.Append(Entry{Turn: 0, Color: board.Blue}); !errors.Is(err, ErrFormat) {
		t.Fatalf("blue before red: want format error, got %v", err)
	}
	for turn := 0; turn < 3; turn++ {
		if err := r.Append(Entry{Turn: turn, Color: board.Red, Action: strategy.MoveUp}); err != nil {
			t.Fatalf("append red %d: %v", turn, err)
		}
		if err := r.Append(Entry{Turn: turn, Color: board.Blue, Action: strategy.Mine}); err != nil {
			t.Fatalf("append blue %d: %v", turn, err)
		}
	}
	if _, err := r.Seal(Result{Outcome: Draw, Turns: 2}); !errors.Is(err, ErrFormat) {
		t.Fatalf("turn mismatch: want format error, got %v", err)
	}
	rep, err := r.Seal(Result{Outcome: Draw, Turns: 3})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if err := r.Append(Entry{Turn: 3, Color: board.Red}); !errors.Is(err, ErrSealed) {
		t.Fatalf("append after seal: got %v", err)
	}

	// Entries is restartable.
	for pass := 0; pass < 2; pass++ {
		n := 0
		for e := range rep.Entries() {
			if e.Turn != n/2 {
				t.Fatalf("pass %d entry %d turn=%d", pass, n, e.Turn)
			}
			n++
		}
		if n != 6 {
			t.Fatalf("pass %d saw %d entries", pass, n)
		}
	}
	if acts := rep.Actions(board.Blue); len(acts) != 3 || acts[2] != strategy.Mine {
		t.Fatalf("blue actions=%v", acts)
	}
}

func TestNew_Validates(t *testing.T) {
	entries := []Entry{
		{Turn: 0, Color: board.Red, Action: strategy.NoOp},
		{Turn: 0, Color: board.Blue, Action: strategy.NoOp},
	}
	if _, err := New(header(), entries, Result{Outcome: MaxTurnsReached, Turns: 1}); err != nil {
		t.Fatalf("valid replay: %v", err)
	}

	h := header()
	h.Version = 99
	if _, err := New(h, entries, Result{Outcome: Draw, Turns: 1}); !errors.Is(err, ErrFormat) {
		t.Fatalf("bad version: got %v", err)
	}
	if _, err := New(header(), entries, Result{Outcome: "WHO_KNOWS", Turns: 1}); !errors.Is(err, ErrFormat) {
		t.Fatalf("bad outcome: got %v", err)
	}
	swapped := []Entry{entries[1], entries[0]}
	if _, err := New(header(), swapped, Result{Outcome: Draw, Turns: 1}); !errors.Is(err, ErrFormat) {
		t.Fatalf("swapped colors: got %v", err)
	}
	huge := header()
	huge.Rules.BoardSize = board.MaxSize + 1
	if _, err := New(huge, entries, Result{Outcome: Draw, Turns: 1}); !errors.Is(err, ErrFormat) {
		t.Fatalf("oversized board: got %v", err)
	}
	bad := []Entry{entries[0], {Turn: 0, Color: board.Blue, Action: strategy.Action(77)}}
	var fe *FormatError
	if _, err := New(header(), bad, Result{Outcome: Draw, Turns: 1}); !errors.As(err, &fe) {
		t.Fatalf("bad action: got %v", err)
	}
}

func richHeader() Header {
	h := header()
	h.Rules.Prices = map[string]economy.Params{"DIAMOND": {Base: 400, Decay: 2, Floor: 50, SaturateAt: 100}}
	h.Rules.Layout = &Layout{Tiles: "t", Yields: "y"}
	h.Rules.Starts = []Start{{Color: board.Red, Pos: board.Point{X: 1}, Inventory: []board.Kind{board.Ruby}}}
	return h
}

func scribble(h Header) {
	h.Rules.Prices["DIAMOND"] = economy.Params{Base: 1}
	h.Rules.Layout.Tiles = "changed"
	h.Rules.Starts[0].Pos = board.Point{X: 3, Y: 3}
	h.Rules.Starts[0].Inventory[0] = board.Diamond
}

func checkUntouched(t *testing.T, what string, h Header) {
	t.Helper()
	if h.Rules.Prices["DIAMOND"].Base != 400 || h.Rules.Layout.Tiles != "t" ||
		h.Rules.Starts[0].Pos != (board.Point{X: 1}) || h.Rules.Starts[0].Inventory[0] != board.Ruby {
		t.Fatalf("%s: sealed header changed: %+v", what, h.Rules)
	}
}

func TestSealedHeader_IsDetached(t *testing.T) {
	entries := []Entry{
		{Turn: 0, Color: board.Red, Action: strategy.NoOp},
		{Turn: 0, Color: board.Blue, Action: strategy.NoOp},
	}

	in := richHeader()
	rep, err := New(in, entries, Result{Outcome: Draw, Turns: 1})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	scribble(in)
	checkUntouched(t, "input to New", rep.Header())
	scribble(rep.Header())
	checkUntouched(t, "Header() result", rep.Header())

	in = richHeader()
	r := NewRecorder(in)
	for _, e := range entries {
		if err := r.Append(e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	scribble(in)
	sealed, err := r.Seal(Result{Outcome: Draw, Turns: 1})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	checkUntouched(t, "recorder input", sealed.Header())
	scribble(sealed.Header())
	checkUntouched(t, "sealed Header() result", sealed.Header())
}
