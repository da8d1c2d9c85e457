package strategy

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"mineopoly.ai/internal/sim/board"
	"mineopoly.ai/internal/sim/economy"
)

func scenarioBoard(t *testing.T) *board.Board {
	t.Helper()
	g := make([][]board.TileType, 4)
	for x := range g {
		g[x] = make([]board.TileType, 4)
	}
	g[0][0] = board.RedMarket
	g[3][3] = board.BlueMarket
	g[2][0] = board.Recharge
	g[3][0] = board.ResourceDiamond
	b, err := board.FromGrid(g, 3)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	return b
}

func prices(t *testing.T) economy.Prices {
	t.Helper()
	e, err := economy.New(nil)
	if err != nil {
		t.Fatalf("economy: %v", err)
	}
	return e.Snapshot()
}

func TestGreedy_FullInventoryRoutesToMarket(t *testing.T) {
	b := scenarioBoard(t)
	me := board.Point{X: 3, Y: 0}
	g := NewGreedy()
	if err := g.Initialize(context.Background(), Setup{
		BoardSize: 4, MaxInventory: 5, MaxCharge: 80, WinningScore: 1000,
		View: b.ViewFor(me, board.Point{X: 3, Y: 3}, 0), Start: me, IsRed: true,
	}); err != nil {
		t.Fatalf("init: %v", err)
	}

	full := make([]board.Item, 5)
	for i := range full {
		full[i] = board.Item{ID: uint64(i + 1), Kind: board.Ruby}
	}
	act, err := g.TurnAction(context.Background(), Turn{
		View: b.ViewFor(me, board.Point{X: 3, Y: 3}, 0), Prices: prices(t),
		Charge: 80, Inventory: full,
	})
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if act != MoveLeft {
		t.Fatalf("got %s want MOVE_LEFT", act)
	}
}

func TestGreedy_MinesThenPicksUp(t *testing.T) {
	b := scenarioBoard(t)
	me := board.Point{X: 3, Y: 0}
	opp := board.Point{X: 3, Y: 3}
	g := NewGreedy()
	_ = g.Initialize(context.Background(), Setup{MaxInventory: 5, MaxCharge: 80, View: b.ViewFor(me, opp, 0), IsRed: true})

	act, _ := g.TurnAction(context.Background(), Turn{View: b.ViewFor(me, opp, 0), Prices: prices(t), Charge: 80})
	if act != Mine {
		t.Fatalf("on vein: got %s want MINE", act)
	}
	b.Mine(me)
	act, _ = g.TurnAction(context.Background(), Turn{View: b.ViewFor(me, opp, 0), Prices: prices(t), Charge: 80})
	if act != PickUp {
		t.Fatalf("item underfoot: got %s want PICK_UP_RESOURCE", act)
	}
}

func TestGreedy_WaitsOnRechargeUntilFull(t *testing.T) {
	b := scenarioBoard(t)
	me := board.Point{X: 2, Y: 0}
	opp := board.Point{X: 3, Y: 3}
	g := NewGreedy()
	_ = g.Initialize(context.Background(), Setup{MaxInventory: 5, MaxCharge: 10, View: b.ViewFor(me, opp, 0), IsRed: true})
	act, _ := g.TurnAction(context.Background(), Turn{View: b.ViewFor(me, opp, 0), Prices: prices(t), Charge: 4})
	if act != NoOp {
		t.Fatalf("got %s want NO_OP while recharging", act)
	}
	act, _ = g.TurnAction(context.Background(), Turn{View: b.ViewFor(me, opp, 0), Prices: prices(t), Charge: 10})
	if act == NoOp {
		t.Fatalf("full charge should leave the recharge tile")
	}
}

func TestStepToward_YFirst(t *testing.T) {
	from := board.Point{X: 1, Y: 1}
	cases := []struct {
		to   board.Point
		want Action
	}{
		{board.Point{X: 3, Y: 3}, MoveUp},
		{board.Point{X: 0, Y: 0}, MoveDown},
		{board.Point{X: 3, Y: 1}, MoveRight},
		{board.Point{X: 0, Y: 1}, MoveLeft},
		{from, NoOp},
	}
	for _, c := range cases {
		if got := StepToward(from, c.to); got != c.want {
			t.Fatalf("StepToward(%v,%v)=%s want %s", from, c.to, got, c.want)
		}
	}
}

func TestRandom_SeededSequence(t *testing.T) {
	seq := func() []Action {
		r := NewRandom()
		_ = r.Initialize(context.Background(), Setup{Rand: rand.New(rand.NewPCG(9, 9))})
		var out []Action
		for i := 0; i < 32; i++ {
			a, _ := r.TurnAction(context.Background(), Turn{Index: i})
			if !a.Valid() {
				t.Fatalf("invalid action %d", a)
			}
			out = append(out, a)
		}
		return out
	}
	a, b := seq(), seq()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("turn %d: %s vs %s", i, a[i], b[i])
		}
	}
}

func TestScripted_PastEndIsNoOp(t *testing.T) {
	s := NewScripted("", []Action{MoveUp})
	if a, _ := s.TurnAction(context.Background(), Turn{Index: 0}); a != MoveUp {
		t.Fatalf("turn 0=%s", a)
	}
	if a, _ := s.TurnAction(context.Background(), Turn{Index: 5}); a != NoOp {
		t.Fatalf("turn 5=%s", a)
	}
}

func TestAction_TextRoundTrip(t *testing.T) {
	for _, a := range Actions {
		b, err := a.MarshalText()
		if err != nil {
			t.Fatalf("marshal %s: %v", a, err)
		}
		var got Action
		if err := got.UnmarshalText(b); err != nil || got != a {
			t.Fatalf("round trip %s: got %s err=%v", a, got, err)
		}
	}
	if _, err := ParseAction("JUMP"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFault_Unwrap(t *testing.T) {
	f := &Fault{Strategy: "x", Op: "turn", Err: fmt.Errorf("wrap: %w", ErrTimeout)}
	if !f.Timeout() || !errors.Is(f, ErrTimeout) {
		t.Fatalf("timeout fault not detected")
	}
	p := &Fault{Strategy: "x", Op: "turn", Panic: "boom"}
	if p.Timeout() || p.Error() == "" {
		t.Fatalf("panic fault: %v", p)
	}
}

func TestLookup(t *testing.T) {
	for _, name := range Builtins() {
		f, ok := Lookup(name)
		if !ok || f() == nil {
			t.Fatalf("lookup %q failed", name)
		}
	}
	if _, ok := Lookup("GREEDY"); !ok {
		t.Fatalf("lookup should be case-insensitive")
	}
	if _, ok := Lookup("nope"); ok {
		t.Fatalf("unknown name resolved")
	}
}
