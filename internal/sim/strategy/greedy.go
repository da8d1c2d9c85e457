package strategy

import (
	"context"
	"slices"

	"mineopoly.ai/internal/sim/board"
)

// Greedy mines whatever pays best per step of travel and sells when full.
// Routes move along y first, then x.
type Greedy struct {
	setup     Setup
	color     board.Color
	markets   []board.Point
	recharges []board.Point

	// Round-scoped bookkeeping, cleared by EndRound.
	received int
	earned   int
}

func NewGreedy() *Greedy { return &Greedy{} }

func (g *Greedy) Name() string { return "Greedy" }

func (g *Greedy) Initialize(_ context.Context, s Setup) error {
	g.setup = s
	g.color = board.Blue
	if s.IsRed {
		g.color = board.Red
	}
	g.markets = s.View.Find(g.color.Market())
	g.recharges = s.View.Find(board.Recharge)
	return nil
}

// chargeReserve is the slack kept on top of the distance to the nearest recharge tile.
const chargeReserve = 2

func (g *Greedy) TurnAction(_ context.Context, t Turn) (Action, error) {
	me := t.View.Self()
	here, _ := t.View.TileAt(me)
	maxCharge := g.setup.MaxCharge

	if here == board.Recharge && t.Charge < maxCharge {
		return NoOp, nil
	}
	if rc, ok := nearest(me, g.recharges); ok && t.Charge < maxCharge && t.Charge <= board.Manhattan(me, rc)+chargeReserve {
		return StepToward(me, rc), nil
	}

	held := len(t.Inventory)
	if held >= g.setup.MaxInventory {
		if m, ok := nearest(me, g.markets); ok {
			return StepToward(me, m), nil
		}
		return NoOp, nil
	}
	if len(t.View.ItemsAt(me)) > 0 {
		return PickUp, nil
	}
	if k, ok := here.Resource(); ok && t.Prices.Of(k) > 0 {
		return Mine, nil
	}

	if target, ok := g.bestTarget(t); ok {
		return StepToward(me, target), nil
	}
	if held > 0 {
		if m, ok := nearest(me, g.markets); ok {
			return StepToward(me, m), nil
		}
	}
	return NoOp, nil
}

// bestTarget ranks ground items and veins by price per step of travel.
func (g *Greedy) bestTarget(t Turn) (board.Point, bool) {
	me := t.View.Self()
	var best board.Point
	bestScore := -1
	consider := func(p board.Point, k board.Kind) {
		score := t.Prices.Of(k) * 100 / (board.Manhattan(me, p) + 1)
		if score > bestScore {
			best, bestScore = p, score
		}
	}
	ground := t.View.Ground()
	cells := make([]board.Point, 0, len(ground))
	for p := range ground {
		cells = append(cells, p)
	}
	// Map order is random; keep ties stable.
	slices.SortFunc(cells, func(a, b board.Point) int {
		if a.Y != b.Y {
			return a.Y - b.Y
		}
		return a.X - b.X
	})
	for _, p := range cells {
		if items := ground[p]; len(items) > 0 && p != t.View.Opponent() {
			consider(p, items[0].Kind)
		}
	}
	for _, k := range board.Kinds {
		for _, p := range t.View.Find(k.Vein()) {
			consider(p, k)
		}
	}
	return best, bestScore > 0
}

func (g *Greedy) OnReceiveItem(context.Context, board.Item) error {
	g.received++
	return nil
}

func (g *Greedy) OnSoldInventory(_ context.Context, total int) error {
	g.earned += total
	return nil
}

func (g *Greedy) EndRound(context.Context, int, int) error {
	*g = Greedy{}
	return nil
}

// StepToward returns the single move that brings from closer to to, resolving y before x.
func StepToward(from, to board.Point) Action {
	switch {
	case to.Y > from.Y:
		return MoveUp
	case to.Y < from.Y:
		return MoveDown
	case to.X > from.X:
		return MoveRight
	case to.X < from.X:
		return MoveLeft
	}
	return NoOp
}

func nearest(from board.Point, pts []board.Point) (board.Point, bool) {
	var best board.Point
	bestD := -1
	for _, p := range pts {
		d := board.Manhattan(from, p)
		if bestD < 0 || d < bestD {
			best, bestD = p, d
		}
	}
	return best, bestD >= 0
}
