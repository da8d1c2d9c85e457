package match

import (
	"mineopoly.ai/internal/sim/board"
	"mineopoly.ai/internal/sim/strategy"
)

// Reasons a request was downgraded to NoOp.
const (
	reasonRecharging   = "recharging"
	reasonOutOfBounds  = "destination out of bounds"
	reasonNoCharge     = "no charge"
	reasonCollision    = "lost destination tiebreak"
	reasonNotVein      = "not standing on a vein"
	reasonNothingThere = "nothing to pick up"
	reasonFull         = "inventory full"
)

type turnOutcome struct {
	resolved  [2]strategy.Action
	illegal   [2]string
	received  [2][]board.Item
	sold      [2]bool
	saleTotal [2]int
}

// resolve applies both requests in the fixed order: recharge, movement, mine, pickup, settlement.
// Within a phase the tiebreak-favored color goes first.
func (e *Engine) resolve(req [2]strategy.Action, redFavored bool) turnOutcome {
	var out turnOutcome
	order := [2]board.Color{board.Red, board.Blue}
	if !redFavored {
		order = [2]board.Color{board.Blue, board.Red}
	}
	downgrade := func(c board.Color, reason string) {
		out.resolved[c] = strategy.NoOp
		out.illegal[c] = reason
	}
	out.resolved = req

	var suppressed [2]bool
	for _, c := range board.Colors {
		p := e.players[c]
		if e.board.TileAt(p.Pos) == board.Recharge && p.NeedsCharge() {
			p.Recharge()
			suppressed[c] = true
			if req[c] != strategy.NoOp {
				downgrade(c, reasonRecharging)
			}
		}
	}

	var dest [2]board.Point
	var moving, arrived [2]bool
	for _, c := range board.Colors {
		if suppressed[c] || !req[c].IsMove() {
			continue
		}
		p := e.players[c]
		to := p.Pos.Add(req[c].Delta())
		switch {
		case !e.board.InBounds(to):
			downgrade(c, reasonOutOfBounds)
		case p.Charge <= 0:
			downgrade(c, reasonNoCharge)
		default:
			dest[c], moving[c] = to, true
		}
	}
	if moving[board.Red] && moving[board.Blue] && dest[board.Red] == dest[board.Blue] {
		loser := order[1]
		moving[loser] = false
		downgrade(loser, reasonCollision)
	}
	for _, c := range board.Colors {
		if !moving[c] {
			continue
		}
		p := e.players[c]
		p.SpendCharge()
		p.MoveTo(dest[c])
		arrived[c] = true
	}

	for _, c := range order {
		if suppressed[c] || req[c] != strategy.Mine {
			continue
		}
		if _, ok := e.board.Mine(e.players[c].Pos); !ok {
			downgrade(c, reasonNotVein)
		}
	}

	for _, c := range order {
		if suppressed[c] || req[c] != strategy.PickUp {
			continue
		}
		p := e.players[c]
		if p.InventoryFull() {
			downgrade(c, reasonFull)
			continue
		}
		it, ok := e.board.PickUp(p.Pos)
		if !ok {
			downgrade(c, reasonNothingThere)
			continue
		}
		p.AddItem(it)
		out.received[c] = append(out.received[c], it)
	}

	for _, c := range order {
		p := e.players[c]
		if len(p.Inventory) == 0 {
			continue
		}
		mc, ok := e.board.TileAt(p.Pos).MarketColor()
		if !ok || mc != c {
			continue
		}
		if e.cfg.Settlement == SettleArrival && !arrived[c] {
			continue
		}
		total := e.econ.Sell(p.TakeInventory())
		p.AddScore(total)
		out.sold[c] = true
		out.saleTotal[c] = total
	}
	return out
}
