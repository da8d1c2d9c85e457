package protocol

import (
	"fmt"
	"sort"

	"mineopoly.ai/internal/sim/board"
	"mineopoly.ai/internal/sim/economy"
	"mineopoly.ai/internal/sim/encoding"
	"mineopoly.ai/internal/sim/strategy"
)

// ViewMsg is a board.View on the wire. Tiles are run-length encoded (see package encoding).
type ViewMsg struct {
	Size          int         `json:"size"`
	Tiles         string      `json:"tiles"`
	Self          board.Point `json:"self"`
	Opponent      board.Point `json:"opponent"`
	OpponentScore int         `json:"opponent_score"`
	Ground        []GroundMsg `json:"ground,omitempty"`
}

type GroundMsg struct {
	Pos   board.Point  `json:"pos"`
	Items []board.Item `json:"items"`
}

func EncodeView(v board.View) ViewMsg {
	m := ViewMsg{
		Size:          v.Size(),
		Tiles:         encoding.EncodeTiles(v.Tiles()),
		Self:          v.Self(),
		Opponent:      v.Opponent(),
		OpponentScore: v.OpponentScore(),
	}
	for p, items := range v.Ground() {
		m.Ground = append(m.Ground, GroundMsg{Pos: p, Items: items})
	}
	sort.Slice(m.Ground, func(i, j int) bool {
		a, b := m.Ground[i].Pos, m.Ground[j].Pos
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return m
}

func DecodeView(m ViewMsg) (board.View, error) {
	if m.Size <= 0 {
		return board.View{}, fmt.Errorf("bad view size %d", m.Size)
	}
	tiles, err := encoding.DecodeTiles(m.Tiles, m.Size*m.Size)
	if err != nil {
		return board.View{}, fmt.Errorf("view tiles: %w", err)
	}
	ground := make(map[board.Point][]board.Item, len(m.Ground))
	for _, g := range m.Ground {
		ground[g.Pos] = append(ground[g.Pos], g.Items...)
	}
	return board.NewView(m.Size, tiles, m.Self, m.Opponent, m.OpponentScore, ground), nil
}

func EncodePrices(p economy.Prices) map[string]int {
	out := make(map[string]int, len(board.Kinds))
	for k, v := range p.Map() {
		out[k.String()] = v
	}
	return out
}

// DecodePrices ignores unknown kinds.
func DecodePrices(m map[string]int) economy.Prices {
	in := make(map[board.Kind]int, len(m))
	for name, v := range m {
		k, err := board.ParseKind(name)
		if err != nil {
			continue
		}
		in[k] = v
	}
	return economy.NewPrices(in)
}

func EncodeTurn(t strategy.Turn) TurnMsg {
	inv := t.Inventory
	if inv == nil {
		inv = []board.Item{}
	}
	return TurnMsg{
		Type:            TypeTurn,
		ProtocolVersion: Version,
		Turn:            t.Index,
		RedTurn:         t.RedTurn,
		Charge:          t.Charge,
		Inventory:       inv,
		Prices:          EncodePrices(t.Prices),
		View:            EncodeView(t.View),
	}
}

func DecodeTurn(m TurnMsg) (strategy.Turn, error) {
	v, err := DecodeView(m.View)
	if err != nil {
		return strategy.Turn{}, err
	}
	return strategy.Turn{
		Index:     m.Turn,
		View:      v,
		Prices:    DecodePrices(m.Prices),
		Charge:    m.Charge,
		Inventory: append([]board.Item(nil), m.Inventory...),
		RedTurn:   m.RedTurn,
	}, nil
}

// SetupFromWelcome rebuilds the strategy setup a remote client should initialize with.
func SetupFromWelcome(m WelcomeMsg) (strategy.Setup, error) {
	v, err := DecodeView(m.View)
	if err != nil {
		return strategy.Setup{}, err
	}
	return strategy.Setup{
		BoardSize:    m.Rules.BoardSize,
		MaxInventory: m.Rules.MaxInventory,
		MaxCharge:    m.Rules.MaxCharge,
		WinningScore: m.Rules.WinningScore,
		View:         v,
		Start:        m.Start,
		IsRed:        m.Color == board.Red,
	}, nil
}

func NewAct(turn int, a strategy.Action) ActMsg {
	return ActMsg{Type: TypeAct, ProtocolVersion: Version, Turn: turn, Action: a.String()}
}
