package economy

import (
	"encoding/binary"
	"fmt"
	"io"

	"mineopoly.ai/internal/sim/board"
)

// Params is the price curve of one resource kind:
//
//	price = max(Floor, Base - Decay*min(sold, SaturateAt))
type Params struct {
	Base       int `yaml:"base" json:"base"`
	Decay      int `yaml:"decay" json:"decay"`
	Floor      int `yaml:"floor" json:"floor"`
	SaturateAt int `yaml:"saturate_at" json:"saturate_at"`
}

func (p Params) price(sold int) int {
	n := sold
	if n > p.SaturateAt {
		n = p.SaturateAt
	}
	v := p.Base - p.Decay*n
	if v < p.Floor {
		v = p.Floor
	}
	return v
}

func (p Params) validate(k board.Kind) error {
	switch {
	case p.Base < 0:
		return fmt.Errorf("%s: base price must be >= 0", k)
	case p.Decay < 0:
		return fmt.Errorf("%s: decay must be >= 0", k)
	case p.Floor < 0:
		return fmt.Errorf("%s: floor must be >= 0", k)
	case p.Floor > p.Base:
		return fmt.Errorf("%s: floor %d above base %d", k, p.Floor, p.Base)
	case p.SaturateAt < 0:
		return fmt.Errorf("%s: saturate_at must be >= 0", k)
	}
	return nil
}

// DefaultParams returns the stock price curves.
func DefaultParams() map[board.Kind]Params {
	return map[board.Kind]Params{
		board.Diamond: {Base: 400, Decay: 10, Floor: 100, SaturateAt: 30},
		board.Emerald: {Base: 200, Decay: 5, Floor: 50, SaturateAt: 30},
		board.Ruby:    {Base: 80, Decay: 2, Floor: 20, SaturateAt: 30},
	}
}

const numKinds = 4 // indexed by board.Kind; slot 0 unused

// Economy tracks per-kind prices for one round. Prices move only on Sell.
type Economy struct {
	params [numKinds]Params
	sold   [numKinds]int
}

// New validates params and returns a fresh economy. Kinds missing from params use the defaults.
func New(params map[board.Kind]Params) (*Economy, error) {
	defaults := DefaultParams()
	e := &Economy{}
	for _, k := range board.Kinds {
		p, ok := params[k]
		if !ok {
			p = defaults[k]
		}
		if err := p.validate(k); err != nil {
			return nil, &board.ConfigurationError{Reason: "economy: " + err.Error()}
		}
		e.params[k] = p
	}
	for k := range params {
		if !k.Valid() {
			return nil, &board.ConfigurationError{Reason: fmt.Sprintf("economy: unknown resource kind %d", uint8(k))}
		}
	}
	return e, nil
}

// PriceOf returns the current price of k. Unknown kinds are worth nothing.
func (e *Economy) PriceOf(k board.Kind) int {
	if !k.Valid() {
		return 0
	}
	return e.params[k].price(e.sold[k])
}

// Sold returns cumulative units sold of k this round.
func (e *Economy) Sold(k board.Kind) int {
	if !k.Valid() {
		return 0
	}
	return e.sold[k]
}

// Sell totals items at current prices, then advances the price curves.
func (e *Economy) Sell(items []board.Item) int {
	total := 0
	for _, it := range items {
		total += e.PriceOf(it.Kind)
	}
	for _, it := range items {
		if it.Kind.Valid() {
			e.sold[it.Kind]++
		}
	}
	return total
}

// Snapshot returns the current prices as an immutable value.
func (e *Economy) Snapshot() Prices {
	var p Prices
	for _, k := range board.Kinds {
		p.v[k] = e.PriceOf(k)
	}
	return p
}

func (e *Economy) WriteDigest(h io.Writer) {
	var tmp [8]byte
	for _, k := range board.Kinds {
		binary.LittleEndian.PutUint64(tmp[:], uint64(e.sold[k]))
		_, _ = h.Write(tmp[:])
	}
}

// Prices is a frozen copy of the market prices, safe to hand to strategies.
type Prices struct {
	v [numKinds]int
}

// NewPrices builds a snapshot from explicit values (used when decoding remote turns).
func NewPrices(m map[board.Kind]int) Prices {
	var p Prices
	for k, v := range m {
		if k.Valid() {
			p.v[k] = v
		}
	}
	return p
}

func (p Prices) Of(k board.Kind) int {
	if !k.Valid() {
		return 0
	}
	return p.v[k]
}

// Map returns the prices keyed by kind.
func (p Prices) Map() map[board.Kind]int {
	out := make(map[board.Kind]int, len(board.Kinds))
	for _, k := range board.Kinds {
		out[k] = p.v[k]
	}
	return out
}

// Value is the total the items would fetch at these prices.
func (p Prices) Value(items []board.Item) int {
	total := 0
	for _, it := range items {
		total += p.Of(it.Kind)
	}
	return total
}
