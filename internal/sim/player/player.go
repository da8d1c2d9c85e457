package player

import (
	"encoding/binary"
	"io"

	"mineopoly.ai/internal/sim/board"
)

// State is the mutable per-color record owned by the engine.
type State struct {
	Color     board.Color
	Pos       board.Point
	Inventory []board.Item
	Charge    int
	Score     int

	maxInventory int
	maxCharge    int
}

// New places a player at start with a full charge and an empty inventory.
func New(color board.Color, start board.Point, maxInventory, maxCharge int) *State {
	return &State{
		Color:        color,
		Pos:          start,
		Charge:       maxCharge,
		maxInventory: maxInventory,
		maxCharge:    maxCharge,
	}
}

func (s *State) MaxInventory() int { return s.maxInventory }
func (s *State) MaxCharge() int    { return s.maxCharge }

func (s *State) InventoryFull() bool { return len(s.Inventory) >= s.maxInventory }

// AddItem appends it to the inventory; false when full.
func (s *State) AddItem(it board.Item) bool {
	if s.InventoryFull() {
		return false
	}
	s.Inventory = append(s.Inventory, it)
	return true
}

// TakeInventory empties the inventory and returns what it held.
func (s *State) TakeInventory() []board.Item {
	out := s.Inventory
	s.Inventory = nil
	return out
}

// SpendCharge consumes one unit; false when already empty.
func (s *State) SpendCharge() bool {
	if s.Charge <= 0 {
		return false
	}
	s.Charge--
	return true
}

// Recharge adds one unit, capped at the maximum.
func (s *State) Recharge() bool {
	if s.Charge >= s.maxCharge {
		return false
	}
	s.Charge++
	return true
}

func (s *State) NeedsCharge() bool { return s.Charge < s.maxCharge }

// AddScore credits a non-negative amount. Scores never decrease.
func (s *State) AddScore(v int) {
	if v > 0 {
		s.Score += v
	}
}

func (s *State) MoveTo(p board.Point) { s.Pos = p }

// Snapshot is a detached copy of a player's state.
type Snapshot struct {
	Color     board.Color  `json:"color"`
	Pos       board.Point  `json:"pos"`
	Inventory []board.Item `json:"inventory"`
	Charge    int          `json:"charge"`
	Score     int          `json:"score"`
}

func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Color:     s.Color,
		Pos:       s.Pos,
		Inventory: append([]board.Item(nil), s.Inventory...),
		Charge:    s.Charge,
		Score:     s.Score,
	}
}

func (s *State) WriteDigest(h io.Writer) {
	var tmp [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:], v)
		_, _ = h.Write(tmp[:])
	}
	put(uint64(s.Color))
	put(uint64(int64(s.Pos.X)))
	put(uint64(int64(s.Pos.Y)))
	put(uint64(s.Charge))
	put(uint64(s.Score))
	put(uint64(len(s.Inventory)))
	for _, it := range s.Inventory {
		put(it.ID)
		put(uint64(it.Kind))
	}
}
