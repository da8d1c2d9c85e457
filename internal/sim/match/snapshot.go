package match

import (
	"mineopoly.ai/internal/sim/board"
	"mineopoly.ai/internal/sim/economy"
	"mineopoly.ai/internal/sim/player"
	"mineopoly.ai/internal/sim/strategy"
)

// TurnSnapshot is the frozen state published after each resolved turn.
// Nothing in it aliases engine state.
type TurnSnapshot struct {
	Turn    int
	State   State
	Size    int
	Tiles   []board.TileType
	Ground  []GroundCell
	Players [2]player.Snapshot
	Prices  economy.Prices
	Actions [2]strategy.Action
}

type GroundCell struct {
	Pos   board.Point  `json:"pos"`
	Items []board.Item `json:"items"`
}

// TurnLogEntry is the per-turn diagnostic record. Arrays are indexed by board.Color.
type TurnLogEntry struct {
	Turn      int                `json:"turn"`
	Requested [2]strategy.Action `json:"requested"`
	Resolved  [2]strategy.Action `json:"resolved"`
	Illegal   [2]string          `json:"illegal"`
	Faults    [2]string          `json:"faults"`
	Scores    [2]int             `json:"scores"`
	Charge    [2]int             `json:"charge"`
	Digest    string             `json:"digest"`
}

// TurnLogger receives one entry per resolved turn.
type TurnLogger interface {
	WriteTurn(TurnLogEntry) error
}

// TurnLoggerFunc adapts a function to TurnLogger.
type TurnLoggerFunc func(TurnLogEntry) error

func (f TurnLoggerFunc) WriteTurn(e TurnLogEntry) error { return f(e) }
