package protocol

import (
	"mineopoly.ai/internal/sim/board"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type              string     `json:"type"`
	ProtocolVersion   string     `json:"protocol_version"`
	SupportedVersions []string   `json:"supported_versions,omitempty"`
	StrategyName      string     `json:"strategy_name"`
	Auth              *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client): the round's rules and the opening view.
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	RoundID         string      `json:"round_id"`
	Color           board.Color `json:"color"`
	Opponent        string      `json:"opponent"`
	Rules           RulesMsg    `json:"rules"`
	Start           board.Point `json:"start"`
	View            ViewMsg     `json:"view"`
}

type RulesMsg struct {
	BoardSize      int `json:"board_size"`
	MaxInventory   int `json:"max_inventory"`
	MaxCharge      int `json:"max_charge"`
	WinningScore   int `json:"winning_score"`
	MaxTurns       int `json:"max_turns"`
	TurnBudgetMsec int `json:"turn_budget_ms"`
}

// TURN (server -> client): answer with ACT for the same turn.
type TurnMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Turn            int            `json:"turn"`
	RedTurn         bool           `json:"red_turn"`
	Charge          int            `json:"charge"`
	Inventory       []board.Item   `json:"inventory"`
	Prices          map[string]int `json:"prices"`
	View            ViewMsg        `json:"view"`
}

// ACT (client -> server)
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Turn            int    `json:"turn"`
	Action          string `json:"action"`
}

// ITEM (server -> client): an item entered the player's inventory.
type ItemMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Item            board.Item `json:"item"`
}

// SOLD (server -> client): the inventory was sold for Total.
type SoldMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Total           int    `json:"total"`
}

// END (server -> client): final scores; the connection closes afterwards.
type EndMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Own             int    `json:"own"`
	Opponent        int    `json:"opponent"`
}

type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}

func NewError(code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: msg}
}
