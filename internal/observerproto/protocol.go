package observerproto

import (
	"mineopoly.ai/internal/protocol"
	"mineopoly.ai/internal/sim/board"
	"mineopoly.ai/internal/sim/encoding"
	"mineopoly.ai/internal/sim/match"
	"mineopoly.ai/internal/sim/player"
)

// Version is the observer protocol version (separate from the strategy WS protocol).
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeBootstrap = "BOOTSTRAP"
	TypeTurn      = "TURN"
	TypeEnd       = "END"
)

// Client -> Server. First message on the observer WS connection.
// An empty RoundID follows whatever round is live.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RoundID         string `json:"round_id,omitempty"`
}

// Server -> Client. Sent once per round before its first TURN.
type BootstrapMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RoundID         string `json:"round_id"`
	Red             string `json:"red"`
	Blue            string `json:"blue"`
	Seed            int64  `json:"seed"`
	Size            int    `json:"size"`
	MaxTurns        int    `json:"max_turns"`
	WinningScore    int    `json:"winning_score"`
	// Tiles is the opening grid, run-length encoded row-major.
	Tiles string `json:"tiles"`
}

// Server -> Client. Sent every resolved turn.
type TurnMsg struct {
	Type            string             `json:"type"`
	ProtocolVersion string             `json:"protocol_version"`
	RoundID         string             `json:"round_id"`
	Turn            int                `json:"turn"`
	State           string             `json:"state"`
	Tiles           string             `json:"tiles"`
	Ground          []match.GroundCell `json:"ground,omitempty"`
	Players         [2]player.Snapshot `json:"players"`
	Prices          map[string]int     `json:"prices"`
	Actions         [2]string          `json:"actions"`
}

// Server -> Client. Sent once the round is terminal.
type EndMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RoundID         string `json:"round_id"`
	Outcome         string `json:"outcome"`
	Scores          [2]int `json:"scores"`
	Turns           int    `json:"turns"`
	Digest          string `json:"digest"`
}

func NewBootstrap(roundID string, e *match.Engine) BootstrapMsg {
	cfg := e.Config()
	return BootstrapMsg{
		Type:            TypeBootstrap,
		ProtocolVersion: Version,
		RoundID:         roundID,
		Red:             e.Name(board.Red),
		Blue:            e.Name(board.Blue),
		Seed:            e.Seed(),
		Size:            cfg.BoardSize,
		MaxTurns:        cfg.MaxTurns,
		WinningScore:    cfg.WinningScore,
		Tiles:           encoding.EncodeTiles(e.Tiles()),
	}
}

func FromSnapshot(roundID string, s match.TurnSnapshot) TurnMsg {
	return TurnMsg{
		Type:            TypeTurn,
		ProtocolVersion: Version,
		RoundID:         roundID,
		Turn:            s.Turn,
		State:           s.State.String(),
		Tiles:           encoding.EncodeTiles(s.Tiles),
		Ground:          s.Ground,
		Players:         s.Players,
		Prices:          protocol.EncodePrices(s.Prices),
		Actions:         [2]string{s.Actions[board.Red].String(), s.Actions[board.Blue].String()},
	}
}

func NewEnd(roundID string, r match.Result) EndMsg {
	return EndMsg{
		Type:            TypeEnd,
		ProtocolVersion: Version,
		RoundID:         roundID,
		Outcome:         r.State.String(),
		Scores:          r.Scores,
		Turns:           r.Turns,
		Digest:          r.Digest,
	}
}
