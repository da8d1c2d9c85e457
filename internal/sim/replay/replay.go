package replay

import (
	"errors"
	"fmt"
	"iter"

	"mineopoly.ai/internal/sim/board"
	"mineopoly.ai/internal/sim/economy"
	"mineopoly.ai/internal/sim/strategy"
)

const Version = 1

// Outcome is the terminal state of a round.
type Outcome string

const (
	RedWin          Outcome = "RED_WIN"
	BlueWin         Outcome = "BLUE_WIN"
	Draw            Outcome = "DRAW"
	MaxTurnsReached Outcome = "MAX_TURNS_REACHED"
)

func (o Outcome) Valid() bool {
	switch o {
	case RedWin, BlueWin, Draw, MaxTurnsReached:
		return true
	}
	return false
}

// Rules is everything besides the seed needed to rebuild a round.
type Rules struct {
	BoardSize           int                       `json:"board_size"`
	MaxInventory        int                       `json:"max_inventory"`
	MaxCharge           int                       `json:"max_charge"`
	WinningScore        int                       `json:"winning_score"`
	MaxTurns            int                       `json:"max_turns"`
	Settlement          string                    `json:"settlement"`
	VeinDensityPermille int                       `json:"vein_density_permille"`
	VeinYield           int                       `json:"vein_yield"`
	Prices              map[string]economy.Params `json:"prices"`
	// Layout is set when the board was supplied explicitly instead of generated from the seed.
	Layout *Layout `json:"layout,omitempty"`
	Starts []Start `json:"starts,omitempty"`
}

// Start is a non-default starting state for one color.
type Start struct {
	Color     board.Color  `json:"color"`
	Pos       board.Point  `json:"pos"`
	Inventory []board.Kind `json:"inventory,omitempty"`
}

// Layout is a run-length encoded board (see internal/sim/encoding).
type Layout struct {
	Tiles  string `json:"tiles"`
	Yields string `json:"yields"`
}

type Header struct {
	Version int    `json:"version"`
	Seed    int64  `json:"seed"`
	Rules   Rules  `json:"rules"`
	Red     string `json:"red"`
	Blue    string `json:"blue"`
}

// Clone returns a deep copy of h.
func (h Header) Clone() Header {
	if h.Rules.Prices != nil {
		prices := make(map[string]economy.Params, len(h.Rules.Prices))
		for k, p := range h.Rules.Prices {
			prices[k] = p
		}
		h.Rules.Prices = prices
	}
	if h.Rules.Layout != nil {
		l := *h.Rules.Layout
		h.Rules.Layout = &l
	}
	if h.Rules.Starts != nil {
		starts := make([]Start, len(h.Rules.Starts))
		for i, s := range h.Rules.Starts {
			s.Inventory = append([]board.Kind(nil), s.Inventory...)
			starts[i] = s
		}
		h.Rules.Starts = starts
	}
	return h
}

// Entry is one resolved action.
type Entry struct {
	Turn   int             `json:"turn"`
	Color  board.Color     `json:"color"`
	Action strategy.Action `json:"action"`
}

type Result struct {
	Outcome Outcome `json:"outcome"`
	Scores  [2]int  `json:"scores"` // indexed by board.Color
	Turns   int     `json:"turns"`
	Digest  string  `json:"digest"`
}

var (
	ErrFormat = errors.New("replay format error")
	ErrSealed = errors.New("replay sealed")
)

// FormatError reports a malformed or inconsistent replay.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("replay format error: %s: %v", e.Reason, e.Err)
	}
	return "replay format error: " + e.Reason
}

func (e *FormatError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrFormat, e.Err}
	}
	return []error{ErrFormat}
}

func formatErrorf(format string, args ...any) *FormatError {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}

// Replay is a sealed round record. It is never mutated after construction.
type Replay struct {
	header  Header
	entries []Entry
	result  Result
}

// New validates and seals a replay assembled from decoded parts.
func New(h Header, entries []Entry, res Result) (*Replay, error) {
	if h.Version != Version {
		return nil, formatErrorf("unsupported version %d", h.Version)
	}
	if h.Rules.BoardSize <= 0 || h.Rules.BoardSize > board.MaxSize {
		return nil, formatErrorf("board size %d outside [1,%d]", h.Rules.BoardSize, board.MaxSize)
	}
	for i, e := range entries {
		if err := checkNext(i, e); err != nil {
			return nil, err
		}
	}
	if err := checkResult(len(entries), res); err != nil {
		return nil, err
	}
	return &Replay{header: h.Clone(), entries: append([]Entry(nil), entries...), result: res}, nil
}

// checkNext verifies e is the i-th entry: each turn records Red then Blue.
func checkNext(i int, e Entry) error {
	wantTurn := i / 2
	wantColor := board.Colors[i%2]
	if e.Turn != wantTurn || e.Color != wantColor {
		return formatErrorf("entry %d is turn %d %s, want turn %d %s", i, e.Turn, e.Color, wantTurn, wantColor)
	}
	if !e.Action.Valid() {
		return formatErrorf("entry %d has invalid action %d", i, uint8(e.Action))
	}
	return nil
}

func checkResult(n int, res Result) error {
	if !res.Outcome.Valid() {
		return formatErrorf("invalid outcome %q", res.Outcome)
	}
	if res.Turns < 0 || n != 2*res.Turns {
		return formatErrorf("%d entries for %d turns", n, res.Turns)
	}
	if res.Scores[0] < 0 || res.Scores[1] < 0 {
		return formatErrorf("negative score %v", res.Scores)
	}
	return nil
}

// Header returns a copy; changing it does not affect the replay.
func (r *Replay) Header() Header { return r.header.Clone() }

func (r *Replay) Result() Result { return r.result }

func (r *Replay) Len() int { return len(r.entries) }

func (r *Replay) At(i int) Entry { return r.entries[i] }

// Entries yields the entries in order. Each call restarts from the first entry.
func (r *Replay) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range r.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Actions returns the resolved action list of one color, indexed by turn.
func (r *Replay) Actions(c board.Color) []strategy.Action {
	out := make([]strategy.Action, 0, len(r.entries)/2)
	for _, e := range r.entries {
		if e.Color == c {
			out = append(out, e.Action)
		}
	}
	return out
}

// Recorder accumulates entries for a live round.
type Recorder struct {
	header  Header
	entries []Entry
	sealed  bool
}

func NewRecorder(h Header) *Recorder {
	if h.Version == 0 {
		h.Version = Version
	}
	return &Recorder{header: h.Clone()}
}

func (r *Recorder) Len() int { return len(r.entries) }

// Append records the next resolved action. Entries must arrive Red then Blue, turn by turn.
func (r *Recorder) Append(e Entry) error {
	if r.sealed {
		return ErrSealed
	}
	if err := checkNext(len(r.entries), e); err != nil {
		return err
	}
	r.entries = append(r.entries, e)
	return nil
}

// Seal finalizes the record. The recorder rejects further appends.
func (r *Recorder) Seal(res Result) (*Replay, error) {
	if r.sealed {
		return nil, ErrSealed
	}
	if err := checkResult(len(r.entries), res); err != nil {
		return nil, err
	}
	r.sealed = true
	return &Replay{header: r.header.Clone(), entries: append([]Entry(nil), r.entries...), result: res}, nil
}
