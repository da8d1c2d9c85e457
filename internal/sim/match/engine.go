package match

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"

	"mineopoly.ai/internal/sim/board"
	"mineopoly.ai/internal/sim/economy"
	"mineopoly.ai/internal/sim/encoding"
	"mineopoly.ai/internal/sim/player"
	"mineopoly.ai/internal/sim/replay"
	"mineopoly.ai/internal/sim/strategy"
)

// State is the round lifecycle.
type State int

const (
	Initializing State = iota
	Running
	RedWin
	BlueWin
	Draw
	MaxTurnsReached
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "INITIALIZING"
	case Running:
		return "RUNNING"
	case RedWin:
		return "RED_WIN"
	case BlueWin:
		return "BLUE_WIN"
	case Draw:
		return "DRAW"
	case MaxTurnsReached:
		return "MAX_TURNS_REACHED"
	}
	return fmt.Sprintf("STATE(%d)", int(s))
}

func (s State) Terminal() bool { return s >= RedWin }

func (s State) outcome() replay.Outcome {
	switch s {
	case RedWin:
		return replay.RedWin
	case BlueWin:
		return replay.BlueWin
	case Draw:
		return replay.Draw
	}
	return replay.MaxTurnsReached
}

var ErrFinished = errors.New("round finished")

// Result is the terminal summary of a round.
type Result struct {
	State  State
	Scores [2]int
	Turns  int
	Digest string
	Replay *replay.Replay
}

// Winner reports the winning color. At the turn ceiling the higher score wins; ok is false on a draw.
func (r Result) Winner() (board.Color, bool) {
	switch r.State {
	case RedWin:
		return board.Red, true
	case BlueWin:
		return board.Blue, true
	case MaxTurnsReached:
		switch {
		case r.Scores[board.Red] > r.Scores[board.Blue]:
			return board.Red, true
		case r.Scores[board.Blue] > r.Scores[board.Red]:
			return board.Blue, true
		}
	}
	return 0, false
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger routes fault and illegal-action diagnostics to l.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTurnLogger records every resolved turn.
func WithTurnLogger(tl TurnLogger) Option {
	return func(e *Engine) { e.turnLog = tl }
}

// WithSnapshotSink publishes one frozen snapshot per resolved turn. Snapshots are
// dropped when the channel is full; the turn loop never waits on a consumer.
func WithSnapshotSink(ch chan<- TurnSnapshot) Option {
	return func(e *Engine) { e.sink = ch }
}

// WithBoard plays on b instead of a seed-generated board. b must be freshly built
// (nothing mined yet); the engine takes ownership.
func WithBoard(b *board.Board) Option {
	return func(e *Engine) { e.board = b }
}

// Engine runs one round. It is not safe for concurrent use.
type Engine struct {
	cfg     Config
	seed    int64
	board   *board.Board
	econ    *economy.Economy
	players [2]*player.State
	strats  [2]strategy.Strategy
	names   [2]string

	rec    *replay.Recorder
	state  State
	turn   int
	result Result

	logger  *log.Logger
	turnLog TurnLogger
	sink    chan<- TurnSnapshot
}

// New sets up a round. Only configuration problems fail here; strategies are not called until the first Step.
func New(cfg Config, red, blue strategy.Strategy, seed int64, opts ...Option) (*Engine, error) {
	if red == nil || blue == nil {
		return nil, &board.ConfigurationError{Reason: "both strategies are required"}
	}
	e := &Engine{
		seed:   seed,
		strats: [2]strategy.Strategy{red, blue},
		logger: log.New(io.Discard, "", 0),
	}
	for _, o := range opts {
		o(e)
	}

	custom := e.board != nil
	if custom {
		cfg.BoardSize = e.board.Size()
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	e.cfg = cfg

	rules := cfg.rules()
	if custom {
		rules.Layout = &replay.Layout{
			Tiles:  encoding.EncodeTiles(e.board.Tiles()),
			Yields: encoding.EncodeCounts(e.board.Yields()),
		}
	} else {
		b, err := board.Build(seed, cfg.BoardSize, cfg.genConfig())
		if err != nil {
			return nil, err
		}
		e.board = b
	}

	econ, err := economy.New(cfg.Prices)
	if err != nil {
		return nil, err
	}
	e.econ = econ

	for _, c := range board.Colors {
		markets := e.board.Find(c.Market())
		start := markets[0]
		if c == board.Blue {
			start = markets[len(markets)-1]
		}
		e.players[c] = player.New(c, start, cfg.MaxInventory, cfg.MaxCharge)
	}
	for _, s := range cfg.Starts {
		if !e.board.InBounds(s.Pos) {
			return nil, &board.ConfigurationError{Reason: fmt.Sprintf("%s start %v outside the board", s.Color, s.Pos)}
		}
		p := e.players[s.Color]
		p.MoveTo(s.Pos)
		for _, k := range s.Inventory {
			p.AddItem(e.board.NewItem(k))
		}
	}

	for _, c := range board.Colors {
		e.names[c] = safeName(e.strats[c], c)
	}
	e.rec = replay.NewRecorder(replay.Header{
		Version: replay.Version,
		Seed:    seed,
		Rules:   rules,
		Red:     e.names[board.Red],
		Blue:    e.names[board.Blue],
	})
	return e, nil
}

func safeName(s strategy.Strategy, c board.Color) (name string) {
	defer func() {
		if recover() != nil {
			name = c.String()
		}
	}()
	name = s.Name()
	if name == "" {
		name = c.String()
	}
	return name
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Seed() int64 { return e.seed }

func (e *Engine) State() State { return e.state }

func (e *Engine) Turn() int { return e.turn }

func (e *Engine) Name(c board.Color) string { return e.names[c] }

func (e *Engine) Player(c board.Color) player.Snapshot { return e.players[c].Snapshot() }

func (e *Engine) TileAt(p board.Point) board.TileType { return e.board.TileAt(p) }

func (e *Engine) GroundAt(p board.Point) []board.Item { return e.board.GroundAt(p) }

func (e *Engine) Prices() economy.Prices { return e.econ.Snapshot() }

// Tiles returns a copy of the current row-major grid.
func (e *Engine) Tiles() []board.TileType { return e.board.Tiles() }

// Result is only meaningful once State is terminal.
func (e *Engine) Result() Result { return e.result }

// Digest hashes every piece of mutable round state.
func (e *Engine) Digest() string {
	h := sha256.New()
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(e.turn))
	_, _ = h.Write(tmp[:])
	e.board.WriteDigest(h)
	e.econ.WriteDigest(h)
	for _, p := range e.players {
		p.WriteDigest(h)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Run steps until the round reaches a terminal state.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	for !e.state.Terminal() {
		if err := e.Step(ctx); err != nil {
			return Result{}, err
		}
	}
	return e.result, nil
}

func (e *Engine) start(ctx context.Context) {
	for _, c := range board.Colors {
		p := e.players[c]
		opp := e.players[c.Opponent()]
		setup := strategy.Setup{
			BoardSize:    e.cfg.BoardSize,
			MaxInventory: e.cfg.MaxInventory,
			MaxCharge:    e.cfg.MaxCharge,
			WinningScore: e.cfg.WinningScore,
			View:         e.board.ViewFor(p.Pos, opp.Pos, opp.Score),
			Start:        p.Pos,
			IsRed:        c == board.Red,
			Rand:         rand.New(rand.NewPCG(uint64(e.seed), uint64(c)+1)),
		}
		s := e.strats[c]
		if err := e.notify(ctx, c, "initialize", func(ctx context.Context) error { return s.Initialize(ctx, setup) }); err != nil {
			e.logger.Printf("%s initialize: %v", c, err)
		}
	}
	e.state = Running
}

// Step plays one turn: query both strategies, resolve, record, publish, check termination.
func (e *Engine) Step(ctx context.Context) error {
	if e.state.Terminal() {
		return ErrFinished
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.state == Initializing {
		e.start(ctx)
	}

	redFavored := e.turn%2 == 0
	prices := e.econ.Snapshot()
	var req [2]strategy.Action
	var faults [2]error
	for _, c := range board.Colors {
		p := e.players[c]
		opp := e.players[c.Opponent()]
		t := strategy.Turn{
			Index:     e.turn,
			View:      e.board.ViewFor(p.Pos, opp.Pos, opp.Score),
			Prices:    prices,
			Charge:    p.Charge,
			Inventory: append([]board.Item(nil), p.Inventory...),
			RedTurn:   redFavored,
		}
		s := e.strats[c]
		a, err := guard(ctx, e.cfg.StrategyBudget, e.names[c], "turn", func(ctx context.Context) (strategy.Action, error) {
			return s.TurnAction(ctx, t)
		})
		if err != nil {
			faults[c] = err
			e.logger.Printf("turn %d %s: %v", e.turn, c, err)
			a = strategy.NoOp
		}
		if !a.Valid() {
			e.logger.Printf("turn %d %s: invalid action %d", e.turn, c, uint8(a))
			a = strategy.NoOp
		}
		req[c] = a
	}
	// An aborted caller leaves the turn unapplied.
	if err := ctx.Err(); err != nil {
		return err
	}

	out := e.resolve(req, redFavored)

	for _, c := range board.Colors {
		if err := e.rec.Append(replay.Entry{Turn: e.turn, Color: c, Action: out.resolved[c]}); err != nil {
			return fmt.Errorf("record turn %d: %w", e.turn, err)
		}
		if out.illegal[c] != "" {
			e.logger.Printf("turn %d %s: %s downgraded to NO_OP: %s", e.turn, c, req[c], out.illegal[c])
		}
	}
	for _, c := range board.Colors {
		s := e.strats[c]
		for _, it := range out.received[c] {
			if err := e.notify(ctx, c, "on_receive_item", func(ctx context.Context) error { return s.OnReceiveItem(ctx, it) }); err != nil {
				e.logger.Printf("turn %d %s: %v", e.turn, c, err)
			}
		}
		if out.sold[c] {
			total := out.saleTotal[c]
			if err := e.notify(ctx, c, "on_sold_inventory", func(ctx context.Context) error { return s.OnSoldInventory(ctx, total) }); err != nil {
				e.logger.Printf("turn %d %s: %v", e.turn, c, err)
			}
		}
	}

	played := e.turn
	e.turn++
	e.state = e.checkTermination()
	digest := e.Digest()

	if e.turnLog != nil {
		entry := TurnLogEntry{
			Turn:      played,
			Requested: req,
			Resolved:  out.resolved,
			Illegal:   out.illegal,
			Scores:    e.scores(),
			Charge:    [2]int{e.players[board.Red].Charge, e.players[board.Blue].Charge},
			Digest:    digest,
		}
		for _, c := range board.Colors {
			if faults[c] != nil {
				entry.Faults[c] = faults[c].Error()
			}
		}
		if err := e.turnLog.WriteTurn(entry); err != nil {
			e.logger.Printf("turn log: %v", err)
		}
	}
	e.publish(played, out.resolved)

	if e.state.Terminal() {
		return e.finish(ctx, digest)
	}
	return nil
}

func (e *Engine) scores() [2]int {
	return [2]int{e.players[board.Red].Score, e.players[board.Blue].Score}
}

func (e *Engine) checkTermination() State {
	red, blue := e.players[board.Red].Score, e.players[board.Blue].Score
	win := e.cfg.WinningScore
	redQ, blueQ := red >= win, blue >= win
	switch {
	case redQ && blueQ:
		switch {
		case red > blue:
			return RedWin
		case blue > red:
			return BlueWin
		}
		return Draw
	case redQ:
		return RedWin
	case blueQ:
		return BlueWin
	case e.turn >= e.cfg.MaxTurns:
		return MaxTurnsReached
	}
	return Running
}

func (e *Engine) finish(ctx context.Context, digest string) error {
	scores := e.scores()
	for _, c := range board.Colors {
		s := e.strats[c]
		own, opp := scores[c], scores[c.Opponent()]
		if err := e.notify(ctx, c, "end_round", func(ctx context.Context) error { return s.EndRound(ctx, own, opp) }); err != nil {
			e.logger.Printf("%s end round: %v", c, err)
		}
	}
	rep, err := e.rec.Seal(replay.Result{
		Outcome: e.state.outcome(),
		Scores:  scores,
		Turns:   e.turn,
		Digest:  digest,
	})
	if err != nil {
		return fmt.Errorf("seal replay: %w", err)
	}
	e.result = Result{State: e.state, Scores: scores, Turns: e.turn, Digest: digest, Replay: rep}
	return nil
}

func (e *Engine) notify(ctx context.Context, c board.Color, op string, fn func(context.Context) error) error {
	_, err := guard(ctx, e.cfg.StrategyBudget, e.names[c], op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (e *Engine) publish(turn int, resolved [2]strategy.Action) {
	if e.sink == nil {
		return
	}
	snap := TurnSnapshot{
		Turn:    turn,
		State:   e.state,
		Size:    e.board.Size(),
		Tiles:   e.board.Tiles(),
		Prices:  e.econ.Snapshot(),
		Actions: resolved,
	}
	for _, p := range e.board.GroundCells() {
		snap.Ground = append(snap.Ground, GroundCell{Pos: p, Items: e.board.GroundAt(p)})
	}
	for _, c := range board.Colors {
		snap.Players[c] = e.players[c].Snapshot()
	}
	select {
	case e.sink <- snap:
	default:
	}
}
