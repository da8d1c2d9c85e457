package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"mineopoly.ai/internal/observerproto"
	"mineopoly.ai/internal/persistence/indexdb"
	persistlog "mineopoly.ai/internal/persistence/log"
	"mineopoly.ai/internal/persistence/r2s3"
	"mineopoly.ai/internal/persistence/replayfile"
	"mineopoly.ai/internal/sim/board"
	"mineopoly.ai/internal/sim/match"
	"mineopoly.ai/internal/sim/strategy"
	"mineopoly.ai/internal/transport/observer"
)

// Rounds plays lobby rounds and persists everything they produce: the replay
// file, the per-round turn log, audit records, the index rows and the observer feed.
type Rounds struct {
	cfg     match.Config
	dataDir string
	log     *log.Logger
	idx     *indexdb.SQLiteIndex // nil when indexing is disabled
	audit   *persistlog.AuditLogger
	hub     *observer.Hub
	mirror  *r2s3.Mirror // nil unless a bucket is configured

	mu   sync.Mutex
	seed int64

	active   atomic.Int64
	played   atomic.Uint64
	failed   atomic.Uint64
	outcomes [4]atomic.Uint64 // indexed by match.State - match.RedWin
}

// NewRounds seeds rounds sequentially from seed; 0 seeds from the clock.
func NewRounds(cfg match.Config, dataDir string, seed int64, idx *indexdb.SQLiteIndex, audit *persistlog.AuditLogger, hub *observer.Hub, logger *log.Logger) *Rounds {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Rounds{cfg: cfg, dataDir: dataDir, seed: seed, idx: idx, audit: audit, hub: hub, log: logger}
}

// SetMirror uploads each finished round's replay and turn log through m.
func (r *Rounds) SetMirror(m *r2s3.Mirror) { r.mirror = m }

func (r *Rounds) nextSeed() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.seed
	r.seed++
	return s
}

// ReplayPath is where the replay of roundID is written.
func (r *Rounds) ReplayPath(roundID string) string {
	return filepath.Join(r.dataDir, "rounds", roundID+".replay.zst")
}

// Play satisfies ws.RoundFunc.
func (r *Rounds) Play(ctx context.Context, roundID string, red, blue strategy.Strategy) error {
	r.active.Add(1)
	defer r.active.Add(-1)

	res, err := r.play(ctx, roundID, red, blue)
	if err != nil {
		r.failed.Add(1)
		r.writeAudit(persistlog.AuditEntry{RoundID: roundID, Event: "ROUND_ABORT", Reason: err.Error()})
		return err
	}
	r.played.Add(1)
	if res.State.Terminal() {
		r.outcomes[res.State-match.RedWin].Add(1)
	}
	return nil
}

func (r *Rounds) play(ctx context.Context, roundID string, red, blue strategy.Strategy) (match.Result, error) {
	seed := r.nextSeed()

	tl := persistlog.NewTurnLogger(r.dataDir, roundID)
	defer tl.Close()
	loggers := multiTurnLogger{tl}
	if r.idx != nil {
		loggers = append(loggers, r.idx.TurnLogger(roundID))
	}

	sink := make(chan match.TurnSnapshot, 64)
	e, err := match.New(r.cfg, red, blue, seed,
		match.WithLogger(r.log),
		match.WithTurnLogger(loggers),
		match.WithSnapshotSink(sink),
	)
	if err != nil {
		return match.Result{}, fmt.Errorf("new round: %w", err)
	}

	r.hub.Begin(observerproto.NewBootstrap(roundID, e))
	fed := make(chan struct{})
	go func() {
		defer close(fed)
		r.hub.Feed(roundID, sink)
	}()
	r.writeAudit(persistlog.AuditEntry{
		RoundID: roundID, Event: "ROUND_START",
		Red: e.Name(board.Red), Blue: e.Name(board.Blue), Seed: seed,
	})

	res, err := e.Run(ctx)
	close(sink)
	<-fed
	if err != nil {
		return res, err
	}
	r.hub.End(observerproto.NewEnd(roundID, res))
	if err := tl.Close(); err != nil {
		r.log.Printf("%s: close turn log: %v", roundID, err)
	}

	path := r.ReplayPath(roundID)
	if err := replayfile.Write(path, res.Replay); err != nil {
		r.log.Printf("%s: write replay: %v", roundID, err)
		path = ""
	}
	if r.idx != nil {
		r.idx.RecordRound(indexdb.RoundFromResult(roundID, res, path))
	}
	r.mirror.Enqueue(path, tl.Path())
	r.writeAudit(persistlog.AuditEntry{
		RoundID: roundID, Event: "ROUND_END",
		Red: e.Name(board.Red), Blue: e.Name(board.Blue), Seed: seed,
		Outcome: res.State.String(), Scores: res.Scores, Turns: res.Turns,
	})
	r.log.Printf("%s: %s %d-%d after %d turns", roundID, res.State, res.Scores[board.Red], res.Scores[board.Blue], res.Turns)
	return res, nil
}

func (r *Rounds) writeAudit(e persistlog.AuditEntry) {
	if r.audit == nil {
		return
	}
	if err := r.audit.WriteAudit(e); err != nil {
		r.log.Printf("audit: %v", err)
	}
}

// Metrics is a point-in-time view of round counters.
type Metrics struct {
	Active   int64
	Played   uint64
	Failed   uint64
	Outcomes map[string]uint64
}

func (r *Rounds) Metrics() Metrics {
	m := Metrics{
		Active:   r.active.Load(),
		Played:   r.played.Load(),
		Failed:   r.failed.Load(),
		Outcomes: make(map[string]uint64, len(r.outcomes)),
	}
	for i := range r.outcomes {
		m.Outcomes[(match.RedWin + match.State(i)).String()] = r.outcomes[i].Load()
	}
	return m
}

type multiTurnLogger []match.TurnLogger

// WriteTurn writes to every logger, even after one fails.
func (m multiTurnLogger) WriteTurn(e match.TurnLogEntry) error {
	var errs []error
	for _, l := range m {
		if err := l.WriteTurn(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
