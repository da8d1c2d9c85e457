package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"mineopoly.ai/internal/sim/match"
)

// SQLiteIndex is a queryable secondary index of finished rounds and their turns.
// Writes are queued to a single writer goroutine and batched into transactions;
// replay files and turn logs remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB
	ro *sql.DB

	mu   sync.RWMutex
	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropRound atomic.Uint64
	dropTurn  atomic.Uint64
}

type reqKind int

const (
	reqRound reqKind = iota + 1
	reqTurn
	reqFlush
)

type req struct {
	kind reqKind

	round   RoundRow
	roundID string
	turn    match.TurnLogEntry
	done    chan struct{}
}

// RoundRow is one finished round.
type RoundRow struct {
	RoundID    string `json:"round_id"`
	Seed       int64  `json:"seed"`
	Red        string `json:"red"`
	Blue       string `json:"blue"`
	BoardSize  int    `json:"board_size"`
	Outcome    string `json:"outcome"`
	Scores     [2]int `json:"scores"`
	Turns      int    `json:"turns"`
	Digest     string `json:"digest"`
	ReplayPath string `json:"replay_path,omitempty"`
	RecordedAt string `json:"recorded_at"`
}

// RoundFromResult builds the index row for a finished round.
func RoundFromResult(roundID string, res match.Result, replayPath string) RoundRow {
	r := RoundRow{
		RoundID:    roundID,
		Outcome:    res.State.String(),
		Scores:     res.Scores,
		Turns:      res.Turns,
		Digest:     res.Digest,
		ReplayPath: replayPath,
	}
	if res.Replay != nil {
		h := res.Replay.Header()
		r.Seed = h.Seed
		r.Red = h.Red
		r.Blue = h.Blue
		r.BoardSize = h.Rules.BoardSize
		r.Outcome = string(res.Replay.Result().Outcome)
	}
	return r
}

// WinRate aggregates every indexed round a strategy played, in either color.
type WinRate struct {
	Strategy  string  `json:"strategy"`
	Rounds    int     `json:"rounds"`
	Wins      int     `json:"wins"`
	Draws     int     `json:"draws"`
	Ceilings  int     `json:"ceilings"`
	MeanScore float64 `json:"mean_score"`
}

func (w WinRate) Rate() float64 {
	if w.Rounds == 0 {
		return 0
	}
	return float64(w.Wins) / float64(w.Rounds)
}

type Stats struct {
	QueueDepth     int
	QueueCapacity  int
	DropRoundTotal uint64
	DropTurnTotal  uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// WAL lets readers run beside the writer's open transaction.
	ro, err := sql.Open("sqlite", path)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	ro.SetMaxOpenConns(4)
	if _, err := ro.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		_ = ro.Close()
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ro: ro,
		ch: make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS rounds (
			round_id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			red TEXT NOT NULL,
			blue TEXT NOT NULL,
			board_size INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			red_score INTEGER NOT NULL,
			blue_score INTEGER NOT NULL,
			turns INTEGER NOT NULL,
			digest TEXT NOT NULL,
			replay_path TEXT,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_red ON rounds(red);`,
		`CREATE INDEX IF NOT EXISTS idx_rounds_blue ON rounds(blue);`,
		`CREATE TABLE IF NOT EXISTS turns (
			round_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			red_action TEXT NOT NULL,
			blue_action TEXT NOT NULL,
			red_score INTEGER NOT NULL,
			blue_score INTEGER NOT NULL,
			digest TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (round_id, turn)
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the queue, commits and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
		if rerr := s.ro.Close(); err == nil {
			err = rerr
		}
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropRoundTotal: s.dropRound.Load(),
		DropTurnTotal:  s.dropTurn.Load(),
	}
}

// enqueue drops the request if the writer has fallen behind.
func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) RecordRound(r RoundRow) {
	if s == nil || r.RoundID == "" {
		return
	}
	if r.RecordedAt == "" {
		r.RecordedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	s.enqueue(req{kind: reqRound, round: r}, &s.dropRound)
}

func (s *SQLiteIndex) RecordTurn(roundID string, e match.TurnLogEntry) {
	if s == nil || roundID == "" {
		return
	}
	s.enqueue(req{kind: reqTurn, roundID: roundID, turn: e}, &s.dropTurn)
}

// TurnLogger indexes every turn of one round.
func (s *SQLiteIndex) TurnLogger(roundID string) match.TurnLogger {
	return match.TurnLoggerFunc(func(e match.TurnLogEntry) error {
		s.RecordTurn(roundID, e)
		return nil
	})
}

// Flush blocks until everything queued so far is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	done := make(chan struct{})
	s.mu.RLock()
	if s.closed.Load() {
		s.mu.RUnlock()
		return nil
	}
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListRounds returns the most recently recorded rounds first. limit <= 0 means all.
func (s *SQLiteIndex) ListRounds(ctx context.Context, limit int) ([]RoundRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.ro.QueryContext(ctx, `SELECT round_id,seed,red,blue,board_size,outcome,red_score,blue_score,turns,digest,COALESCE(replay_path,''),recorded_at
		FROM rounds ORDER BY recorded_at DESC, round_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RoundRow
	for rows.Next() {
		var r RoundRow
		if err := rows.Scan(&r.RoundID, &r.Seed, &r.Red, &r.Blue, &r.BoardSize, &r.Outcome,
			&r.Scores[0], &r.Scores[1], &r.Turns, &r.Digest, &r.ReplayPath, &r.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// WinRates counts a win only for RED_WIN / BLUE_WIN outcomes; a round that hit the
// turn ceiling is tallied under Ceilings whatever the scores were.
func (s *SQLiteIndex) WinRates(ctx context.Context) ([]WinRate, error) {
	rows, err := s.ro.QueryContext(ctx, `SELECT name, COUNT(*), SUM(win), SUM(draw), SUM(ceiling), AVG(score) FROM (
			SELECT red AS name,
				CASE WHEN outcome='RED_WIN' THEN 1 ELSE 0 END AS win,
				CASE WHEN outcome='DRAW' THEN 1 ELSE 0 END AS draw,
				CASE WHEN outcome='MAX_TURNS_REACHED' THEN 1 ELSE 0 END AS ceiling,
				red_score AS score
			FROM rounds
			UNION ALL
			SELECT blue,
				CASE WHEN outcome='BLUE_WIN' THEN 1 ELSE 0 END,
				CASE WHEN outcome='DRAW' THEN 1 ELSE 0 END,
				CASE WHEN outcome='MAX_TURNS_REACHED' THEN 1 ELSE 0 END,
				blue_score
			FROM rounds
		) GROUP BY name ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WinRate
	for rows.Next() {
		var w WinRate
		if err := rows.Scan(&w.Strategy, &w.Rounds, &w.Wins, &w.Draws, &w.Ceilings, &w.MeanScore); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Turns returns the indexed turn records of one round in order.
func (s *SQLiteIndex) Turns(ctx context.Context, roundID string) ([]match.TurnLogEntry, error) {
	rows, err := s.ro.QueryContext(ctx, `SELECT raw_json FROM turns WHERE round_id=? ORDER BY turn`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []match.TurnLogEntry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e match.TurnLogEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("round %s turn %d: %w", roundID, len(out), err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertRound, _ := s.db.Prepare(`INSERT OR REPLACE INTO rounds(round_id,seed,red,blue,board_size,outcome,red_score,blue_score,turns,digest,replay_path,recorded_at) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertTurn, _ := s.db.Prepare(`INSERT OR REPLACE INTO turns(round_id,turn,red_action,blue_action,red_score,blue_score,digest,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertRound != nil {
			_ = insertRound.Close()
		}
		if insertTurn != nil {
			_ = insertTurn.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var r req
		select {
		case <-ticker.C:
			flushIfNeeded()
			continue
		case rr, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = rr
		}

		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqRound:
			ro := r.round
			if insertRound == nil {
				continue
			}
			if _, err := tx.Stmt(insertRound).Exec(
				ro.RoundID,
				ro.Seed,
				ro.Red,
				ro.Blue,
				ro.BoardSize,
				ro.Outcome,
				ro.Scores[0],
				ro.Scores[1],
				ro.Turns,
				ro.Digest,
				ro.ReplayPath,
				ro.RecordedAt,
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqTurn:
			te := r.turn
			if insertTurn == nil {
				continue
			}
			raw, _ := json.Marshal(te)
			if _, err := tx.Stmt(insertTurn).Exec(
				r.roundID,
				te.Turn,
				te.Resolved[0].String(),
				te.Resolved[1].String(),
				te.Scores[0],
				te.Scores[1],
				te.Digest,
				string(raw),
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		flushIfNeeded()
	}
}
