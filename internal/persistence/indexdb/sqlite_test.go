package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"mineopoly.ai/internal/sim/match"
	"mineopoly.ai/internal/sim/strategy"
)

func playIndexed(t *testing.T, idx *SQLiteIndex, roundID string, red, blue strategy.Strategy, seed int64) match.Result {
	t.Helper()
	e, err := match.New(match.Config{BoardSize: 10, MaxTurns: 60}, red, blue, seed, match.WithTurnLogger(idx.TurnLogger(roundID)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	idx.RecordRound(RoundFromResult(roundID, res, "/data/rounds/"+roundID+".replay.zst"))
	return res
}

func TestSQLiteIndex_RoundsAndTurns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer idx.Close()

	res := playIndexed(t, idx, "r1", strategy.NewGreedy(), strategy.NewScripted("Idle", nil), 5)
	if err := idx.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	rounds, err := idx.ListRounds(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRounds: %v", err)
	}
	if len(rounds) != 1 {
		t.Fatalf("rounds=%d want 1", len(rounds))
	}
	r := rounds[0]
	if r.RoundID != "r1" || r.Seed != 5 || r.Red != "Greedy" || r.Blue != "Idle" || r.BoardSize != 10 {
		t.Fatalf("row mismatch: %+v", r)
	}
	if r.Scores != res.Scores || r.Turns != res.Turns || r.Digest != res.Digest {
		t.Fatalf("row %+v does not match result %+v", r, res)
	}

	turns, err := idx.Turns(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Turns: %v", err)
	}
	if len(turns) != res.Turns {
		t.Fatalf("indexed %d turns, round ran %d", len(turns), res.Turns)
	}
	if turns[len(turns)-1].Digest != res.Digest {
		t.Fatalf("last turn digest mismatch")
	}
}

func TestSQLiteIndex_WinRates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer idx.Close()

	idx.RecordRound(RoundRow{RoundID: "a", Red: "Greedy", Blue: "Random", Outcome: "RED_WIN", Scores: [2]int{2000, 100}, Turns: 300})
	idx.RecordRound(RoundRow{RoundID: "b", Red: "Random", Blue: "Greedy", Outcome: "BLUE_WIN", Scores: [2]int{0, 2100}, Turns: 310})
	idx.RecordRound(RoundRow{RoundID: "c", Red: "Greedy", Blue: "Random", Outcome: "MAX_TURNS_REACHED", Scores: [2]int{1500, 200}, Turns: 1000})
	idx.RecordRound(RoundRow{RoundID: "d", Red: "Random", Blue: "Greedy", Outcome: "DRAW", Scores: [2]int{2000, 2000}, Turns: 500})
	if err := idx.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	rates, err := idx.WinRates(context.Background())
	if err != nil {
		t.Fatalf("WinRates: %v", err)
	}
	if len(rates) != 2 {
		t.Fatalf("rates=%+v", rates)
	}
	g, rnd := rates[0], rates[1]
	if g.Strategy != "Greedy" || rnd.Strategy != "Random" {
		t.Fatalf("order: %+v", rates)
	}
	if g.Rounds != 4 || g.Wins != 2 || g.Draws != 1 || g.Ceilings != 1 {
		t.Fatalf("greedy=%+v", g)
	}
	if g.Rate() != 0.5 {
		t.Fatalf("greedy rate=%v want 0.5", g.Rate())
	}
	if rnd.Wins != 0 || rnd.MeanScore != 575 {
		t.Fatalf("random=%+v", rnd)
	}
}

func TestSQLiteIndex_PersistsAcrossClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	idx.RecordRound(RoundRow{RoundID: "x", Red: "a", Blue: "b", Outcome: "DRAW", Digest: "d"})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Recording after close is a no-op.
	idx.RecordRound(RoundRow{RoundID: "y"})

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM rounds WHERE round_id='x' AND digest='d'`).Scan(&n); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if n != 1 {
		t.Fatalf("count=%d want 1", n)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqRound}

	s.RecordRound(RoundRow{RoundID: "r"})
	s.RecordTurn("r", match.TurnLogEntry{Turn: 1})
	s.RecordTurn("", match.TurnLogEntry{Turn: 2})

	st := s.Stats()
	if st.DropRoundTotal != 1 {
		t.Fatalf("DropRoundTotal=%d want=1", st.DropRoundTotal)
	}
	if st.DropTurnTotal != 1 {
		t.Fatalf("DropTurnTotal=%d want=1", st.DropTurnTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}
