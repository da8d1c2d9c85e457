package server

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"mineopoly.ai/internal/persistence/indexdb"
	persistlog "mineopoly.ai/internal/persistence/log"
	"mineopoly.ai/internal/persistence/r2s3"
	"mineopoly.ai/internal/persistence/replayfile"
	"mineopoly.ai/internal/sim/match"
	"mineopoly.ai/internal/sim/strategy"
	"mineopoly.ai/internal/transport/observer"
	"mineopoly.ai/internal/transport/ws"
)

func TestParseConfig_EnvThenFlags(t *testing.T) {
	t.Setenv("MINEOPOLY_ADDR", ":9000")
	t.Setenv("MINEOPOLY_OPPONENT", "greedy")
	t.Setenv("MINEOPOLY_SEED", "7")

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-seed", "9", "-disable_db"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.Opponent != "greedy" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.Seed != 9 || !cfg.DisableDB {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.DataDir != "./data" || !cfg.AdminHTTP {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestParseConfig_BadEnv(t *testing.T) {
	t.Setenv("MINEOPOLY_SEED", "soon")
	if _, err := ParseConfig(flag.NewFlagSet("server", flag.ContinueOnError), nil); err == nil {
		t.Fatalf("bad env value accepted")
	}
}

func TestLoadTuning_MissingFileUsesDefaults(t *testing.T) {
	tune, err := LoadTuning(filepath.Join(t.TempDir(), "nope.yaml"), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	mc, err := tune.MatchConfig()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if mc.BoardSize != match.DefaultConfig().BoardSize {
		t.Fatalf("board size=%d", mc.BoardSize)
	}
}

type fixture struct {
	dir    string
	idx    *indexdb.SQLiteIndex
	audit  *persistlog.AuditLogger
	hub    *observer.Hub
	rounds *Rounds
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	idx, err := indexdb.OpenSQLite(filepath.Join(dir, "index", "rounds.sqlite"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	audit := persistlog.NewAuditLogger(dir)
	t.Cleanup(func() { _ = audit.Close() })
	logger := log.New(io.Discard, "", 0)
	hub := observer.NewHub(logger)
	cfg := match.Config{BoardSize: 10, MaxTurns: 80, StrategyBudget: time.Second}
	return &fixture{dir: dir, idx: idx, audit: audit, hub: hub, rounds: NewRounds(cfg, dir, 100, idx, audit, hub, logger)}
}

func TestRounds_PersistsEverything(t *testing.T) {
	f := newFixture(t)
	if err := f.rounds.Play(context.Background(), "r1", strategy.NewGreedy(), strategy.NewRandom()); err != nil {
		t.Fatalf("play: %v", err)
	}

	rep, err := replayfile.Read(f.rounds.ReplayPath("r1"))
	if err != nil {
		t.Fatalf("read replay: %v", err)
	}
	if rep.Header().Seed != 100 {
		t.Fatalf("first round seed=%d", rep.Header().Seed)
	}
	if err := match.Verify(context.Background(), rep); err != nil {
		t.Fatalf("verify: %v", err)
	}

	turns, err := persistlog.ReadTurns(filepath.Join(f.dir, "turns", "turns-r1.jsonl.zst"))
	if err != nil {
		t.Fatalf("turn log: %v", err)
	}
	if len(turns) != rep.Result().Turns {
		t.Fatalf("turn log has %d entries, replay %d turns", len(turns), rep.Result().Turns)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.idx.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	rows, err := f.idx.ListRounds(ctx, 10)
	if err != nil || len(rows) != 1 {
		t.Fatalf("rounds=%v err=%v", rows, err)
	}
	if rows[0].RoundID != "r1" || rows[0].ReplayPath != f.rounds.ReplayPath("r1") || rows[0].Red != "Greedy" {
		t.Fatalf("row=%+v", rows[0])
	}
	indexed, err := f.idx.Turns(ctx, "r1")
	if err != nil || len(indexed) != len(turns) {
		t.Fatalf("indexed turns=%d err=%v", len(indexed), err)
	}

	boot, ok := f.hub.Bootstrap()
	if !ok || boot.RoundID != "r1" || boot.Size != 10 {
		t.Fatalf("bootstrap=%+v ok=%v", boot, ok)
	}

	m := f.rounds.Metrics()
	if m.Played != 1 || m.Active != 0 || m.Failed != 0 {
		t.Fatalf("metrics=%+v", m)
	}
	var total uint64
	for _, n := range m.Outcomes {
		total += n
	}
	if total != 1 {
		t.Fatalf("outcomes=%v", m.Outcomes)
	}

	// Second round gets the next seed.
	if err := f.rounds.Play(context.Background(), "r2", strategy.NewRandom(), strategy.NewGreedy()); err != nil {
		t.Fatalf("play r2: %v", err)
	}
	rep2, err := replayfile.Read(f.rounds.ReplayPath("r2"))
	if err != nil || rep2.Header().Seed != 101 {
		t.Fatalf("r2 seed: %v", err)
	}
}

func TestRounds_CancelledRoundIsCountedAsFailed(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.rounds.Play(ctx, "gone", strategy.NewGreedy(), strategy.NewRandom()); err == nil {
		t.Fatalf("cancelled round reported success")
	}
	if m := f.rounds.Metrics(); m.Failed != 1 || m.Played != 0 {
		t.Fatalf("metrics=%+v", m)
	}
	if _, err := os.Stat(f.rounds.ReplayPath("gone")); !os.IsNotExist(err) {
		t.Fatalf("replay written for aborted round: %v", err)
	}
}

func TestMux_MetricsAndAdmin(t *testing.T) {
	f := newFixture(t)
	if err := f.rounds.Play(context.Background(), "r1", strategy.NewGreedy(), strategy.NewRandom()); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := f.idx.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	logger := log.New(io.Discard, "", 0)
	lobby := ws.NewServer(f.rounds.Play, logger)
	defer lobby.Close()
	mux := NewMux(Config{AdminHTTP: true}, lobby, f.rounds, f.idx, f.hub, logger)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{"mineopoly_rounds_active 0", "mineopoly_rounds_failed_total 0", "mineopoly_index_queue_depth"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/v1/rounds", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-loopback admin request: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/rounds?limit=5", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("rounds: %d %s", rec.Code, rec.Body.String())
	}
	var rows []indexdb.RoundRow
	if err := json.NewDecoder(rec.Body).Decode(&rows); err != nil || len(rows) != 1 {
		t.Fatalf("rows=%v err=%v", rows, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/winrates", nil)
	req.RemoteAddr = "[::1]:5555"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	var rates []indexdb.WinRate
	if err := json.NewDecoder(rec.Body).Decode(&rates); err != nil || len(rates) != 2 {
		t.Fatalf("winrates=%v err=%v", rates, err)
	}
}

func TestRounds_MirrorsRoundFiles(t *testing.T) {
	var mu sync.Mutex
	var keys []string
	bucket := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		keys = append(keys, r.URL.Path)
		mu.Unlock()
	}))
	defer bucket.Close()

	f := newFixture(t)
	client, err := r2s3.New(r2s3.Config{Endpoint: bucket.URL, Bucket: "b", AccessKeyID: "a", SecretAccessKey: "s"})
	if err != nil {
		t.Fatalf("r2 client: %v", err)
	}
	mirror := r2s3.NewMirror(client, f.dir, "mineopoly", 1, 8, log.New(io.Discard, "", 0))
	f.rounds.SetMirror(mirror)
	if err := f.rounds.Play(context.Background(), "r9", strategy.NewGreedy(), strategy.NewRandom()); err != nil {
		t.Fatalf("play: %v", err)
	}
	mirror.Close()

	sort.Strings(keys)
	want := []string{"/b/mineopoly/rounds/r9.replay.zst", "/b/mineopoly/turns/turns-r9.jsonl.zst"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Fatalf("uploaded %v want %v", keys, want)
	}

	rec := httptest.NewRecorder()
	writeMetrics(rec, f.rounds, nil, f.hub)
	if !strings.Contains(rec.Body.String(), `mineopoly_r2_uploads_total{result="ok"} 2`) {
		t.Fatalf("metrics:\n%s", rec.Body.String())
	}
}

func TestMultiTurnLogger_JoinsErrors(t *testing.T) {
	errDisk := errors.New("disk full")
	errQueue := errors.New("queue full")
	var reached int
	m := multiTurnLogger{
		match.TurnLoggerFunc(func(match.TurnLogEntry) error { return errDisk }),
		match.TurnLoggerFunc(func(match.TurnLogEntry) error { reached++; return errQueue }),
	}
	err := m.WriteTurn(match.TurnLogEntry{})
	if !errors.Is(err, errDisk) || !errors.Is(err, errQueue) || reached != 1 {
		t.Fatalf("err=%v reached=%d", err, reached)
	}
	ok := multiTurnLogger{match.TurnLoggerFunc(func(match.TurnLogEntry) error { return nil })}
	if err := ok.WriteTurn(match.TurnLogEntry{}); err != nil {
		t.Fatalf("clean write: %v", err)
	}
}
