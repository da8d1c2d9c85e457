package winrate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"

	"mineopoly.ai/internal/persistence/indexdb"
	"mineopoly.ai/internal/sim/batch"
)

func TestParseConfig(t *testing.T) {
	t.Setenv("MINEOPOLY_SIZES", "14,20")
	t.Setenv("MINEOPOLY_CANDIDATE", "random")

	cfg, err := ParseConfig(flag.NewFlagSet("winrate", flag.ContinueOnError), nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfg.Sizes) != 2 || cfg.Sizes[1] != 20 || cfg.Candidate != "random" || cfg.Opponent != "random" {
		t.Fatalf("cfg=%+v", cfg)
	}

	cfg, err = ParseConfig(flag.NewFlagSet("winrate", flag.ContinueOnError), []string{"-sizes", " 26 ,32,", "-rounds", "5"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfg.Sizes) != 2 || cfg.Sizes[0] != 26 || cfg.Rounds != 5 {
		t.Fatalf("cfg=%+v", cfg)
	}

	if _, err := ParseConfig(flag.NewFlagSet("winrate", flag.ContinueOnError), []string{"-sizes", "big"}); err == nil {
		t.Fatalf("bad sizes accepted")
	}
}

func testConfig(t *testing.T) Config {
	return Config{
		Candidate:  "greedy",
		Opponent:   "random",
		Rounds:     4,
		Parallel:   2,
		Sizes:      []int{10},
		Seed:       5,
		TuningPath: filepath.Join(t.TempDir(), "missing.yaml"),
	}
}

func TestRun_JSONAndIndex(t *testing.T) {
	cfg := testConfig(t)
	cfg.JSON = true
	cfg.DBPath = filepath.Join(t.TempDir(), "batch.sqlite")

	var out bytes.Buffer
	if err := Run(context.Background(), cfg, &out, log.New(io.Discard, "", 0)); err != nil {
		t.Fatalf("run: %v", err)
	}
	var rep batch.Report
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out.String())
	}
	if rep.Candidate != "Greedy" || len(rep.Sizes) != 1 || rep.Sizes[0].Rounds != 4 {
		t.Fatalf("report=%+v", rep)
	}

	idx, err := indexdb.OpenSQLite(cfg.DBPath)
	if err != nil {
		t.Fatalf("reopen index: %v", err)
	}
	defer idx.Close()
	rows, err := idx.ListRounds(context.Background(), 0)
	if err != nil || len(rows) != 4 {
		t.Fatalf("indexed rounds=%d err=%v", len(rows), err)
	}
	for _, r := range rows {
		if !strings.HasPrefix(r.RoundID, "batch-5-10-") {
			t.Fatalf("round id %q", r.RoundID)
		}
	}
}

func TestRun_TableAndMinRate(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	if err := Run(context.Background(), cfg, &out, log.New(io.Discard, "", 0)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(out.String(), "Greedy vs Random\n") || !strings.Contains(out.String(), "win%") {
		t.Fatalf("table:\n%s", out.String())
	}

	cfg.MinRate = 1.01
	err := Run(context.Background(), cfg, io.Discard, log.New(io.Discard, "", 0))
	if !errors.Is(err, ErrBelowMinRate) {
		t.Fatalf("min rate: %v", err)
	}

	cfg.MinRate = 0
	cfg.Candidate = "nobody"
	if err := Run(context.Background(), cfg, io.Discard, log.New(io.Discard, "", 0)); err == nil {
		t.Fatalf("unknown candidate accepted")
	}
}
