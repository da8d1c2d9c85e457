package replayfile

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"mineopoly.ai/internal/sim/match"
	"mineopoly.ai/internal/sim/replay"
	"mineopoly.ai/internal/sim/strategy"
)

func playRound(t *testing.T) match.Result {
	t.Helper()
	e, err := match.New(match.Config{BoardSize: 14, MaxTurns: 200}, strategy.NewGreedy(), strategy.NewRandom(), 2024)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return res
}

func TestWriteRead_RoundTrip(t *testing.T) {
	res := playRound(t)
	path := filepath.Join(t.TempDir(), "rounds", "r1.replay.zst")
	if err := Write(path, res.Replay); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Len() != res.Replay.Len() {
		t.Fatalf("entries=%d want %d", got.Len(), res.Replay.Len())
	}
	for i := 0; i < got.Len(); i++ {
		if got.At(i) != res.Replay.At(i) {
			t.Fatalf("entry %d: %+v vs %+v", i, got.At(i), res.Replay.At(i))
		}
	}
	if got.Result() != res.Replay.Result() {
		t.Fatalf("result %+v vs %+v", got.Result(), res.Replay.Result())
	}
	if got.Header().Seed != 2024 || got.Header().Red != "Greedy" {
		t.Fatalf("header=%+v", got.Header())
	}
	if err := match.Verify(context.Background(), got); err != nil {
		t.Fatalf("verify after reload: %v", err)
	}
}

func compress(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	if _, err := w.Write(raw); err != nil {
		t.Fatalf("zstd write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zstd close: %v", err)
	}
	return buf.Bytes()
}

func TestDecode_RejectsMalformed(t *testing.T) {
	cases := map[string][]byte{
		"not zstd":     []byte("hello"),
		"no newline":   compress(t, []byte(`{"format":"mineopoly-replay"}`)),
		"wrong format": compress(t, []byte(`{"format":"other","header":{},"result":{}}`+"\n")),
		"bad outcome": compress(t, []byte(`{"format":"mineopoly-replay","header":{"version":1,"seed":1,"red":"a","blue":"b",`+
			`"rules":{"board_size":4,"max_inventory":5,"max_charge":80,"winning_score":10,"max_turns":5,"settlement":"standing"}},`+
			`"result":{"outcome":"SOMETHING","scores":[0,0],"turns":0}}`+"\n")),
		"huge board": compress(t, []byte(`{"format":"mineopoly-replay","header":{"version":1,"seed":1,"red":"a","blue":"b",`+
			`"rules":{"board_size":3100000000,"max_inventory":5,"max_charge":80,"winning_score":10,"max_turns":5,"settlement":"standing",`+
			`"layout":{"tiles":"AQE=","yields":"AAE="}}},`+
			`"result":{"outcome":"DRAW","scores":[0,0],"turns":0}}`+"\n")),
		"missing body": compress(t, []byte(`{"format":"mineopoly-replay","header":{"version":1,"seed":1,"red":"a","blue":"b",`+
			`"rules":{"board_size":4,"max_inventory":5,"max_charge":80,"winning_score":10,"max_turns":5,"settlement":"standing"}},`+
			`"result":{"outcome":"DRAW","scores":[0,0],"turns":0}}`+"\n")),
	}
	for name, raw := range cases {
		_, err := Decode(bytes.NewReader(raw))
		if err == nil {
			t.Fatalf("%s: decoded without error", name)
		}
		if name != "not zstd" && !errors.Is(err, replay.ErrFormat) {
			t.Fatalf("%s: want format error, got %v", name, err)
		}
	}
}

func TestDecode_RejectsTruncatedEntries(t *testing.T) {
	res := playRound(t)
	var buf bytes.Buffer
	if err := Encode(&buf, res.Replay); err != nil {
		t.Fatalf("encode: %v", err)
	}

	// Re-encode with one entry dropped: the body no longer matches the recorded turn count.
	hdr := HeaderV1{Format: Format, Header: res.Replay.Header(), Result: res.Replay.Result()}
	var entries []replay.Entry
	for e := range res.Replay.Entries() {
		entries = append(entries, e)
	}
	if _, err := replay.New(hdr.Header, entries[:len(entries)-1], hdr.Result); !errors.Is(err, replay.ErrFormat) {
		t.Fatalf("replay.New accepted a truncated log: %v", err)
	}

	if _, err := Read(filepath.Join(t.TempDir(), "missing.replay.zst")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file: %v", err)
	}
}
