package replayfile

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"mineopoly.ai/internal/sim/board"
	"mineopoly.ai/internal/sim/replay"
	"mineopoly.ai/internal/sim/strategy"
)

// File layout: zstd( JSON header line + '\n' + gob(bodyV1) ).
// The header is readable with `zstdcat x.replay.zst | head -1`.

const Format = "mineopoly-replay"

type HeaderV1 struct {
	Format string        `json:"format"`
	Header replay.Header `json:"header"`
	Result replay.Result `json:"result"`
}

type bodyV1 struct {
	Entries []EntryV1
}

type EntryV1 struct {
	Turn   int
	Color  uint8
	Action uint8
}

var headerSchema = jsonschema.MustCompileString("mineopoly://replay-header.schema.json", `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["format", "header", "result"],
  "properties": {
    "format": {"const": "mineopoly-replay"},
    "header": {
      "type": "object",
      "required": ["version", "seed", "rules", "red", "blue"],
      "properties": {
        "version": {"type": "integer", "minimum": 1},
        "seed": {"type": "integer"},
        "red": {"type": "string"},
        "blue": {"type": "string"},
        "rules": {
          "type": "object",
          "required": ["board_size", "max_inventory", "max_charge", "winning_score", "max_turns", "settlement"],
          "properties": {
            "board_size": {"type": "integer", "minimum": 1, "maximum": 256},
            "max_inventory": {"type": "integer", "minimum": 1},
            "max_charge": {"type": "integer", "minimum": 1},
            "winning_score": {"type": "integer", "minimum": 1},
            "max_turns": {"type": "integer", "minimum": 1},
            "settlement": {"enum": ["standing", "arrival"]},
            "layout": {
              "type": "object",
              "required": ["tiles", "yields"],
              "properties": {
                "tiles": {"type": "string"},
                "yields": {"type": "string"}
              }
            }
          }
        }
      }
    },
    "result": {
      "type": "object",
      "required": ["outcome", "scores", "turns"],
      "properties": {
        "outcome": {"enum": ["RED_WIN", "BLUE_WIN", "DRAW", "MAX_TURNS_REACHED"]},
        "scores": {"type": "array", "items": {"type": "integer", "minimum": 0}, "minItems": 2, "maxItems": 2},
        "turns": {"type": "integer", "minimum": 0},
        "digest": {"type": "string"}
      }
    }
  }
}`)

func Write(path string, rep *replay.Replay) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := Encode(f, rep); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Encode writes rep to w in the replay file format.
func Encode(w io.Writer, rep *replay.Replay) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, err := json.Marshal(HeaderV1{Format: Format, Header: rep.Header(), Result: rep.Result()})
	if err != nil {
		_ = enc.Close()
		return fmt.Errorf("marshal header: %w", err)
	}
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}

	body := bodyV1{Entries: make([]EntryV1, 0, rep.Len())}
	for e := range rep.Entries() {
		body.Entries = append(body.Entries, EntryV1{Turn: e.Turn, Color: uint8(e.Color), Action: uint8(e.Action)})
	}
	if err := gob.NewEncoder(bw).Encode(&body); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func Read(path string) (*replay.Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a replay. Anything other than an I/O failure on r is reported as *replay.FormatError.
func Decode(r io.Reader) (*replay.Replay, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	br := bufio.NewReaderSize(dec, 64*1024)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, &replay.FormatError{Reason: "read header", Err: err}
	}
	hdr, err := ParseHeader(line)
	if err != nil {
		return nil, err
	}

	var body bodyV1
	if err := gob.NewDecoder(br).Decode(&body); err != nil {
		return nil, &replay.FormatError{Reason: "gob decode", Err: err}
	}
	entries := make([]replay.Entry, len(body.Entries))
	for i, e := range body.Entries {
		entries[i] = replay.Entry{Turn: e.Turn, Color: board.Color(e.Color), Action: strategy.Action(e.Action)}
	}
	return replay.New(hdr.Header, entries, hdr.Result)
}

// ParseHeader validates and decodes the JSON header line.
func ParseHeader(line []byte) (HeaderV1, error) {
	var h HeaderV1
	var doc any
	if err := json.Unmarshal(line, &doc); err != nil {
		return h, &replay.FormatError{Reason: "header json", Err: err}
	}
	if err := headerSchema.Validate(doc); err != nil {
		return h, &replay.FormatError{Reason: "header schema", Err: err}
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, &replay.FormatError{Reason: "header json", Err: err}
	}
	return h, nil
}
