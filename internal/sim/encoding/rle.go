package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"mineopoly.ai/internal/sim/board"
)

// EncodeTiles encodes a row-major tile grid into base64(varint pairs).
// The pairs are (tile_type, run_len) repeated.
func EncodeTiles(tiles []board.TileType) string {
	vals := make([]uint64, len(tiles))
	for i, t := range tiles {
		vals[i] = uint64(t)
	}
	return encodeRuns(vals)
}

// DecodeTiles reverses EncodeTiles. want is the expected cell count (size*size); a stream
// that decodes to any other length, or names an unknown tile type, is rejected.
func DecodeTiles(b64 string, want int) ([]board.TileType, error) {
	vals, err := decodeRuns(b64, want)
	if err != nil {
		return nil, err
	}
	out := make([]board.TileType, len(vals))
	for i, v := range vals {
		t := board.TileType(v)
		if v > 0xFF || !t.Valid() {
			return nil, fmt.Errorf("unknown tile type %d at cell %d", v, i)
		}
		out[i] = t
	}
	return out, nil
}

// EncodeCounts encodes non-negative integers (vein yields) the same way.
func EncodeCounts(counts []int) string {
	vals := make([]uint64, len(counts))
	for i, c := range counts {
		if c > 0 {
			vals[i] = uint64(c)
		}
	}
	return encodeRuns(vals)
}

func DecodeCounts(b64 string, want int) ([]int, error) {
	vals, err := decodeRuns(b64, want)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(vals))
	for i, v := range vals {
		if v > 1<<31 {
			return nil, fmt.Errorf("count too large at %d: %d", i, v)
		}
		out[i] = int(v)
	}
	return out, nil
}

func encodeRuns(vals []uint64) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(vals) {
		v := vals[i]
		run := 1
		for j := i + 1; j < len(vals) && vals[j] == v; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], v)
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func decodeRuns(b64 string, want int) ([]uint64, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var out []uint64
	for i := 0; i < len(raw); {
		v, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if run == 0 || run > uint64(want-len(out)) {
			return nil, fmt.Errorf("run of %d overflows %d cells", run, want)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, v)
		}
	}
	if len(out) != want {
		return nil, fmt.Errorf("decoded %d cells, want %d", len(out), want)
	}
	return out, nil
}
