package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"mineopoly.ai/internal/sim/match"
)

// JSONLZstdWriter appends JSON lines to zstd-compressed segment files.
// The segment name is recomputed on every write; a new name rotates the file.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	segment func(time.Time) string

	mu     sync.Mutex
	curSeg string
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

// NewJSONLZstdWriter rotates hourly: <prefix>-2006-01-02-15.jsonl.zst.
func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		segment: func(t time.Time) string { return t.UTC().Format("2006-01-02-15") },
	}
}

// NewSegmentWriter never rotates: everything goes to <prefix>-<segment>.jsonl.zst.
func NewSegmentWriter(baseDir, prefix, segment string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		segment: func(time.Time) string { return segment },
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	seg := w.segment(time.Now())
	if seg != w.curSeg || w.w == nil {
		if err := w.rotateLocked(seg); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// Path returns the file the next write goes to.
func (w *JSONLZstdWriter) Path() string {
	return w.pathForSegment(w.segment(time.Now()))
}

func (w *JSONLZstdWriter) rotateLocked(seg string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForSegment(seg))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForSegment(seg), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curSeg = seg
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathForSegment(seg string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, seg))
}

// TurnLogger writes one JSONL entry per resolved turn of a single round.
type TurnLogger struct{ w *JSONLZstdWriter }

func NewTurnLogger(dataDir, roundID string) *TurnLogger {
	return &TurnLogger{w: NewSegmentWriter(filepath.Join(dataDir, "turns"), "turns", roundID)}
}

func (l *TurnLogger) WriteTurn(v match.TurnLogEntry) error { return l.w.Write(v) }
func (l *TurnLogger) Path() string                         { return l.w.Path() }
func (l *TurnLogger) Close() error                         { return l.w.Close() }

// AuditEntry is a round lifecycle record.
type AuditEntry struct {
	TS      string `json:"ts"`
	RoundID string `json:"round_id"`
	Event   string `json:"event"`
	Red     string `json:"red,omitempty"`
	Blue    string `json:"blue,omitempty"`
	Seed    int64  `json:"seed,omitempty"`
	Outcome string `json:"outcome,omitempty"`
	Scores  [2]int `json:"scores,omitempty"`
	Turns   int    `json:"turns,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// AuditLogger writes audit JSONL entries (compressed, hourly files).
type AuditLogger struct{ w *JSONLZstdWriter }

func NewAuditLogger(dataDir string) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "audit"), "audit")}
}

func (l *AuditLogger) WriteAudit(v AuditEntry) error {
	if v.TS == "" {
		v.TS = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return l.w.Write(v)
}
func (l *AuditLogger) Close() error { return l.w.Close() }

// ReadTurns decodes a turn log written by TurnLogger.
func ReadTurns(path string) ([]match.TurnLogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []match.TurnLogEntry
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var e match.TurnLogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("turn %d: %w", len(out), err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
