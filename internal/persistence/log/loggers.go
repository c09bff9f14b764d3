package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"empires.ai/internal/sim/model"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

// SetClock replaces the clock that picks the hourly file.
func (w *JSONLZstdWriter) SetClock(now func() time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.now = now
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
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

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
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
	w.curHour = hour
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
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// TurnLogEntry is everything needed to re-run and verify one turn: the orders
// that went in and the digests that came out.
type TurnLogEntry struct {
	GameID      string        `json:"game_id"`
	Turn        int           `json:"turn"`
	Orders      []model.Order `json:"orders,omitempty"`
	Digest      string        `json:"digest"`
	StateDigest string        `json:"state_digest"`

	Result *model.TurnResult `json:"result,omitempty"`
}

// TurnLogger writes one JSONL entry per turn (compressed).
type TurnLogger struct{ w *JSONLZstdWriter }

func NewTurnLogger(gameDir string) *TurnLogger {
	return &TurnLogger{w: NewJSONLZstdWriter(filepath.Join(gameDir, "turns"), "turns")}
}

func (l *TurnLogger) WriteTurn(v TurnLogEntry) error { return l.w.Write(v) }
func (l *TurnLogger) Close() error                   { return l.w.Close() }

type AuditEntry struct {
	Turn int `json:"turn"`
	model.DecisionAudit
}

// AuditLogger writes one JSONL entry per decision audit (compressed).
type AuditLogger struct{ w *JSONLZstdWriter }

func NewAuditLogger(gameDir string) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriter(filepath.Join(gameDir, "audit"), "audit")}
}

func (l *AuditLogger) WriteAudit(v AuditEntry) error { return l.w.Write(v) }

func (l *AuditLogger) WriteTurn(r *model.TurnResult) error {
	for _, a := range r.Decisions {
		if err := l.w.Write(AuditEntry{Turn: r.Turn, DecisionAudit: a}); err != nil {
			return err
		}
	}
	return nil
}

func (l *AuditLogger) Close() error { return l.w.Close() }

// ListFiles returns prefix-*.jsonl.zst files under dir in time order.
func ListFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ReadTurns calls fn for every logged turn under gameDir, oldest first.
// fn returning an error stops the scan.
func ReadTurns(gameDir string, fn func(TurnLogEntry) error) error {
	return readAll(filepath.Join(gameDir, "turns"), "turns", fn)
}

// ReadAudit calls fn for every audit entry under gameDir, oldest first.
func ReadAudit(gameDir string, fn func(AuditEntry) error) error {
	return readAll(filepath.Join(gameDir, "audit"), "audit", fn)
}

func readAll[T any](dir, prefix string, fn func(T) error) error {
	files, err := ListFiles(dir, prefix)
	if err != nil {
		return err
	}
	for _, path := range files {
		if err := readFile(path, fn); err != nil {
			return err
		}
	}
	return nil
}

func readFile[T any](path string, fn func(T) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 32*1024*1024)
	for sc.Scan() {
		var entry T
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return sc.Err()
}
