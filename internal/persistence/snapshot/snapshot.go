package snapshot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"empires.ai/internal/sim/model"
)

const Version = 1

const fileSuffix = ".snap.zst"

type Header struct {
	Version int    `json:"version"`
	GameID  string `json:"game_id"`
	Turn    int    `json:"turn"`
	// CatalogsDigest pins the unit/sector/archetype tables the state was produced with.
	CatalogsDigest string `json:"catalogs_digest,omitempty"`
	StateDigest    string `json:"state_digest,omitempty"`
}

type SnapshotV1 struct {
	Header Header           `json:"header"`
	State  *model.GameState `json:"state"`
}

// Path is where the snapshot for turn lives under dir.
func Path(dir string, turn int) string {
	return filepath.Join(dir, fmt.Sprintf("%08d%s", turn, fileSuffix))
}

// WriteSnapshot writes a JSON header line followed by the JSON body, all zstd
// compressed. The file appears atomically.
func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if snap.State == nil {
		return errors.New("snapshot: nil state")
	}
	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := json.NewEncoder(bw).Encode(snap.State); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func open(path string) (*os.File, *zstd.Decoder, *bufio.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, nil, err
	}
	return f, dec, bufio.NewReaderSize(dec, 256*1024), nil
}

func readHeader(br *bufio.Reader) (Header, error) {
	var h Header
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != Version {
		return h, fmt.Errorf("unsupported snapshot version %d", h.Version)
	}
	return h, nil
}

// ReadHeader decodes only the header line.
func ReadHeader(path string) (Header, error) {
	f, dec, br, err := open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()
	defer dec.Close()
	return readHeader(br)
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, dec, br, err := open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()
	defer dec.Close()

	if snap.Header, err = readHeader(br); err != nil {
		return snap, err
	}
	var st model.GameState
	if err := json.NewDecoder(br).Decode(&st); err != nil {
		return snap, fmt.Errorf("json decode: %w", err)
	}
	snap.State = &st
	return snap, nil
}

// List returns the turns that have snapshots under dir, ascending.
func List(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var turns []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, fileSuffix))
		if err != nil {
			continue
		}
		turns = append(turns, n)
	}
	sort.Ints(turns)
	return turns, nil
}

// Latest returns the path of the newest snapshot under dir, or "" if none.
func Latest(dir string) (string, error) {
	turns, err := List(dir)
	if err != nil || len(turns) == 0 {
		return "", err
	}
	return Path(dir, turns[len(turns)-1]), nil
}
