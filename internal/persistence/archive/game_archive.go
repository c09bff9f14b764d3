package archive

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"empires.ai/internal/persistence/snapshot"
	"empires.ai/internal/sim/model"
	"empires.ai/internal/sim/victory"
)

type GameArchiveMeta struct {
	GameID     string               `json:"game_id"`
	Seed       int64                `json:"seed"`
	FinalTurn  int                  `json:"final_turn"`
	Victory    *model.VictoryRecord `json:"victory"`
	Standings  []model.EmpireID     `json:"standings"`
	Eliminated int                  `json:"eliminated"`
	Snapshot   string               `json:"snapshot"`
	Catalogs   string               `json:"catalogs_digest,omitempty"`
	CreatedAt  string               `json:"created_at"`
}

// ArchiveFinalSnapshot copies the snapshot of a finished game into
// `gameDir/archive/` next to a meta.json with the outcome. Snapshots of games
// still in progress are skipped (archived=false).
func ArchiveFinalSnapshot(gameDir, snapshotPath string, snap snapshot.SnapshotV1) (archivedPath string, archived bool, err error) {
	s := snap.State
	if s == nil {
		return "", false, errors.New("archive: nil state")
	}
	if !s.Victory.Terminal() {
		return "", false, nil
	}

	archiveDir := filepath.Join(gameDir, "archive")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}
	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := GameArchiveMeta{
		GameID:     s.GameID,
		Seed:       s.Seed,
		FinalTurn:  snap.Header.Turn,
		Victory:    s.Victory,
		Standings:  victory.Rank(s),
		Eliminated: len(s.Empires) - s.ActiveCount(),
		Snapshot:   filepath.Base(dst),
		Catalogs:   snap.Header.CatalogsDigest,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return dst, true, err
	}
	if err := os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644); err != nil {
		return dst, true, err
	}
	return dst, true, nil
}

// ReadMeta loads the outcome written by ArchiveFinalSnapshot.
func ReadMeta(gameDir string) (GameArchiveMeta, error) {
	var m GameArchiveMeta
	b, err := os.ReadFile(filepath.Join(gameDir, "archive", "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
