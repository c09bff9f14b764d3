package indexdb

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

type TurnRow struct {
	GameID       string `db:"game_id" json:"game_id"`
	Turn         int    `db:"turn" json:"turn"`
	Digest       string `db:"digest" json:"digest"`
	StateDigest  string `db:"state_digest" json:"state_digest"`
	Active       int    `db:"active" json:"active"`
	Failed       int    `db:"failed" json:"failed"`
	Rejected     int    `db:"rejected" json:"rejected"`
	Orders       int    `db:"orders" json:"orders"`
	Attacks      int    `db:"attacks" json:"attacks"`
	Eliminated   int    `db:"eliminated" json:"eliminated"`
	Victory      string `db:"victory" json:"victory"`
	PhaseAMicros int64  `db:"phase_a_micros" json:"phase_a_micros"`
	TurnMicros   int64  `db:"turn_micros" json:"turn_micros"`
}

type DecisionRow struct {
	Turn      int            `db:"turn" json:"turn"`
	Seq       int            `db:"seq" json:"seq"`
	Empire    string         `db:"empire" json:"empire"`
	Source    string         `db:"source" json:"source"`
	Generated string         `db:"generated" json:"generated"`
	Applied   string         `db:"applied" json:"applied"`
	Status    string         `db:"status" json:"status"`
	Reason    sql.NullString `db:"reason" json:"-"`
	Error     sql.NullString `db:"error" json:"-"`
}

type AttackRow struct {
	Turn               int            `db:"turn" json:"turn"`
	Seq                int            `db:"seq" json:"seq"`
	Attacker           string         `db:"attacker" json:"attacker"`
	Defender           string         `db:"defender" json:"defender"`
	Mode               string         `db:"mode" json:"mode"`
	Outcome            string         `db:"outcome" json:"outcome"`
	Reason             sql.NullString `db:"reason" json:"-"`
	Captured           int            `db:"captured" json:"captured"`
	DefenderEliminated bool           `db:"defender_eliminated" json:"defender_eliminated"`
}

type StatusCount struct {
	Status string `db:"status" json:"status"`
	N      int    `db:"n" json:"n"`
}

type SnapshotRow struct {
	GameID      string `db:"game_id" json:"game_id"`
	Turn        int    `db:"turn" json:"turn"`
	Path        string `db:"path" json:"path"`
	StateDigest string `db:"state_digest" json:"state_digest"`
	Empires     int    `db:"empires" json:"empires"`
	Active      int    `db:"active" json:"active"`
}

// Reader runs read queries against an index written by SQLiteIndex.
type Reader struct {
	db *sqlx.DB
}

func OpenReader(path string) (*Reader, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

// Turns returns up to limit turns of gameID starting at from, ascending.
func (r *Reader) Turns(ctx context.Context, gameID string, from, limit int) ([]TurnRow, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []TurnRow
	err := r.db.SelectContext(ctx, &out, `
		SELECT game_id, turn, digest, state_digest, active, failed, rejected, orders, attacks,
			eliminated, victory, phase_a_micros, turn_micros
		FROM turns WHERE game_id = ? AND turn >= ? ORDER BY turn LIMIT ?`, gameID, from, limit)
	return out, err
}

func (r *Reader) Decisions(ctx context.Context, gameID, empire string, limit int) ([]DecisionRow, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []DecisionRow
	err := r.db.SelectContext(ctx, &out, `
		SELECT turn, seq, empire, source, generated, applied, status, reason, error
		FROM decisions WHERE game_id = ? AND empire = ? ORDER BY turn DESC, seq LIMIT ?`, gameID, empire, limit)
	return out, err
}

func (r *Reader) Attacks(ctx context.Context, gameID string, turn int) ([]AttackRow, error) {
	var out []AttackRow
	err := r.db.SelectContext(ctx, &out, `
		SELECT turn, seq, attacker, defender, mode, outcome, reason, captured, defender_eliminated
		FROM attacks WHERE game_id = ? AND turn = ? ORDER BY seq`, gameID, turn)
	return out, err
}

// StatusCounts tallies decision audit statuses over the whole game.
func (r *Reader) StatusCounts(ctx context.Context, gameID string) ([]StatusCount, error) {
	var out []StatusCount
	err := r.db.SelectContext(ctx, &out, `
		SELECT status, COUNT(*) AS n FROM decisions WHERE game_id = ? GROUP BY status ORDER BY status`, gameID)
	return out, err
}

func (r *Reader) LatestSnapshot(ctx context.Context, gameID string) (SnapshotRow, bool, error) {
	var row SnapshotRow
	err := r.db.GetContext(ctx, &row, `
		SELECT game_id, turn, path, state_digest, empires, active
		FROM snapshots WHERE game_id = ? ORDER BY turn DESC LIMIT 1`, gameID)
	if errors.Is(err, sql.ErrNoRows) {
		return row, false, nil
	}
	if err != nil {
		return row, false, err
	}
	return row, true, nil
}

// Snapshots lists recorded snapshots of gameID, newest first.
func (r *Reader) Snapshots(ctx context.Context, gameID string, limit int) ([]SnapshotRow, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []SnapshotRow
	err := r.db.SelectContext(ctx, &out, `
		SELECT game_id, turn, path, state_digest, empires, active
		FROM snapshots WHERE game_id = ? ORDER BY turn DESC LIMIT ?`, gameID, limit)
	return out, err
}

func (r *Reader) CatalogDigest(ctx context.Context, name string) (string, error) {
	var d string
	err := r.db.GetContext(ctx, &d, `SELECT digest FROM catalogs WHERE name = ?`, name)
	return d, err
}
