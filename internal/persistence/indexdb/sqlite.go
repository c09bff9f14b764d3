package indexdb

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"lukechampine.com/blake3"
	_ "modernc.org/sqlite"

	turnlog "empires.ai/internal/persistence/log"
	"empires.ai/internal/persistence/snapshot"
	"empires.ai/internal/sim/catalogs"
	"empires.ai/internal/sim/model"
	"empires.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable secondary index of turn results. Writes are
// queued to a single writer goroutine and dropped when the queue is full;
// the JSONL turn log stays the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTurn     atomic.Uint64
	dropSnapshot atomic.Uint64
	writeErrors  atomic.Uint64
}

type reqKind int

const (
	reqTurn reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	turn     turnlog.TurnLogEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	GameID      string
	Turn        int
	Path        string
	StateDigest string
	Empires     int
	Active      int
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropTurnTotal     uint64 `json:"drop_turn_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	WriteErrorTotal   uint64 `json:"write_error_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// One turn carries up to ~100 decisions; 4096 turns of slack is plenty.
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS turns (
			game_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			digest TEXT NOT NULL,
			state_digest TEXT NOT NULL,
			active INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			rejected INTEGER NOT NULL,
			orders INTEGER NOT NULL,
			attacks INTEGER NOT NULL,
			eliminated INTEGER NOT NULL,
			victory TEXT NOT NULL,
			phase_a_micros INTEGER NOT NULL,
			turn_micros INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (game_id, turn)
		);`,
		`CREATE TABLE IF NOT EXISTS decisions (
			game_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			empire TEXT NOT NULL,
			source TEXT NOT NULL,
			generated TEXT NOT NULL,
			applied TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT,
			error TEXT,
			PRIMARY KEY (game_id, turn, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_empire_turn ON decisions(game_id, empire, turn);`,
		`CREATE TABLE IF NOT EXISTS attacks (
			game_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			attacker TEXT NOT NULL,
			defender TEXT NOT NULL,
			mode TEXT NOT NULL,
			outcome TEXT NOT NULL,
			reason TEXT,
			captured INTEGER NOT NULL,
			defender_eliminated INTEGER NOT NULL,
			PRIMARY KEY (game_id, turn, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_attacks_defender_turn ON attacks(game_id, defender, turn);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			game_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			path TEXT NOT NULL,
			state_digest TEXT NOT NULL,
			empires INTEGER NOT NULL,
			active INTEGER NOT NULL,
			PRIMARY KEY (game_id, turn)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTurnTotal:     s.dropTurn.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		WriteErrorTotal:   s.writeErrors.Load(),
	}
}

// WriteTurn queues a logged turn. entry.Result must be set for decision and
// attack rows to be indexed.
func (s *SQLiteIndex) WriteTurn(entry turnlog.TurnLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTurn, turn: entry}:
	default:
		// Drop if the indexer falls behind.
		s.dropTurn.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() || snap.State == nil {
		return
	}
	r := snapshotRow{
		GameID:      snap.Header.GameID,
		Turn:        snap.Header.Turn,
		Path:        path,
		StateDigest: snap.Header.StateDigest,
		Empires:     len(snap.State.Empires),
		Active:      snap.State.ActiveCount(),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

func digestJSON(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// UpsertCatalogs stores the catalog and tuning tables the game runs with.
func (s *SQLiteIndex) UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if b, _ := json.Marshal(cats.Units.Defs); len(b) > 0 {
		rows = append(rows, kv{name: "units", digest: cats.Units.Digest, json: b})
	}
	if b, _ := json.Marshal(cats.Sectors.Defs); len(b) > 0 {
		rows = append(rows, kv{name: "sectors", digest: cats.Sectors.Digest, json: b})
	}
	if b, _ := json.Marshal(cats.Archetypes.IDs()); len(b) > 0 {
		rows = append(rows, kv{name: "archetypes", digest: cats.Archetypes.Digest, json: b})
	}
	// Tuning: store the values we actually apply.
	if b, _ := json.Marshal(tune); len(b) > 0 {
		rows = append(rows, kv{name: "tuning", digest: digestJSON(b), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('catalogs_digest',?)`, cats.Digest()); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func victoryLabel(v *model.VictoryRecord) string {
	switch {
	case v == nil:
		return string(model.StateOngoing)
	case v.State == model.StateWon:
		return fmt.Sprintf("%s:%s:%s", v.State, v.Type, v.Empire)
	}
	return string(v.State)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTurn, _ := s.db.Prepare(`INSERT OR REPLACE INTO turns(game_id,turn,digest,state_digest,active,failed,rejected,orders,attacks,eliminated,victory,phase_a_micros,turn_micros,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertDecision, _ := s.db.Prepare(`INSERT OR REPLACE INTO decisions(game_id,turn,seq,empire,source,generated,applied,status,reason,error) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertAttack, _ := s.db.Prepare(`INSERT OR REPLACE INTO attacks(game_id,turn,seq,attacker,defender,mode,outcome,reason,captured,defender_eliminated) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(game_id,turn,path,state_digest,empires,active) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTurn, insertDecision, insertAttack, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.writeErrors.Add(1)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		s.writeErrors.Add(1)
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	tick := time.NewTicker(commitMaxWait)
	defer tick.Stop()

	for {
		var r req
		select {
		case <-tick.C:
			// Idle batches still become visible to readers.
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
			continue
		case rr, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = rr
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTurn:
			e := r.turn
			res := e.Result
			if res == nil {
				res = &model.TurnResult{GameID: e.GameID, Turn: e.Turn}
			}
			raw, _ := json.Marshal(e)
			if !exec(insertTurn,
				e.GameID, e.Turn, e.Digest, e.StateDigest,
				res.Agents.Active, res.Agents.Failed, res.Agents.Rejected, len(e.Orders),
				len(res.Attacks), len(res.Eliminated), victoryLabel(res.Victory),
				res.Timing.PhaseAMicros, res.Timing.TurnMicros, string(raw),
			) {
				continue
			}
			for i, a := range res.Decisions {
				gen, _ := json.Marshal(a.Generated)
				app, _ := json.Marshal(a.Applied)
				if !exec(insertDecision, e.GameID, e.Turn, i, string(a.Empire), string(a.Source),
					string(gen), string(app), string(a.Status), a.Reason, a.Error) {
					break
				}
			}
			for i, a := range res.Attacks {
				if !exec(insertAttack, e.GameID, e.Turn, i, string(a.Attacker), string(a.Defender),
					string(a.Mode), string(a.Outcome), a.Reason, len(a.CapturedSectors), boolInt(a.DefenderEliminated)) {
					break
				}
			}

		case reqSnapshot:
			sn := r.snapshot
			if !exec(insertSnapshot, sn.GameID, sn.Turn, sn.Path, sn.StateDigest, sn.Empires, sn.Active) {
				continue
			}
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}
}
