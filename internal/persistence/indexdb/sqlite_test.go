package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	turnlog "empires.ai/internal/persistence/log"
	"empires.ai/internal/persistence/snapshot"
	"empires.ai/internal/sim/model"
	"empires.ai/internal/sim/simtest"
)

func sampleTurn(turn int) turnlog.TurnLogEntry {
	return turnlog.TurnLogEntry{
		GameID:      "g1",
		Turn:        turn,
		Digest:      "d",
		StateDigest: "s",
		Orders:      []model.Order{{Empire: "E00", Decision: model.DecisionRecord{Type: model.KindDoNothing}}},
		Result: &model.TurnResult{
			GameID: "g1",
			Turn:   turn,
			Decisions: []model.DecisionAudit{
				{Empire: "E00", Source: model.SourceOrder, Status: model.StatusApplied},
				{Empire: "E01", Source: model.SourceAgent, Status: model.StatusFailed, Error: "boom"},
				{Empire: "E02", Source: model.SourceAgent, Status: model.StatusApplied},
			},
			Attacks: []model.AttackRecord{
				{Attacker: "E02", Defender: "E01", Mode: model.AttackInvasion, Outcome: model.OutcomeWon,
					CapturedSectors: []model.SectorID{"S1"}, DefenderEliminated: true},
			},
			Eliminated: []model.EmpireID{"E01"},
			Agents:     model.AgentStats{Active: 3, Failed: 1},
		},
	}
}

func TestSQLiteIndex_WritesAndReadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := idx.UpsertCatalogs(simtest.Catalogs(t), simtest.Tuning()); err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	for turn := 1; turn <= 3; turn++ {
		_ = idx.WriteTurn(sampleTurn(turn))
	}
	st := simtest.State(simtest.Options{Autonomous: 3, Turn: 3})
	idx.RecordSnapshot("/tmp/3.snap.zst", snapshot.SnapshotV1{Header: snapshot.Header{GameID: "g1", Turn: 3, StateDigest: "x"}, State: st})
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	defer r.Close()
	ctx := context.Background()

	turns, err := r.Turns(ctx, "g1", 2, 10)
	if err != nil {
		t.Fatalf("turns: %v", err)
	}
	if len(turns) != 2 || turns[0].Turn != 2 || turns[0].Failed != 1 || turns[0].Attacks != 1 || turns[0].Orders != 1 {
		t.Fatalf("unexpected turns %+v", turns)
	}
	if turns[0].Victory != "ongoing" {
		t.Fatalf("unexpected victory label %q", turns[0].Victory)
	}

	decs, err := r.Decisions(ctx, "g1", "E01", 0)
	if err != nil || len(decs) != 3 || decs[0].Turn != 3 || decs[0].Error.String != "boom" {
		t.Fatalf("unexpected decisions %+v %v", decs, err)
	}
	counts, err := r.StatusCounts(ctx, "g1")
	if err != nil || len(counts) != 2 {
		t.Fatalf("unexpected counts %+v %v", counts, err)
	}
	for _, c := range counts {
		if c.Status == string(model.StatusFailed) && c.N != 3 {
			t.Fatalf("expected 3 failed, got %d", c.N)
		}
	}

	atks, err := r.Attacks(ctx, "g1", 1)
	if err != nil || len(atks) != 1 || !atks[0].DefenderEliminated || atks[0].Captured != 1 {
		t.Fatalf("unexpected attacks %+v %v", atks, err)
	}

	snap, ok, err := r.LatestSnapshot(ctx, "g1")
	if err != nil || !ok || snap.Turn != 3 || snap.Empires != 3 {
		t.Fatalf("unexpected snapshot %+v %v %v", snap, ok, err)
	}
	if _, ok, _ := r.LatestSnapshot(ctx, "other"); ok {
		t.Fatalf("expected no snapshot for unknown game")
	}
	if d, err := r.CatalogDigest(ctx, "units"); err != nil || d == "" {
		t.Fatalf("expected units digest, got %q %v", d, err)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTurn}

	_ = s.WriteTurn(sampleTurn(2))
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{State: &model.GameState{}})

	st := s.Stats()
	if st.DropTurnTotal != 1 || st.DropSnapshotTotal != 1 {
		t.Fatalf("unexpected drops %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_NilIsNoop(t *testing.T) {
	var s *SQLiteIndex
	if err := s.WriteTurn(sampleTurn(1)); err != nil {
		t.Fatalf("nil write: %v", err)
	}
	s.RecordSnapshot("", snapshot.SnapshotV1{})
	if st := s.Stats(); st.QueueCapacity != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}
