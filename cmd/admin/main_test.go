package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"empires.ai/internal/persistence/indexdb"
	turnlog "empires.ai/internal/persistence/log"
	"empires.ai/internal/persistence/snapshot"
	"empires.ai/internal/protocol"
	"empires.ai/internal/sim/model"
	"empires.ai/internal/sim/simtest"
)

func writeSnapshots(t *testing.T, dir string, turns ...int) {
	t.Helper()
	for _, n := range turns {
		s := simtest.State(simtest.Options{Autonomous: 2, Turn: n})
		snap := snapshot.SnapshotV1{Header: snapshot.Header{GameID: "g1", Turn: n}, State: s}
		if err := snapshot.WriteSnapshot(snapshot.Path(filepath.Join(dir, "snapshots"), n), snap); err != nil {
			t.Fatalf("write snapshot: %v", err)
		}
	}
}

func TestListAndRollback(t *testing.T) {
	data := t.TempDir()
	dir := filepath.Join(data, "games", "g1")
	writeSnapshots(t, dir, 10, 20, 30)
	if err := os.MkdirAll(filepath.Join(data, "games", "g2"), 0o755); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := listCmd([]string{"-data", data}, &buf); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(buf.String(), "g1\tturn=30") || !strings.Contains(buf.String(), "g2\n") {
		t.Fatalf("unexpected list:\n%s", buf.String())
	}

	buf.Reset()
	if err := rollbackCmd([]string{"-data", data, "-game", "g1", "-turn", "25"}, &buf); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if !strings.Contains(buf.String(), "resume_turn=20 moved=1") {
		t.Fatalf("unexpected rollback output %q", buf.String())
	}
	latest, _ := snapshot.Latest(filepath.Join(dir, "snapshots"))
	if latest != snapshot.Path(filepath.Join(dir, "snapshots"), 20) {
		t.Fatalf("latest snapshot is %s", latest)
	}

	err := rollbackCmd([]string{"-data", data, "-game", "g1", "-turn", "5"}, &buf)
	if err == nil {
		t.Fatalf("expected error without an earlier snapshot")
	}
	var ue usageError
	if err := rollbackCmd([]string{"-data", data, "-turn", "5"}, &buf); !errors.As(err, &ue) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestAuditFilters(t *testing.T) {
	data := t.TempDir()
	dir := filepath.Join(data, "games", "g1")
	l := turnlog.NewAuditLogger(dir)
	for turn := 1; turn <= 3; turn++ {
		_ = l.WriteTurn(&model.TurnResult{Turn: turn, Decisions: []model.DecisionAudit{
			{Empire: "E01", Status: model.StatusApplied},
			{Empire: "E02", Status: model.StatusFailed, Error: "boom"},
		}})
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := auditCmd([]string{"-data", data, "-game", "g1", "-empire", "E02", "-from_turn", "2"}, &buf); err != nil {
		t.Fatalf("audit: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 entries, got %d:\n%s", len(lines), buf.String())
	}
	var e turnlog.AuditEntry
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil || e.Turn != 2 || e.Error != "boom" {
		t.Fatalf("unexpected entry %+v %v", e, err)
	}

	buf.Reset()
	_ = auditCmd([]string{"-data", data, "-game", "g1", "-status", "applied", "-to_turn", "1"}, &buf)
	if n := strings.Count(buf.String(), "\n"); n != 1 {
		t.Fatalf("expected one applied entry, got %d", n)
	}
}

func TestDBQueries(t *testing.T) {
	data := t.TempDir()
	path := filepath.Join(data, "games", "g1", "index", "game.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := idx.UpsertCatalogs(simtest.Catalogs(t), simtest.Tuning()); err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	for turn := 1; turn <= 3; turn++ {
		_ = idx.WriteTurn(turnlog.TurnLogEntry{GameID: "g1", Turn: turn, Result: &model.TurnResult{
			GameID:    "g1",
			Turn:      turn,
			Decisions: []model.DecisionAudit{{Empire: "E01", Status: model.StatusApplied}},
		}})
	}
	_ = idx.Close()

	var buf bytes.Buffer
	if err := dbCmd([]string{"-data", data, "-game", "g1", "-from", "2", "turns"}, &buf); err != nil {
		t.Fatalf("turns: %v", err)
	}
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Fatalf("expected 2 turns, got:\n%s", buf.String())
	}

	buf.Reset()
	if err := dbCmd([]string{"-data", data, "-game", "g1", "-empire", "E01", "-limit", "1", "decisions"}, &buf); err != nil {
		t.Fatalf("decisions: %v", err)
	}
	if !strings.Contains(buf.String(), `"turn":3`) {
		t.Fatalf("expected newest decision first:\n%s", buf.String())
	}

	buf.Reset()
	if err := dbCmd([]string{"-data", data, "-game", "g1", "catalogs"}, &buf); err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	if !strings.Contains(buf.String(), simtest.Catalogs(t).Units.Digest) {
		t.Fatalf("catalog digests missing:\n%s", buf.String())
	}

	var ue usageError
	if err := dbCmd([]string{"-data", data, "-game", "g1", "decisions"}, &buf); !errors.As(err, &ue) {
		t.Fatalf("expected usage error, got %v", err)
	}
	if err := dbCmd([]string{"-data", data, "-game", "g1", "bogus"}, &buf); !errors.As(err, &ue) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestStateAndTurnOverHTTP(t *testing.T) {
	s := simtest.State(simtest.Options{Autonomous: 2, Human: true, Turn: 12})
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/state":
			_ = json.NewEncoder(rw).Encode(s)
		case "/v1/turn":
			b := new(bytes.Buffer)
			_, _ = b.ReadFrom(r.Body)
			gotBody = b.String()
			if strings.Contains(gotBody, "E01") {
				rw.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(rw).Encode(protocol.NewError(protocol.ErrNotOwner, "E01 is not a human empire"))
				return
			}
			_ = json.NewEncoder(rw).Encode(protocol.AdvanceResponse{Turn: 12, Digest: "abc"})
		}
	}))
	defer srv.Close()

	var buf bytes.Buffer
	if err := stateCmd([]string{"-url", srv.URL}, &buf); err != nil {
		t.Fatalf("state: %v", err)
	}
	if !strings.Contains(buf.String(), "turn=12 active=3") || !strings.Contains(buf.String(), "E00\thuman") {
		t.Fatalf("unexpected state output:\n%s", buf.String())
	}

	orders := filepath.Join(t.TempDir(), "orders.json")
	_ = os.WriteFile(orders, []byte(`{"orders":[{"empire":"E00","decision":{"type":"do_nothing"}}]}`), 0o644)
	buf.Reset()
	if err := turnCmd([]string{"-url", srv.URL, orders}, &buf); err != nil {
		t.Fatalf("turn: %v", err)
	}
	if buf.String() != "turn=12 digest=abc\n" || !strings.Contains(gotBody, "E00") {
		t.Fatalf("unexpected turn output %q body %q", buf.String(), gotBody)
	}

	_ = os.WriteFile(orders, []byte(`{"orders":[{"empire":"E01","decision":{"type":"do_nothing"}}]}`), 0o644)
	err := turnCmd([]string{"-url", srv.URL, orders}, &buf)
	if err == nil || !strings.Contains(err.Error(), protocol.ErrNotOwner) {
		t.Fatalf("expected not-owner error, got %v", err)
	}
}
