package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/time/rate"

	"empires.ai/internal/persistence/indexdb"
	turnlog "empires.ai/internal/persistence/log"
	"empires.ai/internal/persistence/snapshot"
	"empires.ai/internal/protocol"
	"empires.ai/internal/sim/model"
	"empires.ai/internal/sim/simtest"
	"empires.ai/internal/sim/turn"
)

type testApp struct {
	*app
	srv *httptest.Server
	dir string
}

func newTestApp(t *testing.T, s *model.GameState, mutate func(*appConfig)) *testApp {
	t.Helper()
	eng, err := turn.New(simtest.Tuning(), simtest.Catalogs(t))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	dir := t.TempDir()
	cfg := appConfig{Engine: eng, State: s, GameDir: dir, SnapshotEvery: 2, DisableDB: true}
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := newApp(cfg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	srv := httptest.NewServer(a.routes())
	t.Cleanup(func() {
		srv.Close()
		a.Close()
	})
	return &testApp{app: a, srv: srv, dir: dir}
}

func humanGame() *model.GameState {
	return simtest.State(simtest.Options{Autonomous: 4, Human: true, Turn: 30, Seed: 9})
}

func (ta *testApp) post(t *testing.T, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ta.srv.URL+"/v1/turn", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ta *testApp) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ta.srv.URL + path)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func expectError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("expected status %d, got %d", status, resp.StatusCode)
	}
	var e protocol.ErrorMsg
	decode(t, resp, &e)
	if e.Code != code {
		t.Fatalf("expected code %s, got %+v", code, e)
	}
}

func TestAdvanceTurnsAndPersist(t *testing.T) {
	ta := newTestApp(t, humanGame(), nil)

	order := `{"orders":[{"empire":"E00","decision":{"type":"build_units","unit":"soldiers","quantity":10}}]}`
	var first protocol.AdvanceResponse
	resp := ta.post(t, order)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	decode(t, resp, &first)
	if first.Turn != 30 || len(first.Digest) != 64 || first.Summary.Turn != 30 {
		t.Fatalf("unexpected response %+v", first)
	}
	resp = ta.post(t, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("empty body should advance, got %d", resp.StatusCode)
	}

	var st model.GameState
	decode(t, ta.get(t, "/v1/state"), &st)
	if st.Turn != 32 || st.Orders != nil {
		t.Fatalf("unexpected state turn=%d orders=%v", st.Turn, st.Orders)
	}

	var latest latestResponse
	decode(t, ta.get(t, "/v1/results/latest"), &latest)
	if latest.Result == nil || latest.Result.Turn != 31 {
		t.Fatalf("unexpected latest %+v", latest)
	}
	var sum protocol.TurnSummaryMsg
	decode(t, ta.get(t, "/v1/results/latest?leaders=2"), &sum)
	if len(sum.Leaders) != 2 || sum.Digest != latest.Digest {
		t.Fatalf("unexpected summary %+v", sum)
	}

	var m metricsResponse
	decode(t, ta.get(t, "/v1/metrics"), &m)
	if m.Turn != 32 || m.Index != nil {
		t.Fatalf("unexpected metrics %+v", m)
	}

	ta.Close()

	var logged []turnlog.TurnLogEntry
	if err := turnlog.ReadTurns(ta.dir, func(e turnlog.TurnLogEntry) error {
		logged = append(logged, e)
		return nil
	}); err != nil {
		t.Fatalf("read turns: %v", err)
	}
	if len(logged) != 2 || logged[0].Digest != first.Digest || len(logged[0].Orders) != 1 || logged[1].Orders != nil {
		t.Fatalf("unexpected turn log %+v", logged)
	}
	turns, err := snapshot.List(filepath.Join(ta.dir, "snapshots"))
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(turns) != 2 || turns[0] != 30 || turns[1] != 32 {
		t.Fatalf("expected snapshots at 30 and 32, got %v", turns)
	}
	snap, err := snapshot.ReadSnapshot(snapshot.Path(filepath.Join(ta.dir, "snapshots"), 32))
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snap.Header.StateDigest != logged[1].StateDigest {
		t.Fatalf("snapshot digest %s does not match logged %s", snap.Header.StateDigest, logged[1].StateDigest)
	}
}

func TestAdvanceIsReproducible(t *testing.T) {
	a := newTestApp(t, humanGame(), nil)
	b := newTestApp(t, humanGame(), nil)
	for i := 0; i < 3; i++ {
		ra, err := a.advance(context.Background(), nil)
		if err != nil {
			t.Fatalf("advance: %v", err)
		}
		rb, _ := b.advance(context.Background(), nil)
		if ra.Digest != rb.Digest {
			t.Fatalf("turn %d digests differ", ra.Turn)
		}
	}
}

func TestRejectsBadOrders(t *testing.T) {
	ta := newTestApp(t, humanGame(), nil)

	expectError(t, ta.post(t, `{"orders":[{"empire":"E01","decision":{"type":"do_nothing"}}]}`), http.StatusForbidden, protocol.ErrNotOwner)
	expectError(t, ta.post(t, `{"orders":[{"empire":"E99","decision":{"type":"do_nothing"}}]}`), http.StatusForbidden, protocol.ErrNotOwner)
	expectError(t, ta.post(t, `{"orders":[{"empire":"E00","decision":{"type":"bogus"}}]}`), http.StatusBadRequest, protocol.ErrInvalidOrder)
	expectError(t, ta.post(t, `{"orders":[{"empire":"E00","decision":{"type":"build_units"}}]}`), http.StatusBadRequest, protocol.ErrInvalidOrder)
	expectError(t, ta.post(t, `{"orders":`), http.StatusBadRequest, protocol.ErrBadRequest)

	var st model.GameState
	decode(t, ta.get(t, "/v1/state"), &st)
	if st.Turn != 30 {
		t.Fatalf("rejected requests advanced the game to %d", st.Turn)
	}
}

func TestTurnRateLimit(t *testing.T) {
	ta := newTestApp(t, humanGame(), func(c *appConfig) {
		c.TurnRate = rate.Limit(0.001)
		c.TurnBurst = 1
	})
	if resp := ta.post(t, ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("first advance: %d", resp.StatusCode)
	}
	expectError(t, ta.post(t, ""), http.StatusTooManyRequests, protocol.ErrRateLimit)
}

func TestFinishedGameConflicts(t *testing.T) {
	s := humanGame()
	s.Victory = &model.VictoryRecord{State: model.StateWon, Type: model.VictorySurvival, Empire: "E01", Turn: 29}
	ta := newTestApp(t, s, nil)
	expectError(t, ta.post(t, ""), http.StatusConflict, protocol.ErrGameFinished)
}

func TestMethodsAndMissingResults(t *testing.T) {
	ta := newTestApp(t, humanGame(), nil)
	expectError(t, ta.get(t, "/v1/turn"), http.StatusMethodNotAllowed, protocol.ErrBadRequest)
	expectError(t, ta.get(t, "/v1/results/latest"), http.StatusNotFound, protocol.ErrInvalidState)
	expectError(t, ta.get(t, "/v1/turns"), http.StatusServiceUnavailable, protocol.ErrInvalidState)

	resp := ta.get(t, "/metrics")
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), `empires_game_turn{game="test"} 30`) {
		t.Fatalf("unexpected exposition:\n%s", buf.String())
	}
}

func TestIndexReceivesTurnsAndSnapshots(t *testing.T) {
	ta := newTestApp(t, humanGame(), func(c *appConfig) { c.DisableDB = false })
	if ta.tuneDigest == "" {
		t.Fatalf("expected tuning digest from the index")
	}
	for i := 0; i < 2; i++ {
		if _, err := ta.advance(context.Background(), nil); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	resp := ta.get(t, "/v1/decisions?empire=E01")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("decisions: %d", resp.StatusCode)
	}
	expectError(t, ta.get(t, "/v1/decisions"), http.StatusBadRequest, protocol.ErrBadRequest)
	expectError(t, ta.get(t, "/v1/attacks"), http.StatusBadRequest, protocol.ErrBadRequest)
	ta.Close()

	r, err := indexdb.OpenReader(filepath.Join(ta.dir, "index", "game.sqlite"))
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer r.Close()
	rows, err := r.Turns(context.Background(), "test", 0, 10)
	if err != nil || len(rows) != 2 || rows[0].Turn != 30 {
		t.Fatalf("unexpected indexed turns %+v %v", rows, err)
	}
	snap, ok, err := r.LatestSnapshot(context.Background(), "test")
	if err != nil || !ok || snap.Turn != 32 {
		t.Fatalf("unexpected latest snapshot %+v %v %v", snap, ok, err)
	}
	if _, err := os.Stat(snap.Path); err != nil {
		t.Fatalf("indexed snapshot missing: %v", err)
	}
}
