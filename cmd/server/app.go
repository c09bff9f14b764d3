package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"empires.ai/internal/harness"
	"empires.ai/internal/persistence/archive"
	"empires.ai/internal/persistence/indexdb"
	turnlog "empires.ai/internal/persistence/log"
	"empires.ai/internal/persistence/snapshot"
	"empires.ai/internal/protocol"
	"empires.ai/internal/sim/model"
	"empires.ai/internal/sim/turn"
	"empires.ai/internal/transport/observer"
)

const maxTurnBody = 1 << 20

type appConfig struct {
	Engine  *turn.Engine
	State   *model.GameState
	GameDir string
	// SnapshotEvery writes a snapshot when the next turn is a multiple of it;
	// game end always writes one.
	SnapshotEvery int
	DisableDB     bool
	TurnRate      rate.Limit
	TurnBurst     int
	Metrics       *harness.Aggregator
	Log           *slog.Logger
	Observer      []observer.Option
}

// app owns the live game. Turns are serialized by mu; the state pointer is
// replaced on every turn and never mutated in place, so readers may encode
// it after unlocking.
type app struct {
	log     *slog.Logger
	eng     *turn.Engine
	gameDir string
	every   int

	catDigest  string
	tuneDigest string

	limiter *rate.Limiter
	metrics *harness.Aggregator
	turns   *turnlog.TurnLogger
	audit   *turnlog.AuditLogger
	idx     *indexdb.SQLiteIndex
	reader  *indexdb.Reader
	obs     *observer.Server

	snapCh   chan *model.GameState
	snapDone chan struct{}

	mu         sync.Mutex
	state      *model.GameState
	last       *model.TurnResult
	lastDigest string
	closeOnce  sync.Once
}

func newApp(cfg appConfig) (*app, error) {
	if cfg.Engine == nil {
		return nil, errors.New("nil engine")
	}
	if cfg.State == nil {
		return nil, turn.ErrNilState
	}
	if cfg.GameDir == "" {
		return nil, errors.New("empty game dir")
	}
	log := cfg.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	lim := cfg.TurnRate
	if lim <= 0 {
		lim = rate.Inf
	}
	burst := cfg.TurnBurst
	if burst <= 0 {
		burst = 1
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = harness.NewAggregator()
	}

	a := &app{
		log:       log,
		eng:       cfg.Engine,
		gameDir:   cfg.GameDir,
		every:     cfg.SnapshotEvery,
		catDigest: cfg.Engine.Catalogs().Digest(),
		limiter:   rate.NewLimiter(lim, burst),
		metrics:   metrics,
		turns:     turnlog.NewTurnLogger(cfg.GameDir),
		audit:     turnlog.NewAuditLogger(cfg.GameDir),
		snapCh:    make(chan *model.GameState, 2),
		snapDone:  make(chan struct{}),
		state:     cfg.State,
	}

	if !cfg.DisableDB {
		dbPath := filepath.Join(cfg.GameDir, "index", "game.sqlite")
		idx, err := indexdb.OpenSQLite(dbPath)
		if err != nil {
			a.closeLogs()
			return nil, fmt.Errorf("index: %w", err)
		}
		a.idx = idx
		if err := idx.UpsertCatalogs(cfg.Engine.Catalogs(), cfg.Engine.Tuning()); err != nil {
			log.Warn("index catalogs", "error", err)
		}
		reader, err := indexdb.OpenReader(dbPath)
		if err != nil {
			_ = idx.Close()
			a.closeLogs()
			return nil, fmt.Errorf("index reader: %w", err)
		}
		a.reader = reader
		if d, err := reader.CatalogDigest(context.Background(), "tuning"); err == nil {
			a.tuneDigest = d
		}
	}

	opts := append([]observer.Option{observer.WithLogger(log.With("component", "observer"))}, cfg.Observer...)
	a.obs = observer.NewServer(a.welcome, opts...)

	go a.snapshotLoop()
	if _, err := os.Stat(snapshot.Path(a.snapshotDir(), a.state.Turn)); errors.Is(err, os.ErrNotExist) {
		a.snapCh <- a.state
	}
	return a, nil
}

func (a *app) snapshotDir() string { return filepath.Join(a.gameDir, "snapshots") }

// Close flushes pending snapshots and closes logs and the index.
func (a *app) Close() {
	a.closeOnce.Do(func() {
		close(a.snapCh)
		<-a.snapDone
		a.closeLogs()
		if a.reader != nil {
			_ = a.reader.Close()
		}
		if a.idx != nil {
			_ = a.idx.Close()
		}
	})
}

func (a *app) closeLogs() {
	if err := a.turns.Close(); err != nil {
		a.log.Error("close turn log", "error", err)
	}
	if err := a.audit.Close(); err != nil {
		a.log.Error("close audit log", "error", err)
	}
}

func (a *app) snapshotLoop() {
	defer close(a.snapDone)
	for s := range a.snapCh {
		sd, err := turn.StateDigest(s)
		if err != nil {
			a.log.Error("snapshot digest", "turn", s.Turn, "error", err)
			continue
		}
		snap := snapshot.SnapshotV1{
			Header: snapshot.Header{
				GameID:         s.GameID,
				Turn:           s.Turn,
				CatalogsDigest: a.catDigest,
				StateDigest:    sd,
			},
			State: s,
		}
		path := snapshot.Path(a.snapshotDir(), s.Turn)
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			a.log.Error("snapshot write", "turn", s.Turn, "error", err)
			continue
		}
		a.idx.RecordSnapshot(path, snap)
		a.log.Info("snapshot written", "turn", s.Turn, "path", path)

		if archived, ok, err := archive.ArchiveFinalSnapshot(a.gameDir, path, snap); err != nil {
			a.log.Error("archive final snapshot", "error", err)
		} else if ok {
			a.log.Info("game archived", "path", archived, "victory", s.Victory.Type, "winner", s.Victory.Empire)
		}
	}
}

func (a *app) welcome() protocol.WelcomeMsg {
	a.mu.Lock()
	defer a.mu.Unlock()
	return protocol.WelcomeMsg{
		GameID:   a.state.GameID,
		Turn:     a.state.Turn,
		Catalogs: protocol.CatalogDigests{Catalogs: a.catDigest, Tuning: a.tuneDigest},
	}
}

// apiError carries the HTTP status and protocol code of a failed call.
type apiError struct {
	status int
	code   string
	msg    string
}

func (e *apiError) Error() string { return e.code + ": " + e.msg }

func errorf(status int, code, format string, args ...any) *apiError {
	return &apiError{status: status, code: code, msg: fmt.Sprintf(format, args...)}
}

func (a *app) checkOrders(s *model.GameState, orders []model.Order) *apiError {
	for i, o := range orders {
		raw, err := json.Marshal(o)
		if err != nil {
			return errorf(http.StatusBadRequest, protocol.ErrInvalidOrder, "order %d: %v", i, err)
		}
		if err := protocol.ValidateOrder(raw); err != nil {
			return errorf(http.StatusBadRequest, protocol.ErrInvalidOrder, "order %d: %v", i, err)
		}
		e := s.Empire(o.Empire)
		if e == nil || e.Autonomous {
			return errorf(http.StatusForbidden, protocol.ErrNotOwner, "order %d: %s is not a human empire", i, o.Empire)
		}
	}
	return nil
}

// advance processes one turn with the given human orders and persists it.
func (a *app) advance(ctx context.Context, orders []model.Order) (protocol.AdvanceResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state.Victory.Terminal() {
		return protocol.AdvanceResponse{}, errorf(http.StatusConflict, protocol.ErrGameFinished, "game %s is over", a.state.GameID)
	}
	if err := a.checkOrders(a.state, orders); err != nil {
		return protocol.AdvanceResponse{}, err
	}

	in := a.state.Clone()
	in.Orders = orders
	next, res, err := a.eng.Advance(ctx, in, nil)
	switch {
	case errors.Is(err, turn.ErrGameFinished):
		return protocol.AdvanceResponse{}, errorf(http.StatusConflict, protocol.ErrGameFinished, "%v", err)
	case err != nil:
		return protocol.AdvanceResponse{}, errorf(http.StatusInternalServerError, protocol.ErrInternal, "%v", err)
	}
	digest, err := turn.Digest(res)
	if err != nil {
		return protocol.AdvanceResponse{}, errorf(http.StatusInternalServerError, protocol.ErrInternal, "digest: %v", err)
	}
	sd, err := turn.StateDigest(next)
	if err != nil {
		return protocol.AdvanceResponse{}, errorf(http.StatusInternalServerError, protocol.ErrInternal, "state digest: %v", err)
	}

	entry := turnlog.TurnLogEntry{
		GameID:      res.GameID,
		Turn:        res.Turn,
		Orders:      orders,
		Digest:      digest,
		StateDigest: sd,
		Result:      res,
	}
	if err := a.turns.WriteTurn(entry); err != nil {
		a.log.Error("turn log", "turn", res.Turn, "error", err)
	}
	if err := a.audit.WriteTurn(res); err != nil {
		a.log.Error("audit log", "turn", res.Turn, "error", err)
	}
	_ = a.idx.WriteTurn(entry)

	a.state, a.last, a.lastDigest = next, res, digest
	if next.Victory.Terminal() || (a.every > 0 && next.Turn%a.every == 0) {
		a.snapCh <- next
	}
	a.obs.Publish(res, digest)

	return protocol.AdvanceResponse{
		Turn:    res.Turn,
		Digest:  digest,
		Victory: next.Victory,
		Summary: protocol.Summarize(res, digest, 10),
	}, nil
}

func (a *app) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", a.handlePrometheus)
	mux.HandleFunc("/v1/turn", a.handleTurn)
	mux.HandleFunc("/v1/state", a.handleState)
	mux.HandleFunc("/v1/results/latest", a.handleLatest)
	mux.HandleFunc("/v1/metrics", a.handleMetrics)
	mux.HandleFunc("/v1/turns", a.handleTurns)
	mux.HandleFunc("/v1/decisions", a.handleDecisions)
	mux.HandleFunc("/v1/attacks", a.handleAttacks)
	mux.HandleFunc("/v1/observe", a.obs.Handler())
	return mux
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, err *apiError) {
	writeJSON(rw, err.status, protocol.NewError(err.code, err.msg))
}

func allow(rw http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	rw.Header().Set("Allow", method)
	writeError(rw, errorf(http.StatusMethodNotAllowed, protocol.ErrBadRequest, "%s only", method))
	return false
}

func (a *app) handleTurn(rw http.ResponseWriter, r *http.Request) {
	if !allow(rw, r, http.MethodPost) {
		return
	}
	if !a.limiter.Allow() {
		writeError(rw, errorf(http.StatusTooManyRequests, protocol.ErrRateLimit, "turn rate exceeded"))
		return
	}
	var req protocol.AdvanceRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTurnBody))
	if err != nil {
		writeError(rw, errorf(http.StatusBadRequest, protocol.ErrBadRequest, "read body: %v", err))
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(rw, errorf(http.StatusBadRequest, protocol.ErrBadRequest, "decode: %v", err))
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	resp, err := a.advance(ctx, req.Orders)
	if err != nil {
		var ae *apiError
		if !errors.As(err, &ae) {
			ae = errorf(http.StatusInternalServerError, protocol.ErrInternal, "%v", err)
		}
		if ae.status >= 500 {
			a.log.Error("advance turn", "error", err)
		}
		writeError(rw, ae)
		return
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (a *app) handleState(rw http.ResponseWriter, r *http.Request) {
	if !allow(rw, r, http.MethodGet) {
		return
	}
	a.mu.Lock()
	s := a.state
	a.mu.Unlock()
	writeJSON(rw, http.StatusOK, s)
}

type latestResponse struct {
	Digest string            `json:"digest"`
	Result *model.TurnResult `json:"result"`
}

func (a *app) handleLatest(rw http.ResponseWriter, r *http.Request) {
	if !allow(rw, r, http.MethodGet) {
		return
	}
	a.mu.Lock()
	res, digest := a.last, a.lastDigest
	a.mu.Unlock()
	if res == nil {
		writeError(rw, errorf(http.StatusNotFound, protocol.ErrInvalidState, "no turn processed yet"))
		return
	}
	if n := r.URL.Query().Get("leaders"); n != "" {
		k, _ := strconv.Atoi(n)
		writeJSON(rw, http.StatusOK, protocol.Summarize(res, digest, k))
		return
	}
	writeJSON(rw, http.StatusOK, latestResponse{Digest: digest, Result: res})
}

type metricsResponse struct {
	GameID    string                `json:"game_id"`
	Turn      int                   `json:"turn"`
	Active    int                   `json:"active"`
	Report    harness.Report        `json:"report"`
	Index     *indexdb.Stats        `json:"index,omitempty"`
	Statuses  []indexdb.StatusCount `json:"statuses,omitempty"`
	Observers int                   `json:"observers"`
	Dropped   uint64                `json:"observer_dropped"`
}

func (a *app) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	if !allow(rw, r, http.MethodGet) {
		return
	}
	a.mu.Lock()
	s := a.state
	a.mu.Unlock()
	m := metricsResponse{
		GameID:    s.GameID,
		Turn:      s.Turn,
		Active:    s.ActiveCount(),
		Report:    a.metrics.Report(),
		Observers: a.obs.Subscribers(),
		Dropped:   a.obs.Dropped(),
	}
	if a.idx != nil {
		st := a.idx.Stats()
		m.Index = &st
	}
	if a.reader != nil {
		counts, err := a.reader.StatusCounts(r.Context(), s.GameID)
		if err != nil {
			a.log.Warn("status counts", "error", err)
		}
		m.Statuses = counts
	}
	writeJSON(rw, http.StatusOK, m)
}

// handlePrometheus writes the headline gauges in the text exposition format.
func (a *app) handlePrometheus(rw http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	s := a.state
	a.mu.Unlock()
	rep := a.metrics.Report()
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(rw, "# HELP empires_game_turn Turn about to be processed.\n")
	fmt.Fprintf(rw, "# TYPE empires_game_turn gauge\n")
	fmt.Fprintf(rw, "empires_game_turn{game=%q} %d\n", s.GameID, s.Turn)

	fmt.Fprintf(rw, "# HELP empires_game_active_empires Empires not yet eliminated.\n")
	fmt.Fprintf(rw, "# TYPE empires_game_active_empires gauge\n")
	fmt.Fprintf(rw, "empires_game_active_empires{game=%q} %d\n", s.GameID, s.ActiveCount())

	fmt.Fprintf(rw, "# HELP empires_phase_a_avg_ms Average decision phase duration.\n")
	fmt.Fprintf(rw, "# TYPE empires_phase_a_avg_ms gauge\n")
	fmt.Fprintf(rw, "empires_phase_a_avg_ms{game=%q} %.3f\n", s.GameID, float64(rep.AvgPhaseAMicros)/1000)

	fmt.Fprintf(rw, "# HELP empires_agents_over_budget_total Agent decisions that exceeded the latency budget.\n")
	fmt.Fprintf(rw, "# TYPE empires_agents_over_budget_total counter\n")
	fmt.Fprintf(rw, "empires_agents_over_budget_total{game=%q} %d\n", s.GameID, rep.AgentsOverBudget)

	fmt.Fprintf(rw, "# HELP empires_observers Connected observers.\n")
	fmt.Fprintf(rw, "# TYPE empires_observers gauge\n")
	fmt.Fprintf(rw, "empires_observers{game=%q} %d\n", s.GameID, a.obs.Subscribers())

	if a.idx != nil {
		st := a.idx.Stats()
		fmt.Fprintf(rw, "# HELP empires_index_queue_depth Index writer backlog.\n")
		fmt.Fprintf(rw, "# TYPE empires_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "empires_index_queue_depth{game=%q} %d\n", s.GameID, st.QueueDepth)
		fmt.Fprintf(rw, "# HELP empires_index_dropped_total Index rows dropped because the writer fell behind.\n")
		fmt.Fprintf(rw, "# TYPE empires_index_dropped_total counter\n")
		fmt.Fprintf(rw, "empires_index_dropped_total{game=%q,kind=%q} %d\n", s.GameID, "turn", st.DropTurnTotal)
		fmt.Fprintf(rw, "empires_index_dropped_total{game=%q,kind=%q} %d\n", s.GameID, "snapshot", st.DropSnapshotTotal)
	}
}

func (a *app) requireIndex(rw http.ResponseWriter, r *http.Request) (string, bool) {
	if !allow(rw, r, http.MethodGet) {
		return "", false
	}
	if a.reader == nil {
		writeError(rw, errorf(http.StatusServiceUnavailable, protocol.ErrInvalidState, "index disabled"))
		return "", false
	}
	a.mu.Lock()
	id := a.state.GameID
	a.mu.Unlock()
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

func (a *app) handleTurns(rw http.ResponseWriter, r *http.Request) {
	gameID, ok := a.requireIndex(rw, r)
	if !ok {
		return
	}
	rows, err := a.reader.Turns(r.Context(), gameID, queryInt(r, "from", 0), queryInt(r, "limit", 100))
	if err != nil {
		writeError(rw, errorf(http.StatusInternalServerError, protocol.ErrInternal, "%v", err))
		return
	}
	writeJSON(rw, http.StatusOK, rows)
}

func (a *app) handleDecisions(rw http.ResponseWriter, r *http.Request) {
	gameID, ok := a.requireIndex(rw, r)
	if !ok {
		return
	}
	empire := r.URL.Query().Get("empire")
	if empire == "" {
		writeError(rw, errorf(http.StatusBadRequest, protocol.ErrBadRequest, "missing empire"))
		return
	}
	rows, err := a.reader.Decisions(r.Context(), gameID, empire, queryInt(r, "limit", 100))
	if err != nil {
		writeError(rw, errorf(http.StatusInternalServerError, protocol.ErrInternal, "%v", err))
		return
	}
	writeJSON(rw, http.StatusOK, rows)
}

func (a *app) handleAttacks(rw http.ResponseWriter, r *http.Request) {
	gameID, ok := a.requireIndex(rw, r)
	if !ok {
		return
	}
	t := queryInt(r, "turn", -1)
	if t < 0 {
		writeError(rw, errorf(http.StatusBadRequest, protocol.ErrBadRequest, "missing turn"))
		return
	}
	rows, err := a.reader.Attacks(r.Context(), gameID, t)
	if err != nil {
		writeError(rw, errorf(http.StatusInternalServerError, protocol.ErrInternal, "%v", err))
		return
	}
	writeJSON(rw, http.StatusOK, rows)
}
