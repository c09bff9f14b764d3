package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"empires.ai/internal/harness"
	"empires.ai/internal/persistence/snapshot"
	"empires.ai/internal/protocol"
	"empires.ai/internal/sim/catalogs"
	"empires.ai/internal/sim/model"
	"empires.ai/internal/sim/tuning"
	"empires.ai/internal/sim/turn"
	"empires.ai/internal/transport/observer"
)

func main() {
	// A missing .env is fine; flags and the process environment still apply.
	_ = godotenv.Load()

	var (
		addr          = flag.String("addr", envString("EMPIRES_ADDR", ":8080"), "listen address")
		gameID        = flag.String("game", "", "game id (default derived from -seed)")
		seed          = flag.Int64("seed", 1337, "galaxy seed for a new game")
		configDir     = flag.String("configs", envString("EMPIRES_CONFIGS", "./configs"), "config directory")
		tuningPath    = flag.String("tuning", "", "tuning yaml (default <configs>/tuning.yaml)")
		dataDir       = flag.String("data", envString("EMPIRES_DATA_DIR", "./data"), "runtime data directory")
		snapPath      = flag.String("snapshot", "", "resume from snapshot path (optional)")
		loadLatest    = flag.Bool("load_latest_snapshot", true, "resume from the latest snapshot in the game dir")
		disableDB     = flag.Bool("disable_db", false, "disable the sqlite index")
		snapshotEvery = flag.Int("snapshot_every", 10, "write a snapshot every N turns (0 disables)")
		empires       = flag.Int("empires", 25, "empires in a new game")
		humans        = flag.Int("humans", 1, "human-controlled empires in a new game")
		difficulty    = flag.String("difficulty", string(model.DifficultyNormal), "difficulty for a new game")
		logFormat     = flag.String("log_format", "text", "log format: text or json")
		logLevel      = flag.String("log_level", "info", "log level: debug, info, warn, error")
		turnRate      = flag.Float64("turn_rate", 2, "max turn advances per second (0 = unlimited)")
		turnBurst     = flag.Int("turn_burst", 1, "turn advance burst")
		observerLocal = flag.Bool("observer_loopback_only", false, "only accept observers from localhost")
	)
	flag.Parse()

	logger := newLogger(*logFormat, *logLevel)
	slog.SetDefault(logger)
	fatalf := func(format string, args ...any) {
		logger.Error(fmt.Sprintf(format, args...))
		os.Exit(1)
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fatalf("load catalogs: %v", err)
	}
	if *tuningPath == "" {
		*tuningPath = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		fatalf("load tuning: %v", err)
	}

	if *gameID == "" {
		*gameID = harness.GameID(*seed)
	}
	gameDir := filepath.Join(*dataDir, "games", *gameID)
	if err := os.MkdirAll(gameDir, 0o755); err != nil {
		fatalf("mkdir game dir: %v", err)
	}

	if *snapPath == "" && *loadLatest {
		if p, err := snapshot.Latest(filepath.Join(gameDir, "snapshots")); err != nil {
			fatalf("find latest snapshot: %v", err)
		} else if p != "" {
			*snapPath = p
			logger.Info("resuming from latest snapshot", "path", p)
		}
	}

	var state *model.GameState
	if *snapPath != "" {
		state, err = loadSnapshot(*snapPath, cats)
		if err != nil {
			fatalf("load snapshot: %v", err)
		}
	} else {
		gc := harness.DefaultGalaxyConfig()
		gc.Empires = *empires
		gc.Humans = *humans
		gc.Seed = *seed
		gc.Difficulty = model.Difficulty(*difficulty)
		gc.ProtectionTurns = tune.ProtectionTurns
		state, err = harness.Generate(gc, cats)
		if err != nil {
			fatalf("generate galaxy: %v", err)
		}
		state.GameID = *gameID
	}

	agg := harness.NewAggregator()
	eng, err := turn.New(tune, cats,
		turn.WithLogger(logger.With("component", "engine", "game_id", state.GameID)),
		turn.WithMetrics(agg),
	)
	if err != nil {
		fatalf("engine: %v", err)
	}

	a, err := newApp(appConfig{
		Engine:        eng,
		State:         state,
		GameDir:       gameDir,
		SnapshotEvery: *snapshotEvery,
		DisableDB:     *disableDB,
		TurnRate:      rate.Limit(*turnRate),
		TurnBurst:     *turnBurst,
		Metrics:       agg,
		Log:           logger.With("component", "server"),
		Observer:      []observer.Option{observer.WithLoopbackOnly(*observerLocal)},
	})
	if err != nil {
		fatalf("server: %v", err)
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	mux := a.routes()
	if envBool("EMPIRES_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info("listening", "addr", *addr, "game_id", state.GameID, "turn", state.Turn, "empires", len(state.Empires))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("ListenAndServe", "error", err)
	}
}

// loadSnapshot reads a snapshot, rejects one built from different catalogs
// and validates the state against the snapshot schema.
func loadSnapshot(path string, cats *catalogs.Catalogs) (*model.GameState, error) {
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return nil, err
	}
	if d := snap.Header.CatalogsDigest; d != "" && d != cats.Digest() {
		return nil, fmt.Errorf("catalogs digest mismatch: snapshot=%s configs=%s", d, cats.Digest())
	}
	raw, err := json.Marshal(snap.State)
	if err != nil {
		return nil, err
	}
	if err := protocol.ValidateSnapshot(raw); err != nil {
		return nil, err
	}
	return snap.State, nil
}

func newLogger(format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(h)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}
