package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"empires.ai/internal/harness"
	"empires.ai/internal/sim/catalogs"
	"empires.ai/internal/sim/model"
	"empires.ai/internal/sim/tuning"
	"empires.ai/internal/sim/turn"
)

type options struct {
	games      int
	empires    int
	humans     int
	seed       int64
	turnLimit  int
	maxTurns   int
	parallel   int
	difficulty string
	configDir  string
	tuningPath string
	jsonOut    bool
}

type output struct {
	Report harness.Report        `json:"report"`
	Games  []harness.GameSummary `json:"games"`
}

func main() {
	_ = godotenv.Load()

	var o options
	flag.IntVar(&o.games, "games", 20, "games to play")
	flag.IntVar(&o.empires, "empires", 25, "empires per game")
	flag.IntVar(&o.humans, "humans", 0, "idle human empires per game")
	flag.Int64Var(&o.seed, "seed", 1, "seed of the first game; later games count up")
	flag.IntVar(&o.turnLimit, "turn_limit", 0, "override the survival turn limit (0 keeps tuning)")
	flag.IntVar(&o.maxTurns, "max_turns", 0, "stop undecided games after N turns (0 = twice the turn limit)")
	flag.IntVar(&o.parallel, "parallel", 4, "games in flight")
	flag.StringVar(&o.difficulty, "difficulty", string(model.DifficultyNormal), "difficulty")
	flag.StringVar(&o.configDir, "configs", envString("EMPIRES_CONFIGS", "./configs"), "config directory")
	flag.StringVar(&o.tuningPath, "tuning", "", "tuning yaml (default <configs>/tuning.yaml)")
	flag.BoolVar(&o.jsonOut, "json", false, "print the report and per-game summaries as JSON")
	logLevel := flag.String("log_level", "warn", "log level: debug, info, warn, error")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(*logLevel)}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, logger, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "sim:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, logger *slog.Logger, w io.Writer) error {
	cats, err := catalogs.Load(o.configDir)
	if err != nil {
		return fmt.Errorf("load catalogs: %w", err)
	}
	if o.tuningPath == "" {
		o.tuningPath = filepath.Join(o.configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(o.tuningPath)
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}
	if o.turnLimit > 0 {
		tune.Victory.TurnLimit = o.turnLimit
	}

	agg := harness.NewAggregator()
	eng, err := turn.New(tune, cats, turn.WithLogger(logger.With("component", "engine")), turn.WithMetrics(agg))
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	gc := harness.DefaultGalaxyConfig()
	gc.Empires = o.empires
	gc.Humans = o.humans
	gc.Seed = o.seed
	gc.Difficulty = model.Difficulty(o.difficulty)
	gc.ProtectionTurns = tune.ProtectionTurns

	start := time.Now()
	games, err := harness.Run(ctx, eng, harness.Config{
		Games:    o.games,
		Galaxy:   gc,
		MaxTurns: o.maxTurns,
		Parallel: o.parallel,
		Log:      logger.With("component", "harness"),
	}, agg)
	if err != nil {
		return err
	}

	rep := agg.Report()
	if o.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(output{Report: rep, Games: games})
	}
	rep.Format(w)
	fmt.Fprintf(w, "elapsed:          %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
