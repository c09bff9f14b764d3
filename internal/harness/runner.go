package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"empires.ai/internal/sim/catalogs"
	"empires.ai/internal/sim/model"
	"empires.ai/internal/sim/turn"
)

type Config struct {
	Games  int
	Galaxy GalaxyConfig
	// MaxTurns stops a game that has not been decided; 0 means twice the
	// engine's turn limit.
	MaxTurns int
	// Parallel games in flight; each game's turns still run in order.
	Parallel int
	Log      *slog.Logger
}

type GameSummary struct {
	Index       int                  `json:"index"`
	GameID      string               `json:"game_id"`
	Seed        int64                `json:"seed"`
	Turns       int                  `json:"turns"`
	Victory     *model.VictoryRecord `json:"victory,omitempty"`
	Eliminated  int                  `json:"eliminated"`
	Failed      int                  `json:"failed"`
	FinalDigest string               `json:"final_digest"`
	Err         string               `json:"error,omitempty"`
}

// Finished reports whether the game reached a terminal victory.
func (g GameSummary) Finished() bool { return g.Victory.Terminal() }

// Run plays cfg.Games games, seeds counting up from cfg.Galaxy.Seed. Results
// are in game order. Games that fail are reported in their summary and do
// not stop the others; only ctx cancellation aborts the run.
func Run(ctx context.Context, eng *turn.Engine, cfg Config, agg *Aggregator) ([]GameSummary, error) {
	if eng == nil {
		return nil, errors.New("harness: nil engine")
	}
	if cfg.Games <= 0 {
		cfg.Games = 1
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 1
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 2 * eng.Tuning().Victory.TurnLimit
	}
	log := cfg.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	out := make([]GameSummary, cfg.Games)
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Parallel; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				gc := cfg.Galaxy
				gc.Seed = cfg.Galaxy.Seed + int64(i)
				g := playGame(ctx, eng, eng.Catalogs(), gc, cfg.MaxTurns)
				g.Index = i
				if g.Err != "" {
					log.Warn("game failed", "game_id", g.GameID, "seed", g.Seed, "error", g.Err)
				} else {
					log.Info("game finished", "game_id", g.GameID, "seed", g.Seed, "turns", g.Turns, "victory", victoryName(g.Victory))
				}
				if agg != nil {
					agg.ObserveGame(g)
				}
				out[i] = g
			}
		}()
	}
	for i := 0; i < cfg.Games; i++ {
		if ctx.Err() != nil {
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

func playGame(ctx context.Context, eng *turn.Engine, cat *catalogs.Catalogs, gc GalaxyConfig, maxTurns int) GameSummary {
	g := GameSummary{Seed: gc.Seed, GameID: GameID(gc.Seed)}
	s, err := Generate(gc, cat)
	if err != nil {
		g.Err = err.Error()
		return g
	}
	for played := 0; played < maxTurns; played++ {
		next, res, err := eng.Advance(ctx, s, nil)
		if err != nil {
			g.Err = fmt.Sprintf("turn %d: %v", s.Turn, err)
			break
		}
		g.Turns++
		g.Failed += res.Agents.Failed
		g.Eliminated += len(res.Eliminated)
		if d, err := turn.Digest(res); err == nil {
			g.FinalDigest = d
		}
		s = next
		if s.Victory.Terminal() {
			break
		}
	}
	g.Victory = s.Victory
	return g
}

func victoryName(v *model.VictoryRecord) string {
	switch {
	case v == nil:
		return "undecided"
	case v.State == model.StateWon:
		return string(v.Type)
	}
	return string(v.State)
}
