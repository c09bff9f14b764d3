// Package turn sequences the six phases of a game turn. It is the only engine
// entry point hosts call, and it performs no I/O.
package turn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"empires.ai/internal/sim/agents"
	"empires.ai/internal/sim/catalogs"
	"empires.ai/internal/sim/combat"
	"empires.ai/internal/sim/decision"
	"empires.ai/internal/sim/economy"
	"empires.ai/internal/sim/model"
	"empires.ai/internal/sim/rng"
	"empires.ai/internal/sim/tuning"
	"empires.ai/internal/sim/victory"
)

var (
	ErrGameFinished = errors.New("turn: game already finished")
	ErrNilState     = errors.New("turn: nil state")
)

// StreamCombat names the derived random stream for each queued attack.
const StreamCombat = "combat"

// Metrics receives every completed turn. Hosts and the offline harness implement it.
type Metrics interface {
	ObserveTurn(r *model.TurnResult)
}

type MetricsFunc func(r *model.TurnResult)

func (f MetricsFunc) ObserveTurn(r *model.TurnResult) { f(r) }

// Middleware wraps the decision executor, e.g. for fault injection in tests.
type Middleware func(agents.Executor) agents.Executor

type config struct {
	log        *slog.Logger
	metrics    Metrics
	now        func() time.Time
	decider    agents.Decider
	middleware []Middleware
	topology   combat.Topology
	workers    *int
}

type Option func(*config)

func WithLogger(l *slog.Logger) Option { return func(c *config) { c.log = l } }

func WithMetrics(m Metrics) Option { return func(c *config) { c.metrics = m } }

func WithClock(now func() time.Time) Option { return func(c *config) { c.now = now } }

// WithDecider replaces the tuned decision engine.
func WithDecider(d agents.Decider) Option { return func(c *config) { c.decider = d } }

func WithExecutorMiddleware(m Middleware) Option {
	return func(c *config) { c.middleware = append(c.middleware, m) }
}

// WithTopology overrides adjacency from the snapshot's regions.
func WithTopology(t combat.Topology) Option { return func(c *config) { c.topology = t } }

// WithWorkers overrides the tuned phase A pool size.
func WithWorkers(n int) Option { return func(c *config) { c.workers = &n } }

type Engine struct {
	tun      tuning.Tuning
	cat      *catalogs.Catalogs
	econ     *economy.Economy
	combat   *combat.Resolver
	victory  *victory.Evaluator
	agents   *agents.Processor
	log      *slog.Logger
	metrics  Metrics
	now      func() time.Time
	topology combat.Topology
}

// New validates the configuration and wires every phase. Configuration
// errors are returned here, never from Advance.
func New(tun tuning.Tuning, cat *catalogs.Catalogs, opts ...Option) (*Engine, error) {
	if cat == nil {
		return nil, fmt.Errorf("turn: nil catalogs")
	}
	if err := tun.Validate(); err != nil {
		return nil, fmt.Errorf("turn: %w", err)
	}
	cfg := config{now: time.Now}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.log == nil {
		cfg.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	if cfg.decider == nil {
		d, err := decision.New(tun, cat)
		if err != nil {
			return nil, fmt.Errorf("turn: %w", err)
		}
		cfg.decider = d
	}

	e := &Engine{
		tun:      tun,
		cat:      cat,
		econ:     economy.New(tun, cat),
		combat:   combat.New(tun, cat),
		victory:  victory.New(tun, cat),
		log:      cfg.log,
		metrics:  cfg.metrics,
		now:      cfg.now,
		topology: cfg.topology,
	}
	var exec agents.Executor = agents.StateExecutor{Economy: e.econ, Combat: e.combat}
	for _, m := range cfg.middleware {
		exec = m(exec)
	}
	workers := tun.Agents.Workers
	if cfg.workers != nil {
		workers = *cfg.workers
	}
	e.agents = agents.New(cfg.decider, exec,
		agents.WithLogger(cfg.log.With("component", "agents")),
		agents.WithClock(cfg.now),
		agents.WithWorkers(workers),
		agents.WithBudget(
			time.Duration(tun.Agents.AgentBudgetMS)*time.Millisecond,
			time.Duration(tun.Agents.PhaseBudgetMS)*time.Millisecond,
		),
	)
	return e, nil
}

func (e *Engine) Tuning() tuning.Tuning        { return e.tun }
func (e *Engine) Catalogs() *catalogs.Catalogs { return e.cat }

type before struct {
	resources     model.Resources
	population    int64
	effectiveness float64
}

// Advance runs one turn on a copy of s and returns the next state and the
// turn's result. s is never modified. src supplies the turn's single base
// draw; nil derives it from s.Seed.
func (e *Engine) Advance(ctx context.Context, s *model.GameState, src rng.Source) (*model.GameState, *model.TurnResult, error) {
	if s == nil {
		return nil, nil, ErrNilState
	}
	if s.Victory.Terminal() {
		return nil, nil, ErrGameFinished
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	start := e.now()

	next := s.Clone()
	if next.Difficulty == "" {
		next.Difficulty = model.DifficultyNormal
	}
	base := rng.TurnBase(src, next.Seed, next.Turn)
	res := &model.TurnResult{GameID: next.GameID, Turn: next.Turn}
	order := next.CreationOrder()

	snap := make(map[model.EmpireID]before, len(next.Empires))
	reports := make(map[model.EmpireID]*model.EmpireReport, len(next.Empires))
	for _, i := range order {
		emp := &next.Empires[i]
		snap[emp.ID] = before{emp.Resources, emp.Population, emp.Effectiveness}
		reports[emp.ID] = &model.EmpireReport{Empire: emp.ID}
	}

	// 1-3: production and maintenance, population, build queue.
	for _, i := range order {
		emp := &next.Empires[i]
		if emp.Eliminated {
			continue
		}
		rep := reports[emp.ID]
		prod := e.econ.Produce(next, emp)
		rep.Produced = prod.Produced
		rep.Maintenance = prod.Maintenance
		rep.MaintenancePaid = prod.MaintenancePaid

		pop := e.econ.Grow(next, emp, prod.MaintenancePaid)
		rep.FoodConsumed = pop.Consumed
		rep.FoodDeficit = pop.Deficit
		rep.Starved = pop.Starved

		res.Builds = append(res.Builds, e.econ.AdvanceBuilds(emp)...)
	}

	// 4: decisions.
	out, err := e.agents.Run(ctx, next, base)
	if err != nil {
		return nil, nil, err
	}
	res.Decisions = out.Audits
	res.Events = append(res.Events, out.Events...)
	res.Agents = out.Stats
	res.Timing = out.Timing

	// 5: combat, in the order attacks were accepted.
	topo := e.topology
	if topo == nil {
		topo = combat.StateTopology{State: next}
	}
	for i, qa := range out.Attacks {
		r := rng.Derive(base, next.Turn, StreamCombat, strconv.Itoa(i))
		cr := e.combat.Resolve(next, qa.Attacker, qa.Attack, r, topo)
		res.Attacks = append(res.Attacks, model.NewAttackRecord(qa.Attacker, qa.Attack.Target, qa.Attack.Mode, qa.Attack.Forces, cr.Outcome))
		res.Events = append(res.Events, cr.Events...)
		if w, ok := cr.Outcome.(model.AttackWon); ok && w.DefenderEliminated {
			res.Eliminated = append(res.Eliminated, qa.Attack.Target)
		}
	}
	e.victory.UpdateNetworth(next)

	// 6: victory.
	if v := e.victory.Evaluate(next); v.State() != model.StateOngoing {
		next.Victory = model.NewVictoryRecord(v, next.Turn)
		rec := *next.Victory
		res.Victory = &rec
		res.Events = append(res.Events, model.Event{Kind: model.EventVictory, Empire: rec.Empire, Detail: string(rec.Type)})
	}

	for _, i := range order {
		emp := &next.Empires[i]
		rep := reports[emp.ID]
		b := snap[emp.ID]
		rep.ResourcesBefore = b.resources
		rep.ResourcesAfter = emp.Resources
		rep.ResourceDelta = emp.Resources.Sub(b.resources)
		rep.PopulationBefore = b.population
		rep.PopulationAfter = emp.Population
		rep.EffectivenessBefore = b.effectiveness
		rep.EffectivenessAfter = emp.Effectiveness
		rep.CivilStatus = emp.CivilStatus
		rep.Networth = emp.Networth
		rep.Sectors = emp.SectorCount
		rep.Eliminated = emp.Eliminated
		res.Empires = append(res.Empires, *rep)
	}

	next.Orders = nil
	next.Turn++
	res.Timing.TurnMicros = e.now().Sub(start).Microseconds()

	e.log.Info("turn advanced",
		"game_id", res.GameID,
		"turn", res.Turn,
		"active", res.Agents.Active,
		"failed", res.Agents.Failed,
		"attacks", len(res.Attacks),
		"phase_a_ms", res.Timing.PhaseAMicros/1000,
	)
	if res.Victory != nil {
		e.log.Info("game finished", "game_id", res.GameID, "turn", res.Turn, "state", res.Victory.State, "type", res.Victory.Type, "winner", res.Victory.Empire)
	}
	if e.metrics != nil {
		e.metrics.ObserveTurn(res)
	}
	return next, res, nil
}
