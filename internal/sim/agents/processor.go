// Package agents computes one decision per autonomous empire in parallel and
// applies every empire's decision (or queued order) sequentially in creation order.
package agents

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"empires.ai/internal/sim/model"
	"empires.ai/internal/sim/rng"
)

// Decider produces a decision for id from a snapshot it must only read.
// Phase A calls it from several goroutines at once.
type Decider interface {
	Decide(s *model.GameState, id model.EmpireID, r rng.Rand) (model.Decision, error)
}

type DeciderFunc func(s *model.GameState, id model.EmpireID, r rng.Rand) (model.Decision, error)

func (f DeciderFunc) Decide(s *model.GameState, id model.EmpireID, r rng.Rand) (model.Decision, error) {
	return f(s, id, r)
}

// StreamDecision names the derived random stream each empire decides from.
const StreamDecision = "decision"

type Processor struct {
	decider Decider
	exec    Executor

	workers     int
	budget      time.Duration
	phaseBudget time.Duration

	log *slog.Logger
	now func() time.Time
}

type Option func(*Processor)

func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithWorkers bounds phase A concurrency. n <= 0 means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(p *Processor) { p.workers = n }
}

// WithBudget sets the observed (never enforced) per-agent and phase A budgets.
func WithBudget(agent, phase time.Duration) Option {
	return func(p *Processor) {
		p.budget = agent
		p.phaseBudget = phase
	}
}

func New(d Decider, x Executor, opts ...Option) *Processor {
	p := &Processor{
		decider:     d,
		exec:        x,
		budget:      60 * time.Millisecond,
		phaseBudget: 1500 * time.Millisecond,
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Outcome is everything phase 4 produced.
type Outcome struct {
	Audits  []model.DecisionAudit
	Attacks []QueuedAttack
	Events  []model.Event
	Stats   model.AgentStats
	Timing  model.Timing
}

type generated struct {
	decision model.Decision
	err      error
	dur      time.Duration
}

func (p *Processor) safeDecide(s *model.GameState, id model.EmpireID, r rng.Rand) (d model.Decision, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			d = nil
			err = fmt.Errorf("decide panic: %v\n%s", rec, debug.Stack())
		}
	}()
	d, err = p.decider.Decide(s, id, r)
	if err == nil && d == nil {
		err = fmt.Errorf("decide returned no decision")
	}
	return d, err
}

func (p *Processor) safeExecute(s *model.GameState, id model.EmpireID, d model.Decision) (a Applied, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			a = Applied{}
			err = fmt.Errorf("execute panic: %v\n%s", rec, debug.Stack())
		}
	}()
	return p.exec.Execute(s, id, d)
}

func (p *Processor) poolSize(jobs int) int {
	n := p.workers
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if n > jobs {
		n = jobs
	}
	if n < 1 {
		n = 1
	}
	return n
}

// generate runs phase A. Results are indexed like ids, never by completion order.
func (p *Processor) generate(s *model.GameState, ids []model.EmpireID, base uint64) []generated {
	out := make([]generated, len(ids))
	if len(ids) == 0 {
		return out
	}
	jobs := make(chan int, len(ids))
	var wg sync.WaitGroup
	for w := 0; w < p.poolSize(len(ids)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				id := ids[idx]
				r := rng.Derive(base, s.Turn, StreamDecision, string(id))
				start := p.now()
				d, err := p.safeDecide(s, id, r)
				out[idx] = generated{decision: d, err: err, dur: p.now().Sub(start)}
			}
		}()
	}
	for i := range ids {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return out
}

// Run executes phase 4 against s. Phase A only reads s; phase B mutates it.
// Per-agent failures become failed audits and never abort the turn.
func (p *Processor) Run(ctx context.Context, s *model.GameState, base uint64) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	var out Outcome
	order := s.CreationOrder()

	var ids []model.EmpireID
	for _, i := range order {
		e := &s.Empires[i]
		if !e.Autonomous {
			continue
		}
		out.Stats.Autonomous++
		if e.Eliminated {
			out.Stats.Eliminated++
			continue
		}
		ids = append(ids, e.ID)
	}
	out.Stats.Active = len(ids)

	phaseStart := p.now()
	gen := p.generate(s, ids, base)
	phaseA := p.now().Sub(phaseStart)

	byID := make(map[model.EmpireID]int, len(ids))
	var total, longest time.Duration
	for i, id := range ids {
		byID[id] = i
		g := gen[i]
		total += g.dur
		if g.dur > longest {
			longest = g.dur
		}
		over := p.budget > 0 && g.dur > p.budget
		if over {
			out.Timing.AgentsOverBudget++
		}
		out.Timing.Agents = append(out.Timing.Agents, model.AgentTiming{Empire: id, Micros: g.dur.Microseconds(), OverBudget: over})
	}
	out.Timing.PhaseAMicros = phaseA.Microseconds()
	out.Timing.MaxAgentMicros = longest.Microseconds()
	if len(ids) > 0 {
		out.Timing.AvgAgentMicros = (total / time.Duration(len(ids))).Microseconds()
	}
	if p.phaseBudget > 0 && phaseA > p.phaseBudget {
		out.Timing.PhaseAOverBudget = true
		p.log.Warn("agent phase over budget",
			"turn", s.Turn, "agents", len(ids), "phase_a_ms", phaseA.Milliseconds(), "budget_ms", p.phaseBudget.Milliseconds())
	}

	orders := map[model.EmpireID][]model.Order{}
	for _, o := range s.Orders {
		orders[o.Empire] = append(orders[o.Empire], o)
	}

	bStart := p.now()
	for _, i := range order {
		e := &s.Empires[i]
		if e.Eliminated {
			continue
		}
		if e.Autonomous {
			g := gen[byID[e.ID]]
			if g.err != nil {
				out.fail(p.log, e.ID, model.SourceAgent, model.DoNothing{Reason: model.ReasonAgentFailed}, "generate", g.err)
				continue
			}
			out.apply(p, s, e.ID, model.SourceAgent, g.decision)
			continue
		}
		pending := orders[e.ID]
		if len(pending) == 0 {
			out.Audits = append(out.Audits, model.DecisionAudit{
				Empire:    e.ID,
				Source:    model.SourceOrder,
				Generated: model.Record(model.DoNothing{Reason: model.ReasonNoOrder}),
				Applied:   model.Record(model.DoNothing{Reason: model.ReasonNoOrder}),
				Status:    model.StatusApplied,
				Reason:    model.ReasonNoOrder,
			})
			continue
		}
		for _, o := range pending {
			out.Stats.Orders++
			d, err := o.Decision.Decision()
			if err != nil {
				out.Stats.Rejected++
				out.Audits = append(out.Audits, model.DecisionAudit{
					Empire:    e.ID,
					Source:    model.SourceOrder,
					Generated: o.Decision,
					Applied:   model.Record(model.DoNothing{Reason: model.ReasonInvalidOrder}),
					Status:    model.StatusRejected,
					Reason:    model.ReasonInvalidOrder,
					Error:     err.Error(),
				})
				continue
			}
			out.apply(p, s, e.ID, model.SourceOrder, d)
		}
	}
	out.Timing.PhaseBMicros = p.now().Sub(bStart).Microseconds()
	return out, nil
}

func (out *Outcome) apply(p *Processor, s *model.GameState, id model.EmpireID, src model.AuditSource, d model.Decision) {
	a, err := p.safeExecute(s, id, d)
	if err != nil {
		out.fail(p.log, id, src, d, "execute", err)
		return
	}
	if a.Decision == nil {
		a.Decision = d
	}
	if a.Status == model.StatusRejected {
		out.Stats.Rejected++
	}
	out.Audits = append(out.Audits, model.DecisionAudit{
		Empire:    id,
		Source:    src,
		Generated: model.Record(d),
		Applied:   model.Record(a.Decision),
		Status:    a.Status,
		Reason:    a.Reason,
	})
	if a.Attack != nil {
		out.Attacks = append(out.Attacks, *a.Attack)
	}
	out.Events = append(out.Events, a.Events...)
}

func (out *Outcome) fail(log *slog.Logger, id model.EmpireID, src model.AuditSource, generatedDecision model.Decision, phase string, err error) {
	out.Stats.Failed++
	// Stack traces stay in the log; the audit keeps the first line only.
	msg, _, _ := strings.Cut(err.Error(), "\n")
	log.Warn("agent failed", "empire_id", id, "phase", phase, "error", err)
	out.Audits = append(out.Audits, model.DecisionAudit{
		Empire:    id,
		Source:    src,
		Generated: model.Record(generatedDecision),
		Applied:   model.Record(model.DoNothing{Reason: model.ReasonAgentFailed}),
		Status:    model.StatusFailed,
		Reason:    model.ReasonAgentFailed,
		Error:     msg,
	})
}
