// Package decision picks one decision per autonomous empire per turn.
//
// Selection is a single weighted draw over the decision table; difficulty and
// archetype only shape the payload (which unit, which target, how many).
package decision

import (
	"fmt"
	"sort"

	"empires.ai/internal/sim/catalogs"
	"empires.ai/internal/sim/formulas"
	"empires.ai/internal/sim/model"
	"empires.ai/internal/sim/rng"
	"empires.ai/internal/sim/tuning"
)

type Target struct {
	ID       model.EmpireID
	Seq      int
	Networth int64
	Sectors  int

	// Defense is raw defense scaled by the target's effectiveness.
	Defense float64
}

// Context is the read-only view one decision is computed from.
type Context struct {
	Empire     model.Empire
	Turn       int
	Difficulty model.Difficulty

	// AttackAllowed is false while the empire itself is protected or combat is disabled.
	AttackAllowed bool
	Targets       []Target
	Rivals        []model.EmpireID
	Rank          int
}

type Engine struct {
	table    WeightTable
	noAttack WeightTable
	tun      tuning.Tuning
	params   formulas.Params
	cat      *catalogs.Catalogs
}

func New(tun tuning.Tuning, cat *catalogs.Catalogs) (*Engine, error) {
	if cat == nil {
		return nil, fmt.Errorf("decision: nil catalogs")
	}
	table, err := FromTuning(tun.Decisions.Weights)
	if err != nil {
		return nil, err
	}
	return &Engine{
		table:    table,
		noAttack: table.WithoutAttack(),
		tun:      tun,
		params:   tun.Formulas(),
		cat:      cat,
	}, nil
}

// Table returns the full table, or the redistributed one when attacks are off.
func (e *Engine) Table(attackAllowed bool) WeightTable {
	if attackAllowed {
		return e.table
	}
	return e.noAttack
}

// Decide builds the context for id from s and chooses. s is only read.
func (e *Engine) Decide(s *model.GameState, id model.EmpireID, r rng.Rand) (model.Decision, error) {
	ctx, err := e.BuildContext(s, id)
	if err != nil {
		return nil, err
	}
	return e.Choose(ctx, r)
}

// BuildContext derives targets, rivals and rank for id. Targets exclude id,
// eliminated empires, protected empires and treaty partners, in creation order.
func (e *Engine) BuildContext(s *model.GameState, id model.EmpireID) (Context, error) {
	self := s.Empire(id)
	if self == nil {
		return Context{}, fmt.Errorf("decision: unknown empire %q", id)
	}
	ctx := Context{
		Empire:        *self,
		Turn:          s.Turn,
		Difficulty:    s.Difficulty,
		AttackAllowed: !s.Protected(id, s.Turn) && s.Features.Enabled(model.FeatureCombat),
		Rank:          1,
	}
	for _, i := range s.CreationOrder() {
		other := &s.Empires[i]
		if other.ID == id || other.Eliminated {
			continue
		}
		ctx.Rivals = append(ctx.Rivals, other.ID)
		if other.Networth > self.Networth || (other.Networth == self.Networth && other.Seq < self.Seq) {
			ctx.Rank++
		}
		if s.Protected(other.ID, s.Turn) || s.UnderTreaty(id, other.ID, s.Turn) {
			continue
		}
		_, def := e.cat.Units.Power(other.Forces)
		ctx.Targets = append(ctx.Targets, Target{
			ID:       other.ID,
			Seq:      other.Seq,
			Networth: other.Networth,
			Sectors:  other.SectorCount,
			Defense:  e.params.EffectivePower(def, other.Effectiveness),
		})
	}
	return ctx, nil
}

func (e *Engine) biasEnv(ctx Context) catalogs.BiasEnv {
	emp := ctx.Empire
	foodTurns := 99.0
	if c := e.params.FoodConsumption(emp.Population); c > 0 {
		foodTurns = float64(emp.Resources.Food) / float64(c)
	}
	return catalogs.BiasEnv{
		Turn:          ctx.Turn,
		Credits:       emp.Resources.Credits,
		Food:          emp.Resources.Food,
		Ore:           emp.Resources.Ore,
		Petroleum:     emp.Resources.Petroleum,
		Research:      emp.Resources.Research,
		Population:    emp.Population,
		Sectors:       emp.SectorCount,
		Military:      emp.Forces.Total(),
		Effectiveness: emp.Effectiveness,
		Networth:      emp.Networth,
		Rank:          ctx.Rank,
		Rivals:        len(ctx.Rivals),
		FoodTurns:     foodTurns,
		Protected:     !ctx.AttackAllowed,
		Tier:          emp.Tier,
	}
}

// Choose draws the decision kind with the first draw from r, then fills the payload.
func (e *Engine) Choose(ctx Context, r rng.Rand) (model.Decision, error) {
	kind := e.Table(ctx.AttackAllowed).Select(r.Float64())
	arch := e.cat.Archetypes.Get(ctx.Empire.Archetype)
	if arch == nil {
		return nil, fmt.Errorf("decision: no archetype for %q", ctx.Empire.Archetype)
	}
	env := e.biasEnv(ctx)

	switch kind {
	case model.KindBuildUnits:
		return e.buildUnits(ctx, arch, env, r)
	case model.KindBuySector:
		return e.buySector(ctx, arch, env, r)
	case model.KindAttack:
		return e.attack(ctx, arch, env, r)
	case model.KindDiplomacy:
		if len(ctx.Rivals) == 0 {
			return model.DoNothing{Reason: model.ReasonNoRivals}, nil
		}
		return model.Diplomacy{Target: ctx.Rivals[r.Intn(len(ctx.Rivals))], Proposal: "non_aggression"}, nil
	case model.KindTrade:
		return trade(ctx.Empire.Resources), nil
	case model.KindDoNothing:
		return model.DoNothing{Reason: model.ReasonSelected}, nil
	}
	return nil, fmt.Errorf("decision: unhandled kind %q", kind)
}

func (e *Engine) suboptimal(ctx Context, r rng.Rand) bool {
	return ctx.Difficulty == model.DifficultyEasy && r.Float64() < e.tun.Difficulty.EasySuboptimalChance
}

// affordable returns how many units costing cost the budget pays for.
func affordable(cost, budget model.Resources) int64 {
	n := int64(-1)
	limit := func(c, b int64) {
		if c <= 0 {
			return
		}
		q := b / c
		if n < 0 || q < n {
			n = q
		}
	}
	limit(cost.Credits, budget.Credits)
	limit(cost.Food, budget.Food)
	limit(cost.Ore, budget.Ore)
	limit(cost.Petroleum, budget.Petroleum)
	limit(cost.Research, budget.Research)
	if n < 0 {
		return 0
	}
	return n
}

func (e *Engine) buildUnits(ctx Context, arch *catalogs.Archetype, env catalogs.BiasEnv, r rng.Rand) (model.Decision, error) {
	res := ctx.Empire.Resources
	weights, err := arch.UnitWeights(env)
	if err != nil {
		return nil, err
	}
	for i := range weights {
		if affordable(e.cat.Units.Defs[weights[i].Key].Cost, res) < 1 {
			weights[i].Weight = 0
		}
	}
	bad := e.suboptimal(ctx, r)
	if bad {
		for i := range weights {
			if weights[i].Weight > 0 {
				weights[i].Weight = 1
			}
		}
	}
	unit, ok := catalogs.Pick(weights, r.Float64())
	if !ok || affordable(e.cat.Units.Defs[unit].Cost, res) < 1 {
		return model.DoNothing{Reason: model.ReasonInsufficientFunds}, nil
	}

	frac := e.tun.Decisions.BuildSpendFraction
	budget := model.Resources{
		Credits:   int64(float64(res.Credits) * frac),
		Food:      int64(float64(res.Food) * frac),
		Ore:       int64(float64(res.Ore) * frac),
		Petroleum: int64(float64(res.Petroleum) * frac),
		Research:  int64(float64(res.Research) * frac),
	}
	qty := affordable(e.cat.Units.Defs[unit].Cost, budget)
	if bad {
		qty /= 2
	}
	if qty < 1 {
		qty = 1
	}
	return model.BuildUnits{Unit: unit, Quantity: qty}, nil
}

func (e *Engine) buySector(ctx Context, arch *catalogs.Archetype, env catalogs.BiasEnv, r rng.Rand) (model.Decision, error) {
	weights, err := arch.SectorWeights(env)
	if err != nil {
		return nil, err
	}
	if e.suboptimal(ctx, r) {
		return model.BuySector{Type: model.SectorTypes[r.Intn(len(model.SectorTypes))]}, nil
	}
	t, ok := catalogs.Pick(weights, r.Float64())
	if !ok {
		return model.DoNothing{Reason: model.ReasonSelected}, nil
	}
	return model.BuySector{Type: t}, nil
}

func (e *Engine) attack(ctx Context, arch *catalogs.Archetype, env catalogs.BiasEnv, r rng.Rand) (model.Decision, error) {
	if !ctx.AttackAllowed || len(ctx.Targets) == 0 {
		return model.DoNothing{Reason: model.ReasonNoTargets}, nil
	}
	target := e.pickTarget(ctx, r)

	commit, err := arch.CommitFraction(env, e.tun.Decisions.AttackCommitFraction)
	if err != nil {
		return nil, err
	}
	var forces model.Forces
	for _, u := range e.cat.Units.Combatants() {
		forces.Set(u, int64(float64(ctx.Empire.Forces.Get(u))*commit))
	}
	if forces.Total() == 0 {
		return model.DoNothing{Reason: model.ReasonNoForces}, nil
	}

	mode := model.AttackInvasion
	atk, _ := e.cat.Units.Power(forces)
	if e.params.EffectivePower(atk, ctx.Empire.Effectiveness) < target.Defense {
		mode = model.AttackRaid
	}
	return model.Attack{Target: target.ID, Forces: forces, Mode: mode}, nil
}

// pickTarget applies the difficulty rules. Weakest means lowest effective
// defense, then lowest networth, then creation order.
func (e *Engine) pickTarget(ctx Context, r rng.Rand) Target {
	ts := append([]Target(nil), ctx.Targets...)
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].Defense != ts[j].Defense {
			return ts[i].Defense < ts[j].Defense
		}
		if ts[i].Networth != ts[j].Networth {
			return ts[i].Networth < ts[j].Networth
		}
		return ts[i].Seq < ts[j].Seq
	})
	switch ctx.Difficulty {
	case model.DifficultyHard:
		if r.Float64() < e.tun.Difficulty.HardWeakestChance {
			return ts[0]
		}
	case model.DifficultyNightmare:
		if r.Float64() < e.tun.Difficulty.NightmareWeakestChance {
			return ts[0]
		}
	case model.DifficultyEasy:
		if e.suboptimal(ctx, r) {
			return ts[len(ts)-1]
		}
	}
	return ctx.Targets[r.Intn(len(ctx.Targets))]
}

// trade offers a tenth of the most plentiful raw resource for the scarcest one.
func trade(res model.Resources) model.Trade {
	type pile struct {
		name string
		n    int64
	}
	piles := []pile{{"food", res.Food}, {"ore", res.Ore}, {"petroleum", res.Petroleum}}
	most, least := piles[0], piles[0]
	for _, p := range piles[1:] {
		if p.n > most.n {
			most = p
		}
		if p.n < least.n {
			least = p
		}
	}
	amount := func(name string, n int64) model.Resources {
		switch name {
		case "food":
			return model.Resources{Food: n}
		case "ore":
			return model.Resources{Ore: n}
		}
		return model.Resources{Petroleum: n}
	}
	give := most.n / 10
	return model.Trade{Offer: amount(most.name, give), Request: amount(least.name, give)}
}
