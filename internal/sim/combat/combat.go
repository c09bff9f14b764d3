// Package combat validates and resolves attacks between empires.
package combat

import (
	"sort"

	"empires.ai/internal/sim/catalogs"
	"empires.ai/internal/sim/formulas"
	"empires.ai/internal/sim/model"
	"empires.ai/internal/sim/rng"
	"empires.ai/internal/sim/tuning"
)

type Resolver struct {
	tun    tuning.Tuning
	params formulas.Params
	cat    *catalogs.Catalogs
}

func New(tun tuning.Tuning, cat *catalogs.Catalogs) *Resolver {
	return &Resolver{tun: tun, params: tun.Formulas(), cat: cat}
}

// Validate returns "" when attacker may launch a. Otherwise it returns the
// reason code the attack is rejected with.
func (r *Resolver) Validate(s *model.GameState, attacker model.EmpireID, a model.Attack) string {
	if !s.Features.Enabled(model.FeatureCombat) {
		return model.ReasonCombatDisabled
	}
	att := s.Empire(attacker)
	if att == nil {
		return model.ReasonUnknownEmpire
	}
	if att.Eliminated {
		return model.ReasonEliminated
	}
	if a.Target == attacker {
		return model.ReasonSelfTarget
	}
	def := s.Empire(a.Target)
	if def == nil {
		return model.ReasonUnknownEmpire
	}
	if def.Eliminated {
		return model.ReasonEliminated
	}
	if s.Protected(attacker, s.Turn) || s.Protected(a.Target, s.Turn) {
		return model.ReasonProtected
	}
	if s.UnderTreaty(attacker, a.Target, s.Turn) {
		return model.ReasonTreaty
	}
	if a.Forces.Total() <= 0 {
		return model.ReasonNoForces
	}
	if !a.Forces.Within(att.Forces) {
		return model.ReasonInsufficientForces
	}
	return ""
}

// Result is one resolved attack plus the events it caused.
type Result struct {
	Outcome model.AttackOutcome
	Events  []model.Event
}

func (r *Resolver) casualties(f model.Forces, rate, variance float64) model.Forces {
	var out model.Forces
	for _, u := range model.UnitTypes {
		out.Set(u, r.params.Casualties(f.Get(u), rate, variance))
	}
	return out
}

func (r *Resolver) retreatCasualties(f model.Forces) model.Forces {
	var out model.Forces
	for _, u := range model.UnitTypes {
		out.Set(u, r.params.RetreatCasualties(f.Get(u)))
	}
	return out
}

// Resolve validates and fights one attack against s. Draws from rnd in a fixed
// order: attacker variance, defender variance, victory gain.
func (r *Resolver) Resolve(s *model.GameState, attacker model.EmpireID, a model.Attack, rnd rng.Rand, topo Topology) Result {
	if code := r.Validate(s, attacker, a); code != "" {
		return Result{Outcome: model.AttackRejected{Code: code}}
	}
	if a.Mode == "" {
		a.Mode = model.AttackInvasion
	}
	att, def := s.Empire(attacker), s.Empire(a.Target)

	atkRaw, _ := r.cat.Units.Power(a.Forces)
	_, defRaw := r.cat.Units.Power(def.Forces)
	b := model.Battle{
		AttackPower:           r.params.EffectivePower(atkRaw, att.Effectiveness),
		DefensePower:          r.params.EffectivePower(defRaw, def.Effectiveness),
		AttackerEffectiveness: model.EffectivenessChange{Before: att.Effectiveness, After: att.Effectiveness},
		DefenderEffectiveness: model.EffectivenessChange{Before: def.Effectiveness, After: def.Effectiveness},
	}

	if b.AttackPower < r.tun.Combat.RetreatThreshold*b.DefensePower {
		b.AttackerLosses = r.retreatCasualties(a.Forces)
		att.Forces = att.Forces.Minus(b.AttackerLosses)
		return Result{Outcome: model.AttackRetreated{Battle: b}}
	}

	attRate := r.params.CombatLossRate(b.AttackPower, b.DefensePower)
	defRate := r.params.CombatLossRate(b.DefensePower, b.AttackPower)
	attVar := r.params.Variance(rnd.Float64())
	defVar := r.params.Variance(rnd.Float64())
	b.AttackerLosses = r.casualties(a.Forces, attRate, attVar)
	b.DefenderLosses = r.casualties(def.Forces, defRate, defVar)
	att.Forces = att.Forces.Minus(b.AttackerLosses)
	def.Forces = def.Forces.Minus(b.DefenderLosses)

	gain := rnd.Float64()
	won := b.AttackPower > b.DefensePower
	if won {
		att.Effectiveness = r.params.Effectiveness(att.Effectiveness, formulas.TransitionVictory, gain)
		def.Effectiveness = r.params.Effectiveness(def.Effectiveness, formulas.TransitionDefeat, 0)
	} else {
		att.Effectiveness = r.params.Effectiveness(att.Effectiveness, formulas.TransitionDefeat, 0)
		def.Effectiveness = r.params.Effectiveness(def.Effectiveness, formulas.TransitionVictory, gain)
	}
	b.AttackerEffectiveness.After = att.Effectiveness
	b.DefenderEffectiveness.After = def.Effectiveness

	if !won {
		return Result{Outcome: model.AttackLost{Battle: b}}
	}
	out := model.AttackWon{Battle: b}
	var events []model.Event
	if a.Mode == model.AttackInvasion {
		out.Captured = r.capture(s, att, def)
		for _, id := range out.Captured {
			events = append(events, model.Event{Kind: model.EventSectorCaptured, Empire: att.ID, Other: def.ID, Sector: id})
		}
		if def.SectorCount == 0 || def.Population < r.params.MinPopulation {
			out.DefenderEliminated = true
			events = append(events, r.eliminate(s, def, att, topo)...)
		}
	}
	return Result{Outcome: out, Events: events}
}

// capture moves the defender's newest sectors to the attacker: at least one,
// SectorCaptureRate of the defender's holdings otherwise. Population moves
// with the captured share.
func (r *Resolver) capture(s *model.GameState, att, def *model.Empire) []model.SectorID {
	owned := s.SectorsOf(def.ID)
	if len(owned) == 0 {
		return nil
	}
	n := int(float64(len(owned)) * r.tun.Combat.SectorCaptureRate)
	if n < 1 {
		n = 1
	}
	sort.SliceStable(owned, func(i, j int) bool {
		a, b := &s.Sectors[owned[i]], &s.Sectors[owned[j]]
		if a.AcquiredTurn != b.AcquiredTurn {
			return a.AcquiredTurn > b.AcquiredTurn
		}
		return a.ID > b.ID
	})
	var ids []model.SectorID
	for _, idx := range owned[:n] {
		s.Sectors[idx].Owner = att.ID
		s.Sectors[idx].AcquiredTurn = s.Turn
		ids = append(ids, s.Sectors[idx].ID)
	}
	moved := def.Population * int64(n) / int64(len(owned))
	def.Population -= moved
	att.Population += moved
	def.SectorCount = len(owned) - n
	att.SectorCount += n
	return ids
}

// eliminate marks def eliminated and hands its remaining sectors on: to the
// attacker when adjacent, else to the strongest adjacent empire, else the attacker.
func (r *Resolver) eliminate(s *model.GameState, def, att *model.Empire, topo Topology) []model.Event {
	def.Eliminated = true
	def.EliminatedTurn = s.Turn
	def.BuildQueue = nil
	events := []model.Event{{Kind: model.EventElimination, Empire: def.ID, Other: att.ID}}
	if topo == nil {
		topo = StateTopology{State: s}
	}

	redistribute := s.Features.Enabled(model.FeatureRedistribution)
	for _, idx := range s.SectorsOf(def.ID) {
		sec := &s.Sectors[idx]
		if !redistribute {
			sec.Owner = ""
			continue
		}
		to := r.heir(s, topo, def.ID, att.ID, sec.Region)
		sec.Owner = to
		sec.AcquiredTurn = s.Turn
		events = append(events, model.Event{Kind: model.EventSectorTransfer, Empire: to, Other: def.ID, Sector: sec.ID})
	}
	s.RecountSectors()
	return events
}

func (r *Resolver) heir(s *model.GameState, topo Topology, def, att model.EmpireID, region string) model.EmpireID {
	if near(s, topo, att, region) {
		return att
	}
	var best *model.Empire
	for _, i := range s.CreationOrder() {
		e := &s.Empires[i]
		if e.Eliminated || e.ID == def || !near(s, topo, e.ID, region) {
			continue
		}
		if best == nil || e.Networth > best.Networth {
			best = e
		}
	}
	if best != nil {
		return best.ID
	}
	return att
}
