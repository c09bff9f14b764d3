// Package economy runs the first three turn phases (production and
// maintenance, population, build queue) and the sector purchase and release
// actions that decisions and orders apply.
package economy

import (
	"fmt"

	"empires.ai/internal/sim/catalogs"
	"empires.ai/internal/sim/formulas"
	"empires.ai/internal/sim/model"
	"empires.ai/internal/sim/tuning"
)

type Economy struct {
	tun    tuning.Tuning
	params formulas.Params
	cat    *catalogs.Catalogs
}

func New(tun tuning.Tuning, cat *catalogs.Catalogs) *Economy {
	return &Economy{tun: tun, params: tun.Formulas(), cat: cat}
}

type Production struct {
	Produced        model.Resources
	Maintenance     int64
	MaintenancePaid bool
}

// IncomeMultiplier combines the civil status and nightmare bonus for e.
func (x *Economy) IncomeMultiplier(s *model.GameState, e *model.Empire) float64 {
	m := 1.0
	if s.Features.Enabled(model.FeatureCivilStatus) {
		if v, ok := x.tun.Economy.CivilIncome[e.CivilStatus]; ok {
			m = v
		}
	}
	if s.Difficulty == model.DifficultyNightmare && e.Autonomous {
		m *= 1 + x.tun.Difficulty.NightmareResourceBonus
	}
	return m
}

func (x *Economy) sectorRate(sec *model.Sector) int64 {
	if sec.Production > 0 {
		return sec.Production
	}
	return x.cat.Sectors.Defs[sec.Type].Production
}

// PopulationCap is the base cap plus every owned sector's contribution.
func (x *Economy) PopulationCap(s *model.GameState, id model.EmpireID) int64 {
	c := x.tun.Population.BaseCap
	for i := range s.Sectors {
		if s.Sectors[i].Owner == id {
			c += x.cat.Sectors.Defs[s.Sectors[i].Type].PopulationCap
		}
	}
	return c
}

// Maintenance is the per-turn credit upkeep for e's sectors and forces.
func (x *Economy) Maintenance(e *model.Empire) int64 {
	return int64(e.SectorCount)*x.tun.Sectors.Maintenance + x.cat.Units.Maintenance(e.Forces)
}

// Produce runs phase 1 for one empire: sector yields and tax, then upkeep.
// Unpaid upkeep zeroes credits, costs effectiveness and worsens civil status.
func (x *Economy) Produce(s *model.GameState, e *model.Empire) Production {
	var out Production
	if e.Eliminated {
		return out
	}
	mult := x.IncomeMultiplier(s, e)
	for i := range s.Sectors {
		sec := &s.Sectors[i]
		if sec.Owner != e.ID {
			continue
		}
		def := x.cat.Sectors.Defs[sec.Type]
		out.Produced = out.Produced.Add(def.Yield(formulas.Yield(x.sectorRate(sec), mult)))
	}
	out.Produced.Credits += formulas.Yield(e.Population, x.tun.Economy.TaxPerCapita*mult)
	e.Resources = e.Resources.Add(out.Produced)

	out.Maintenance = x.Maintenance(e)
	if e.Resources.Credits >= out.Maintenance {
		e.Resources.Credits -= out.Maintenance
		out.MaintenancePaid = true
		e.Effectiveness = x.params.Effectiveness(e.Effectiveness, formulas.TransitionRecovery, 0)
	} else {
		e.Resources.Credits = 0
		e.Effectiveness = x.params.Effectiveness(e.Effectiveness, formulas.TransitionUnpaid, 0)
		if s.Features.Enabled(model.FeatureCivilStatus) {
			e.CivilStatus = e.CivilStatus.Worse()
		}
	}
	e.PopulationCap = x.PopulationCap(s, e.ID)
	e.Resources.ClampNonNegative()
	return out
}

type Population struct {
	Before   int64
	After    int64
	Consumed int64
	Deficit  int64
	Starved  bool
}

// Grow runs phase 2 for one empire. paid reports whether this turn's upkeep
// was covered; a fed and paid turn improves civil status one step.
func (x *Economy) Grow(s *model.GameState, e *model.Empire, paid bool) Population {
	out := Population{Before: e.Population, After: e.Population}
	if e.Eliminated {
		return out
	}
	need := x.params.FoodConsumption(e.Population)
	civil := s.Features.Enabled(model.FeatureCivilStatus)
	if e.Resources.Food >= need {
		out.Consumed = need
		e.Resources.Food -= need
		e.Population += x.params.PopulationGrowth(e.Population, e.PopulationCap, e.Resources.Food)
		if civil && paid {
			e.CivilStatus = e.CivilStatus.Better()
		}
	} else {
		out.Consumed = e.Resources.Food
		out.Deficit = need - e.Resources.Food
		out.Starved = true
		e.Resources.Food = 0
		loss := x.params.StarvationLoss(e.Population, out.Deficit)
		e.Population = x.params.ApplyPopulationChange(e.Population, loss)
		if civil {
			e.CivilStatus = e.CivilStatus.Worse()
		}
	}
	out.After = e.Population
	return out
}

// AdvanceBuilds runs phase 3: every queued order ticks down once and
// completed orders join the empire's forces.
func (x *Economy) AdvanceBuilds(e *model.Empire) []model.BuildCompletion {
	if len(e.BuildQueue) == 0 {
		return nil
	}
	var done []model.BuildCompletion
	keep := e.BuildQueue[:0]
	for _, o := range e.BuildQueue {
		o.TurnsRemaining--
		if o.TurnsRemaining > 0 {
			keep = append(keep, o)
			continue
		}
		e.Forces.Add(o.Unit, o.Quantity)
		done = append(done, model.BuildCompletion{Empire: e.ID, Unit: o.Unit, Quantity: o.Quantity})
	}
	if len(keep) == 0 {
		e.BuildQueue = nil
	} else {
		e.BuildQueue = keep
	}
	return done
}

// QueueBuild pays for qty units of u. Units arrive through the build queue, or
// at once when the queue is disabled or the unit builds in zero turns.
// It returns a reason code when the order is rejected.
func (x *Economy) QueueBuild(s *model.GameState, e *model.Empire, u model.UnitType, qty int64) (delivered bool, reason string) {
	def, ok := x.cat.Units.Defs[u]
	if !ok {
		return false, model.ReasonUnknownUnit
	}
	if qty < 1 {
		return false, model.ReasonInvalidQuantity
	}
	cost := def.Cost.Scale(qty)
	if !e.Resources.Covers(cost) {
		return false, model.ReasonInsufficientFunds
	}
	e.Resources = e.Resources.Sub(cost)
	if !s.Features.Enabled(model.FeatureBuildQueue) || def.BuildTurns <= 0 {
		e.Forces.Add(u, qty)
		return true, ""
	}
	e.BuildQueue = append(e.BuildQueue, model.BuildOrder{Unit: u, Quantity: qty, TurnsRemaining: def.BuildTurns})
	return false, ""
}

// SectorPrice is what e pays for its next sector of type t.
func (x *Economy) SectorPrice(e *model.Empire, t model.SectorType) int64 {
	return x.params.SectorCost(x.cat.Sectors.Defs[t].BaseCost, e.SectorCount)
}

func (x *Economy) homeRegion(s *model.GameState, id model.EmpireID) string {
	for i := range s.Sectors {
		if s.Sectors[i].Owner == id && s.Sectors[i].Region != "" {
			return s.Sectors[i].Region
		}
	}
	if len(s.Regions) > 0 {
		return s.Regions[0].ID
	}
	return ""
}

// NextSectorID allocates a sector id from the game counters.
func NextSectorID(s *model.GameState) model.SectorID {
	s.Counters.NextSector++
	return model.SectorID(fmt.Sprintf("S%05d", s.Counters.NextSector))
}

// BuySector colonizes a new sector of type t in e's home region.
func (x *Economy) BuySector(s *model.GameState, e *model.Empire, t model.SectorType) (model.SectorID, string) {
	def, ok := x.cat.Sectors.Defs[t]
	if !ok {
		return "", model.ReasonUnknownSectorType
	}
	cost := x.SectorPrice(e, t)
	if e.Resources.Credits < cost {
		return "", model.ReasonInsufficientFunds
	}
	e.Resources.Credits -= cost
	id := NextSectorID(s)
	s.Sectors = append(s.Sectors, model.Sector{
		ID:           id,
		Owner:        e.ID,
		Type:         t,
		Region:       x.homeRegion(s, e.ID),
		Production:   def.Production,
		AcquiredTurn: s.Turn,
	})
	e.SectorCount++
	e.PopulationCap += def.PopulationCap
	return id, ""
}

// ReleaseSector removes one of e's sectors and refunds half the price of the
// sector it would take to replace it. An empire cannot release its last sector.
func (x *Economy) ReleaseSector(s *model.GameState, e *model.Empire, id model.SectorID) (int64, string) {
	idx := -1
	for i := range s.Sectors {
		if s.Sectors[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, model.ReasonUnknownSector
	}
	sec := s.Sectors[idx]
	if sec.Owner != e.ID {
		return 0, model.ReasonNotOwner
	}
	if e.SectorCount <= 1 {
		return 0, model.ReasonLastSector
	}
	def := x.cat.Sectors.Defs[sec.Type]
	refund := x.params.ReleaseRefund(x.params.SectorCost(def.BaseCost, e.SectorCount-1))
	s.Sectors = append(s.Sectors[:idx], s.Sectors[idx+1:]...)
	e.Resources.Credits += refund
	e.SectorCount--
	e.PopulationCap -= def.PopulationCap
	if e.PopulationCap < x.tun.Population.BaseCap {
		e.PopulationCap = x.tun.Population.BaseCap
	}
	return refund, ""
}
