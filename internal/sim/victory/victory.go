// Package victory scores empires and decides when a game ends.
package victory

import (
	"sort"

	"empires.ai/internal/sim/catalogs"
	"empires.ai/internal/sim/model"
	"empires.ai/internal/sim/tuning"
)

type Evaluator struct {
	tun tuning.Tuning
	cat *catalogs.Catalogs
}

func New(tun tuning.Tuning, cat *catalogs.Catalogs) *Evaluator {
	return &Evaluator{tun: tun, cat: cat}
}

// Networth = sectors*per_sector + unit networth + population/divisor + credits/divisor.
func (v *Evaluator) Networth(e *model.Empire) int64 {
	n := v.tun.Networth
	nw := int64(e.SectorCount)*n.PerSector + v.cat.Units.Networth(e.Forces)
	if n.PopulationDivisor > 0 {
		nw += e.Population / n.PopulationDivisor
	}
	if n.CreditsDivisor > 0 {
		nw += e.Resources.Credits / n.CreditsDivisor
	}
	return nw
}

// UpdateNetworth recomputes every empire's networth. Eliminated empires score 0.
func (v *Evaluator) UpdateNetworth(s *model.GameState) {
	for i := range s.Empires {
		e := &s.Empires[i]
		if e.Eliminated {
			e.Networth = 0
			continue
		}
		e.Networth = v.Networth(e)
	}
}

// Rank orders active empires by networth, ties broken by creation order.
func Rank(s *model.GameState) []model.EmpireID {
	var active []*model.Empire
	for i := range s.Empires {
		if !s.Empires[i].Eliminated {
			active = append(active, &s.Empires[i])
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i], active[j]
		if a.Networth != b.Networth {
			return a.Networth > b.Networth
		}
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return a.ID < b.ID
	})
	out := make([]model.EmpireID, len(active))
	for i, e := range active {
		out[i] = e.ID
	}
	return out
}

// Evaluate checks, in order: all eliminated, conquest, economic, survival.
// A game that already ended keeps its recorded result.
func (v *Evaluator) Evaluate(s *model.GameState) model.VictoryResult {
	if s.Victory.Terminal() {
		return s.Victory.Result()
	}
	ranked := Rank(s)
	switch len(ranked) {
	case 0:
		return model.AllEliminated{}
	case 1:
		return model.Won{Empire: ranked[0], Type: model.VictoryConquest}
	}

	if total := len(s.Sectors); total > 0 {
		need := v.tun.Victory.ConquestShare * float64(total)
		owned := map[model.EmpireID]int{}
		for _, sec := range s.Sectors {
			if sec.Owner != "" {
				owned[sec.Owner]++
			}
		}
		for _, id := range ranked {
			if float64(owned[id]) >= need {
				return model.Won{Empire: id, Type: model.VictoryConquest}
			}
		}
	}

	if s.Features.Enabled(model.FeatureEconomicVictory) && v.tun.Victory.EconomicNetworth > 0 {
		if lead := s.Empire(ranked[0]); lead.Networth > v.tun.Victory.EconomicNetworth {
			return model.Won{Empire: lead.ID, Type: model.VictoryEconomic}
		}
	}

	if s.Turn >= v.tun.Victory.TurnLimit {
		return model.Won{Empire: ranked[0], Type: model.VictorySurvival}
	}
	return model.Ongoing{}
}
