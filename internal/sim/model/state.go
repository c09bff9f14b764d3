package model

import "sort"

const (
	FeatureCombat          = "combat"
	FeatureBuildQueue      = "build_queue"
	FeatureCivilStatus     = "civil_status"
	FeatureRedistribution  = "redistribution"
	FeatureEconomicVictory = "economic_victory"
)

var DefaultFeatures = Features{
	FeatureCombat,
	FeatureBuildQueue,
	FeatureCivilStatus,
	FeatureRedistribution,
	FeatureEconomicVictory,
}

// Features is the per-game flag set. An empty set means every feature is on.
type Features []string

func (f Features) Enabled(name string) bool {
	if len(f) == 0 {
		return true
	}
	for _, s := range f {
		if s == name {
			return true
		}
	}
	return false
}

type Counters struct {
	NextSector uint64 `json:"next_sector"`
}

// GameState is the full snapshot handed to the turn engine.
type GameState struct {
	GameID string `json:"game_id"`
	// Turn is the turn about to be processed.
	Turn            int        `json:"turn"`
	Seed            int64      `json:"seed"`
	ProtectionTurns int        `json:"protection_turns"`
	Difficulty      Difficulty `json:"difficulty"`
	Features        Features   `json:"features,omitempty"`

	Empires  []Empire `json:"empires"`
	Sectors  []Sector `json:"sectors"`
	Regions  []Region `json:"regions,omitempty"`
	Treaties []Treaty `json:"treaties,omitempty"`
	Orders   []Order  `json:"orders,omitempty"`

	Counters Counters       `json:"counters"`
	Victory  *VictoryRecord `json:"victory,omitempty"`
}

func (s *GameState) Clone() *GameState {
	if s == nil {
		return nil
	}
	out := *s
	if s.Features != nil {
		out.Features = append(Features(nil), s.Features...)
	}
	if s.Empires != nil {
		out.Empires = make([]Empire, len(s.Empires))
		for i := range s.Empires {
			out.Empires[i] = s.Empires[i].clone()
		}
	}
	if s.Sectors != nil {
		out.Sectors = append([]Sector(nil), s.Sectors...)
	}
	if s.Regions != nil {
		out.Regions = make([]Region, len(s.Regions))
		for i, r := range s.Regions {
			out.Regions[i] = Region{ID: r.ID, Neighbors: append([]string(nil), r.Neighbors...)}
		}
	}
	if s.Treaties != nil {
		out.Treaties = append([]Treaty(nil), s.Treaties...)
	}
	if s.Orders != nil {
		out.Orders = make([]Order, len(s.Orders))
		for i, o := range s.Orders {
			out.Orders[i] = o
			if o.Decision.Forces != nil {
				f := *o.Decision.Forces
				out.Orders[i].Decision.Forces = &f
			}
			if o.Decision.Offer != nil {
				r := *o.Decision.Offer
				out.Orders[i].Decision.Offer = &r
			}
			if o.Decision.Request != nil {
				r := *o.Decision.Request
				out.Orders[i].Decision.Request = &r
			}
		}
	}
	if s.Victory != nil {
		v := *s.Victory
		out.Victory = &v
	}
	return &out
}

func (s *GameState) Empire(id EmpireID) *Empire {
	for i := range s.Empires {
		if s.Empires[i].ID == id {
			return &s.Empires[i]
		}
	}
	return nil
}

// CreationOrder returns indexes into Empires sorted by Seq, then ID.
func (s *GameState) CreationOrder() []int {
	idx := make([]int, len(s.Empires))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ea, eb := &s.Empires[idx[a]], &s.Empires[idx[b]]
		if ea.Seq != eb.Seq {
			return ea.Seq < eb.Seq
		}
		return ea.ID < eb.ID
	})
	return idx
}

func (s *GameState) SectorsOf(id EmpireID) []int {
	var out []int
	for i := range s.Sectors {
		if s.Sectors[i].Owner == id {
			out = append(out, i)
		}
	}
	return out
}

// RecountSectors refreshes every empire's SectorCount from sector ownership.
func (s *GameState) RecountSectors() {
	counts := make(map[EmpireID]int, len(s.Empires))
	for _, sec := range s.Sectors {
		if sec.Owner != "" {
			counts[sec.Owner]++
		}
	}
	for i := range s.Empires {
		s.Empires[i].SectorCount = counts[s.Empires[i].ID]
	}
}

// Protected reports whether id cannot be attacked on turn.
func (s *GameState) Protected(id EmpireID, turn int) bool {
	if turn <= s.ProtectionTurns {
		return true
	}
	if e := s.Empire(id); e != nil && turn <= e.ProtectedUntil {
		return true
	}
	return false
}

func (s *GameState) UnderTreaty(a, b EmpireID, turn int) bool {
	for _, t := range s.Treaties {
		if t.Binds(a, b, turn) {
			return true
		}
	}
	return false
}

func (s *GameState) Region(id string) *Region {
	for i := range s.Regions {
		if s.Regions[i].ID == id {
			return &s.Regions[i]
		}
	}
	return nil
}

func (s *GameState) ActiveCount() int {
	n := 0
	for i := range s.Empires {
		if !s.Empires[i].Eliminated {
			n++
		}
	}
	return n
}
