package combat

import "empires.ai/internal/sim/model"

// Topology answers galaxy adjacency questions for sector redistribution.
type Topology interface {
	Neighbors(region string) []string
}

// StateTopology reads adjacency from the snapshot's regions.
type StateTopology struct {
	State *model.GameState
}

func (t StateTopology) Neighbors(region string) []string {
	if t.State == nil {
		return nil
	}
	if r := t.State.Region(region); r != nil {
		return r.Neighbors
	}
	return nil
}

// near reports whether empire id owns a sector in region or one of its neighbors.
func near(s *model.GameState, topo Topology, id model.EmpireID, region string) bool {
	regions := map[string]bool{region: true}
	for _, n := range topo.Neighbors(region) {
		regions[n] = true
	}
	for i := range s.Sectors {
		if s.Sectors[i].Owner == id && regions[s.Sectors[i].Region] {
			return true
		}
	}
	return false
}
