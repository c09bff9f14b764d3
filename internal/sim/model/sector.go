package model

type SectorID string

type SectorType string

const (
	SectorFood       SectorType = "food"
	SectorOre        SectorType = "ore"
	SectorPetroleum  SectorType = "petroleum"
	SectorCommerce   SectorType = "commerce"
	SectorUrban      SectorType = "urban"
	SectorResearch   SectorType = "research"
	SectorIndustrial SectorType = "industrial"
	SectorGovernment SectorType = "government"
	SectorTourism    SectorType = "tourism"
	SectorSupply     SectorType = "supply"
)

var SectorTypes = []SectorType{
	SectorFood,
	SectorOre,
	SectorPetroleum,
	SectorCommerce,
	SectorUrban,
	SectorResearch,
	SectorIndustrial,
	SectorGovernment,
	SectorTourism,
	SectorSupply,
}

func (t SectorType) Valid() bool {
	for _, s := range SectorTypes {
		if s == t {
			return true
		}
	}
	return false
}

type Sector struct {
	ID     SectorID   `json:"id"`
	Owner  EmpireID   `json:"owner,omitempty"`
	Type   SectorType `json:"type"`
	Region string     `json:"region"`
	// Production is the base yield per turn before civil/difficulty multipliers.
	Production   int64 `json:"production_rate"`
	AcquiredTurn int   `json:"acquired_turn"`
}

type Region struct {
	ID        string   `json:"id"`
	Neighbors []string `json:"neighbors,omitempty"`
}

// Treaty protects A and B from attacking each other through UntilTurn (0 = no expiry).
type Treaty struct {
	A         EmpireID `json:"a"`
	B         EmpireID `json:"b"`
	UntilTurn int      `json:"until_turn,omitempty"`
}

func (t Treaty) Binds(x, y EmpireID, turn int) bool {
	if t.UntilTurn != 0 && turn > t.UntilTurn {
		return false
	}
	return (t.A == x && t.B == y) || (t.A == y && t.B == x)
}
