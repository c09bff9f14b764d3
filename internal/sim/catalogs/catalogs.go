package catalogs

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"lukechampine.com/blake3"

	"empires.ai/internal/sim/model"
)

type Catalogs struct {
	Units      UnitCatalog
	Sectors    SectorCatalog
	Archetypes ArchetypeCatalog
}

type UnitCatalog struct {
	Defs   map[model.UnitType]UnitDef
	Digest string
}

type UnitDef struct {
	Type        model.UnitType  `json:"type"`
	Cost        model.Resources `json:"cost"`
	Maintenance int64           `json:"maintenance"`
	Attack      float64         `json:"attack"`
	Defense     float64         `json:"defense"`
	Networth    int64           `json:"networth"`
	BuildTurns  int             `json:"build_turns"`
}

type SectorCatalog struct {
	Defs   map[model.SectorType]SectorDef
	Digest string
}

// Resource names accepted in sectors.json.
const (
	ResourceNone      = "none"
	ResourceCredits   = "credits"
	ResourceFood      = "food"
	ResourceOre       = "ore"
	ResourcePetroleum = "petroleum"
	ResourceResearch  = "research"
)

type SectorDef struct {
	Type          model.SectorType `json:"type"`
	Resource      string           `json:"resource"`
	Production    int64            `json:"production"`
	BaseCost      int64            `json:"base_cost"`
	PopulationCap int64            `json:"population_cap"`
}

// Yield returns amount of this sector's resource as a Resources value.
func (d SectorDef) Yield(amount int64) model.Resources {
	switch d.Resource {
	case ResourceCredits:
		return model.Resources{Credits: amount}
	case ResourceFood:
		return model.Resources{Food: amount}
	case ResourceOre:
		return model.Resources{Ore: amount}
	case ResourcePetroleum:
		return model.Resources{Petroleum: amount}
	case ResourceResearch:
		return model.Resources{Research: amount}
	}
	return model.Resources{}
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadUnits(filepath.Join(configDir, "units.json"), &c.Units); err != nil {
		return nil, err
	}
	if err := loadSectors(filepath.Join(configDir, "sectors.json"), &c.Sectors); err != nil {
		return nil, err
	}
	if err := loadArchetypes(filepath.Join(configDir, "archetypes.json"), &c.Archetypes); err != nil {
		return nil, err
	}
	return &c, nil
}

// Digest combines the per-file digests; replay tooling compares it across runs.
func (c *Catalogs) Digest() string {
	h := blake3.New(32, nil)
	for _, d := range []string{c.Units.Digest, c.Sectors.Digest, c.Archetypes.Digest} {
		h.Write([]byte(d))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digestHex(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadUnits(path string, out *UnitCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = digestHex(raw)

	var defs []UnitDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("units.json: %w", err)
	}
	out.Defs = make(map[model.UnitType]UnitDef, len(defs))
	for _, d := range defs {
		if !d.Type.Valid() {
			return fmt.Errorf("units.json: unknown unit type %q", d.Type)
		}
		if _, dup := out.Defs[d.Type]; dup {
			return fmt.Errorf("units.json: duplicate unit type %q", d.Type)
		}
		if d.Cost.Credits <= 0 || !d.Cost.NonNegative() {
			return fmt.Errorf("units.json: %s: cost must be positive", d.Type)
		}
		if d.Maintenance < 0 || d.Attack < 0 || d.Defense < 0 || d.Networth < 0 {
			return fmt.Errorf("units.json: %s: negative stat", d.Type)
		}
		if d.BuildTurns < 0 {
			return fmt.Errorf("units.json: %s: negative build_turns", d.Type)
		}
		out.Defs[d.Type] = d
	}
	for _, u := range model.UnitTypes {
		if _, ok := out.Defs[u]; !ok {
			return fmt.Errorf("units.json: missing unit type %q", u)
		}
	}
	return nil
}

func loadSectors(path string, out *SectorCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = digestHex(raw)

	var defs []SectorDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("sectors.json: %w", err)
	}
	out.Defs = make(map[model.SectorType]SectorDef, len(defs))
	for _, d := range defs {
		if !d.Type.Valid() {
			return fmt.Errorf("sectors.json: unknown sector type %q", d.Type)
		}
		switch d.Resource {
		case ResourceNone, ResourceCredits, ResourceFood, ResourceOre, ResourcePetroleum, ResourceResearch:
		default:
			return fmt.Errorf("sectors.json: %s: unknown resource %q", d.Type, d.Resource)
		}
		if d.BaseCost <= 0 {
			return fmt.Errorf("sectors.json: %s: base_cost must be positive", d.Type)
		}
		if d.Production < 0 || d.PopulationCap < 0 {
			return fmt.Errorf("sectors.json: %s: negative production or population_cap", d.Type)
		}
		out.Defs[d.Type] = d
	}
	for _, t := range model.SectorTypes {
		if _, ok := out.Defs[t]; !ok {
			return fmt.Errorf("sectors.json: missing sector type %q", t)
		}
	}
	return nil
}

func (c UnitCatalog) Cost(u model.UnitType, qty int64) model.Resources {
	return c.Defs[u].Cost.Scale(qty)
}

// Power returns the raw attack and defense totals for f.
func (c UnitCatalog) Power(f model.Forces) (attack, defense float64) {
	for _, u := range model.UnitTypes {
		n := float64(f.Get(u))
		d := c.Defs[u]
		attack += n * d.Attack
		defense += n * d.Defense
	}
	return attack, defense
}

func (c UnitCatalog) Maintenance(f model.Forces) int64 {
	var total int64
	for _, u := range model.UnitTypes {
		total += f.Get(u) * c.Defs[u].Maintenance
	}
	return total
}

func (c UnitCatalog) Networth(f model.Forces) int64 {
	var total int64
	for _, u := range model.UnitTypes {
		total += f.Get(u) * c.Defs[u].Networth
	}
	return total
}

// Combatants lists unit types with a non-zero attack or defense, in canonical order.
func (c UnitCatalog) Combatants() []model.UnitType {
	var out []model.UnitType
	for _, u := range model.UnitTypes {
		if d := c.Defs[u]; d.Attack > 0 || d.Defense > 0 {
			out = append(out, u)
		}
	}
	return out
}
