// Package harness plays synthetic games offline for balance testing.
package harness

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	opensimplex "github.com/ojrac/opensimplex-go"

	"empires.ai/internal/sim/catalogs"
	"empires.ai/internal/sim/model"
	"empires.ai/internal/sim/rng"
)

// GameNamespace scopes deterministic game ids.
var GameNamespace = uuid.MustParse("6f1c7a52-8d0e-5b8a-9a57-2f6f0c3e9d41")

type GalaxyConfig struct {
	Empires int
	// Humans is how many of the empires (lowest ids first) take orders
	// instead of running autonomously.
	Humans           int
	SectorsPerEmpire int
	// Unowned sectors are spread over regions and can be bought.
	Unowned         int
	Seed            int64
	Difficulty      model.Difficulty
	ProtectionTurns int
	Features        model.Features
}

func DefaultGalaxyConfig() GalaxyConfig {
	return GalaxyConfig{
		Empires:          25,
		SectorsPerEmpire: 5,
		Unowned:          50,
		Seed:             1,
		Difficulty:       model.DifficultyNormal,
		ProtectionTurns:  20,
		Features:         append(model.Features(nil), model.DefaultFeatures...),
	}
}

// GameID derives a stable uuid v5 from the seed.
func GameID(seed int64) string {
	return uuid.NewSHA1(GameNamespace, []byte(fmt.Sprintf("seed=%d", seed))).String()
}

// Every empire starts with one of each so nobody starves or goes broke on turn 1.
var starterSectors = []model.SectorType{model.SectorFood, model.SectorCommerce}

// Generate builds a ring galaxy: one region per empire, neighbors on each
// side, plus noise-chosen chords two steps across. Sector types beyond the
// starters come from simplex noise sampled around the ring.
func Generate(cfg GalaxyConfig, cat *catalogs.Catalogs) (*model.GameState, error) {
	if cat == nil {
		return nil, errors.New("harness: nil catalogs")
	}
	if cfg.Empires < 2 {
		return nil, fmt.Errorf("harness: need at least 2 empires, got %d", cfg.Empires)
	}
	if cfg.Humans < 0 || cfg.Humans > cfg.Empires {
		return nil, fmt.Errorf("harness: humans %d out of range", cfg.Humans)
	}
	if cfg.SectorsPerEmpire < len(starterSectors) {
		cfg.SectorsPerEmpire = len(starterSectors)
	}
	if cfg.Difficulty == "" {
		cfg.Difficulty = model.DifficultyNormal
	}
	if !cfg.Difficulty.Valid() {
		return nil, fmt.Errorf("harness: unknown difficulty %q", cfg.Difficulty)
	}

	types := make([]model.SectorType, 0, len(cat.Sectors.Defs))
	for t := range cat.Sectors.Defs {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	if len(types) == 0 {
		return nil, errors.New("harness: empty sector catalog")
	}
	archetypes := cat.Archetypes.IDs()

	noise := opensimplex.NewNormalized(cfg.Seed)
	chords := opensimplex.NewNormalized(cfg.Seed + 1)
	r := rng.New(cfg.Seed)

	s := &model.GameState{
		GameID:          GameID(cfg.Seed),
		Turn:            1,
		Seed:            cfg.Seed,
		ProtectionTurns: cfg.ProtectionTurns,
		Difficulty:      cfg.Difficulty,
		Features:        append(model.Features(nil), cfg.Features...),
	}

	n := cfg.Empires
	neighbors := make([]map[int]bool, n)
	for i := range neighbors {
		neighbors[i] = map[int]bool{(i + n - 1) % n: true, (i + 1) % n: true}
	}
	if n > 4 {
		for i := 0; i < n; i++ {
			x, y := ringPoint(i, n)
			if chords.Eval2(x*3, y*3) > 0.6 {
				j := (i + 2) % n
				neighbors[i][j] = true
				neighbors[j][i] = true
			}
		}
	}
	for i := 0; i < n; i++ {
		ids := make([]int, 0, len(neighbors[i]))
		for j := range neighbors[i] {
			if j != i {
				ids = append(ids, j)
			}
		}
		sort.Ints(ids)
		reg := model.Region{ID: regionID(i)}
		for _, j := range ids {
			reg.Neighbors = append(reg.Neighbors, regionID(j))
		}
		s.Regions = append(s.Regions, reg)
	}

	addSector := func(owner model.EmpireID, region int, t model.SectorType) {
		s.Counters.NextSector++
		s.Sectors = append(s.Sectors, model.Sector{
			ID:         model.SectorID(fmt.Sprintf("S%05d", s.Counters.NextSector)),
			Owner:      owner,
			Type:       t,
			Region:     regionID(region),
			Production: cat.Sectors.Defs[t].Production,
		})
	}
	pick := func(region, k int) model.SectorType {
		x, y := ringPoint(region, n)
		v := octaveNoise(noise, x*4+float64(k)*0.37, y*4-float64(k)*0.21, 3, 1.0, 0.5)
		idx := int(v * float64(len(types)))
		if idx >= len(types) {
			idx = len(types) - 1
		}
		if idx < 0 {
			idx = 0
		}
		return types[idx]
	}

	for i := 0; i < n; i++ {
		id := model.EmpireID(fmt.Sprintf("E%02d", i))
		e := model.Empire{
			ID:            id,
			Name:          fmt.Sprintf("Empire %d", i+1),
			Seq:           i,
			Autonomous:    i >= cfg.Humans,
			Resources:     model.Resources{Credits: 100_000, Food: 5_000, Ore: 2_000, Petroleum: 1_000},
			Forces:        model.Forces{Soldiers: 1_000, Fighters: 100, Stations: 20},
			Population:    10_000,
			CivilStatus:   model.CivilContent,
			Effectiveness: 85,
		}
		if e.Autonomous && len(archetypes) > 0 {
			e.Archetype = archetypes[r.Intn(len(archetypes))]
			e.Tier = 1 + r.Intn(3)
		}
		for k := 0; k < cfg.SectorsPerEmpire; k++ {
			var t model.SectorType
			if k < len(starterSectors) {
				t = starterSectors[k]
			} else {
				t = pick(i, k)
			}
			addSector(id, i, t)
			e.PopulationCap += cat.Sectors.Defs[t].PopulationCap
		}
		s.Empires = append(s.Empires, e)
	}
	for k := 0; k < cfg.Unowned; k++ {
		region := k % n
		addSector("", region, pick(region, cfg.SectorsPerEmpire+k))
	}
	s.RecountSectors()
	return s, nil
}

func regionID(i int) string { return fmt.Sprintf("R%02d", i) }

func ringPoint(i, n int) (float64, float64) {
	a := 2 * math.Pi * float64(i) / float64(n)
	return math.Cos(a), math.Sin(a)
}

// octaveNoise layers frequencies of noise; the result stays in [0,1).
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0
	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / maxVal
}
