// Package simtest builds small in-memory games for engine tests.
package simtest

import (
	"fmt"
	"path/filepath"
	"runtime"
	"testing"

	"empires.ai/internal/sim/catalogs"
	"empires.ai/internal/sim/model"
	"empires.ai/internal/sim/tuning"
)

// ConfigDir is the repository's configs directory.
func ConfigDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "configs")
}

func Catalogs(t testing.TB) *catalogs.Catalogs {
	t.Helper()
	c, err := catalogs.Load(ConfigDir())
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	return c
}

func Tuning() tuning.Tuning {
	return tuning.Defaults()
}

type Options struct {
	// Autonomous empires; one human empire (E00) is added when Human is set.
	Autonomous      int
	Human           bool
	Turn            int
	ProtectionTurns int
	SectorsEach     int
	Difficulty      model.Difficulty
	Seed            int64
}

var archetypeCycle = []string{"warlord", "diplomat", "merchant", "schemer", "turtle", "blitzkrieg", "tech_rush", "opportunist"}

var sectorCycle = []model.SectorType{
	model.SectorFood, model.SectorCommerce, model.SectorOre, model.SectorUrban,
	model.SectorPetroleum, model.SectorFood, model.SectorResearch, model.SectorTourism,
}

// Empire returns a mid-game empire with a mixed fleet.
func Empire(id model.EmpireID, seq int) model.Empire {
	return model.Empire{
		ID:            id,
		Name:          "Empire " + string(id),
		Seq:           seq,
		Autonomous:    true,
		Archetype:     catalogs.DefaultArchetype,
		Tier:          2,
		Resources:     model.Resources{Credits: 100_000, Food: 5_000, Ore: 4_000, Petroleum: 2_000, Research: 100},
		Forces:        model.Forces{Soldiers: 1_000, Fighters: 100, Stations: 50, LightCruisers: 20},
		Population:    10_000,
		PopulationCap: 50_000,
		CivilStatus:   model.CivilContent,
		Effectiveness: 80,
	}
}

// State builds a ring galaxy with one region per empire.
func State(o Options) *model.GameState {
	if o.Turn == 0 {
		o.Turn = 1
	}
	if o.SectorsEach == 0 {
		o.SectorsEach = 4
	}
	if o.Difficulty == "" {
		o.Difficulty = model.DifficultyNormal
	}
	s := &model.GameState{
		GameID:          "test",
		Turn:            o.Turn,
		Seed:            o.Seed,
		ProtectionTurns: o.ProtectionTurns,
		Difficulty:      o.Difficulty,
		Features:        append(model.Features(nil), model.DefaultFeatures...),
	}
	n := o.Autonomous
	if o.Human {
		n++
	}
	for i := 0; i < n; i++ {
		id := model.EmpireID(fmt.Sprintf("E%02d", i))
		e := Empire(id, i)
		if o.Human && i == 0 {
			e.Autonomous = false
			e.Archetype = ""
			e.Tier = 0
		} else {
			e.Archetype = archetypeCycle[i%len(archetypeCycle)]
		}
		s.Empires = append(s.Empires, e)

		region := fmt.Sprintf("R%02d", i)
		s.Regions = append(s.Regions, model.Region{
			ID:        region,
			Neighbors: []string{fmt.Sprintf("R%02d", (i+n-1)%n), fmt.Sprintf("R%02d", (i+1)%n)},
		})
		for j := 0; j < o.SectorsEach; j++ {
			s.Counters.NextSector++
			st := sectorCycle[j%len(sectorCycle)]
			s.Sectors = append(s.Sectors, model.Sector{
				ID:     model.SectorID(fmt.Sprintf("S%05d", s.Counters.NextSector)),
				Owner:  id,
				Type:   st,
				Region: region,
			})
		}
	}
	s.RecountSectors()
	return s
}

// Production fills sector production rates from the catalog.
func Production(s *model.GameState, c *catalogs.Catalogs) {
	for i := range s.Sectors {
		s.Sectors[i].Production = c.Sectors.Defs[s.Sectors[i].Type].Production
	}
}
