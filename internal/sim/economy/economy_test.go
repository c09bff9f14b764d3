package economy

import (
	"testing"

	"empires.ai/internal/sim/model"
	"empires.ai/internal/sim/simtest"
)

func newEconomy(t *testing.T) *Economy {
	t.Helper()
	return New(simtest.Tuning(), simtest.Catalogs(t))
}

func TestProducePaysUpkeepAndRecovers(t *testing.T) {
	x := newEconomy(t)
	s := simtest.State(simtest.Options{Autonomous: 1})
	e := &s.Empires[0]
	e.Forces = model.Forces{Soldiers: 100}
	e.Resources = model.Resources{Credits: 1_000}

	// Sectors: food, commerce, ore, urban at content (1.0).
	p := x.Produce(s, e)
	if p.Produced.Food != 200 || p.Produced.Ore != 100 {
		t.Fatalf("unexpected raw yield %+v", p.Produced)
	}
	// commerce 2000 + tax floor(10000*0.1)=1000
	if p.Produced.Credits != 3_000 {
		t.Fatalf("expected 3000 credits produced, got %d", p.Produced.Credits)
	}
	// 4 sectors * 100 + 100 soldiers * 1
	if p.Maintenance != 500 || !p.MaintenancePaid {
		t.Fatalf("expected paid upkeep of 500, got %+v", p)
	}
	if e.Resources.Credits != 3_500 {
		t.Fatalf("expected 3500 credits, got %d", e.Resources.Credits)
	}
	if e.Effectiveness != 82 {
		t.Fatalf("expected recovery to 82, got %v", e.Effectiveness)
	}
	// base 1000 + 3*2000 + urban 10000
	if e.PopulationCap != 17_000 {
		t.Fatalf("expected cap 17000, got %d", e.PopulationCap)
	}
}

func TestProduceUnpaidUpkeep(t *testing.T) {
	x := newEconomy(t)
	s := simtest.State(simtest.Options{Autonomous: 1})
	e := &s.Empires[0]
	e.Forces = model.Forces{HeavyCruisers: 1_000}
	e.Resources = model.Resources{}

	p := x.Produce(s, e)
	if p.MaintenancePaid {
		t.Fatalf("upkeep should not be paid")
	}
	if e.Resources.Credits != 0 {
		t.Fatalf("credits should be zeroed, got %d", e.Resources.Credits)
	}
	if e.Effectiveness != 70 {
		t.Fatalf("expected 70 after unpaid, got %v", e.Effectiveness)
	}
	if e.CivilStatus != model.CivilNeutral {
		t.Fatalf("expected civil status to worsen, got %s", e.CivilStatus)
	}
}

func TestNightmareBonusOnlyForAutonomous(t *testing.T) {
	x := newEconomy(t)
	s := simtest.State(simtest.Options{Autonomous: 1, Human: true, Difficulty: model.DifficultyNightmare})
	human, bot := &s.Empires[0], &s.Empires[1]
	if m := x.IncomeMultiplier(s, human); m != 1 {
		t.Fatalf("human should not get a bonus, got %v", m)
	}
	if m := x.IncomeMultiplier(s, bot); m != 1.25 {
		t.Fatalf("expected 1.25, got %v", m)
	}
}

func TestGrowWithSurplus(t *testing.T) {
	x := newEconomy(t)
	s := simtest.State(simtest.Options{Autonomous: 1})
	e := &s.Empires[0]
	e.CivilStatus = model.CivilUnhappy
	p := x.Grow(s, e, true)
	if p.Consumed != 500 || p.Starved {
		t.Fatalf("unexpected report %+v", p)
	}
	if e.Population != 10_200 || e.Resources.Food != 4_500 {
		t.Fatalf("expected 10200 population and 4500 food, got %d/%d", e.Population, e.Resources.Food)
	}
	if e.CivilStatus != model.CivilNeutral {
		t.Fatalf("expected civil status to improve, got %s", e.CivilStatus)
	}
}

func TestGrowStarvation(t *testing.T) {
	x := newEconomy(t)
	s := simtest.State(simtest.Options{Autonomous: 1})
	e := &s.Empires[0]
	e.Resources.Food = 0
	p := x.Grow(s, e, true)
	if !p.Starved || p.Deficit != 500 {
		t.Fatalf("unexpected report %+v", p)
	}
	if e.Population != 9_000 {
		t.Fatalf("expected 9000 after starvation, got %d", e.Population)
	}

	e.Population = 105
	e.Resources.Food = 0
	x.Grow(s, e, false)
	if e.Population != 100 {
		t.Fatalf("expected population clamped at 100, got %d", e.Population)
	}
	if !e.Resources.NonNegative() {
		t.Fatalf("resources went negative: %+v", e.Resources)
	}
}

func TestBuildQueue(t *testing.T) {
	x := newEconomy(t)
	s := simtest.State(simtest.Options{Autonomous: 1})
	e := &s.Empires[0]
	e.Forces = model.Forces{}
	before := e.Resources

	delivered, reason := x.QueueBuild(s, e, model.UnitHeavyCruisers, 2)
	if delivered || reason != "" {
		t.Fatalf("expected queued order, got delivered=%v reason=%q", delivered, reason)
	}
	if e.Resources.Credits != before.Credits-3_000 || e.Resources.Ore != before.Ore-300 {
		t.Fatalf("cost not paid: %+v", e.Resources)
	}
	for turn := 1; turn <= 2; turn++ {
		if done := x.AdvanceBuilds(e); len(done) != 0 {
			t.Fatalf("turn %d: delivered early %+v", turn, done)
		}
	}
	done := x.AdvanceBuilds(e)
	if len(done) != 1 || e.Forces.HeavyCruisers != 2 || e.BuildQueue != nil {
		t.Fatalf("expected delivery on third tick, got %+v forces %+v", done, e.Forces)
	}

	if _, reason := x.QueueBuild(s, e, model.UnitCarriers, 1_000_000); reason != model.ReasonInsufficientFunds {
		t.Fatalf("expected insufficient funds, got %q", reason)
	}
	if _, reason := x.QueueBuild(s, e, model.UnitSoldiers, 0); reason != model.ReasonInvalidQuantity {
		t.Fatalf("expected invalid quantity, got %q", reason)
	}
}

func TestBuildWithoutQueueDeliversImmediately(t *testing.T) {
	x := newEconomy(t)
	s := simtest.State(simtest.Options{Autonomous: 1})
	s.Features = model.Features{model.FeatureCombat}
	e := &s.Empires[0]
	e.Forces = model.Forces{}
	delivered, reason := x.QueueBuild(s, e, model.UnitStations, 3)
	if !delivered || reason != "" || e.Forces.Stations != 3 {
		t.Fatalf("expected immediate delivery, got %v %q %+v", delivered, reason, e.Forces)
	}
}

func TestBuyAndReleaseSector(t *testing.T) {
	x := newEconomy(t)
	s := simtest.State(simtest.Options{Autonomous: 1, SectorsEach: 9})
	e := &s.Empires[0]
	e.Resources.Credits = 20_000

	if got := x.SectorPrice(e, model.SectorFood); got != 11_600 {
		t.Fatalf("expected price 11600, got %d", got)
	}
	id, reason := x.BuySector(s, e, model.SectorFood)
	if reason != "" {
		t.Fatalf("buy rejected: %s", reason)
	}
	if e.SectorCount != 10 || e.Resources.Credits != 8_400 {
		t.Fatalf("expected 10 sectors and 8400 credits, got %d/%d", e.SectorCount, e.Resources.Credits)
	}
	if id != "S00010" {
		t.Fatalf("expected next sector id S00010, got %s", id)
	}
	if _, reason := x.BuySector(s, e, model.SectorFood); reason != model.ReasonInsufficientFunds {
		t.Fatalf("expected insufficient funds, got %q", reason)
	}

	refund, reason := x.ReleaseSector(s, e, id)
	if reason != "" || refund != 5_800 {
		t.Fatalf("expected refund 5800, got %d (%s)", refund, reason)
	}
	if e.SectorCount != 9 || len(s.SectorsOf(e.ID)) != 9 {
		t.Fatalf("sector not removed")
	}
	if _, reason := x.ReleaseSector(s, e, id); reason != model.ReasonUnknownSector {
		t.Fatalf("expected unknown sector, got %q", reason)
	}
}

func TestReleaseLastSectorRejected(t *testing.T) {
	x := newEconomy(t)
	s := simtest.State(simtest.Options{Autonomous: 2, SectorsEach: 1})
	e := &s.Empires[0]
	if _, reason := x.ReleaseSector(s, e, s.Sectors[0].ID); reason != model.ReasonLastSector {
		t.Fatalf("expected last sector, got %q", reason)
	}
	if _, reason := x.ReleaseSector(s, e, s.Sectors[1].ID); reason != model.ReasonNotOwner {
		t.Fatalf("expected not owner, got %q", reason)
	}
}
