package victory

import (
	"testing"

	"empires.ai/internal/sim/model"
	"empires.ai/internal/sim/simtest"
)

func newEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	return New(simtest.Tuning(), simtest.Catalogs(t))
}

func TestNetworth(t *testing.T) {
	v := newEvaluator(t)
	e := simtest.Empire("E00", 0)
	e.SectorCount = 4
	e.Forces = model.Forces{Soldiers: 100, HeavyCruisers: 2}
	e.Population = 10_050
	e.Resources.Credits = 12_999
	// 4*500 + 100 + 40 + 100 + 12
	if got := v.Networth(&e); got != 2_252 {
		t.Fatalf("expected 2252, got %d", got)
	}
}

func TestRankTieBreaksByCreationOrder(t *testing.T) {
	s := simtest.State(simtest.Options{Autonomous: 4})
	s.Empires[0].Networth = 10
	s.Empires[1].Networth = 30
	s.Empires[2].Networth = 30
	s.Empires[3].Networth = 30
	s.Empires[2].Seq = -1
	s.Empires[3].Eliminated = true
	got := Rank(s)
	want := []model.EmpireID{"E02", "E01", "E00"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestEvaluateOngoing(t *testing.T) {
	v := newEvaluator(t)
	s := simtest.State(simtest.Options{Autonomous: 3, Turn: 10})
	v.UpdateNetworth(s)
	if _, ok := v.Evaluate(s).(model.Ongoing); !ok {
		t.Fatalf("expected ongoing")
	}
}

func TestEvaluateLastEmpireStanding(t *testing.T) {
	v := newEvaluator(t)
	s := simtest.State(simtest.Options{Autonomous: 3, Turn: 10})
	s.Empires[0].Eliminated = true
	s.Empires[2].Eliminated = true
	got, ok := v.Evaluate(s).(model.Won)
	if !ok || got.Empire != "E01" || got.Type != model.VictoryConquest {
		t.Fatalf("expected conquest by E01, got %#v", v.Evaluate(s))
	}
}

func TestEvaluateConquestBySectors(t *testing.T) {
	v := newEvaluator(t)
	s := simtest.State(simtest.Options{Autonomous: 2, Turn: 10})
	for i := range s.Sectors {
		s.Sectors[i].Owner = "E01"
	}
	got, ok := v.Evaluate(s).(model.Won)
	if !ok || got.Empire != "E01" || got.Type != model.VictoryConquest {
		t.Fatalf("expected conquest by E01, got %#v", v.Evaluate(s))
	}
}

func TestEvaluateEconomic(t *testing.T) {
	v := newEvaluator(t)
	s := simtest.State(simtest.Options{Autonomous: 3, Turn: 10})
	s.Empires[2].Resources.Credits = 300_000_000
	v.UpdateNetworth(s)
	got, ok := v.Evaluate(s).(model.Won)
	if !ok || got.Empire != "E02" || got.Type != model.VictoryEconomic {
		t.Fatalf("expected economic win by E02, got %#v", v.Evaluate(s))
	}

	s.Features = model.Features{model.FeatureCombat}
	if _, ok := v.Evaluate(s).(model.Ongoing); !ok {
		t.Fatalf("economic victory should be disabled by feature flags")
	}
}

func TestEvaluateSurvival(t *testing.T) {
	v := newEvaluator(t)
	s := simtest.State(simtest.Options{Autonomous: 3, Turn: 200})
	s.Empires[1].Forces.Soldiers += 10
	v.UpdateNetworth(s)
	got, ok := v.Evaluate(s).(model.Won)
	if !ok || got.Empire != "E01" || got.Type != model.VictorySurvival {
		t.Fatalf("expected survival win by E01, got %#v", v.Evaluate(s))
	}
}

func TestEvaluateAllEliminated(t *testing.T) {
	v := newEvaluator(t)
	s := simtest.State(simtest.Options{Autonomous: 2})
	for i := range s.Empires {
		s.Empires[i].Eliminated = true
	}
	if _, ok := v.Evaluate(s).(model.AllEliminated); !ok {
		t.Fatalf("expected all eliminated")
	}
}

func TestEvaluateKeepsRecordedVictory(t *testing.T) {
	v := newEvaluator(t)
	s := simtest.State(simtest.Options{Autonomous: 3, Turn: 250})
	s.Victory = &model.VictoryRecord{State: model.StateWon, Type: model.VictoryEconomic, Empire: "E00", Turn: 90}
	got, ok := v.Evaluate(s).(model.Won)
	if !ok || got.Empire != "E00" || got.Type != model.VictoryEconomic {
		t.Fatalf("expected recorded victory, got %#v", v.Evaluate(s))
	}
}

func TestEconomicThresholdMustBeExceeded(t *testing.T) {
	v := newEvaluator(t)
	s := simtest.State(simtest.Options{Autonomous: 3, Turn: 10})
	limit := simtest.Tuning().Victory.EconomicNetworth
	s.Empires[1].Networth = limit
	if _, ok := v.Evaluate(s).(model.Ongoing); !ok {
		t.Fatalf("networth equal to threshold should not win, got %#v", v.Evaluate(s))
	}
	s.Empires[1].Networth = limit + 1
	got, ok := v.Evaluate(s).(model.Won)
	if !ok || got.Empire != "E01" || got.Type != model.VictoryEconomic {
		t.Fatalf("expected economic win by E01, got %#v", v.Evaluate(s))
	}
}
