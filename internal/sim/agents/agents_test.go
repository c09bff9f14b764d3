package agents

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"empires.ai/internal/sim/combat"
	"empires.ai/internal/sim/decision"
	"empires.ai/internal/sim/economy"
	"empires.ai/internal/sim/model"
	"empires.ai/internal/sim/rng"
	"empires.ai/internal/sim/simtest"
)

func setup(t *testing.T) (StateExecutor, *decision.Engine) {
	t.Helper()
	tun := simtest.Tuning()
	cat := simtest.Catalogs(t)
	eng, err := decision.New(tun, cat)
	if err != nil {
		t.Fatalf("decision engine: %v", err)
	}
	return StateExecutor{Economy: economy.New(tun, cat), Combat: combat.New(tun, cat)}, eng
}

func doNothing(*model.GameState, model.EmpireID, rng.Rand) (model.Decision, error) {
	return model.DoNothing{Reason: model.ReasonSelected}, nil
}

func TestOneFailingAgentOfTwentyFive(t *testing.T) {
	x, eng := setup(t)
	s := simtest.State(simtest.Options{Autonomous: 25, Turn: 30})
	failing := ExecutorFunc(func(s *model.GameState, id model.EmpireID, d model.Decision) (Applied, error) {
		if id == "E07" {
			return Applied{}, errors.New("forced failure")
		}
		return x.Execute(s, id, d)
	})

	out, err := New(eng, failing).Run(context.Background(), s, 42)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Audits) != 25 {
		t.Fatalf("expected 25 audits, got %d", len(out.Audits))
	}
	failed := 0
	for _, a := range out.Audits {
		if a.Status != model.StatusFailed {
			continue
		}
		failed++
		if a.Empire != "E07" || a.Applied.Type != model.KindDoNothing || a.Reason != model.ReasonAgentFailed {
			t.Fatalf("unexpected failed audit %+v", a)
		}
		if a.Error != "forced failure" {
			t.Fatalf("expected error text, got %q", a.Error)
		}
	}
	if failed != 1 || out.Stats.Failed != 1 {
		t.Fatalf("expected exactly one failure, got %d (stats %d)", failed, out.Stats.Failed)
	}
	if out.Stats.Active != 25 || out.Stats.Autonomous != 25 {
		t.Fatalf("unexpected stats %+v", out.Stats)
	}
}

func TestDecidePanicIsIsolated(t *testing.T) {
	x, _ := setup(t)
	s := simtest.State(simtest.Options{Autonomous: 4, Turn: 30})
	d := DeciderFunc(func(s *model.GameState, id model.EmpireID, r rng.Rand) (model.Decision, error) {
		if id == "E02" {
			panic("boom")
		}
		return doNothing(s, id, r)
	})
	out, err := New(d, x).Run(context.Background(), s, 1)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Audits) != 4 || out.Stats.Failed != 1 {
		t.Fatalf("expected 4 audits with 1 failure, got %d/%d", len(out.Audits), out.Stats.Failed)
	}
	a := out.Audits[2]
	if a.Empire != "E02" || a.Status != model.StatusFailed || a.Error != "decide panic: boom" {
		t.Fatalf("unexpected audit %+v", a)
	}
}

func TestApplyFollowsCreationOrder(t *testing.T) {
	s := simtest.State(simtest.Options{Autonomous: 6, Turn: 30})
	for i := range s.Empires {
		s.Empires[i].Seq = len(s.Empires) - i
	}
	var seen []model.EmpireID
	rec := ExecutorFunc(func(s *model.GameState, id model.EmpireID, d model.Decision) (Applied, error) {
		seen = append(seen, id)
		return Applied{Decision: d, Status: model.StatusApplied}, nil
	})
	if _, err := New(DeciderFunc(doNothing), rec, WithWorkers(4)).Run(context.Background(), s, 7); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []model.EmpireID{"E05", "E04", "E03", "E02", "E01", "E00"}
	if !reflect.DeepEqual(seen, want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
}

func TestEliminatedEmpiresAreSkipped(t *testing.T) {
	x, eng := setup(t)
	s := simtest.State(simtest.Options{Autonomous: 3, Turn: 30})
	s.Empires[1].Eliminated = true
	out, err := New(eng, x).Run(context.Background(), s, 3)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Audits) != 2 || out.Stats.Eliminated != 1 || out.Stats.Active != 2 {
		t.Fatalf("unexpected outcome %d audits, stats %+v", len(out.Audits), out.Stats)
	}
}

func TestHumanOrders(t *testing.T) {
	x, _ := setup(t)
	s := simtest.State(simtest.Options{Autonomous: 2, Human: true, Turn: 30})
	s.Orders = []model.Order{
		{Empire: "E00", Decision: model.DecisionRecord{Type: model.KindBuildUnits, Unit: model.UnitSoldiers, Quantity: 10}},
		{Empire: "E00", Decision: model.DecisionRecord{Type: model.KindBuildUnits, Unit: "tanks", Quantity: 1}},
	}
	credits := s.Empires[0].Resources.Credits

	out, err := New(DeciderFunc(doNothing), x).Run(context.Background(), s, 5)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Stats.Orders != 2 || out.Stats.Rejected != 1 {
		t.Fatalf("unexpected stats %+v", out.Stats)
	}
	if out.Audits[0].Source != model.SourceOrder || out.Audits[0].Status != model.StatusApplied {
		t.Fatalf("expected applied order first, got %+v", out.Audits[0])
	}
	if out.Audits[1].Reason != model.ReasonInvalidOrder {
		t.Fatalf("expected invalid order, got %+v", out.Audits[1])
	}
	human := s.Empire("E00")
	if human.Resources.Credits != credits-500 || len(human.BuildQueue) != 1 {
		t.Fatalf("build order not applied: credits %d queue %v", human.Resources.Credits, human.BuildQueue)
	}
	if len(out.Audits) != 4 {
		t.Fatalf("expected 2 order audits and 2 agent audits, got %d", len(out.Audits))
	}
}

func TestHumanWithoutOrders(t *testing.T) {
	x, _ := setup(t)
	s := simtest.State(simtest.Options{Autonomous: 1, Human: true, Turn: 30})
	out, err := New(DeciderFunc(doNothing), x).Run(context.Background(), s, 5)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Audits[0].Empire != "E00" || out.Audits[0].Reason != model.ReasonNoOrder {
		t.Fatalf("expected no_order audit, got %+v", out.Audits[0])
	}
}

func TestAttackIsQueued(t *testing.T) {
	x, _ := setup(t)
	s := simtest.State(simtest.Options{Autonomous: 3, Turn: 30})
	d := DeciderFunc(func(s *model.GameState, id model.EmpireID, r rng.Rand) (model.Decision, error) {
		switch id {
		case "E00":
			return model.Attack{Target: "E01", Forces: model.Forces{Soldiers: 100}}, nil
		case "E01":
			return model.Attack{Target: "E01", Forces: model.Forces{Soldiers: 100}}, nil
		}
		return model.Trade{Offer: model.Resources{Ore: 10}, Request: model.Resources{Food: 10}}, nil
	})
	before := s.Empire("E01").Forces

	out, err := New(d, x).Run(context.Background(), s, 9)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Attacks) != 1 || out.Attacks[0].Attacker != "E00" || out.Attacks[0].Attack.Mode != model.AttackInvasion {
		t.Fatalf("expected one queued invasion, got %+v", out.Attacks)
	}
	if s.Empire("E01").Forces != before {
		t.Fatalf("queued attack must not touch forces before combat")
	}
	if out.Audits[0].Status != model.StatusQueued {
		t.Fatalf("expected queued, got %s", out.Audits[0].Status)
	}
	if out.Audits[1].Status != model.StatusRejected || out.Audits[1].Reason != model.ReasonSelfTarget {
		t.Fatalf("expected self target rejection, got %+v", out.Audits[1])
	}
	trade := out.Audits[2]
	if trade.Generated.Type != model.KindTrade || trade.Applied.Type != model.KindDoNothing || trade.Reason != model.ReasonNotImplemented {
		t.Fatalf("trade should resolve to do nothing, got %+v", trade)
	}
}

func TestResultsIndependentOfWorkerCount(t *testing.T) {
	x, eng := setup(t)
	base := simtest.State(simtest.Options{Autonomous: 20, Turn: 30, Seed: 99})

	run := func(workers int) (*model.GameState, Outcome) {
		s := base.Clone()
		out, err := New(eng, x, WithWorkers(workers)).Run(context.Background(), s, 1234)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return s, out
	}
	s1, o1 := run(1)
	s8, o8 := run(8)
	if !reflect.DeepEqual(o1.Audits, o8.Audits) || !reflect.DeepEqual(o1.Attacks, o8.Attacks) {
		t.Fatalf("audits differ between worker counts")
	}
	if !reflect.DeepEqual(s1, s8) {
		t.Fatalf("state differs between worker counts")
	}
}

type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func TestBudgetIsObservedNotEnforced(t *testing.T) {
	x, _ := setup(t)
	s := simtest.State(simtest.Options{Autonomous: 5, Turn: 30})
	clock := &stepClock{t: time.Unix(0, 0), step: 100 * time.Millisecond}
	p := New(DeciderFunc(doNothing), x, WithClock(clock.Now), WithWorkers(1), WithBudget(60*time.Millisecond, time.Second))

	out, err := p.Run(context.Background(), s, 1)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Audits) != 5 || out.Stats.Failed != 0 {
		t.Fatalf("slow agents must still be applied")
	}
	if out.Timing.AgentsOverBudget != 5 || !out.Timing.PhaseAOverBudget {
		t.Fatalf("expected every agent and the phase over budget, got %+v", out.Timing)
	}
	if out.Timing.AvgAgentMicros != 100_000 || out.Timing.MaxAgentMicros != 100_000 {
		t.Fatalf("unexpected timing %+v", out.Timing)
	}
}

func TestCanceledContext(t *testing.T) {
	x, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(DeciderFunc(doNothing), x).Run(ctx, simtest.State(simtest.Options{Autonomous: 2}), 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
