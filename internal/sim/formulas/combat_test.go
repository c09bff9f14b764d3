package formulas

import "testing"

func TestEffectivenessTransitions(t *testing.T) {
	p := Defaults()
	if got := p.Effectiveness(80, TransitionDefeat, 0); got != 75 {
		t.Fatalf("defeat: expected 75, got %v", got)
	}
	if got := p.Effectiveness(80, TransitionRecovery, 0); got != 82 {
		t.Fatalf("recovery: expected 82, got %v", got)
	}
	if got := p.Effectiveness(99, TransitionRecovery, 0); got != 100 {
		t.Fatalf("recovery clamp: expected 100, got %v", got)
	}
	if got := p.Effectiveness(5, TransitionUnpaid, 0); got != 0 {
		t.Fatalf("unpaid clamp: expected 0, got %v", got)
	}
	if got := p.Effectiveness(50, TransitionVictory, 0); got != 55 {
		t.Fatalf("victory low roll: expected 55, got %v", got)
	}
	if got := p.Effectiveness(50, TransitionVictory, 0.5); got != 57.5 {
		t.Fatalf("victory mid roll: expected 57.5, got %v", got)
	}
}

func TestEffectivenessAlwaysInRange(t *testing.T) {
	p := Defaults()
	transitions := []Transition{TransitionVictory, TransitionDefeat, TransitionUnpaid, TransitionRecovery}
	for start := -10.0; start <= 110; start += 0.5 {
		for _, tr := range transitions {
			for _, roll := range []float64{0, 0.25, 0.999} {
				got := p.Effectiveness(start, tr, roll)
				if got < 0 || got > 100 {
					t.Fatalf("start=%v %s roll=%v: %v out of range", start, tr, roll, got)
				}
			}
		}
	}
}

func TestCombatLossRate(t *testing.T) {
	p := Defaults()
	if got := p.CombatLossRate(100, 250); got != 0.35 {
		t.Fatalf("bad attack: expected 0.35, got %v", got)
	}
	if got := p.CombatLossRate(100, 40); got != 0.15 {
		t.Fatalf("overwhelming force: expected 0.15, got %v", got)
	}
	if got := p.CombatLossRate(100, 100); got != 0.25 {
		t.Fatalf("base: expected 0.25, got %v", got)
	}
	if got := p.CombatLossRate(0, 10); got != 0.35 {
		t.Fatalf("no attack power: expected 0.35, got %v", got)
	}
}

func TestCasualtiesNeverExceedUnits(t *testing.T) {
	p := Defaults()
	for units := int64(0); units < 300; units += 7 {
		for _, rate := range []float64{0.15, 0.25, 0.35, 1.5} {
			for _, roll := range []float64{0, 0.5, 0.9999} {
				c := p.Casualties(units, rate, p.Variance(roll))
				if c < 0 || c > units {
					t.Fatalf("units=%d rate=%v roll=%v: casualties %d", units, rate, roll, c)
				}
			}
		}
	}
	if got := p.Casualties(1000, 0.25, 1.0); got != 250 {
		t.Fatalf("expected 250, got %d", got)
	}
}

func TestRetreatCasualties(t *testing.T) {
	p := Defaults()
	if got := p.RetreatCasualties(1000); got != 150 {
		t.Fatalf("expected 150, got %d", got)
	}
	if got := p.RetreatCasualties(6); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestVarianceRange(t *testing.T) {
	p := Defaults()
	if got := p.Variance(0); got != 0.8 {
		t.Fatalf("expected 0.8, got %v", got)
	}
	if got := p.Variance(0.9999999); got >= 1.2 || got < 1.19 {
		t.Fatalf("expected just under 1.2, got %v", got)
	}
}
