package decision

import (
	"errors"
	"fmt"
	"math"

	"empires.ai/internal/sim/model"
	"empires.ai/internal/sim/tuning"
)

var ErrWeightSum = errors.New("decision: weights must sum to 1.0")

const weightTolerance = 1e-9

type Weight struct {
	Kind   model.DecisionKind
	Weight float64
}

// Threshold maps a cumulative upper bound to the decision it selects.
type Threshold struct {
	Upper float64
	Kind  model.DecisionKind
}

// WeightTable is an immutable, ordered weight list. Redistribution returns a
// new table; the receiver is never modified.
type WeightTable struct {
	entries    []Weight
	thresholds []Threshold
}

func generatable(k model.DecisionKind) bool {
	switch k {
	case model.KindBuildUnits, model.KindBuySector, model.KindAttack,
		model.KindDiplomacy, model.KindTrade, model.KindDoNothing:
		return true
	}
	return false
}

func NewWeightTable(ws []Weight) (WeightTable, error) {
	seen := make(map[model.DecisionKind]bool, len(ws))
	sum := 0.0
	for _, w := range ws {
		if !generatable(w.Kind) {
			return WeightTable{}, fmt.Errorf("decision: %q cannot be generated", w.Kind)
		}
		if seen[w.Kind] {
			return WeightTable{}, fmt.Errorf("decision: duplicate weight for %q", w.Kind)
		}
		seen[w.Kind] = true
		if w.Weight < 0 || math.IsNaN(w.Weight) || math.IsInf(w.Weight, 0) {
			return WeightTable{}, fmt.Errorf("decision: invalid weight %v for %q", w.Weight, w.Kind)
		}
		sum += w.Weight
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return WeightTable{}, fmt.Errorf("%w: got %v", ErrWeightSum, sum)
	}
	return build(ws), nil
}

// FromTuning orders the configured weights in declaration order.
func FromTuning(w tuning.DecisionWeights) (WeightTable, error) {
	return NewWeightTable([]Weight{
		{Kind: model.KindBuildUnits, Weight: w.BuildUnits},
		{Kind: model.KindBuySector, Weight: w.BuySector},
		{Kind: model.KindAttack, Weight: w.Attack},
		{Kind: model.KindDiplomacy, Weight: w.Diplomacy},
		{Kind: model.KindTrade, Weight: w.Trade},
		{Kind: model.KindDoNothing, Weight: w.DoNothing},
	})
}

func build(ws []Weight) WeightTable {
	t := WeightTable{entries: append([]Weight(nil), ws...)}
	acc := 0.0
	last := -1
	for _, w := range t.entries {
		if w.Weight <= 0 {
			continue
		}
		acc += w.Weight
		t.thresholds = append(t.thresholds, Threshold{Upper: acc, Kind: w.Kind})
		last = len(t.thresholds) - 1
	}
	// Absorb rounding so every r in [0,1) selects something.
	if last >= 0 {
		t.thresholds[last].Upper = 1.0
	}
	return t
}

func (t WeightTable) Entries() []Weight {
	return append([]Weight(nil), t.entries...)
}

func (t WeightTable) Sum() float64 {
	sum := 0.0
	for _, w := range t.entries {
		sum += w.Weight
	}
	return sum
}

func (t WeightTable) Weight(k model.DecisionKind) float64 {
	for _, w := range t.entries {
		if w.Kind == k {
			return w.Weight
		}
	}
	return 0
}

// WithoutAttack zeroes the attack weight and spreads it over the other
// entries in proportion to their weights.
func (t WeightTable) WithoutAttack() WeightTable {
	a := t.Weight(model.KindAttack)
	if a == 0 {
		return t
	}
	rest := 1.0 - a
	out := make([]Weight, len(t.entries))
	for i, w := range t.entries {
		out[i] = w
		switch {
		case w.Kind == model.KindAttack:
			out[i].Weight = 0
		case rest > 0:
			out[i].Weight = w.Weight / rest
		case w.Kind == model.KindDoNothing:
			out[i].Weight = 1
		}
	}
	return build(out)
}

func (t WeightTable) Thresholds() []Threshold {
	return append([]Threshold(nil), t.thresholds...)
}

// Select walks the cumulative thresholds in declaration order.
func (t WeightTable) Select(r float64) model.DecisionKind {
	for _, th := range t.thresholds {
		if r < th.Upper {
			return th.Kind
		}
	}
	if n := len(t.thresholds); n > 0 {
		return t.thresholds[n-1].Kind
	}
	return model.KindDoNothing
}
