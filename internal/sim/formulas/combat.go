package formulas

type Transition int

const (
	TransitionVictory Transition = iota + 1
	TransitionDefeat
	TransitionUnpaid
	TransitionRecovery
)

func (t Transition) String() string {
	switch t {
	case TransitionVictory:
		return "victory"
	case TransitionDefeat:
		return "defeat"
	case TransitionUnpaid:
		return "unpaid"
	case TransitionRecovery:
		return "recovery"
	}
	return "unknown"
}

// Effectiveness applies one transition. roll in [0,1) picks the victory gain
// uniformly in [VictoryGainMin, VictoryGainMax]; other transitions ignore it.
func (p Params) Effectiveness(current float64, t Transition, roll float64) float64 {
	next := current
	switch t {
	case TransitionVictory:
		next += p.VictoryGainMin + roll*(p.VictoryGainMax-p.VictoryGainMin)
	case TransitionDefeat:
		next -= p.DefeatPenalty
	case TransitionUnpaid:
		next -= p.UnpaidPenalty
	case TransitionRecovery:
		next += p.RecoveryPerTurn
	}
	return p.ClampEffectiveness(next)
}

func (p Params) ClampEffectiveness(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > p.EffectivenessMax {
		return p.EffectivenessMax
	}
	return v
}

func (p Params) CombatModifier(effectiveness float64) float64 {
	return p.ClampEffectiveness(effectiveness) / 100
}

func (p Params) EffectivePower(rawPower, effectiveness float64) float64 {
	return rawPower * p.CombatModifier(effectiveness)
}

// CombatLossRate is the loss rate for the side bringing attackPower against
// defensePower. Facing more than BadAttackRatio times your own power costs the
// maximum rate; facing less than OverwhelmingForceRatio costs the minimum.
func (p Params) CombatLossRate(attackPower, defensePower float64) float64 {
	if attackPower <= 0 {
		if defensePower <= 0 {
			return p.CombatBaseLossRate
		}
		return p.CombatMaxLossRate
	}
	ratio := defensePower / attackPower
	switch {
	case ratio > p.BadAttackRatio:
		return p.CombatMaxLossRate
	case ratio < p.OverwhelmingForceRatio:
		return p.CombatMinLossRate
	}
	return p.CombatBaseLossRate
}

// Variance maps roll in [0,1) onto [VarianceMin, VarianceMax).
func (p Params) Variance(roll float64) float64 {
	return p.VarianceMin + roll*(p.VarianceMax-p.VarianceMin)
}

// Casualties never exceeds unitCount.
func (p Params) Casualties(unitCount int64, lossRate, variance float64) int64 {
	if unitCount <= 0 || lossRate <= 0 || variance <= 0 {
		return 0
	}
	c := floorEps(float64(unitCount) * lossRate * variance)
	if c > unitCount {
		c = unitCount
	}
	if c < 0 {
		c = 0
	}
	return c
}

func (p Params) RetreatCasualties(unitCount int64) int64 {
	if unitCount <= 0 {
		return 0
	}
	return floorEps(float64(unitCount) * p.RetreatLossRate)
}
