// Package formulas holds the balance math: production, population, sector
// pricing, army effectiveness and combat losses. Everything here is pure and
// safe to call from concurrent goroutines.
package formulas

import "math"

// Params carries the balance constants. Defaults matches the documented numbers.
type Params struct {
	FoodPerCapita float64
	GrowthRate    float64

	StarvationBaseRate   float64
	StarvationMaxDeficit float64
	MinPopulation        int64

	SectorCostGrowth  float64
	ReleaseRefundRate float64

	EffectivenessMax       float64
	VictoryGainMin         float64
	VictoryGainMax         float64
	DefeatPenalty          float64
	UnpaidPenalty          float64
	RecoveryPerTurn        float64
	CombatBaseLossRate     float64
	CombatMaxLossRate      float64
	CombatMinLossRate      float64
	BadAttackRatio         float64
	OverwhelmingForceRatio float64
	VarianceMin            float64
	VarianceMax            float64
	RetreatLossRate        float64
}

func Defaults() Params {
	return Params{
		FoodPerCapita: 0.05,
		GrowthRate:    0.02,

		StarvationBaseRate:   0.05,
		StarvationMaxDeficit: 2.0,
		MinPopulation:        100,

		SectorCostGrowth:  0.05,
		ReleaseRefundRate: 0.5,

		EffectivenessMax:       100,
		VictoryGainMin:         5,
		VictoryGainMax:         10,
		DefeatPenalty:          5,
		UnpaidPenalty:          10,
		RecoveryPerTurn:        2,
		CombatBaseLossRate:     0.25,
		CombatMaxLossRate:      0.35,
		CombatMinLossRate:      0.15,
		BadAttackRatio:         2.0,
		OverwhelmingForceRatio: 0.5,
		VarianceMin:            0.8,
		VarianceMax:            1.2,
		RetreatLossRate:        0.15,
	}
}

// floorEps truncates toward zero after absorbing binary representation error,
// so products such as 8000*1.45 land on 11600 rather than 11599.
func floorEps(v float64) int64 {
	if v < 0 {
		return -int64(math.Floor(-v + 1e-9))
	}
	return int64(math.Floor(v + 1e-9))
}

// Yield scales a base amount by a multiplier and floors the result.
func Yield(base int64, multiplier float64) int64 {
	if base <= 0 || multiplier <= 0 {
		return 0
	}
	return floorEps(float64(base) * multiplier)
}

func (p Params) FoodConsumption(population int64) int64 {
	if population <= 0 {
		return 0
	}
	return floorEps(float64(population) * p.FoodPerCapita)
}

// PopulationGrowth is zero at or above cap, or when the food balance is not positive.
func (p Params) PopulationGrowth(population, popCap, foodBalance int64) int64 {
	if population <= 0 || population >= popCap || foodBalance <= 0 {
		return 0
	}
	g := floorEps(float64(population) * p.GrowthRate)
	if room := popCap - population; g > room {
		g = room
	}
	return g
}

// StarvationLoss returns the (negative) population change for a food deficit.
// Any positive population with a deficit loses at least one.
func (p Params) StarvationLoss(population, foodDeficit int64) int64 {
	if population <= 0 || foodDeficit <= 0 {
		return 0
	}
	pct := p.StarvationMaxDeficit
	if consumed := p.FoodConsumption(population); consumed > 0 {
		pct = float64(foodDeficit) / float64(consumed)
		if pct > p.StarvationMaxDeficit {
			pct = p.StarvationMaxDeficit
		}
	}
	rate := p.StarvationBaseRate * (1 + pct)
	loss := floorEps(float64(population) * rate)
	if loss < 1 {
		loss = 1
	}
	if loss > population {
		loss = population
	}
	return -loss
}

// ApplyPopulationChange adds delta to population. Losses never push a
// population below the configured minimum (or below its current value if it
// already sits under the minimum).
func (p Params) ApplyPopulationChange(population, delta int64) int64 {
	next := population + delta
	if delta >= 0 {
		return next
	}
	floor := p.MinPopulation
	if population < floor {
		floor = population
	}
	if next < floor {
		next = floor
	}
	return next
}

func (p Params) SectorCost(baseCost int64, owned int) int64 {
	if baseCost <= 0 {
		return 0
	}
	if owned < 0 {
		owned = 0
	}
	return floorEps(float64(baseCost) * (1 + float64(owned)*p.SectorCostGrowth))
}

func (p Params) ReleaseRefund(currentCost int64) int64 {
	if currentCost <= 0 {
		return 0
	}
	return floorEps(float64(currentCost) * p.ReleaseRefundRate)
}
