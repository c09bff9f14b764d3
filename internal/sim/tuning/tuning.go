package tuning

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"empires.ai/internal/sim/formulas"
	"empires.ai/internal/sim/model"
)

type Tuning struct {
	ProtectionTurns int `yaml:"protection_turns" json:"protection_turns"`

	Population    PopulationTuning    `yaml:"population" json:"population"`
	Sectors       SectorTuning        `yaml:"sectors" json:"sectors"`
	Effectiveness EffectivenessTuning `yaml:"effectiveness" json:"effectiveness"`
	Combat        CombatTuning        `yaml:"combat" json:"combat"`
	Economy       EconomyTuning       `yaml:"economy" json:"economy"`
	Decisions     DecisionTuning      `yaml:"decisions" json:"decisions"`
	Difficulty    DifficultyTuning    `yaml:"difficulty" json:"difficulty"`
	Victory       VictoryTuning       `yaml:"victory" json:"victory"`
	Networth      NetworthTuning      `yaml:"networth" json:"networth"`
	Agents        AgentTuning         `yaml:"agents" json:"agents"`
}

type PopulationTuning struct {
	FoodPerCapita        float64 `yaml:"food_per_capita" json:"food_per_capita"`
	GrowthRate           float64 `yaml:"growth_rate" json:"growth_rate"`
	StarvationBaseRate   float64 `yaml:"starvation_base_rate" json:"starvation_base_rate"`
	StarvationMaxDeficit float64 `yaml:"starvation_max_deficit" json:"starvation_max_deficit"`
	Minimum              int64   `yaml:"minimum" json:"minimum"`
	BaseCap              int64   `yaml:"base_cap" json:"base_cap"`
}

type SectorTuning struct {
	CostGrowth        float64 `yaml:"cost_growth" json:"cost_growth"`
	ReleaseRefundRate float64 `yaml:"release_refund_rate" json:"release_refund_rate"`
	Maintenance       int64   `yaml:"maintenance" json:"maintenance"`
}

type EffectivenessTuning struct {
	Max            float64 `yaml:"max" json:"max"`
	VictoryGainMin float64 `yaml:"victory_gain_min" json:"victory_gain_min"`
	VictoryGainMax float64 `yaml:"victory_gain_max" json:"victory_gain_max"`
	DefeatPenalty  float64 `yaml:"defeat_penalty" json:"defeat_penalty"`
	UnpaidPenalty  float64 `yaml:"unpaid_penalty" json:"unpaid_penalty"`
	Recovery       float64 `yaml:"recovery" json:"recovery"`
}

type CombatTuning struct {
	BaseLossRate           float64 `yaml:"base_loss_rate" json:"base_loss_rate"`
	MaxLossRate            float64 `yaml:"max_loss_rate" json:"max_loss_rate"`
	MinLossRate            float64 `yaml:"min_loss_rate" json:"min_loss_rate"`
	BadAttackRatio         float64 `yaml:"bad_attack_ratio" json:"bad_attack_ratio"`
	OverwhelmingForceRatio float64 `yaml:"overwhelming_force_ratio" json:"overwhelming_force_ratio"`
	VarianceMin            float64 `yaml:"variance_min" json:"variance_min"`
	VarianceMax            float64 `yaml:"variance_max" json:"variance_max"`
	RetreatLossRate        float64 `yaml:"retreat_loss_rate" json:"retreat_loss_rate"`

	// RetreatThreshold: an attacker whose effective power is below this share of
	// the defender's retreats instead of fighting.
	RetreatThreshold  float64 `yaml:"retreat_threshold" json:"retreat_threshold"`
	SectorCaptureRate float64 `yaml:"sector_capture_rate" json:"sector_capture_rate"`
}

type EconomyTuning struct {
	TaxPerCapita float64                       `yaml:"tax_per_capita" json:"tax_per_capita"`
	CivilIncome  map[model.CivilStatus]float64 `yaml:"civil_income" json:"civil_income"`
}

type DecisionWeights struct {
	BuildUnits float64 `yaml:"build_units" json:"build_units"`
	BuySector  float64 `yaml:"buy_sector" json:"buy_sector"`
	Attack     float64 `yaml:"attack" json:"attack"`
	Diplomacy  float64 `yaml:"diplomacy" json:"diplomacy"`
	Trade      float64 `yaml:"trade" json:"trade"`
	DoNothing  float64 `yaml:"do_nothing" json:"do_nothing"`
}

func (w DecisionWeights) Sum() float64 {
	return w.BuildUnits + w.BuySector + w.Attack + w.Diplomacy + w.Trade + w.DoNothing
}

type DecisionTuning struct {
	Weights DecisionWeights `yaml:"weights" json:"weights"`

	// BuildSpendFraction is the share of credits a build decision spends.
	BuildSpendFraction   float64 `yaml:"build_spend_fraction" json:"build_spend_fraction"`
	AttackCommitFraction float64 `yaml:"attack_commit_fraction" json:"attack_commit_fraction"`

	// FoodReserveTurns: below this many turns of food, sector purchases buy food.
	FoodReserveTurns int64 `yaml:"food_reserve_turns" json:"food_reserve_turns"`
}

type DifficultyTuning struct {
	EasySuboptimalChance   float64 `yaml:"easy_suboptimal_chance" json:"easy_suboptimal_chance"`
	HardWeakestChance      float64 `yaml:"hard_weakest_chance" json:"hard_weakest_chance"`
	NightmareWeakestChance float64 `yaml:"nightmare_weakest_chance" json:"nightmare_weakest_chance"`
	NightmareResourceBonus float64 `yaml:"nightmare_resource_bonus" json:"nightmare_resource_bonus"`
}

type VictoryTuning struct {
	TurnLimit        int     `yaml:"turn_limit" json:"turn_limit"`
	EconomicNetworth int64   `yaml:"economic_networth" json:"economic_networth"`
	ConquestShare    float64 `yaml:"conquest_share" json:"conquest_share"`
}

type NetworthTuning struct {
	PerSector         int64 `yaml:"per_sector" json:"per_sector"`
	PopulationDivisor int64 `yaml:"population_divisor" json:"population_divisor"`
	CreditsDivisor    int64 `yaml:"credits_divisor" json:"credits_divisor"`
}

type AgentTuning struct {
	// Workers bounds phase-A concurrency; 0 means GOMAXPROCS.
	Workers       int `yaml:"workers" json:"workers"`
	AgentBudgetMS int `yaml:"agent_budget_ms" json:"agent_budget_ms"`
	PhaseBudgetMS int `yaml:"phase_budget_ms" json:"phase_budget_ms"`
}

func Defaults() Tuning {
	return Tuning{
		ProtectionTurns: 20,
		Population: PopulationTuning{
			FoodPerCapita:        0.05,
			GrowthRate:           0.02,
			StarvationBaseRate:   0.05,
			StarvationMaxDeficit: 2.0,
			Minimum:              100,
			BaseCap:              1000,
		},
		Sectors: SectorTuning{
			CostGrowth:        0.05,
			ReleaseRefundRate: 0.5,
			Maintenance:       100,
		},
		Effectiveness: EffectivenessTuning{
			Max:            100,
			VictoryGainMin: 5,
			VictoryGainMax: 10,
			DefeatPenalty:  5,
			UnpaidPenalty:  10,
			Recovery:       2,
		},
		Combat: CombatTuning{
			BaseLossRate:           0.25,
			MaxLossRate:            0.35,
			MinLossRate:            0.15,
			BadAttackRatio:         2.0,
			OverwhelmingForceRatio: 0.5,
			VarianceMin:            0.8,
			VarianceMax:            1.2,
			RetreatLossRate:        0.15,
			RetreatThreshold:       0.5,
			SectorCaptureRate:      0.1,
		},
		Economy: EconomyTuning{
			TaxPerCapita: 0.1,
			CivilIncome: map[model.CivilStatus]float64{
				model.CivilEcstatic:  1.2,
				model.CivilHappy:     1.1,
				model.CivilContent:   1.0,
				model.CivilNeutral:   0.95,
				model.CivilUnhappy:   0.9,
				model.CivilAngry:     0.8,
				model.CivilRioting:   0.6,
				model.CivilRevolting: 0.4,
			},
		},
		Decisions: DecisionTuning{
			Weights: DecisionWeights{
				BuildUnits: 0.35,
				BuySector:  0.20,
				Attack:     0.15,
				Diplomacy:  0.10,
				Trade:      0.10,
				DoNothing:  0.10,
			},
			BuildSpendFraction:   0.25,
			AttackCommitFraction: 0.5,
			FoodReserveTurns:     3,
		},
		Difficulty: DifficultyTuning{
			EasySuboptimalChance:   0.3,
			HardWeakestChance:      0.7,
			NightmareWeakestChance: 1.0,
			NightmareResourceBonus: 0.25,
		},
		Victory: VictoryTuning{
			TurnLimit:        200,
			EconomicNetworth: 250_000,
			ConquestShare:    1.0,
		},
		Networth: NetworthTuning{
			PerSector:         500,
			PopulationDivisor: 100,
			CreditsDivisor:    1000,
		},
		Agents: AgentTuning{
			Workers:       0,
			AgentBudgetMS: 60,
			PhaseBudgetMS: 1500,
		},
	}
}

// Load reads path over Defaults and validates the result.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// WeightTolerance bounds how far the decision weights may drift from 1.0.
const WeightTolerance = 1e-9

func (t Tuning) Validate() error {
	w := t.Decisions.Weights
	for name, v := range map[string]float64{
		"build_units": w.BuildUnits,
		"buy_sector":  w.BuySector,
		"attack":      w.Attack,
		"diplomacy":   w.Diplomacy,
		"trade":       w.Trade,
		"do_nothing":  w.DoNothing,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("decisions.weights.%s: negative weight %v", name, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > WeightTolerance {
		return fmt.Errorf("decisions.weights: sum to %v, want 1.0", sum)
	}
	if w.Attack >= 1 {
		return fmt.Errorf("decisions.weights.attack: must leave weight for other decisions")
	}
	if t.ProtectionTurns < 0 {
		return fmt.Errorf("protection_turns: negative")
	}
	p := t.Population
	if p.FoodPerCapita <= 0 || p.GrowthRate < 0 || p.StarvationBaseRate <= 0 || p.StarvationMaxDeficit <= 0 {
		return fmt.Errorf("population: rates must be positive")
	}
	if p.Minimum < 0 || p.BaseCap < 0 {
		return fmt.Errorf("population: negative minimum or base_cap")
	}
	if t.Sectors.CostGrowth < 0 || t.Sectors.ReleaseRefundRate < 0 || t.Sectors.ReleaseRefundRate > 1 {
		return fmt.Errorf("sectors: cost_growth/release_refund_rate out of range")
	}
	e := t.Effectiveness
	if e.Max <= 0 || e.VictoryGainMin > e.VictoryGainMax {
		return fmt.Errorf("effectiveness: invalid bounds")
	}
	c := t.Combat
	if c.MinLossRate > c.BaseLossRate || c.BaseLossRate > c.MaxLossRate || c.MinLossRate < 0 || c.MaxLossRate > 1 {
		return fmt.Errorf("combat: loss rates must satisfy 0 <= min <= base <= max <= 1")
	}
	if c.OverwhelmingForceRatio <= 0 || c.BadAttackRatio <= c.OverwhelmingForceRatio {
		return fmt.Errorf("combat: ratio thresholds out of order")
	}
	if c.VarianceMin <= 0 || c.VarianceMin > c.VarianceMax {
		return fmt.Errorf("combat: invalid variance range")
	}
	if c.SectorCaptureRate < 0 || c.SectorCaptureRate > 1 {
		return fmt.Errorf("combat: sector_capture_rate out of range")
	}
	for _, s := range model.CivilLadder {
		if m, ok := t.Economy.CivilIncome[s]; !ok || m < 0 {
			return fmt.Errorf("economy.civil_income: missing or negative multiplier for %s", s)
		}
	}
	d := t.Decisions
	if d.BuildSpendFraction <= 0 || d.BuildSpendFraction > 1 || d.AttackCommitFraction <= 0 || d.AttackCommitFraction > 1 {
		return fmt.Errorf("decisions: spend/commit fractions must be in (0,1]")
	}
	for name, v := range map[string]float64{
		"easy_suboptimal_chance":   t.Difficulty.EasySuboptimalChance,
		"hard_weakest_chance":      t.Difficulty.HardWeakestChance,
		"nightmare_weakest_chance": t.Difficulty.NightmareWeakestChance,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("difficulty.%s: must be in [0,1]", name)
		}
	}
	if t.Difficulty.NightmareResourceBonus < 0 {
		return fmt.Errorf("difficulty.nightmare_resource_bonus: negative")
	}
	if t.Victory.TurnLimit <= 0 || t.Victory.ConquestShare <= 0 || t.Victory.ConquestShare > 1 {
		return fmt.Errorf("victory: turn_limit and conquest_share must be positive")
	}
	if t.Networth.PopulationDivisor <= 0 || t.Networth.CreditsDivisor <= 0 {
		return fmt.Errorf("networth: divisors must be positive")
	}
	if t.Agents.Workers < 0 {
		return fmt.Errorf("agents.workers: negative")
	}
	return nil
}

func (t Tuning) Formulas() formulas.Params {
	return formulas.Params{
		FoodPerCapita:        t.Population.FoodPerCapita,
		GrowthRate:           t.Population.GrowthRate,
		StarvationBaseRate:   t.Population.StarvationBaseRate,
		StarvationMaxDeficit: t.Population.StarvationMaxDeficit,
		MinPopulation:        t.Population.Minimum,

		SectorCostGrowth:  t.Sectors.CostGrowth,
		ReleaseRefundRate: t.Sectors.ReleaseRefundRate,

		EffectivenessMax:       t.Effectiveness.Max,
		VictoryGainMin:         t.Effectiveness.VictoryGainMin,
		VictoryGainMax:         t.Effectiveness.VictoryGainMax,
		DefeatPenalty:          t.Effectiveness.DefeatPenalty,
		UnpaidPenalty:          t.Effectiveness.UnpaidPenalty,
		RecoveryPerTurn:        t.Effectiveness.Recovery,
		CombatBaseLossRate:     t.Combat.BaseLossRate,
		CombatMaxLossRate:      t.Combat.MaxLossRate,
		CombatMinLossRate:      t.Combat.MinLossRate,
		BadAttackRatio:         t.Combat.BadAttackRatio,
		OverwhelmingForceRatio: t.Combat.OverwhelmingForceRatio,
		VarianceMin:            t.Combat.VarianceMin,
		VarianceMax:            t.Combat.VarianceMax,
		RetreatLossRate:        t.Combat.RetreatLossRate,
	}
}
