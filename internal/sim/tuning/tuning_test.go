package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"empires.ai/internal/sim/formulas"
	"empires.ai/internal/sim/model"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults: %v", err)
	}
}

func TestDefaultsMatchFormulaDefaults(t *testing.T) {
	if got, want := Defaults().Formulas(), formulas.Defaults(); got != want {
		t.Fatalf("formula params drifted:\n got %+v\nwant %+v", got, want)
	}
}

func TestLoadRepoConfig(t *testing.T) {
	tun, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tun.Decisions.Weights != Defaults().Decisions.Weights {
		t.Fatalf("unexpected weights: %+v", tun.Decisions.Weights)
	}
	if tun.Economy.CivilIncome[model.CivilRioting] != 0.6 {
		t.Fatalf("expected rioting multiplier 0.6, got %v", tun.Economy.CivilIncome[model.CivilRioting])
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("protection_turns: 5\nvictory:\n  turn_limit: 50\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tun, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tun.ProtectionTurns != 5 || tun.Victory.TurnLimit != 50 {
		t.Fatalf("overrides not applied: %+v", tun)
	}
	if tun.Population.FoodPerCapita != 0.05 || tun.Victory.EconomicNetworth != 250_000 {
		t.Fatalf("defaults not kept: %+v", tun)
	}
}

func TestLoadRejectsBadWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	body := "decisions:\n  weights:\n    build_units: 0.5\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "decisions.weights") {
		t.Fatalf("expected weight sum error, got %v", err)
	}
}

func TestValidateRejectsLossRateOrder(t *testing.T) {
	tun := Defaults()
	tun.Combat.MinLossRate = 0.3
	if err := tun.Validate(); err == nil {
		t.Fatalf("expected error for min loss rate above base")
	}
}
