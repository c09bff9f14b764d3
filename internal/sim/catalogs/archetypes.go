package catalogs

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"empires.ai/internal/sim/model"
)

// DefaultArchetype is used for empires whose archetype is empty or unknown.
const DefaultArchetype = "balanced"

// BiasEnv is the read-only view archetype expressions are evaluated against.
type BiasEnv struct {
	Turn          int
	Credits       int64
	Food          int64
	Ore           int64
	Petroleum     int64
	Research      int64
	Population    int64
	Sectors       int
	Military      int64
	Effectiveness float64
	Networth      int64

	// Rank is 1 for the highest networth among active empires.
	Rank      int
	Rivals    int
	FoodTurns float64
	Protected bool
	Tier      int
}

type ArchetypeDef struct {
	ID          string                      `json:"id"`
	Description string                      `json:"description,omitempty"`
	UnitBias    map[model.UnitType]string   `json:"unit_bias"`
	SectorBias  map[model.SectorType]string `json:"sector_bias"`

	// AttackCommit evaluates to the share of forces committed to an attack.
	AttackCommit string `json:"attack_commit,omitempty"`
}

type ArchetypeCatalog struct {
	ByID   map[string]*Archetype
	Digest string
}

type Archetype struct {
	ID string

	units   []biasRule[model.UnitType]
	sectors []biasRule[model.SectorType]
	commit  *vm.Program
}

type biasRule[K ~string] struct {
	key  K
	src  string
	prog *vm.Program
}

func compileFloat(src string) (*vm.Program, error) {
	return expr.Compile(src, expr.Env(BiasEnv{}), expr.AsFloat64())
}

func runFloat(p *vm.Program, env BiasEnv) (float64, error) {
	out, err := vm.Run(p, env)
	if err != nil {
		return 0, err
	}
	switch v := out.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	}
	return 0, fmt.Errorf("expected float64, got %T", out)
}

func loadArchetypes(path string, out *ArchetypeCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = digestHex(raw)

	var defs []ArchetypeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("archetypes.json: %w", err)
	}
	out.ByID = make(map[string]*Archetype, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("archetypes.json: empty id")
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("archetypes.json: duplicate id %q", d.ID)
		}
		a, err := CompileArchetype(d)
		if err != nil {
			return fmt.Errorf("archetypes.json: %w", err)
		}
		out.ByID[d.ID] = a
	}
	if _, ok := out.ByID[DefaultArchetype]; !ok {
		return fmt.Errorf("archetypes.json: missing %q", DefaultArchetype)
	}
	return nil
}

// CompileArchetype compiles every bias expression in d. Unit and sector types
// without an expression get weight 1.
func CompileArchetype(d ArchetypeDef) (*Archetype, error) {
	a := &Archetype{ID: d.ID}
	for u := range d.UnitBias {
		if !u.Valid() {
			return nil, fmt.Errorf("%s: unknown unit type %q", d.ID, u)
		}
	}
	for t := range d.SectorBias {
		if !t.Valid() {
			return nil, fmt.Errorf("%s: unknown sector type %q", d.ID, t)
		}
	}
	for _, u := range model.UnitTypes {
		src, ok := d.UnitBias[u]
		if !ok {
			src = "1.0"
		}
		prog, err := compileFloat(src)
		if err != nil {
			return nil, fmt.Errorf("%s: unit_bias %s: %w", d.ID, u, err)
		}
		a.units = append(a.units, biasRule[model.UnitType]{key: u, src: src, prog: prog})
	}
	for _, t := range model.SectorTypes {
		src, ok := d.SectorBias[t]
		if !ok {
			src = "1.0"
		}
		prog, err := compileFloat(src)
		if err != nil {
			return nil, fmt.Errorf("%s: sector_bias %s: %w", d.ID, t, err)
		}
		a.sectors = append(a.sectors, biasRule[model.SectorType]{key: t, src: src, prog: prog})
	}
	if d.AttackCommit != "" {
		prog, err := compileFloat(d.AttackCommit)
		if err != nil {
			return nil, fmt.Errorf("%s: attack_commit: %w", d.ID, err)
		}
		a.commit = prog
	}
	return a, nil
}

// Get returns the named archetype or the default one.
func (c ArchetypeCatalog) Get(id string) *Archetype {
	if a, ok := c.ByID[id]; ok {
		return a
	}
	return c.ByID[DefaultArchetype]
}

func (c ArchetypeCatalog) IDs() []string {
	ids := make([]string, 0, len(c.ByID))
	for id := range c.ByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type Weighted[K any] struct {
	Key    K
	Weight float64
}

func evalRules[K ~string](rules []biasRule[K], env BiasEnv) ([]Weighted[K], error) {
	out := make([]Weighted[K], 0, len(rules))
	for _, r := range rules {
		w, err := runFloat(r.prog, env)
		if err != nil {
			return nil, fmt.Errorf("bias %s (%s): %w", r.key, r.src, err)
		}
		if w < 0 || w != w {
			w = 0
		}
		out = append(out, Weighted[K]{Key: r.key, Weight: w})
	}
	return out, nil
}

// UnitWeights evaluates the unit bias in canonical unit order.
func (a *Archetype) UnitWeights(env BiasEnv) ([]Weighted[model.UnitType], error) {
	return evalRules(a.units, env)
}

func (a *Archetype) SectorWeights(env BiasEnv) ([]Weighted[model.SectorType], error) {
	return evalRules(a.sectors, env)
}

// CommitFraction returns the attack commitment share, clamped to (0,1].
// fallback is used when the archetype has no expression.
func (a *Archetype) CommitFraction(env BiasEnv, fallback float64) (float64, error) {
	if a.commit == nil {
		return fallback, nil
	}
	f, err := runFloat(a.commit, env)
	if err != nil {
		return 0, fmt.Errorf("attack_commit: %w", err)
	}
	if f != f || f <= 0 {
		return fallback, nil
	}
	if f > 1 {
		f = 1
	}
	return f, nil
}

// Pick selects a key by weight using r in [0,1). All-zero weights pick the first key.
func Pick[K any](ws []Weighted[K], r float64) (K, bool) {
	var zero K
	if len(ws) == 0 {
		return zero, false
	}
	total := 0.0
	for _, w := range ws {
		total += w.Weight
	}
	if total <= 0 {
		return ws[0].Key, true
	}
	target := r * total
	acc := 0.0
	for _, w := range ws {
		if w.Weight <= 0 {
			continue
		}
		acc += w.Weight
		if target < acc {
			return w.Key, true
		}
	}
	for i := len(ws) - 1; i >= 0; i-- {
		if ws[i].Weight > 0 {
			return ws[i].Key, true
		}
	}
	return zero, false
}
