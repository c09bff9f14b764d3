package agents

import (
	"fmt"

	"empires.ai/internal/sim/combat"
	"empires.ai/internal/sim/economy"
	"empires.ai/internal/sim/model"
)

// Applied is what executing one decision did to the live state.
type Applied struct {
	Decision model.Decision
	Status   model.AuditStatus
	Reason   string
	// Attack is set when an attack passed validation and waits for the combat phase.
	Attack *QueuedAttack
	Events []model.Event
}

type QueuedAttack struct {
	Attacker model.EmpireID
	Attack   model.Attack
}

// Executor applies one decision against the mutable game state. Phase B calls
// it from a single goroutine.
type Executor interface {
	Execute(s *model.GameState, id model.EmpireID, d model.Decision) (Applied, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(s *model.GameState, id model.EmpireID, d model.Decision) (Applied, error)

func (f ExecutorFunc) Execute(s *model.GameState, id model.EmpireID, d model.Decision) (Applied, error) {
	return f(s, id, d)
}

// StateExecutor applies decisions through the economy and combat rules.
type StateExecutor struct {
	Economy *economy.Economy
	Combat  *combat.Resolver
}

func rejected(d model.Decision, reason string) Applied {
	return Applied{Decision: d, Status: model.StatusRejected, Reason: reason}
}

func (x StateExecutor) Execute(s *model.GameState, id model.EmpireID, d model.Decision) (Applied, error) {
	e := s.Empire(id)
	if e == nil {
		return Applied{}, fmt.Errorf("execute: unknown empire %q", id)
	}
	if e.Eliminated {
		return Applied{}, fmt.Errorf("execute: empire %q is eliminated", id)
	}

	switch v := d.(type) {
	case model.BuildUnits:
		if _, reason := x.Economy.QueueBuild(s, e, v.Unit, v.Quantity); reason != "" {
			return rejected(d, reason), nil
		}
		return Applied{Decision: d, Status: model.StatusApplied}, nil

	case model.BuySector:
		sid, reason := x.Economy.BuySector(s, e, v.Type)
		if reason != "" {
			return rejected(d, reason), nil
		}
		return Applied{
			Decision: d,
			Status:   model.StatusApplied,
			Events:   []model.Event{{Kind: model.EventSectorBought, Empire: id, Sector: sid, Detail: string(v.Type)}},
		}, nil

	case model.ReleaseSector:
		refund, reason := x.Economy.ReleaseSector(s, e, v.Sector)
		if reason != "" {
			return rejected(d, reason), nil
		}
		return Applied{
			Decision: d,
			Status:   model.StatusApplied,
			Events:   []model.Event{{Kind: model.EventSectorReleased, Empire: id, Sector: v.Sector, Detail: fmt.Sprintf("refund=%d", refund)}},
		}, nil

	case model.Attack:
		if v.Mode == "" {
			v.Mode = model.AttackInvasion
		}
		if code := x.Combat.Validate(s, id, v); code != "" {
			return rejected(v, code), nil
		}
		return Applied{
			Decision: v,
			Status:   model.StatusQueued,
			Attack:   &QueuedAttack{Attacker: id, Attack: v},
		}, nil

	case model.Diplomacy, model.Trade:
		return Applied{
			Decision: model.DoNothing{Reason: model.ReasonNotImplemented},
			Status:   model.StatusApplied,
			Reason:   model.ReasonNotImplemented,
		}, nil

	case model.DoNothing:
		return Applied{Decision: d, Status: model.StatusApplied, Reason: v.Reason}, nil
	}
	return Applied{}, fmt.Errorf("execute: unhandled decision %T", d)
}
