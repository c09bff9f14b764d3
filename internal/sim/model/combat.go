package model

import "fmt"

type OutcomeKind string

const (
	OutcomeWon       OutcomeKind = "won"
	OutcomeLost      OutcomeKind = "lost"
	OutcomeRetreated OutcomeKind = "retreated"
	OutcomeRejected  OutcomeKind = "rejected"
)

type AttackOutcome interface {
	Outcome() OutcomeKind
	isOutcome()
}

type EffectivenessChange struct {
	Before float64 `json:"before"`
	After  float64 `json:"after"`
}

// Battle holds what every fought (non-rejected) attack reports.
type Battle struct {
	AttackerLosses Forces
	DefenderLosses Forces
	AttackPower    float64
	DefensePower   float64

	AttackerEffectiveness EffectivenessChange
	DefenderEffectiveness EffectivenessChange
}

type AttackWon struct {
	Battle
	Captured           []SectorID
	DefenderEliminated bool
}

type AttackLost struct {
	Battle
}

type AttackRetreated struct {
	Battle
}

type AttackRejected struct {
	Code string
}

func (AttackWon) Outcome() OutcomeKind       { return OutcomeWon }
func (AttackLost) Outcome() OutcomeKind      { return OutcomeLost }
func (AttackRetreated) Outcome() OutcomeKind { return OutcomeRetreated }
func (AttackRejected) Outcome() OutcomeKind  { return OutcomeRejected }

func (AttackWon) isOutcome()       {}
func (AttackLost) isOutcome()      {}
func (AttackRetreated) isOutcome() {}
func (AttackRejected) isOutcome()  {}

// AttackRecord is the append-only audit row for one attack.
type AttackRecord struct {
	Attacker  EmpireID    `json:"attacker"`
	Defender  EmpireID    `json:"defender"`
	Mode      AttackMode  `json:"mode"`
	Committed Forces      `json:"committed"`
	Outcome   OutcomeKind `json:"outcome"`
	Reason    string      `json:"reason,omitempty"`

	AttackerLosses Forces  `json:"attacker_losses"`
	DefenderLosses Forces  `json:"defender_losses"`
	AttackPower    float64 `json:"attack_power"`
	DefensePower   float64 `json:"defense_power"`

	AttackerEffectiveness EffectivenessChange `json:"attacker_effectiveness"`
	DefenderEffectiveness EffectivenessChange `json:"defender_effectiveness"`

	SectorCaptured     bool       `json:"sector_captured"`
	CapturedSectors    []SectorID `json:"captured_sectors,omitempty"`
	DefenderEliminated bool       `json:"defender_eliminated"`
}

func NewAttackRecord(attacker, defender EmpireID, mode AttackMode, committed Forces, out AttackOutcome) AttackRecord {
	rec := AttackRecord{
		Attacker:  attacker,
		Defender:  defender,
		Mode:      mode,
		Committed: committed,
	}
	applyBattle := func(b Battle) {
		rec.AttackerLosses = b.AttackerLosses
		rec.DefenderLosses = b.DefenderLosses
		rec.AttackPower = b.AttackPower
		rec.DefensePower = b.DefensePower
		rec.AttackerEffectiveness = b.AttackerEffectiveness
		rec.DefenderEffectiveness = b.DefenderEffectiveness
	}
	switch v := out.(type) {
	case AttackWon:
		applyBattle(v.Battle)
		rec.Outcome = OutcomeWon
		rec.SectorCaptured = len(v.Captured) > 0
		rec.CapturedSectors = append([]SectorID(nil), v.Captured...)
		rec.DefenderEliminated = v.DefenderEliminated
	case AttackLost:
		applyBattle(v.Battle)
		rec.Outcome = OutcomeLost
	case AttackRetreated:
		applyBattle(v.Battle)
		rec.Outcome = OutcomeRetreated
	case AttackRejected:
		rec.Outcome = OutcomeRejected
		rec.Reason = v.Code
	default:
		panic(fmt.Sprintf("model: unhandled attack outcome %T", out))
	}
	return rec
}
