package model

import "fmt"

type DecisionKind string

const (
	KindBuildUnits    DecisionKind = "build_units"
	KindBuySector     DecisionKind = "buy_sector"
	KindAttack        DecisionKind = "attack"
	KindDiplomacy     DecisionKind = "diplomacy"
	KindTrade         DecisionKind = "trade"
	KindDoNothing     DecisionKind = "do_nothing"
	KindReleaseSector DecisionKind = "release_sector"
)

// Decision is a closed set of variants; the unexported method keeps
// implementations inside this package so type switches stay exhaustive.
type Decision interface {
	Kind() DecisionKind
	isDecision()
}

type BuildUnits struct {
	Unit     UnitType
	Quantity int64
}

type BuySector struct {
	Type SectorType
}

type AttackMode string

const (
	AttackInvasion AttackMode = "invasion"
	AttackRaid     AttackMode = "raid"
)

type Attack struct {
	Target EmpireID
	Forces Forces
	Mode   AttackMode
}

// Diplomacy is a placeholder; execution resolves it to DoNothing.
type Diplomacy struct {
	Target   EmpireID
	Proposal string
}

// Trade is a placeholder; execution resolves it to DoNothing.
type Trade struct {
	Offer   Resources
	Request Resources
}

type DoNothing struct {
	Reason string
}

// ReleaseSector is only issued through player orders.
type ReleaseSector struct {
	Sector SectorID
}

func (BuildUnits) Kind() DecisionKind    { return KindBuildUnits }
func (BuySector) Kind() DecisionKind     { return KindBuySector }
func (Attack) Kind() DecisionKind        { return KindAttack }
func (Diplomacy) Kind() DecisionKind     { return KindDiplomacy }
func (Trade) Kind() DecisionKind         { return KindTrade }
func (DoNothing) Kind() DecisionKind     { return KindDoNothing }
func (ReleaseSector) Kind() DecisionKind { return KindReleaseSector }

func (BuildUnits) isDecision()    {}
func (BuySector) isDecision()     {}
func (Attack) isDecision()        {}
func (Diplomacy) isDecision()     {}
func (Trade) isDecision()         {}
func (DoNothing) isDecision()     {}
func (ReleaseSector) isDecision() {}

// DecisionRecord is the flat wire form of a Decision.
type DecisionRecord struct {
	Type       DecisionKind `json:"type"`
	Unit       UnitType     `json:"unit,omitempty"`
	Quantity   int64        `json:"quantity,omitempty"`
	SectorType SectorType   `json:"sector_type,omitempty"`
	Sector     SectorID     `json:"sector,omitempty"`
	Target     EmpireID     `json:"target,omitempty"`
	Forces     *Forces      `json:"forces,omitempty"`
	Mode       AttackMode   `json:"mode,omitempty"`
	Proposal   string       `json:"proposal,omitempty"`
	Offer      *Resources   `json:"offer,omitempty"`
	Request    *Resources   `json:"request,omitempty"`
	Reason     string       `json:"reason,omitempty"`
}

func Record(d Decision) DecisionRecord {
	switch v := d.(type) {
	case BuildUnits:
		return DecisionRecord{Type: KindBuildUnits, Unit: v.Unit, Quantity: v.Quantity}
	case BuySector:
		return DecisionRecord{Type: KindBuySector, SectorType: v.Type}
	case Attack:
		f := v.Forces
		return DecisionRecord{Type: KindAttack, Target: v.Target, Forces: &f, Mode: v.Mode}
	case Diplomacy:
		return DecisionRecord{Type: KindDiplomacy, Target: v.Target, Proposal: v.Proposal}
	case Trade:
		offer, req := v.Offer, v.Request
		return DecisionRecord{Type: KindTrade, Offer: &offer, Request: &req}
	case DoNothing:
		return DecisionRecord{Type: KindDoNothing, Reason: v.Reason}
	case ReleaseSector:
		return DecisionRecord{Type: KindReleaseSector, Sector: v.Sector}
	case nil:
		return DecisionRecord{Type: KindDoNothing, Reason: "nil_decision"}
	}
	panic(fmt.Sprintf("model: unhandled decision %T", d))
}

func (r DecisionRecord) Decision() (Decision, error) {
	switch r.Type {
	case KindBuildUnits:
		if !r.Unit.Valid() {
			return nil, fmt.Errorf("build_units: unknown unit %q", r.Unit)
		}
		return BuildUnits{Unit: r.Unit, Quantity: r.Quantity}, nil
	case KindBuySector:
		if !r.SectorType.Valid() {
			return nil, fmt.Errorf("buy_sector: unknown sector type %q", r.SectorType)
		}
		return BuySector{Type: r.SectorType}, nil
	case KindAttack:
		a := Attack{Target: r.Target, Mode: r.Mode}
		if r.Forces != nil {
			a.Forces = *r.Forces
		}
		if a.Mode == "" {
			a.Mode = AttackInvasion
		}
		if a.Mode != AttackInvasion && a.Mode != AttackRaid {
			return nil, fmt.Errorf("attack: unknown mode %q", r.Mode)
		}
		return a, nil
	case KindDiplomacy:
		return Diplomacy{Target: r.Target, Proposal: r.Proposal}, nil
	case KindTrade:
		t := Trade{}
		if r.Offer != nil {
			t.Offer = *r.Offer
		}
		if r.Request != nil {
			t.Request = *r.Request
		}
		return t, nil
	case KindDoNothing:
		return DoNothing{Reason: r.Reason}, nil
	case KindReleaseSector:
		return ReleaseSector{Sector: r.Sector}, nil
	}
	return nil, fmt.Errorf("unknown decision type %q", r.Type)
}

// Order is a queued decision for a player-controlled empire.
type Order struct {
	Empire   EmpireID       `json:"empire"`
	Decision DecisionRecord `json:"decision"`
}
