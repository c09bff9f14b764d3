package model

type AuditStatus string

const (
	StatusApplied  AuditStatus = "applied"
	StatusRejected AuditStatus = "rejected"
	StatusFailed   AuditStatus = "failed"
	// StatusQueued marks attacks accepted in phase 4 and resolved in phase 5.
	StatusQueued AuditStatus = "queued"
)

type AuditSource string

const (
	SourceAgent AuditSource = "agent"
	SourceOrder AuditSource = "order"
)

type DecisionAudit struct {
	Empire    EmpireID       `json:"empire"`
	Source    AuditSource    `json:"source"`
	Generated DecisionRecord `json:"generated"`
	Applied   DecisionRecord `json:"applied"`
	Status    AuditStatus    `json:"status"`
	Reason    string         `json:"reason,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type EmpireReport struct {
	Empire EmpireID `json:"empire"`

	ResourcesBefore Resources `json:"resources_before"`
	ResourcesAfter  Resources `json:"resources_after"`
	ResourceDelta   Resources `json:"resource_delta"`

	Produced        Resources `json:"produced"`
	Maintenance     int64     `json:"maintenance"`
	MaintenancePaid bool      `json:"maintenance_paid"`

	PopulationBefore int64 `json:"population_before"`
	PopulationAfter  int64 `json:"population_after"`
	FoodConsumed     int64 `json:"food_consumed"`
	FoodDeficit      int64 `json:"food_deficit"`
	Starved          bool  `json:"starved"`

	EffectivenessBefore float64 `json:"effectiveness_before"`
	EffectivenessAfter  float64 `json:"effectiveness_after"`

	CivilStatus CivilStatus `json:"civil_status"`
	Networth    int64       `json:"networth"`
	Sectors     int         `json:"sectors"`
	Eliminated  bool        `json:"eliminated"`
}

type BuildCompletion struct {
	Empire   EmpireID `json:"empire"`
	Unit     UnitType `json:"unit"`
	Quantity int64    `json:"quantity"`
}

type EventKind string

const (
	EventElimination    EventKind = "elimination"
	EventSectorCaptured EventKind = "sector_captured"
	EventSectorTransfer EventKind = "sector_transfer"
	EventSectorBought   EventKind = "sector_bought"
	EventSectorReleased EventKind = "sector_released"
	EventVictory        EventKind = "victory"
)

type Event struct {
	Kind   EventKind `json:"kind"`
	Empire EmpireID  `json:"empire"`
	Other  EmpireID  `json:"other,omitempty"`
	Sector SectorID  `json:"sector,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// AgentStats are deterministic counts for the agent phase.
type AgentStats struct {
	Autonomous int `json:"autonomous"`
	Active     int `json:"active"`
	Eliminated int `json:"eliminated"`
	Failed     int `json:"failed"`
	Rejected   int `json:"rejected"`
	Orders     int `json:"orders"`
}

type AgentTiming struct {
	Empire     EmpireID `json:"empire"`
	Micros     int64    `json:"micros"`
	OverBudget bool     `json:"over_budget,omitempty"`
}

// Timing is wall-clock observation; it is excluded from the canonical result.
type Timing struct {
	TurnMicros       int64         `json:"turn_micros"`
	PhaseAMicros     int64         `json:"phase_a_micros"`
	PhaseBMicros     int64         `json:"phase_b_micros"`
	AvgAgentMicros   int64         `json:"avg_agent_micros"`
	MaxAgentMicros   int64         `json:"max_agent_micros"`
	AgentsOverBudget int           `json:"agents_over_budget"`
	PhaseAOverBudget bool          `json:"phase_a_over_budget"`
	Agents           []AgentTiming `json:"agents,omitempty"`
}

type TurnResult struct {
	GameID string `json:"game_id"`
	Turn   int    `json:"turn"`

	Empires    []EmpireReport    `json:"empires"`
	Builds     []BuildCompletion `json:"builds,omitempty"`
	Decisions  []DecisionAudit   `json:"decisions"`
	Attacks    []AttackRecord    `json:"attacks,omitempty"`
	Events     []Event           `json:"events,omitempty"`
	Eliminated []EmpireID        `json:"eliminated,omitempty"`
	Victory    *VictoryRecord    `json:"victory,omitempty"`

	Agents AgentStats `json:"agents"`
	Timing Timing     `json:"timing"`
}

// Canonical returns a shallow copy with wall-clock timing cleared.
func (r *TurnResult) Canonical() TurnResult {
	out := *r
	out.Timing = Timing{}
	return out
}

func (r *TurnResult) Report(id EmpireID) *EmpireReport {
	for i := range r.Empires {
		if r.Empires[i].Empire == id {
			return &r.Empires[i]
		}
	}
	return nil
}
