package model

// Stable reason codes carried by audits and attack records.
const (
	ReasonSelected          = "selected"
	ReasonNoTargets         = "no_targets"
	ReasonNoRivals          = "no_rivals"
	ReasonNoForces          = "no_forces"
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonInvalidQuantity   = "invalid_quantity"
	ReasonUnknownUnit       = "unknown_unit"
	ReasonUnknownSectorType = "unknown_sector_type"
	ReasonUnknownSector     = "unknown_sector"
	ReasonNotOwner          = "not_owner"
	ReasonLastSector        = "last_sector"

	ReasonUnknownEmpire      = "unknown_empire"
	ReasonEliminated         = "eliminated"
	ReasonSelfTarget         = "self_target"
	ReasonProtected          = "protected"
	ReasonTreaty             = "treaty"
	ReasonInsufficientForces = "insufficient_forces"
	ReasonCombatDisabled     = "combat_disabled"

	// ReasonNotImplemented marks diplomacy and trade, which have no effect yet.
	ReasonNotImplemented = "not_implemented"
	ReasonAgentFailed    = "agent_failed"
	ReasonNoOrder        = "no_order"
	ReasonInvalidOrder   = "invalid_order"
)
