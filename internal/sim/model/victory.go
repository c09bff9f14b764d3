package model

import "fmt"

type VictoryType string

const (
	VictoryConquest VictoryType = "conquest"
	VictoryEconomic VictoryType = "economic"
	VictorySurvival VictoryType = "survival"
)

type VictoryState string

const (
	StateOngoing       VictoryState = "ongoing"
	StateWon           VictoryState = "won"
	StateAllEliminated VictoryState = "all_eliminated"
)

type VictoryResult interface {
	State() VictoryState
	isVictory()
}

type Ongoing struct{}

type Won struct {
	Empire EmpireID
	Type   VictoryType
}

type AllEliminated struct{}

func (Ongoing) State() VictoryState       { return StateOngoing }
func (Won) State() VictoryState           { return StateWon }
func (AllEliminated) State() VictoryState { return StateAllEliminated }

func (Ongoing) isVictory()       {}
func (Won) isVictory()           {}
func (AllEliminated) isVictory() {}

// VictoryRecord is the persisted terminal outcome. A nil record means ongoing.
type VictoryRecord struct {
	State  VictoryState `json:"state"`
	Type   VictoryType  `json:"type,omitempty"`
	Empire EmpireID     `json:"empire,omitempty"`
	Turn   int          `json:"turn"`
}

func NewVictoryRecord(v VictoryResult, turn int) *VictoryRecord {
	switch r := v.(type) {
	case Ongoing:
		return nil
	case Won:
		return &VictoryRecord{State: StateWon, Type: r.Type, Empire: r.Empire, Turn: turn}
	case AllEliminated:
		return &VictoryRecord{State: StateAllEliminated, Turn: turn}
	case nil:
		return nil
	}
	panic(fmt.Sprintf("model: unhandled victory result %T", v))
}

func (r *VictoryRecord) Result() VictoryResult {
	if r == nil {
		return Ongoing{}
	}
	switch r.State {
	case StateWon:
		return Won{Empire: r.Empire, Type: r.Type}
	case StateAllEliminated:
		return AllEliminated{}
	}
	return Ongoing{}
}

func (r *VictoryRecord) Terminal() bool {
	return r != nil && r.State != StateOngoing
}
