package model

type EmpireID string

type Difficulty string

const (
	DifficultyEasy      Difficulty = "easy"
	DifficultyNormal    Difficulty = "normal"
	DifficultyHard      Difficulty = "hard"
	DifficultyNightmare Difficulty = "nightmare"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyNormal, DifficultyHard, DifficultyNightmare:
		return true
	}
	return false
}

type Resources struct {
	Credits   int64 `json:"credits"`
	Food      int64 `json:"food"`
	Ore       int64 `json:"ore"`
	Petroleum int64 `json:"petroleum"`
	Research  int64 `json:"research_points"`
}

func (r Resources) Add(o Resources) Resources {
	return Resources{
		Credits:   r.Credits + o.Credits,
		Food:      r.Food + o.Food,
		Ore:       r.Ore + o.Ore,
		Petroleum: r.Petroleum + o.Petroleum,
		Research:  r.Research + o.Research,
	}
}

func (r Resources) Sub(o Resources) Resources {
	return Resources{
		Credits:   r.Credits - o.Credits,
		Food:      r.Food - o.Food,
		Ore:       r.Ore - o.Ore,
		Petroleum: r.Petroleum - o.Petroleum,
		Research:  r.Research - o.Research,
	}
}

func (r Resources) Scale(n int64) Resources {
	return Resources{
		Credits:   r.Credits * n,
		Food:      r.Food * n,
		Ore:       r.Ore * n,
		Petroleum: r.Petroleum * n,
		Research:  r.Research * n,
	}
}

// Covers reports whether r can pay cost without any quantity going negative.
func (r Resources) Covers(cost Resources) bool {
	return r.Credits >= cost.Credits &&
		r.Food >= cost.Food &&
		r.Ore >= cost.Ore &&
		r.Petroleum >= cost.Petroleum &&
		r.Research >= cost.Research
}

func (r Resources) NonNegative() bool {
	return r.Credits >= 0 && r.Food >= 0 && r.Ore >= 0 && r.Petroleum >= 0 && r.Research >= 0
}

func (r *Resources) ClampNonNegative() {
	if r.Credits < 0 {
		r.Credits = 0
	}
	if r.Food < 0 {
		r.Food = 0
	}
	if r.Ore < 0 {
		r.Ore = 0
	}
	if r.Petroleum < 0 {
		r.Petroleum = 0
	}
	if r.Research < 0 {
		r.Research = 0
	}
}

type UnitType string

const (
	UnitSoldiers      UnitType = "soldiers"
	UnitFighters      UnitType = "fighters"
	UnitStations      UnitType = "stations"
	UnitLightCruisers UnitType = "light_cruisers"
	UnitHeavyCruisers UnitType = "heavy_cruisers"
	UnitCarriers      UnitType = "carriers"
	UnitCovertAgents  UnitType = "covert_agents"
)

// UnitTypes lists every unit type in canonical order.
var UnitTypes = []UnitType{
	UnitSoldiers,
	UnitFighters,
	UnitStations,
	UnitLightCruisers,
	UnitHeavyCruisers,
	UnitCarriers,
	UnitCovertAgents,
}

func (u UnitType) Valid() bool {
	for _, t := range UnitTypes {
		if t == u {
			return true
		}
	}
	return false
}

type Forces struct {
	Soldiers      int64 `json:"soldiers"`
	Fighters      int64 `json:"fighters"`
	Stations      int64 `json:"stations"`
	LightCruisers int64 `json:"light_cruisers"`
	HeavyCruisers int64 `json:"heavy_cruisers"`
	Carriers      int64 `json:"carriers"`
	CovertAgents  int64 `json:"covert_agents"`
}

func (f *Forces) ptr(u UnitType) *int64 {
	switch u {
	case UnitSoldiers:
		return &f.Soldiers
	case UnitFighters:
		return &f.Fighters
	case UnitStations:
		return &f.Stations
	case UnitLightCruisers:
		return &f.LightCruisers
	case UnitHeavyCruisers:
		return &f.HeavyCruisers
	case UnitCarriers:
		return &f.Carriers
	case UnitCovertAgents:
		return &f.CovertAgents
	}
	return nil
}

func (f Forces) Get(u UnitType) int64 {
	if p := f.ptr(u); p != nil {
		return *p
	}
	return 0
}

func (f *Forces) Set(u UnitType, n int64) {
	if p := f.ptr(u); p != nil {
		*p = n
	}
}

func (f *Forces) Add(u UnitType, n int64) {
	if p := f.ptr(u); p != nil {
		*p += n
	}
}

func (f Forces) Total() int64 {
	var n int64
	for _, u := range UnitTypes {
		n += f.Get(u)
	}
	return n
}

func (f Forces) Minus(o Forces) Forces {
	var out Forces
	for _, u := range UnitTypes {
		out.Set(u, f.Get(u)-o.Get(u))
	}
	return out
}

// Within reports whether every count in f is between zero and the matching count in limit.
func (f Forces) Within(limit Forces) bool {
	for _, u := range UnitTypes {
		n := f.Get(u)
		if n < 0 || n > limit.Get(u) {
			return false
		}
	}
	return true
}

type CivilStatus string

const (
	CivilEcstatic  CivilStatus = "ecstatic"
	CivilHappy     CivilStatus = "happy"
	CivilContent   CivilStatus = "content"
	CivilNeutral   CivilStatus = "neutral"
	CivilUnhappy   CivilStatus = "unhappy"
	CivilAngry     CivilStatus = "angry"
	CivilRioting   CivilStatus = "rioting"
	CivilRevolting CivilStatus = "revolting"
)

// CivilLadder orders civil statuses from best to worst.
var CivilLadder = []CivilStatus{
	CivilEcstatic,
	CivilHappy,
	CivilContent,
	CivilNeutral,
	CivilUnhappy,
	CivilAngry,
	CivilRioting,
	CivilRevolting,
}

func (c CivilStatus) rank() int {
	for i, s := range CivilLadder {
		if s == c {
			return i
		}
	}
	return -1
}

func (c CivilStatus) Valid() bool { return c.rank() >= 0 }

// Better moves one step up the ladder; unknown statuses normalize to content.
func (c CivilStatus) Better() CivilStatus {
	i := c.rank()
	if i < 0 {
		return CivilContent
	}
	if i == 0 {
		return c
	}
	return CivilLadder[i-1]
}

func (c CivilStatus) Worse() CivilStatus {
	i := c.rank()
	if i < 0 {
		return CivilContent
	}
	if i == len(CivilLadder)-1 {
		return c
	}
	return CivilLadder[i+1]
}

type BuildOrder struct {
	Unit           UnitType `json:"unit"`
	Quantity       int64    `json:"quantity"`
	TurnsRemaining int      `json:"turns_remaining"`
}

type Empire struct {
	ID   EmpireID `json:"id"`
	Name string   `json:"name"`
	// Seq is the creation order; phase B applies decisions in ascending Seq.
	Seq        int  `json:"seq"`
	Autonomous bool `json:"autonomous"`

	Archetype string `json:"archetype,omitempty"`
	Tier      int    `json:"tier,omitempty"`

	Resources     Resources   `json:"resources"`
	Forces        Forces      `json:"forces"`
	Population    int64       `json:"population"`
	PopulationCap int64       `json:"population_cap"`
	CivilStatus   CivilStatus `json:"civil_status"`
	Networth      int64       `json:"networth"`
	SectorCount   int         `json:"sector_count"`

	// Effectiveness is the army effectiveness in [0,100].
	Effectiveness float64 `json:"army_effectiveness"`

	Eliminated     bool `json:"eliminated"`
	EliminatedTurn int  `json:"eliminated_turn,omitempty"`

	// ProtectedUntil extends protection past the game-wide threshold (inclusive turn).
	ProtectedUntil int `json:"protected_until,omitempty"`

	BuildQueue []BuildOrder `json:"build_queue,omitempty"`
}

func (e *Empire) clone() Empire {
	out := *e
	if e.BuildQueue != nil {
		out.BuildQueue = append([]BuildOrder(nil), e.BuildQueue...)
	}
	return out
}
