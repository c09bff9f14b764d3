package harness

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"empires.ai/internal/sim/model"
)

// Aggregator accumulates per-turn and per-game statistics. It is a
// turn.Metrics, so an engine can feed it directly.
type Aggregator struct {
	mu sync.Mutex

	turns        int
	phaseAMicros int64
	phaseAMax    int64
	agentMicros  int64
	agentMax     int64
	agentsTimed  int
	overBudget   int
	phaseAOver   int

	decisions map[model.DecisionKind]int
	statuses  map[model.AuditStatus]int
	outcomes  map[model.OutcomeKind]int
	attacks   int
	captured  int
	elims     int

	games      int
	gameTurns  int
	gameErrors int
	wins       map[string]int
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		decisions: map[model.DecisionKind]int{},
		statuses:  map[model.AuditStatus]int{},
		outcomes:  map[model.OutcomeKind]int{},
		wins:      map[string]int{},
	}
}

func (a *Aggregator) ObserveTurn(r *model.TurnResult) {
	if r == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.turns++
	a.phaseAMicros += r.Timing.PhaseAMicros
	if r.Timing.PhaseAMicros > a.phaseAMax {
		a.phaseAMax = r.Timing.PhaseAMicros
	}
	if r.Timing.PhaseAOverBudget {
		a.phaseAOver++
	}
	for _, t := range r.Timing.Agents {
		a.agentMicros += t.Micros
		a.agentsTimed++
		if t.Micros > a.agentMax {
			a.agentMax = t.Micros
		}
	}
	a.overBudget += r.Timing.AgentsOverBudget

	for _, d := range r.Decisions {
		a.decisions[d.Applied.Type]++
		a.statuses[d.Status]++
	}
	for _, at := range r.Attacks {
		a.attacks++
		a.outcomes[at.Outcome]++
		a.captured += len(at.CapturedSectors)
	}
	a.elims += len(r.Eliminated)
}

func (a *Aggregator) ObserveGame(g GameSummary) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.games++
	a.gameTurns += g.Turns
	if g.Err != "" {
		a.gameErrors++
		return
	}
	a.wins[victoryName(g.Victory)]++
}

type Report struct {
	Games        int     `json:"games"`
	GameErrors   int     `json:"game_errors"`
	AvgGameTurns float64 `json:"avg_game_turns"`

	Turns       int            `json:"turns"`
	Wins        map[string]int `json:"wins"`
	Decisions   map[string]int `json:"decisions"`
	Statuses    map[string]int `json:"statuses"`
	Outcomes    map[string]int `json:"outcomes"`
	Attacks     int            `json:"attacks"`
	Captured    int            `json:"captured_sectors"`
	Elimination int            `json:"eliminations"`

	AvgPhaseAMicros  int64 `json:"avg_phase_a_micros"`
	MaxPhaseAMicros  int64 `json:"max_phase_a_micros"`
	AvgAgentMicros   int64 `json:"avg_agent_micros"`
	MaxAgentMicros   int64 `json:"max_agent_micros"`
	AgentsOverBudget int   `json:"agents_over_budget"`
	PhaseAOverBudget int   `json:"phase_a_over_budget"`
}

func stringKeys[K ~string](m map[K]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

func (a *Aggregator) Report() Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := Report{
		Games:            a.games,
		GameErrors:       a.gameErrors,
		Turns:            a.turns,
		Wins:             stringKeys(a.wins),
		Decisions:        stringKeys(a.decisions),
		Statuses:         stringKeys(a.statuses),
		Outcomes:         stringKeys(a.outcomes),
		Attacks:          a.attacks,
		Captured:         a.captured,
		Elimination:      a.elims,
		MaxPhaseAMicros:  a.phaseAMax,
		MaxAgentMicros:   a.agentMax,
		AgentsOverBudget: a.overBudget,
		PhaseAOverBudget: a.phaseAOver,
	}
	if a.games > 0 {
		r.AvgGameTurns = float64(a.gameTurns) / float64(a.games)
	}
	if a.turns > 0 {
		r.AvgPhaseAMicros = a.phaseAMicros / int64(a.turns)
	}
	if a.agentsTimed > 0 {
		r.AvgAgentMicros = a.agentMicros / int64(a.agentsTimed)
	}
	return r
}

func micros(n int64) string {
	return (time.Duration(n) * time.Microsecond).String()
}

func writeCounts(w io.Writer, title string, m map[string]int) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	total := 0
	for k, v := range m {
		keys = append(keys, k)
		total += v
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "%s:\n", title)
	for _, k := range keys {
		pct := 100 * float64(m[k]) / float64(total)
		fmt.Fprintf(w, "  %-16s %10s  %5s%%\n", k, humanize.Comma(int64(m[k])), humanize.FtoaWithDigits(pct, 1))
	}
}

// Format writes a human readable summary.
func (r Report) Format(w io.Writer) {
	fmt.Fprintf(w, "games:            %s (%s failed)\n", humanize.Comma(int64(r.Games)), humanize.Comma(int64(r.GameErrors)))
	fmt.Fprintf(w, "turns:            %s (avg %s per game)\n", humanize.Comma(int64(r.Turns)), humanize.FtoaWithDigits(r.AvgGameTurns, 1))
	fmt.Fprintf(w, "attacks:          %s (%s sectors captured)\n", humanize.Comma(int64(r.Attacks)), humanize.Comma(int64(r.Captured)))
	fmt.Fprintf(w, "eliminations:     %s\n", humanize.Comma(int64(r.Elimination)))
	fmt.Fprintf(w, "phase A:          avg %s, max %s, %d turns over budget\n", micros(r.AvgPhaseAMicros), micros(r.MaxPhaseAMicros), r.PhaseAOverBudget)
	fmt.Fprintf(w, "agent:            avg %s, max %s, %s over budget\n", micros(r.AvgAgentMicros), micros(r.MaxAgentMicros), humanize.Comma(int64(r.AgentsOverBudget)))
	writeCounts(w, "wins", r.Wins)
	writeCounts(w, "decisions", r.Decisions)
	writeCounts(w, "statuses", r.Statuses)
	writeCounts(w, "attack outcomes", r.Outcomes)
}
