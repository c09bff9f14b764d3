package protocol

import (
	"sort"

	"empires.ai/internal/sim/model"
)

// HELLO (observer -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	GameID          string `json:"game_id,omitempty"`
	// Leaders caps the leaderboard length in each summary.
	Leaders int `json:"leaders,omitempty"`
}

// WELCOME (server -> observer)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	GameID          string         `json:"game_id"`
	Turn            int            `json:"turn"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type CatalogDigests struct {
	Catalogs string `json:"catalogs"`
	Tuning   string `json:"tuning,omitempty"`
}

type LeaderEntry struct {
	Empire   model.EmpireID `json:"empire"`
	Networth int64          `json:"networth"`
	Sectors  int            `json:"sectors"`
}

// TURN_SUMMARY (server -> observer)
type TurnSummaryMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	GameID          string `json:"game_id"`
	Turn            int    `json:"turn"`
	Digest          string `json:"digest"`

	Active     int              `json:"active"`
	Failed     int              `json:"failed"`
	Attacks    int              `json:"attacks"`
	Captured   int              `json:"captured"`
	Eliminated []model.EmpireID `json:"eliminated,omitempty"`
	Leaders    []LeaderEntry    `json:"leaders"`

	Victory *model.VictoryRecord `json:"victory,omitempty"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: msg}
}

// AdvanceRequest is the body of a turn-advance call: orders for human empires.
type AdvanceRequest struct {
	Orders []model.Order `json:"orders,omitempty"`
}

type AdvanceResponse struct {
	Turn    int                  `json:"turn"`
	Digest  string               `json:"digest"`
	Victory *model.VictoryRecord `json:"victory,omitempty"`
	Summary TurnSummaryMsg       `json:"summary"`
}

// Summarize condenses a turn result. Leaders are the top n surviving empires by
// networth, ties in creation order; n <= 0 keeps all of them.
func Summarize(r *model.TurnResult, digest string, n int) TurnSummaryMsg {
	m := TurnSummaryMsg{
		Type:            TypeTurnSummary,
		ProtocolVersion: Version,
		GameID:          r.GameID,
		Turn:            r.Turn,
		Digest:          digest,
		Active:          r.Agents.Active,
		Failed:          r.Agents.Failed,
		Attacks:         len(r.Attacks),
		Eliminated:      r.Eliminated,
		Leaders:         []LeaderEntry{},
		Victory:         r.Victory,
	}
	for _, a := range r.Attacks {
		m.Captured += len(a.CapturedSectors)
	}
	for _, e := range r.Empires {
		if e.Eliminated {
			continue
		}
		m.Leaders = append(m.Leaders, LeaderEntry{Empire: e.Empire, Networth: e.Networth, Sectors: e.Sectors})
	}
	sort.SliceStable(m.Leaders, func(i, j int) bool { return m.Leaders[i].Networth > m.Leaders[j].Networth })
	if n > 0 && len(m.Leaders) > n {
		m.Leaders = m.Leaders[:n]
	}
	return m
}
