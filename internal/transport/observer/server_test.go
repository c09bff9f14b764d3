package observer

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"empires.ai/internal/protocol"
	"empires.ai/internal/sim/model"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, string) {
	t.Helper()
	s := NewServer(func() protocol.WelcomeMsg {
		return protocol.WelcomeMsg{GameID: "g1", Turn: 7, Catalogs: protocol.CatalogDigests{Catalogs: "abc"}}
	}, opts...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string, hello any) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("hello: %v", err)
	}
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if err := conn.ReadJSON(v); err != nil {
		t.Fatalf("read: %v", err)
	}
}

func result(gameID string, turn int) *model.TurnResult {
	return &model.TurnResult{
		GameID: gameID,
		Turn:   turn,
		Empires: []model.EmpireReport{
			{Empire: "E00", Networth: 100},
			{Empire: "E01", Networth: 300},
			{Empire: "E02", Networth: 200},
		},
		Agents: model.AgentStats{Active: 3},
	}
}

func TestObserverReceivesSummaries(t *testing.T) {
	s, url := newTestServer(t)
	conn := dial(t, url, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, Leaders: 2})

	var w protocol.WelcomeMsg
	readJSON(t, conn, &w)
	if w.Type != protocol.TypeWelcome || w.GameID != "g1" || w.Turn != 7 || w.Catalogs.Catalogs != "abc" {
		t.Fatalf("unexpected welcome %+v", w)
	}
	if s.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", s.Subscribers())
	}

	s.Publish(result("g1", 7), "d7")
	var m protocol.TurnSummaryMsg
	readJSON(t, conn, &m)
	if m.Type != protocol.TypeTurnSummary || m.Turn != 7 || m.Digest != "d7" {
		t.Fatalf("unexpected summary %+v", m)
	}
	if len(m.Leaders) != 2 || m.Leaders[0].Empire != "E01" || m.Leaders[1].Empire != "E02" {
		t.Fatalf("unexpected leaders %+v", m.Leaders)
	}
}

func TestObserverFiltersByGame(t *testing.T) {
	s, url := newTestServer(t)
	conn := dial(t, url, protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, GameID: "g2"})
	var w protocol.WelcomeMsg
	readJSON(t, conn, &w)

	s.Publish(result("g1", 1), "")
	s.Publish(result("g2", 4), "")
	var m protocol.TurnSummaryMsg
	readJSON(t, conn, &m)
	if m.GameID != "g2" || m.Turn != 4 {
		t.Fatalf("expected only g2 summaries, got %+v", m)
	}
}

func TestObserverRejectsBadHello(t *testing.T) {
	s, url := newTestServer(t)
	conn := dial(t, url, map[string]string{"type": protocol.TypeHello, "protocol_version": "0.0"})
	var e protocol.ErrorMsg
	readJSON(t, conn, &e)
	if e.Type != protocol.TypeError || e.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("unexpected error %+v", e)
	}
	if s.Subscribers() != 0 {
		t.Fatalf("rejected observer was registered")
	}
}

func TestPublishDropsOverRate(t *testing.T) {
	s := NewServer(func() protocol.WelcomeMsg { return protocol.WelcomeMsg{} }, WithRate(0, 1))
	_, sub := s.register(protocol.HelloMsg{})
	for i := 0; i < 3; i++ {
		s.Publish(result("g1", i), "")
	}
	if len(sub.out) != 1 || s.Dropped() != 2 {
		t.Fatalf("expected 1 queued and 2 dropped, got %d/%d", len(sub.out), s.Dropped())
	}
	var m protocol.TurnSummaryMsg
	if err := json.Unmarshal(<-sub.out, &m); err != nil || len(m.Leaders) != 3 {
		t.Fatalf("unexpected queued summary %+v %v", m, err)
	}
}

func TestLoopbackCheck(t *testing.T) {
	if !isLoopbackRemote("127.0.0.1:1234") || !isLoopbackRemote("[::1]:80") {
		t.Fatalf("expected loopback")
	}
	if isLoopbackRemote("10.0.0.2:80") {
		t.Fatalf("expected non-loopback")
	}
}
