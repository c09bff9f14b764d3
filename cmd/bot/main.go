package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"empires.ai/internal/protocol"
	"empires.ai/internal/sim/model"
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:8080", "server base url")
		empire   = flag.String("empire", "E00", "human empire the bot plays")
		interval = flag.Duration("interval", 2*time.Second, "delay between turn advances (0 = only watch)")
		leaders  = flag.Int("leaders", 5, "leaderboard length to log")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil)).With("component", "bot", "empire", *empire)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	wsURL := "ws" + strings.TrimPrefix(strings.TrimRight(*baseURL, "/"), "http") + "/v1/observe"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		logger.Error("dial", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, Leaders: *leaders}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Error("send HELLO", "error", err)
		os.Exit(1)
	}
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	b := &bot{
		base:   strings.TrimRight(*baseURL, "/"),
		empire: model.EmpireID(*empire),
		client: &http.Client{Timeout: 30 * time.Second},
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		log:    logger,
	}
	if *interval > 0 {
		go b.play(ctx, *interval)
	}
	watch(conn, logger)
}

// watch logs every message of the observer feed until the connection ends.
func watch(conn *websocket.Conn, logger *slog.Logger) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Info("WELCOME", "game_id", w.GameID, "turn", w.Turn, "catalogs", w.Catalogs.Catalogs)
		case protocol.TypeTurnSummary:
			var s protocol.TurnSummaryMsg
			if err := json.Unmarshal(msg, &s); err != nil {
				continue
			}
			top := make([]string, 0, len(s.Leaders))
			for _, l := range s.Leaders {
				top = append(top, fmt.Sprintf("%s:%d", l.Empire, l.Networth))
			}
			logger.Info("TURN", "turn", s.Turn, "digest", s.Digest, "leaders", strings.Join(top, ","))
		case protocol.TypeError:
			var e protocol.ErrorMsg
			_ = json.Unmarshal(msg, &e)
			logger.Warn("ERROR", "code", e.Code, "message", e.Message)
		}
	}
}

type bot struct {
	base   string
	empire model.EmpireID
	client *http.Client
	rnd    *rand.Rand
	log    *slog.Logger
}

func (b *bot) play(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		resp, err := b.advance(ctx, b.nextOrder())
		if err != nil {
			b.log.Warn("advance", "error", err)
			if strings.Contains(err.Error(), protocol.ErrGameFinished) {
				return
			}
			continue
		}
		if resp.Victory.Terminal() {
			b.log.Info("game over", "state", resp.Victory.State, "type", resp.Victory.Type, "winner", resp.Victory.Empire)
			return
		}
	}
}

// nextOrder picks the bot's decision: mostly grow the army, sometimes buy
// land, otherwise idle.
func (b *bot) nextOrder() model.Order {
	d := model.DecisionRecord{Type: model.KindDoNothing}
	switch r := b.rnd.Intn(10); {
	case r < 5:
		d = model.DecisionRecord{Type: model.KindBuildUnits, Unit: model.UnitSoldiers, Quantity: int64(50 + b.rnd.Intn(200))}
	case r < 7:
		d = model.DecisionRecord{Type: model.KindBuySector, SectorType: model.SectorFood}
	}
	return model.Order{Empire: b.empire, Decision: d}
}

func (b *bot) advance(ctx context.Context, o model.Order) (protocol.AdvanceResponse, error) {
	var out protocol.AdvanceResponse
	body, err := json.Marshal(protocol.AdvanceRequest{Orders: []model.Order{o}})
	if err != nil {
		return out, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.base+"/v1/turn", bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		var e protocol.ErrorMsg
		if json.Unmarshal(raw, &e) == nil && e.Code != "" {
			return out, fmt.Errorf("%s: %s", e.Code, e.Message)
		}
		return out, fmt.Errorf("status %d", resp.StatusCode)
	}
	return out, json.Unmarshal(raw, &out)
}
