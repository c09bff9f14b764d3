package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"empires.ai/internal/protocol"
	"empires.ai/internal/sim/model"
)

func stateCmd(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("state", flag.ContinueOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}

	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/v1/state")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var s model.GameState
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return err
	}
	fmt.Fprintf(w, "game=%s turn=%d active=%d sectors=%d\n", s.GameID, s.Turn, s.ActiveCount(), len(s.Sectors))
	for _, i := range s.CreationOrder() {
		e := s.Empires[i]
		status := "active"
		if e.Eliminated {
			status = "eliminated"
		}
		ctl := "auto"
		if !e.Autonomous {
			ctl = "human"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\tnetworth=%d\tsectors=%d\tpop=%d\tcredits=%d\n",
			e.ID, ctl, status, e.Networth, e.SectorCount, e.Population, e.Resources.Credits)
	}
	return nil
}

// turnCmd advances the live game by one turn, optionally with orders read
// from a JSON file holding an AdvanceRequest.
func turnCmd(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("turn", flag.ContinueOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}

	var body io.Reader
	if fs.NArg() > 0 {
		raw, err := readOrders(fs.Arg(0))
		if err != nil {
			return err
		}
		body = strings.NewReader(raw)
	}
	cl := &http.Client{Timeout: 30 * time.Second}
	resp, err := cl.Post(strings.TrimRight(strings.TrimSpace(*baseURL), "/")+"/v1/turn", "application/json", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		var e protocol.ErrorMsg
		if json.Unmarshal(b, &e) == nil && e.Code != "" {
			return fmt.Errorf("%s: %s", e.Code, e.Message)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	var out protocol.AdvanceResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	fmt.Fprintf(w, "turn=%d digest=%s\n", out.Turn, out.Digest)
	if out.Victory.Terminal() {
		fmt.Fprintf(w, "game over: %s %s %s\n", out.Victory.State, out.Victory.Type, out.Victory.Empire)
	}
	return nil
}

func readOrders(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var req protocol.AdvanceRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return string(raw), nil
}
