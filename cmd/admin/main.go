package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	turnlog "empires.ai/internal/persistence/log"
	"empires.ai/internal/persistence/snapshot"
	"empires.ai/internal/sim/model"
)

func main() {
	var err error
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "rollback":
			err = rollbackCmd(os.Args[2:], os.Stdout)
		case "audit":
			err = auditCmd(os.Args[2:], os.Stdout)
		case "db":
			err = dbCmd(os.Args[2:], os.Stdout)
		case "state":
			err = stateCmd(os.Args[2:], os.Stdout)
		case "turn":
			err = turnCmd(os.Args[2:], os.Stdout)
		default:
			err = listCmd(os.Args[1:], os.Stdout)
		}
	} else {
		err = listCmd(nil, os.Stdout)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "admin:", err)
		var ue usageError
		if errors.As(err, &ue) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type usageError string

func (e usageError) Error() string { return string(e) }

func gameDir(dataDir, gameID string) (string, error) {
	if strings.TrimSpace(gameID) == "" {
		return "", usageError("missing -game")
	}
	return filepath.Join(dataDir, "games", gameID), nil
}

func listCmd(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("admin", flag.ContinueOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}

	entries, err := os.ReadDir(filepath.Join(*dataDir, "games"))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		latest, _ := snapshot.Latest(filepath.Join(*dataDir, "games", e.Name(), "snapshots"))
		if latest == "" {
			fmt.Fprintln(w, e.Name())
			continue
		}
		h, err := snapshot.ReadHeader(latest)
		if err != nil {
			fmt.Fprintf(w, "%s\terror=%v\n", e.Name(), err)
			continue
		}
		fmt.Fprintf(w, "%s\tturn=%d\tsnapshot=%s\n", e.Name(), h.Turn, filepath.Base(latest))
	}
	return nil
}

// rollbackCmd rewinds a game to the newest snapshot at or before -turn by
// moving later snapshots aside. The server resumes from the remaining
// latest snapshot on its next start.
func rollbackCmd(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("rollback", flag.ContinueOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	gameID := fs.String("game", "", "game id")
	toTurn := fs.Int("turn", -1, "rewind to the newest snapshot at or before this turn")
	dryRun := fs.Bool("dry_run", false, "print what would move without moving it")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	dir, err := gameDir(*dataDir, *gameID)
	if err != nil {
		return err
	}
	if *toTurn < 0 {
		return usageError("missing -turn")
	}

	snapDir := filepath.Join(dir, "snapshots")
	turns, err := snapshot.List(snapDir)
	if err != nil {
		return err
	}
	keep := -1
	for _, t := range turns {
		if t <= *toTurn {
			keep = t
		}
	}
	if keep < 0 {
		return fmt.Errorf("no snapshot at or before turn %d", *toTurn)
	}

	moved := 0
	for _, t := range turns {
		if t <= keep {
			continue
		}
		path := snapshot.Path(snapDir, t)
		if !*dryRun {
			if err := os.Rename(path, path+".rolledback"); err != nil {
				return err
			}
		}
		moved++
	}
	fmt.Fprintf(w, "rollback ok: game=%s resume_turn=%d moved=%d dry_run=%v\n", *gameID, keep, moved, *dryRun)
	return nil
}

func auditCmd(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	gameID := fs.String("game", "", "game id")
	empire := fs.String("empire", "", "empire filter (optional)")
	status := fs.String("status", "", "status filter: applied, rejected, failed, no_order (optional)")
	fromTurn := fs.Int("from_turn", 0, "first turn (inclusive)")
	toTurn := fs.Int("to_turn", 0, "last turn (inclusive, 0 = no limit)")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}
	dir, err := gameDir(*dataDir, *gameID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	return turnlog.ReadAudit(dir, func(e turnlog.AuditEntry) error {
		if e.Turn < *fromTurn || (*toTurn > 0 && e.Turn > *toTurn) {
			return nil
		}
		if *empire != "" && e.Empire != model.EmpireID(*empire) {
			return nil
		}
		if *status != "" && e.Status != model.AuditStatus(*status) {
			return nil
		}
		return enc.Encode(e)
	})
}
