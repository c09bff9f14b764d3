package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"empires.ai/internal/persistence/indexdb"
)

func dbCmd(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("db", flag.ContinueOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	gameID := fs.String("game", "", "game id")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	turn := fs.Int("turn", -1, "turn (attacks)")
	from := fs.Int("from", 0, "first turn (turns)")
	empire := fs.String("empire", "", "empire id (decisions)")
	limit := fs.Int("limit", 20, "result limit")
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if strings.TrimSpace(*gameID) == "" {
		return usageError("missing -game")
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "games", *gameID, "index", "game.sqlite")
	}

	r, err := indexdb.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	ctx := context.Background()

	var rows any
	switch q {
	case "snapshots":
		rows, err = r.Snapshots(ctx, *gameID, *limit)
	case "turns":
		rows, err = r.Turns(ctx, *gameID, *from, *limit)
	case "decisions":
		if *empire == "" {
			return usageError("decisions needs -empire")
		}
		rows, err = r.Decisions(ctx, *gameID, *empire, *limit)
	case "attacks":
		if *turn < 0 {
			return usageError("attacks needs -turn")
		}
		rows, err = r.Attacks(ctx, *gameID, *turn)
	case "statuses":
		rows, err = r.StatusCounts(ctx, *gameID)
	case "catalogs":
		out := map[string]string{}
		for _, name := range []string{"units", "sectors", "archetypes", "tuning"} {
			d, err := r.CatalogDigest(ctx, name)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			out[name] = d
		}
		rows = []map[string]string{out}
	default:
		return usageError("unknown query: " + q)
	}
	if err != nil {
		return err
	}
	return printRows(w, rows)
}

// printRows writes one JSON object per line.
func printRows(w io.Writer, rows any) error {
	b, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	for _, it := range items {
		if _, err := fmt.Fprintln(w, string(it)); err != nil {
			return err
		}
	}
	return nil
}
