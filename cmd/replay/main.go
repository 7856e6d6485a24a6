package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"questsync.dev/internal/persistence/journal"
	"questsync.dev/internal/persistence/snapshot"
	"questsync.dev/internal/persistence/store"
	"questsync.dev/internal/quest"
	"questsync.dev/internal/tuning"
)

func main() {
	var (
		dataDir    = flag.String("data", "./data", "runtime data directory")
		journalDir = flag.String("journal", "", "journal dir containing journal-*.jsonl.zst (default: <data>/journal)")
		snapPath   = flag.String("snapshot", "", "player snapshot the journal starts from (optional)")
		tuningPath = flag.String("tuning", "./configs/quest.yaml", "quest.yaml the server ran with")
		player     = flag.String("player", "", "only verify this player (optional)")
		maxReport  = flag.Int("max_report", 20, "divergences to print")
	)
	flag.Parse()

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}
	eng := quest.NewEngine(tune.Quest)

	seed := map[string]quest.State{}
	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		for _, r := range snap.Records {
			st, err := store.DecodeState(r.Value, eng.Rules())
			if err != nil {
				fmt.Fprintf(os.Stderr, "snapshot record %s: %v\n", r.PlayerID, err)
				os.Exit(1)
			}
			seed[r.PlayerID] = st
		}
		fmt.Printf("snapshot v%d players=%d created=%s\n", snap.Header.Version, snap.Header.Count, snap.Header.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}

	dir := *journalDir
	if dir == "" {
		dir = filepath.Join(*dataDir, "journal")
	}
	files, err := journal.ListFiles(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list journal:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no journal files found in", dir)
		os.Exit(1)
	}

	r := journal.NewReplayer(eng, seed)
	for _, path := range files {
		err := journal.ReadFile(path, func(e journal.Entry) error {
			if *player != "" && e.PlayerID != *player {
				return nil
			}
			r.Apply(e)
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}

	if len(r.Divergences) == 0 {
		fmt.Printf("replay ok: checked=%d entries players=%d files=%d\n", r.Checked, len(r.States()), len(files))
		return
	}
	enc := json.NewEncoder(os.Stdout)
	for i, d := range r.Divergences {
		if i >= *maxReport {
			fmt.Printf("... %d more\n", len(r.Divergences)-i)
			break
		}
		_ = enc.Encode(map[string]any{
			"time":   d.Entry.Time,
			"player": d.Entry.PlayerID,
			"kind":   d.Entry.Kind,
			"action": d.Entry.ActionID,
			"reason": d.Reason,
		})
	}
	fmt.Fprintf(os.Stderr, "replay diverged: %d of %d entries\n", len(r.Divergences), r.Checked)
	os.Exit(1)
}
