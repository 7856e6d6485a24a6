package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"questsync.dev/internal/persistence/offsite"
	"questsync.dev/internal/persistence/snapshot"
	"questsync.dev/internal/persistence/store"
	"questsync.dev/internal/platform/config"
	"questsync.dev/internal/protocol"
	"questsync.dev/internal/quest"
	"questsync.dev/internal/tuning"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "show":
			showCmd(os.Args[2:])
			return
		case "reset":
			resetCmd(os.Args[2:])
			return
		case "delete":
			deleteCmd(os.Args[2:])
			return
		case "export":
			exportCmd(os.Args[2:])
			return
		case "import":
			importCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "list":
			listCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

type common struct {
	dataDir *string
	dbPath  *string
	tuning  *string
}

func commonFlags(fs *flag.FlagSet) common {
	return common{
		dataDir: fs.String("data", "./data", "runtime data directory"),
		dbPath:  fs.String("db", "", "sqlite store path (default: <data>/store/quest.sqlite)"),
		tuning:  fs.String("tuning", "./configs/quest.yaml", "quest.yaml (for thresholds)"),
	}
}

func (c common) open() *store.SQLite {
	path := strings.TrimSpace(*c.dbPath)
	if path == "" {
		path = filepath.Join(*c.dataDir, "store", "quest.sqlite")
	}
	db, err := store.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return db
}

func (c common) rules() quest.Rules {
	t, err := tuning.Load(*c.tuning)
	if err != nil {
		if os.IsNotExist(err) {
			return quest.DefaultRules()
		}
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	return t.Quest
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	c := commonFlags(fs)
	_ = fs.Parse(args)

	db := c.open()
	defer db.Close()
	rules := c.rules()

	recs, err := db.List(context.Background(), store.QuestStateKey)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PLAYER\tSTEP\tVINES\tBERRIES\tKIMKIM\tUPDATED")
	for _, r := range recs {
		st, err := store.DecodeState(r.Value, rules)
		step := st.CurrentStep.String()
		if err != nil {
			step = "corrupt"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%d/%d\t%d/%d\t%s\n", r.PlayerID, step,
			st.CollectedVines, rules.RequiredVines,
			st.CollectedBerries, rules.RequiredBerries,
			st.CollectedKimkim, rules.RequiredKimkim,
			humanize.Time(r.UpdatedAt))
	}
	_ = tw.Flush()
	fmt.Printf("%s players\n", humanize.Comma(int64(len(recs))))
}

func playerFlag(fs *flag.FlagSet) *string {
	return fs.String("player", "", "player id (required)")
}

func requirePlayer(p *string) string {
	id := strings.TrimSpace(*p)
	if id == "" {
		fmt.Fprintln(os.Stderr, "missing -player")
		os.Exit(2)
	}
	return id
}

func showCmd(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	c := commonFlags(fs)
	p := playerFlag(fs)
	_ = fs.Parse(args)
	id := requirePlayer(p)

	db := c.open()
	defer db.Close()
	rules := c.rules()

	st, err := store.LoadState(context.Background(), db, rules, id)
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
	out := struct {
		PlayerID string                  `json:"player_id"`
		Step     string                  `json:"step"`
		NextTask string                  `json:"next_task"`
		State    protocol.StateUpdateMsg `json:"state"`
	}{id, st.CurrentStep.String(), quest.NextTask(st, rules), protocol.NewStateUpdate(st)}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func resetCmd(args []string) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	c := commonFlags(fs)
	p := playerFlag(fs)
	_ = fs.Parse(args)
	id := requirePlayer(p)

	db := c.open()
	defer db.Close()
	if err := store.SaveState(context.Background(), db, id, quest.Default()); err != nil {
		fmt.Fprintln(os.Stderr, "reset:", err)
		os.Exit(1)
	}
	fmt.Printf("reset %s (connected clients see it on their next message)\n", id)
}

func deleteCmd(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	c := commonFlags(fs)
	p := playerFlag(fs)
	_ = fs.Parse(args)
	id := requirePlayer(p)

	db := c.open()
	defer db.Close()
	if err := db.Delete(context.Background(), id, store.QuestStateKey); err != nil {
		fmt.Fprintln(os.Stderr, "delete:", err)
		os.Exit(1)
	}
	fmt.Printf("deleted %s\n", id)
}

func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	c := commonFlags(fs)
	outPath := fs.String("out", "", "output path (default: <data>/snapshots/<unix>.snap.zst)")
	upload := fs.Bool("upload", false, "also copy the export to the QS_OFFSITE_* bucket")
	_ = fs.Parse(args)

	db := c.open()
	defer db.Close()

	snap, err := snapshot.Export(context.Background(), db, store.QuestStateKey)
	if err != nil {
		fmt.Fprintln(os.Stderr, "export:", err)
		os.Exit(1)
	}
	path := strings.TrimSpace(*outPath)
	if path == "" {
		path = filepath.Join(*c.dataDir, "snapshots", fmt.Sprintf("%d.snap.zst", time.Now().Unix()))
	}
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(1)
	}
	size := uint64(0)
	if fi, err := os.Stat(path); err == nil {
		size = uint64(fi.Size())
	}
	fmt.Printf("wrote %s players=%d size=%s\n", path, snap.Header.Count, humanize.Bytes(size))

	if *upload {
		key := "snapshots/" + filepath.Base(path)
		if err := uploadOffsite(key, path); err != nil {
			fmt.Fprintln(os.Stderr, "upload:", err)
			os.Exit(1)
		}
		fmt.Printf("uploaded %s\n", key)
	}
}

func uploadOffsite(key, path string) error {
	var env config.OffsiteEnv
	if err := config.ParseEnv(&env); err != nil {
		return err
	}
	if !env.Enabled() {
		return fmt.Errorf("QS_OFFSITE_ENDPOINT is not set")
	}
	c, err := offsite.NewClient(offsite.Config{
		Endpoint:        env.Endpoint,
		Bucket:          env.Bucket,
		Region:          env.Region,
		AccessKeyID:     env.AccessKey,
		SecretAccessKey: env.SecretKey,
		Prefix:          env.Prefix,
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	return c.PutFile(ctx, key, path)
}

func importCmd(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	c := commonFlags(fs)
	in := fs.String("in", "", "snapshot path (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*in) == "" {
		fmt.Fprintln(os.Stderr, "missing -in")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(*in)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	db := c.open()
	defer db.Close()
	n, err := snapshot.Import(context.Background(), db, snap)
	if err != nil {
		fmt.Fprintln(os.Stderr, "import:", err)
		os.Exit(1)
	}
	fmt.Printf("imported %d players from snapshot created %s\n", n, humanize.Time(snap.Header.CreatedAt))
}
