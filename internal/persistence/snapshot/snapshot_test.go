package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"questsync.dev/internal/persistence/store"
	"questsync.dev/internal/quest"
)

func TestExportWriteReadImport(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemory()
	states := map[string]quest.State{
		"alice": {CurrentStep: quest.CollectHerbs, CollectedVines: 3, CollectedBerries: 3, CollectedKimkim: 3, HasCatHair: true, QuestStarted: true},
		"bob":   {CurrentStep: quest.TalkOcto1, QuestStarted: true},
	}
	for id, st := range states {
		if err := store.SaveState(ctx, src, id, st); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	snap, err := Export(ctx, src, store.QuestStateKey)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	path := filepath.Join(t.TempDir(), "out", "players.snap.zst")
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("tmp file left behind: %v", err)
	}

	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Header.Count != 2 || len(got.Records) != 2 || got.Records[0].PlayerID != "alice" {
		t.Fatalf("snapshot=%+v", got)
	}

	dst := store.NewMemory()
	n, err := Import(ctx, dst, got)
	if err != nil || n != 2 {
		t.Fatalf("import: n=%d err=%v", n, err)
	}
	for id, want := range states {
		st, err := store.LoadState(ctx, dst, quest.DefaultRules(), id)
		if err != nil || st != want {
			t.Fatalf("%s: got %+v err=%v", id, st, err)
		}
	}
}

func TestReadSnapshotRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.snap.zst")
	if err := os.WriteFile(path, []byte("plain text"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("expected error")
	}
}

func TestExportEmpty(t *testing.T) {
	snap, err := Export(context.Background(), store.NewMemory(), store.QuestStateKey)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	path := filepath.Join(t.TempDir(), "empty.snap.zst")
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil || got.Header.Count != 0 || len(got.Records) != 0 {
		t.Fatalf("got=%+v err=%v", got, err)
	}
}
