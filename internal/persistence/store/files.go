package store

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Files stores each record as {dir}/{key}/{hex(player_id)}.json. Writes go
// through a temp file and rename so a crash never leaves a torn record.
// Hex names longer than segmentLen are split into nested directories to stay
// under the filesystem's name limit.
type Files struct {
	dir string
}

func OpenFiles(dir string) (*Files, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("empty store dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Files{dir: dir}, nil
}

const segmentLen = 200

func (f *Files) path(playerID, key string) string {
	name := hex.EncodeToString([]byte(playerID))
	parts := []string{f.dir, filepath.Base(key)}
	for len(name) > segmentLen {
		parts = append(parts, name[:segmentLen])
		name = name[segmentLen:]
	}
	return filepath.Join(append(parts, name+".json")...)
}

func (f *Files) Get(_ context.Context, playerID, key string) ([]byte, bool, error) {
	b, err := os.ReadFile(f.path(playerID, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (f *Files) Set(_ context.Context, playerID, key string, value []byte) error {
	return writeFileAtomic(f.path(playerID, key), value)
}

func (f *Files) Delete(_ context.Context, playerID, key string) error {
	err := os.Remove(f.path(playerID, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (f *Files) List(_ context.Context, key string) ([]Record, error) {
	dir := filepath.Join(f.dir, filepath.Base(key))
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []Record
	err := filepath.WalkDir(dir, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		name := strings.ReplaceAll(strings.TrimSuffix(rel, ".json"), string(filepath.Separator), "")
		id, err := hex.DecodeString(name)
		if err != nil {
			return nil
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		r := Record{PlayerID: string(id), Key: key, Value: b}
		if fi, err := e.Info(); err == nil {
			r.UpdatedAt = fi.ModTime().UTC()
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out, nil
}

func writeFileAtomic(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
