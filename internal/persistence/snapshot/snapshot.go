// Package snapshot exports and imports every stored player record as one
// zstd-compressed file: a JSON header line followed by one JSON record per
// line.
package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"questsync.dev/internal/persistence/store"
)

const Version = 1

type Header struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Key       string    `json:"key"`
	Count     int       `json:"count"`
}

type RecordV1 struct {
	PlayerID  string          `json:"player_id"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at,omitempty"`
}

type SnapshotV1 struct {
	Header  Header
	Records []RecordV1
}

// Export collects every record stored under key.
func Export(ctx context.Context, l store.Lister, key string) (SnapshotV1, error) {
	recs, err := l.List(ctx, key)
	if err != nil {
		return SnapshotV1{}, fmt.Errorf("list: %w", err)
	}
	snap := SnapshotV1{
		Header: Header{
			Version:   Version,
			CreatedAt: time.Now().UTC(),
			Key:       key,
			Count:     len(recs),
		},
		Records: make([]RecordV1, 0, len(recs)),
	}
	for _, r := range recs {
		if !json.Valid(r.Value) {
			return SnapshotV1{}, fmt.Errorf("record %s is not json", r.PlayerID)
		}
		snap.Records = append(snap.Records, RecordV1{PlayerID: r.PlayerID, Value: r.Value, UpdatedAt: r.UpdatedAt})
	}
	return snap, nil
}

// Import writes every record of snap into s and returns how many it wrote.
func Import(ctx context.Context, s store.Store, snap SnapshotV1) (int, error) {
	key := snap.Header.Key
	if key == "" {
		key = store.QuestStateKey
	}
	n := 0
	for _, r := range snap.Records {
		if err := s.Set(ctx, r.PlayerID, key, r.Value); err != nil {
			return n, fmt.Errorf("import %s: %w", r.PlayerID, err)
		}
		n++
	}
	return n, nil
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)
	je := json.NewEncoder(bw)

	snap.Header.Count = len(snap.Records)
	if err := je.Encode(snap.Header); err != nil {
		_ = enc.Close()
		return err
	}
	for i := range snap.Records {
		if err := je.Encode(&snap.Records[i]); err != nil {
			_ = enc.Close()
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	jd := json.NewDecoder(bufio.NewReaderSize(dec, 256*1024))
	if err := jd.Decode(&snap.Header); err != nil {
		return snap, fmt.Errorf("header: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	snap.Records = make([]RecordV1, 0, snap.Header.Count)
	for jd.More() {
		var r RecordV1
		if err := jd.Decode(&r); err != nil {
			return snap, fmt.Errorf("record %d: %w", len(snap.Records), err)
		}
		snap.Records = append(snap.Records, r)
	}
	if len(snap.Records) != snap.Header.Count {
		return snap, fmt.Errorf("truncated snapshot: header count=%d records=%d", snap.Header.Count, len(snap.Records))
	}
	return snap, nil
}
