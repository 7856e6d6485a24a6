// Package journal records every message the session handler processes as
// compressed JSONL, and reads those files back for replay verification.
package journal

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"time"

	"questsync.dev/internal/persistence/store"
	"questsync.dev/internal/quest"
)

const FilePrefix = "journal"

// Entry kinds.
const (
	KindAction       = "action"
	KindStateRequest = "state_request"
	KindReset        = "reset"
)

type Entry struct {
	Time      time.Time `json:"time"`
	PlayerID  string    `json:"player"`
	Kind      string    `json:"kind"`
	ActionID  string    `json:"action,omitempty"`
	FromStep  int       `json:"from_step"`
	ToStep    int       `json:"to_step"`
	Changed   bool      `json:"changed"`
	LoadError string    `json:"load_error,omitempty"`
	SaveError string    `json:"save_error,omitempty"`
	// Digest is StateDigest of the state published for this entry.
	Digest string `json:"digest"`
}

// Journal is the transition journal kept under {dataDir}/journal.
type Journal struct{ w *JSONLZstdWriter }

func Open(dataDir string) *Journal {
	return &Journal{w: NewJSONLZstdWriter(filepath.Join(dataDir, "journal"), FilePrefix)}
}

func (j *Journal) Record(e Entry) error { return j.w.Write(e) }
func (j *Journal) Close() error         { return j.w.Close() }

// OnFileClosed forwards finished journal files to fn, e.g. an offsite
// uploader's Enqueue.
func (j *Journal) OnFileClosed(fn func(path string)) { j.w.OnClose(fn) }

// StateDigest is a stable fingerprint of a quest state: the hex sha256 of its
// persisted JSON encoding.
func StateDigest(s quest.State) string {
	b, err := store.EncodeState(s)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
