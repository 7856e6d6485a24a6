// Package store persists quest state in per-player key/value storage.
//
// The Store contract is deliberately narrow (Get/Set of opaque bytes) so a
// hosted player-storage service, a local sqlite file, or plain files can back
// it. Reading and reconciling a record into a quest.State lives here too, in
// LoadState and SaveState, so every backend shares the same merge rules.
package store

import (
	"context"
	"fmt"
	"time"

	"questsync.dev/internal/quest"
)

// QuestStateKey is the fixed logical key quest progress is stored under.
const QuestStateKey = "questState"

type Store interface {
	// Get returns ok=false with a nil error when no record exists.
	Get(ctx context.Context, playerID, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, playerID, key string, value []byte) error
}

// Record is one stored value, as returned by Lister implementations.
type Record struct {
	PlayerID  string
	Key       string
	Value     []byte
	UpdatedAt time.Time
}

// Lister is implemented by backends that can enumerate their records. Admin
// tooling (export, list) needs it; the session handler never does.
type Lister interface {
	List(ctx context.Context, key string) ([]Record, error)
}

// Deleter is implemented by backends that can drop a record outright.
type Deleter interface {
	Delete(ctx context.Context, playerID, key string) error
}

// LoadState reads and reconciles playerID's quest state. A missing record
// yields the default state and a nil error. A read or decode failure yields
// the default state together with the error so the caller can log it and
// carry on.
func LoadState(ctx context.Context, s Store, rules quest.Rules, playerID string) (quest.State, error) {
	raw, ok, err := s.Get(ctx, playerID, QuestStateKey)
	if err != nil {
		return quest.Default(), fmt.Errorf("load %s: %w", playerID, err)
	}
	if !ok || len(raw) == 0 {
		return quest.Default(), nil
	}
	st, err := DecodeState(raw, rules)
	if err != nil {
		return quest.Default(), fmt.Errorf("decode %s: %w", playerID, err)
	}
	return st, nil
}

// SaveState writes st as playerID's quest state.
func SaveState(ctx context.Context, s Store, playerID string, st quest.State) error {
	raw, err := EncodeState(st)
	if err != nil {
		return err
	}
	if err := s.Set(ctx, playerID, QuestStateKey, raw); err != nil {
		return fmt.Errorf("save %s: %w", playerID, err)
	}
	return nil
}
