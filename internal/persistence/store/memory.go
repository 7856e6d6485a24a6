package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store. It loses everything on restart.
type Memory struct {
	mu   sync.RWMutex
	recs map[memKey]Record
}

type memKey struct {
	PlayerID string
	Key      string
}

func NewMemory() *Memory {
	return &Memory{recs: map[memKey]Record{}}
}

func (m *Memory) Get(_ context.Context, playerID, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.recs[memKey{playerID, key}]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), r.Value...), true, nil
}

func (m *Memory) Set(_ context.Context, playerID, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[memKey{playerID, key}] = Record{
		PlayerID:  playerID,
		Key:       key,
		Value:     append([]byte(nil), value...),
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, playerID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, memKey{playerID, key})
	return nil
}

func (m *Memory) List(_ context.Context, key string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.recs))
	for k, r := range m.recs {
		if k.Key != key {
			continue
		}
		r.Value = append([]byte(nil), r.Value...)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out, nil
}
