package ws

import (
	"encoding/json"
	"fmt"
	"sync"

	"questsync.dev/internal/protocol"
)

// Hub fans snapshots out to every open connection of a player. It implements
// session.Publisher.
type Hub struct {
	mu      sync.Mutex
	players map[string]map[string]chan []byte
}

func NewHub() *Hub {
	return &Hub{players: map[string]map[string]chan []byte{}}
}

func (h *Hub) add(playerID, connID string, out chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.players[playerID]
	if conns == nil {
		conns = map[string]chan []byte{}
		h.players[playerID] = conns
	}
	conns[connID] = out
}

// remove drops one connection and returns how many the player still has.
func (h *Hub) remove(playerID, connID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.players[playerID]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(h.players, playerID)
		return 0
	}
	return len(conns)
}

// Conns returns the number of open connections for playerID.
func (h *Hub) Conns(playerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.players[playerID])
}

// Publish queues msg on every connection of playerID. A connection whose
// queue is full misses this frame; the next snapshot supersedes it anyway.
func (h *Hub) Publish(playerID string, msg protocol.StateUpdateMsg) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	dropped := 0
	for _, out := range h.players[playerID] {
		select {
		case out <- b:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("outbound queue full on %d connection(s)", dropped)
	}
	return nil
}
