// Package session binds the quest engine to a store and a publisher. Every
// inbound message for a player runs load, apply, save and publish as one
// critical section for that player.
package session

import (
	"context"
	"io"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"questsync.dev/internal/persistence/journal"
	"questsync.dev/internal/persistence/store"
	"questsync.dev/internal/protocol"
	"questsync.dev/internal/quest"
)

// Publisher delivers a snapshot to every connection of a player.
type Publisher interface {
	Publish(playerID string, msg protocol.StateUpdateMsg) error
}

// Recorder receives one journal entry per processed message.
type Recorder interface {
	Record(journal.Entry) error
}

type Config struct {
	Engine    *quest.Engine
	Store     store.Store
	Publisher Publisher
	Logger    *log.Logger
	// Journal is optional.
	Journal Recorder
	// Tracer defaults to the global provider's tracer.
	Tracer trace.Tracer
}

type Handler struct {
	eng   *quest.Engine
	store store.Store
	pub   Publisher
	log   *log.Logger
	jr    Recorder
	tr    trace.Tracer

	locks *keyLock

	connMu    sync.Mutex
	connected map[string]struct{}

	stats counters
}

type counters struct {
	actions      atomic.Uint64
	noops        atomic.Uint64
	unknown      atomic.Uint64
	stateReqs    atomic.Uint64
	resets       atomic.Uint64
	saves        atomic.Uint64
	saveFailures atomic.Uint64
	loadFailures atomic.Uint64
	publishFails atomic.Uint64
	dropped      atomic.Uint64
}

// Stats is a point-in-time copy of the handler counters.
type Stats struct {
	Actions         uint64
	NoOps           uint64
	UnknownActions  uint64
	StateRequests   uint64
	Resets          uint64
	Saves           uint64
	SaveFailures    uint64
	LoadFailures    uint64
	PublishFailures uint64
	Dropped         uint64
	Connected       int
}

func New(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	tr := cfg.Tracer
	if tr == nil {
		tr = otel.Tracer("questsync.dev/internal/session")
	}
	return &Handler{
		eng:       cfg.Engine,
		store:     cfg.Store,
		pub:       cfg.Publisher,
		log:       logger,
		jr:        cfg.Journal,
		tr:        tr,
		locks:     newKeyLock(),
		connected: map[string]struct{}{},
	}
}

func (h *Handler) Engine() *quest.Engine { return h.eng }

// HandleAction applies actionID to the player's stored state. A snapshot is
// published whether or not anything changed.
func (h *Handler) HandleAction(ctx context.Context, playerID, actionID string) {
	if playerID == "" {
		h.drop("action", actionID)
		return
	}
	ctx, span := h.tr.Start(ctx, "quest.action", trace.WithAttributes(
		attribute.String("quest.player", playerID),
		attribute.String("quest.action", actionID),
	))
	defer span.End()

	unlock := h.locks.Lock(playerID)
	defer unlock()

	h.stats.actions.Add(1)
	cur, loadErr := h.load(ctx, playerID)

	if !h.eng.Known(actionID) {
		h.stats.unknown.Add(1)
		h.log.Printf("unknown action player=%s action=%q", playerID, actionID)
	}
	next, changed := h.eng.Apply(cur, actionID)
	span.SetAttributes(attribute.Bool("quest.changed", changed), attribute.Int("quest.step", int(next.CurrentStep)))

	var saveErr error
	if changed {
		saveErr = h.save(ctx, playerID, next)
	} else {
		h.stats.noops.Add(1)
	}
	if saveErr != nil {
		span.RecordError(saveErr)
	}

	h.record(journal.Entry{
		PlayerID: playerID,
		Kind:     journal.KindAction,
		ActionID: actionID,
		FromStep: int(cur.CurrentStep),
		ToStep:   int(next.CurrentStep),
		Changed:  changed,
	}, next, loadErr, saveErr)
	h.publish(playerID, next)
}

// HandleStateRequest marks the player connected and publishes the stored
// state without touching it.
func (h *Handler) HandleStateRequest(ctx context.Context, playerID string) {
	if playerID == "" {
		h.drop("state_request", "")
		return
	}
	ctx, span := h.tr.Start(ctx, "quest.state_request", trace.WithAttributes(
		attribute.String("quest.player", playerID),
	))
	defer span.End()

	h.markConnected(playerID)

	unlock := h.locks.Lock(playerID)
	defer unlock()

	h.stats.stateReqs.Add(1)
	cur, loadErr := h.load(ctx, playerID)
	span.SetAttributes(attribute.Int("quest.step", int(cur.CurrentStep)))

	h.record(journal.Entry{
		PlayerID: playerID,
		Kind:     journal.KindStateRequest,
		FromStep: int(cur.CurrentStep),
		ToStep:   int(cur.CurrentStep),
	}, cur, loadErr, nil)
	h.publish(playerID, cur)
}

// HandleReset overwrites the stored state with the default and publishes it.
func (h *Handler) HandleReset(ctx context.Context, playerID string) {
	if playerID == "" {
		h.drop("reset", "")
		return
	}
	ctx, span := h.tr.Start(ctx, "quest.reset", trace.WithAttributes(
		attribute.String("quest.player", playerID),
	))
	defer span.End()

	unlock := h.locks.Lock(playerID)
	defer unlock()

	h.stats.resets.Add(1)
	// Loaded only for the journal; the write below is unconditional.
	prev, loadErr := h.load(ctx, playerID)
	next := quest.Default()
	saveErr := h.save(ctx, playerID, next)
	if saveErr != nil {
		span.RecordError(saveErr)
	}
	h.log.Printf("reset player=%s from_step=%s", playerID, prev.CurrentStep)

	h.record(journal.Entry{
		PlayerID: playerID,
		Kind:     journal.KindReset,
		FromStep: int(prev.CurrentStep),
		ToStep:   int(next.CurrentStep),
		Changed:  !prev.IsDefault(),
	}, next, loadErr, saveErr)
	h.publish(playerID, next)
}

// Disconnect removes playerID from the connected set. The transport calls
// it once the player's last connection has closed.
func (h *Handler) Disconnect(playerID string) {
	h.connMu.Lock()
	delete(h.connected, playerID)
	h.connMu.Unlock()
}

// markConnected is idempotent: a reconnecting player is not an error.
func (h *Handler) markConnected(playerID string) {
	h.connMu.Lock()
	h.connected[playerID] = struct{}{}
	h.connMu.Unlock()
}

// Connected returns the connected player ids, sorted.
func (h *Handler) Connected() []string {
	h.connMu.Lock()
	out := make([]string, 0, len(h.connected))
	for id := range h.connected {
		out = append(out, id)
	}
	h.connMu.Unlock()
	sort.Strings(out)
	return out
}

// IsConnected reports whether playerID has a live connection.
func (h *Handler) IsConnected(playerID string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	_, ok := h.connected[playerID]
	return ok
}

// Peek loads the player's state without publishing or journaling.
func (h *Handler) Peek(ctx context.Context, playerID string) (quest.State, error) {
	unlock := h.locks.Lock(playerID)
	defer unlock()
	return store.LoadState(ctx, h.store, h.eng.Rules(), playerID)
}

func (h *Handler) Stats() Stats {
	h.connMu.Lock()
	n := len(h.connected)
	h.connMu.Unlock()
	return Stats{
		Actions:         h.stats.actions.Load(),
		NoOps:           h.stats.noops.Load(),
		UnknownActions:  h.stats.unknown.Load(),
		StateRequests:   h.stats.stateReqs.Load(),
		Resets:          h.stats.resets.Load(),
		Saves:           h.stats.saves.Load(),
		SaveFailures:    h.stats.saveFailures.Load(),
		LoadFailures:    h.stats.loadFailures.Load(),
		PublishFailures: h.stats.publishFails.Load(),
		Dropped:         h.stats.dropped.Load(),
		Connected:       n,
	}
}

func (h *Handler) drop(kind, actionID string) {
	h.stats.dropped.Add(1)
	h.log.Printf("drop %s: unresolved player action=%q", kind, actionID)
}

func (h *Handler) load(ctx context.Context, playerID string) (quest.State, error) {
	st, err := store.LoadState(ctx, h.store, h.eng.Rules(), playerID)
	if err != nil {
		h.stats.loadFailures.Add(1)
		h.log.Printf("load failed player=%s err=%v (using default state)", playerID, err)
	}
	return st, err
}

func (h *Handler) save(ctx context.Context, playerID string, st quest.State) error {
	if err := store.SaveState(ctx, h.store, playerID, st); err != nil {
		h.stats.saveFailures.Add(1)
		h.log.Printf("save failed player=%s step=%s err=%v", playerID, st.CurrentStep, err)
		return err
	}
	h.stats.saves.Add(1)
	return nil
}

func (h *Handler) publish(playerID string, st quest.State) {
	if h.pub == nil {
		return
	}
	if err := h.pub.Publish(playerID, protocol.NewStateUpdate(st)); err != nil {
		h.stats.publishFails.Add(1)
		h.log.Printf("publish failed player=%s err=%v", playerID, err)
	}
}

func (h *Handler) record(e journal.Entry, published quest.State, loadErr, saveErr error) {
	if h.jr == nil {
		return
	}
	e.Time = time.Now().UTC()
	e.Digest = journal.StateDigest(published)
	if loadErr != nil {
		e.LoadError = loadErr.Error()
	}
	if saveErr != nil {
		e.SaveError = saveErr.Error()
	}
	if err := h.jr.Record(e); err != nil {
		h.log.Printf("journal write failed player=%s kind=%s err=%v", e.PlayerID, e.Kind, err)
	}
}
