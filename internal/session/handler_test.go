package session

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"

	"questsync.dev/internal/persistence/journal"
	"questsync.dev/internal/persistence/store"
	"questsync.dev/internal/protocol"
	"questsync.dev/internal/quest"
)

type capturePublisher struct {
	mu   sync.Mutex
	msgs map[string][]protocol.StateUpdateMsg
}

func (c *capturePublisher) Publish(playerID string, msg protocol.StateUpdateMsg) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.msgs == nil {
		c.msgs = map[string][]protocol.StateUpdateMsg{}
	}
	c.msgs[playerID] = append(c.msgs[playerID], msg)
	return nil
}

func (c *capturePublisher) count(playerID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs[playerID])
}

func (c *capturePublisher) last(t *testing.T, playerID string) quest.State {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.msgs[playerID]
	if len(m) == 0 {
		t.Fatalf("no snapshot for %s", playerID)
	}
	return m[len(m)-1].State()
}

type captureJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (c *captureJournal) Record(e journal.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return nil
}

// flakyStore fails writes (and optionally reads) while its flags are set.
type flakyStore struct {
	*store.Memory
	failSet bool
	failGet bool
}

func (f *flakyStore) Get(ctx context.Context, playerID, key string) ([]byte, bool, error) {
	if f.failGet {
		return nil, false, errors.New("storage unavailable")
	}
	return f.Memory.Get(ctx, playerID, key)
}

func (f *flakyStore) Set(ctx context.Context, playerID, key string, value []byte) error {
	if f.failSet {
		return errors.New("storage unavailable")
	}
	return f.Memory.Set(ctx, playerID, key, value)
}

func newTestHandler(s store.Store) (*Handler, *capturePublisher, *captureJournal, *bytes.Buffer) {
	pub := &capturePublisher{}
	jr := &captureJournal{}
	var buf bytes.Buffer
	h := New(Config{
		Engine:    quest.NewEngine(quest.DefaultRules()),
		Store:     s,
		Publisher: pub,
		Logger:    log.New(&buf, "", 0),
		Journal:   jr,
	})
	return h, pub, jr, &buf
}

func TestSyncOnEveryAction(t *testing.T) {
	h, pub, _, logs := newTestHandler(store.NewMemory())
	ctx := context.Background()

	h.HandleAction(ctx, "p", quest.ActionGetHair) // guard fails
	h.HandleAction(ctx, "p", "dance_action")      // unknown
	h.HandleAction(ctx, "p", quest.ActionTalkOcto1)

	if n := pub.count("p"); n != 3 {
		t.Fatalf("snapshots=%d want 3", n)
	}
	if st := pub.last(t, "p"); st.CurrentStep != quest.TalkOcto1 || !st.QuestStarted {
		t.Fatalf("last=%+v", st)
	}
	if !strings.Contains(logs.String(), `unknown action player=p action="dance_action"`) {
		t.Fatalf("unknown action not logged: %s", logs.String())
	}
	s := h.Stats()
	if s.Actions != 3 || s.NoOps != 2 || s.UnknownActions != 1 || s.Saves != 1 {
		t.Fatalf("stats=%+v", s)
	}
}

func TestActionPersists(t *testing.T) {
	mem := store.NewMemory()
	h, _, _, _ := newTestHandler(mem)
	ctx := context.Background()
	h.HandleAction(ctx, "p", quest.ActionTalkOcto1)
	h.HandleAction(ctx, "p", quest.ActionTalkCatGuy)

	st, err := store.LoadState(ctx, mem, quest.DefaultRules(), "p")
	if err != nil || st.CurrentStep != quest.TalkCatGuy {
		t.Fatalf("stored=%+v err=%v", st, err)
	}
}

func TestWriteFailureStillPublishes(t *testing.T) {
	fs := &flakyStore{Memory: store.NewMemory(), failSet: true}
	h, pub, jr, _ := newTestHandler(fs)

	h.HandleAction(context.Background(), "p", quest.ActionTalkOcto1)

	if st := pub.last(t, "p"); st.CurrentStep != quest.TalkOcto1 {
		t.Fatalf("published=%+v", st)
	}
	if _, ok, _ := fs.Memory.Get(context.Background(), "p", store.QuestStateKey); ok {
		t.Fatalf("record should not exist")
	}
	if h.Stats().SaveFailures != 1 {
		t.Fatalf("stats=%+v", h.Stats())
	}
	if len(jr.entries) != 1 || jr.entries[0].SaveError == "" {
		t.Fatalf("journal=%+v", jr.entries)
	}
}

func TestReadFailureUsesDefault(t *testing.T) {
	fs := &flakyStore{Memory: store.NewMemory()}
	h, pub, jr, _ := newTestHandler(fs)
	ctx := context.Background()
	h.HandleAction(ctx, "p", quest.ActionTalkOcto1)

	fs.failGet = true
	h.HandleStateRequest(ctx, "p")
	if st := pub.last(t, "p"); !st.IsDefault() {
		t.Fatalf("published=%+v want default", st)
	}
	if h.Stats().LoadFailures != 1 {
		t.Fatalf("stats=%+v", h.Stats())
	}
	if last := jr.entries[len(jr.entries)-1]; last.LoadError == "" {
		t.Fatalf("journal=%+v", last)
	}
}

func TestUnresolvedIdentityDropped(t *testing.T) {
	mem := store.NewMemory()
	h, pub, jr, logs := newTestHandler(mem)
	ctx := context.Background()

	h.HandleAction(ctx, "", quest.ActionTalkOcto1)
	h.HandleStateRequest(ctx, "")
	h.HandleReset(ctx, "")

	if n := pub.count(""); n != 0 {
		t.Fatalf("published %d snapshots for empty identity", n)
	}
	if len(jr.entries) != 0 {
		t.Fatalf("journal=%+v", jr.entries)
	}
	recs, _ := mem.List(ctx, store.QuestStateKey)
	if len(recs) != 0 {
		t.Fatalf("records=%+v", recs)
	}
	if h.Stats().Dropped != 3 || !strings.Contains(logs.String(), "unresolved player") {
		t.Fatalf("stats=%+v logs=%s", h.Stats(), logs.String())
	}
}

func TestResetCompleteness(t *testing.T) {
	mem := store.NewMemory()
	h, pub, jr, _ := newTestHandler(mem)
	ctx := context.Background()
	for _, a := range []string{
		quest.ActionTalkOcto1, quest.ActionTalkCatGuy, quest.ActionGetHair, quest.ActionTalkOcto2,
		quest.ActionCollectVine, quest.ActionCollectBerry,
	} {
		h.HandleAction(ctx, "p", a)
	}
	h.HandleReset(ctx, "p")

	if st := pub.last(t, "p"); st != quest.Default() {
		t.Fatalf("published=%+v", st)
	}
	st, err := store.LoadState(ctx, mem, quest.DefaultRules(), "p")
	if err != nil || st != quest.Default() {
		t.Fatalf("stored=%+v err=%v", st, err)
	}
	last := jr.entries[len(jr.entries)-1]
	if last.Kind != journal.KindReset || last.FromStep != int(quest.TalkOcto2) || !last.Changed {
		t.Fatalf("journal=%+v", last)
	}
}

func TestResetOfDefaultStillWrites(t *testing.T) {
	mem := store.NewMemory()
	h, pub, _, _ := newTestHandler(mem)
	h.HandleReset(context.Background(), "fresh")
	if _, ok, _ := mem.Get(context.Background(), "fresh", store.QuestStateKey); !ok {
		t.Fatalf("reset did not write a record")
	}
	if pub.count("fresh") != 1 {
		t.Fatalf("no snapshot")
	}
}

func TestConnectedSet(t *testing.T) {
	h, pub, _, _ := newTestHandler(store.NewMemory())
	ctx := context.Background()

	h.HandleStateRequest(ctx, "b")
	h.HandleStateRequest(ctx, "a")
	h.HandleStateRequest(ctx, "a")
	if got := h.Connected(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("connected=%v", got)
	}
	if pub.count("a") != 2 {
		t.Fatalf("state request must answer every time")
	}
	h.Disconnect("a")
	h.Disconnect("nobody")
	if got := h.Connected(); len(got) != 1 || got[0] != "b" {
		t.Fatalf("connected=%v", got)
	}
	if h.IsConnected("a") || !h.IsConnected("b") {
		t.Fatalf("IsConnected mismatch")
	}
	if h.Stats().Connected != 1 {
		t.Fatalf("stats=%+v", h.Stats())
	}
}

func TestStateRequestDoesNotMutate(t *testing.T) {
	mem := store.NewMemory()
	_ = mem.Set(context.Background(), "p", store.QuestStateKey, []byte(`{"currentStep":2,"questStarted":true}`))
	h, pub, _, _ := newTestHandler(mem)

	h.HandleStateRequest(context.Background(), "p")
	st := pub.last(t, "p")
	if st.CurrentStep != quest.TalkCatGuy || !st.QuestStarted {
		t.Fatalf("published=%+v", st)
	}
	raw, _, _ := mem.Get(context.Background(), "p", store.QuestStateKey)
	if string(raw) != `{"currentStep":2,"questStarted":true}` {
		t.Fatalf("record rewritten: %s", raw)
	}
}

func TestConcurrentSamePlayerCollectionsNotLost(t *testing.T) {
	mem := store.NewMemory()
	rules := quest.Rules{RequiredVines: 50, RequiredBerries: 3, RequiredKimkim: 3}
	h := New(Config{Engine: quest.NewEngine(rules), Store: mem, Publisher: &capturePublisher{}})
	ctx := context.Background()
	_ = store.SaveState(ctx, mem, "p", quest.State{CurrentStep: quest.TalkOcto2, HasCatHair: true, QuestStarted: true})

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.HandleAction(ctx, "p", quest.ActionCollectVine)
		}()
	}
	wg.Wait()

	st, err := store.LoadState(ctx, mem, rules, "p")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if st.CollectedVines != 40 {
		t.Fatalf("vines=%d want 40", st.CollectedVines)
	}
	if h.locks.size() != 0 {
		t.Fatalf("lock table not drained: %d", h.locks.size())
	}
}

func TestPeek(t *testing.T) {
	mem := store.NewMemory()
	h, pub, _, _ := newTestHandler(mem)
	h.HandleAction(context.Background(), "p", quest.ActionTalkOcto1)
	st, err := h.Peek(context.Background(), "p")
	if err != nil || st.CurrentStep != quest.TalkOcto1 {
		t.Fatalf("peek=%+v err=%v", st, err)
	}
	if pub.count("p") != 1 {
		t.Fatalf("peek must not publish")
	}
}
