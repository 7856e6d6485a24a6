package journal

import (
	"fmt"

	"questsync.dev/internal/quest"
)

// Divergence is a journal entry whose recorded outcome does not match what
// the engine produces when re-run from the replayed state.
type Divergence struct {
	Entry  Entry
	Got    quest.State
	Reason string
}

// Replayer re-applies journal entries per player and checks each recorded
// outcome. Players start from the state in Seed, or the default state.
type Replayer struct {
	eng    *quest.Engine
	states map[string]quest.State

	Checked     int
	Divergences []Divergence
}

func NewReplayer(eng *quest.Engine, seed map[string]quest.State) *Replayer {
	states := make(map[string]quest.State, len(seed))
	for id, st := range seed {
		states[id] = st
	}
	return &Replayer{eng: eng, states: states}
}

func (r *Replayer) state(playerID string) quest.State {
	if st, ok := r.states[playerID]; ok {
		return st
	}
	return quest.Default()
}

// Apply replays one entry. After a divergence the replayer adopts nothing
// from the entry; it keeps its own computed state and carries on.
func (r *Replayer) Apply(e Entry) {
	r.Checked++
	cur := r.state(e.PlayerID)
	if e.LoadError != "" {
		// The live handler fell back to the default state.
		cur = quest.Default()
	}
	if int(cur.CurrentStep) != e.FromStep {
		r.diverge(e, cur, fmt.Sprintf("from_step got=%d want=%d", cur.CurrentStep, e.FromStep))
	}

	var (
		next    quest.State
		changed bool
	)
	switch e.Kind {
	case KindAction:
		next, changed = r.eng.Apply(cur, e.ActionID)
	case KindStateRequest:
		next = cur
	case KindReset:
		next, changed = quest.Default(), !cur.IsDefault()
	default:
		r.diverge(e, cur, "unknown kind "+e.Kind)
		return
	}
	r.states[e.PlayerID] = next

	switch {
	case int(next.CurrentStep) != e.ToStep:
		r.diverge(e, next, fmt.Sprintf("to_step got=%d want=%d", next.CurrentStep, e.ToStep))
	case e.Kind == KindAction && changed != e.Changed:
		r.diverge(e, next, fmt.Sprintf("changed got=%v want=%v", changed, e.Changed))
	case e.Digest != "" && StateDigest(next) != e.Digest:
		r.diverge(e, next, "digest mismatch")
	}
}

func (r *Replayer) diverge(e Entry, got quest.State, reason string) {
	r.Divergences = append(r.Divergences, Divergence{Entry: e, Got: got, Reason: reason})
}

// States returns the replayed state of every player seen so far.
func (r *Replayer) States() map[string]quest.State {
	out := make(map[string]quest.State, len(r.states))
	for id, st := range r.states {
		out[id] = st
	}
	return out
}
