// Package client keeps a read-only mirror of the server's quest snapshot and
// speaks the quest protocol over a websocket.
package client

import (
	"context"
	"sync"

	"questsync.dev/internal/protocol"
	"questsync.dev/internal/quest"
)

// StepListener observes step transitions only.
type StepListener func(old, new quest.Step)

// UpdateListener observes every applied snapshot.
type UpdateListener func(quest.State)

// Mirror is the client's copy of the last received snapshot. It never
// computes state itself; Apply replaces it wholesale.
type Mirror struct {
	mu       sync.Mutex
	state    quest.State
	received bool
	// completeFired is set once the completion hook has run for the current
	// visit to the final step.
	completeFired bool

	seq    uint64
	notify chan struct{}

	stepLs     []StepListener
	updateLs   []UpdateListener
	completeLs []func()
}

func NewMirror() *Mirror {
	return &Mirror{state: quest.Default(), notify: make(chan struct{})}
}

func (m *Mirror) State() quest.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Mirror) Step() quest.Step { return m.State().CurrentStep }

// Received reports whether any snapshot has been applied yet.
func (m *Mirror) Received() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received
}

func (m *Mirror) OnStepChange(fn StepListener) {
	m.mu.Lock()
	m.stepLs = append(m.stepLs, fn)
	m.mu.Unlock()
}

func (m *Mirror) OnUpdate(fn UpdateListener) {
	m.mu.Lock()
	m.updateLs = append(m.updateLs, fn)
	m.mu.Unlock()
}

// OnComplete registers a hook that runs once each time the mirror enters the
// final step. Leaving the final step (a reset) re-arms it.
func (m *Mirror) OnComplete(fn func()) {
	m.mu.Lock()
	m.completeLs = append(m.completeLs, fn)
	m.mu.Unlock()
}

// Apply replaces the mirror with msg. Listeners run on the caller's
// goroutine after the lock is released, step listeners first.
func (m *Mirror) Apply(msg protocol.StateUpdateMsg) {
	next := msg.State()

	m.mu.Lock()
	prev := m.state
	m.state = next
	m.received = true
	fireComplete := false
	if next.CurrentStep == quest.FinalStep {
		if !m.completeFired {
			m.completeFired = true
			fireComplete = true
		}
	} else {
		m.completeFired = false
	}
	stepLs := append([]StepListener(nil), m.stepLs...)
	updateLs := append([]UpdateListener(nil), m.updateLs...)
	completeLs := append([]func(){}, m.completeLs...)
	m.mu.Unlock()

	if prev.CurrentStep != next.CurrentStep {
		for _, fn := range stepLs {
			fn(prev.CurrentStep, next.CurrentStep)
		}
	}
	for _, fn := range updateLs {
		fn(next)
	}
	if fireComplete {
		for _, fn := range completeLs {
			fn()
		}
	}

	// Waiters wake only after every listener has seen this snapshot.
	m.mu.Lock()
	m.seq++
	close(m.notify)
	m.notify = make(chan struct{})
	m.mu.Unlock()
}

// Seq counts applied snapshots.
func (m *Mirror) Seq() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}

// Wait blocks until a snapshot newer than seq after has been applied and
// returns the mirrored state with the current sequence number.
func (m *Mirror) Wait(ctx context.Context, after uint64) (quest.State, uint64, error) {
	for {
		m.mu.Lock()
		if m.seq > after {
			st, seq := m.state, m.seq
			m.mu.Unlock()
			return st, seq, nil
		}
		ch := m.notify
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return quest.State{}, after, ctx.Err()
		case <-ch:
		}
	}
}
