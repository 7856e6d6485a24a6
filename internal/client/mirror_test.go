package client

import (
	"context"
	"testing"
	"time"

	"questsync.dev/internal/protocol"
	"questsync.dev/internal/quest"
)

type stepChange struct{ old, new quest.Step }

func TestMirrorStepChangeOnlyOnStepDiff(t *testing.T) {
	m := NewMirror()
	var steps []stepChange
	updates := 0
	m.OnStepChange(func(o, n quest.Step) { steps = append(steps, stepChange{o, n}) })
	m.OnUpdate(func(quest.State) { updates++ })

	s := quest.State{CurrentStep: quest.TalkOcto2, HasCatHair: true, QuestStarted: true}
	m.Apply(protocol.NewStateUpdate(s))
	s.CollectedVines = 1
	m.Apply(protocol.NewStateUpdate(s))
	m.Apply(protocol.NewStateUpdate(s))

	if len(steps) != 1 || steps[0] != (stepChange{quest.NotStarted, quest.TalkOcto2}) {
		t.Fatalf("steps=%v", steps)
	}
	if updates != 3 {
		t.Fatalf("updates=%d want 3", updates)
	}
	if m.State() != s || m.Step() != quest.TalkOcto2 {
		t.Fatalf("mirror=%+v", m.State())
	}
}

func TestMirrorReplacesWholesale(t *testing.T) {
	m := NewMirror()
	m.Apply(protocol.NewStateUpdate(quest.State{CurrentStep: quest.CalisStep, HasChalice: true, CollectedVines: 3}))
	m.Apply(protocol.NewStateUpdate(quest.Default()))
	if !m.State().IsDefault() {
		t.Fatalf("mirror kept stale fields: %+v", m.State())
	}
	if !m.Received() {
		t.Fatalf("Received=false")
	}
}

func TestMirrorCompletionHookRearms(t *testing.T) {
	m := NewMirror()
	fired := 0
	m.OnComplete(func() { fired++ })

	done := quest.State{CurrentStep: quest.TalkOcto4, HasChalice: true, QuestStarted: true}
	m.Apply(protocol.NewStateUpdate(done))
	m.Apply(protocol.NewStateUpdate(done))
	if fired != 1 {
		t.Fatalf("fired=%d after repeat snapshots", fired)
	}
	m.Apply(protocol.NewStateUpdate(quest.Default()))
	m.Apply(protocol.NewStateUpdate(done))
	if fired != 2 {
		t.Fatalf("fired=%d after reset and replay", fired)
	}
}

func TestMirrorWait(t *testing.T) {
	m := NewMirror()
	seq := m.Seq()
	go func() {
		time.Sleep(10 * time.Millisecond)
		m.Apply(protocol.NewStateUpdate(quest.State{CurrentStep: quest.TalkOcto1, QuestStarted: true}))
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, next, err := m.Wait(ctx, seq)
	if err != nil || st.CurrentStep != quest.TalkOcto1 || next != seq+1 {
		t.Fatalf("st=%+v next=%d err=%v", st, next, err)
	}

	short, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	if _, _, err := m.Wait(short, next); err == nil {
		t.Fatalf("expected timeout")
	}
}
