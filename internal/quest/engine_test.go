package quest

import (
	"math/rand"
	"testing"
)

func applyAll(t *testing.T, e *Engine, s State, ids ...string) State {
	t.Helper()
	for _, id := range ids {
		s, _ = e.Apply(s, id)
	}
	return s
}

func TestEngine_HappyPath(t *testing.T) {
	e := NewEngine(DefaultRules())
	s := Default()

	steps := []struct {
		action string
		check  func(State) bool
		desc   string
	}{
		{ActionTalkOcto1, func(s State) bool { return s.CurrentStep == TalkOcto1 && s.QuestStarted }, "quest started"},
		{ActionTalkCatGuy, func(s State) bool { return s.CurrentStep == TalkCatGuy }, "talked to cat guy"},
		{ActionGetHair, func(s State) bool { return s.HasCatHair && s.CurrentStep == TalkCatGuy }, "has cat hair"},
		{ActionTalkOcto2, func(s State) bool { return s.CurrentStep == TalkOcto2 }, "brought hair"},
	}
	for _, st := range steps {
		var changed bool
		s, changed = e.Apply(s, st.action)
		if !changed || !st.check(s) {
			t.Fatalf("%s: changed=%v state=%+v", st.desc, changed, s)
		}
	}

	for i := 0; i < 3; i++ {
		s = applyAll(t, e, s, ActionCollectVine)
	}
	for i := 0; i < 3; i++ {
		s = applyAll(t, e, s, ActionCollectBerry)
	}
	for i := 0; i < 3; i++ {
		s = applyAll(t, e, s, ActionCollectKimk)
	}
	if s.CurrentStep != CollectHerbs || s.CollectedVines != 3 || s.CollectedBerries != 3 || s.CollectedKimkim != 3 {
		t.Fatalf("after collection: %+v", s)
	}

	s = applyAll(t, e, s, ActionTalkOcto3)
	if s.CurrentStep != TalkOcto3 {
		t.Fatalf("talk_octo_3: %+v", s)
	}
	s = applyAll(t, e, s, ActionCalis)
	if !s.HasChalice || s.CurrentStep != CalisStep {
		t.Fatalf("calis: %+v", s)
	}
	s = applyAll(t, e, s, ActionTalkOcto4)
	if s.CurrentStep != TalkOcto4 || !s.Complete() {
		t.Fatalf("talk_octo_4: %+v", s)
	}
}

func TestEngine_GuardRejectionFromDefault(t *testing.T) {
	e := NewEngine(DefaultRules())
	for _, id := range e.Actions() {
		if id == ActionTalkOcto1 {
			continue
		}
		next, changed := e.Apply(Default(), id)
		if changed || next != Default() {
			t.Fatalf("%s from default: changed=%v state=%+v", id, changed, next)
		}
	}
}

func TestEngine_UnknownActionIsNoop(t *testing.T) {
	e := NewEngine(DefaultRules())
	s := State{CurrentStep: TalkOcto2, QuestStarted: true, HasCatHair: true, CollectedVines: 1}
	next, changed := e.Apply(s, "open_door_action")
	if changed || next != s {
		t.Fatalf("unknown action mutated state: %+v", next)
	}
	if e.Known("open_door_action") {
		t.Fatalf("unexpected known action")
	}
	if !e.Known(ActionCalis) {
		t.Fatalf("calis_action should be known")
	}
}

func TestEngine_CounterCapping(t *testing.T) {
	e := NewEngine(DefaultRules())
	s := State{CurrentStep: TalkOcto2, QuestStarted: true, HasCatHair: true}
	for i := 0; i < 10; i++ {
		s, _ = e.Apply(s, ActionCollectVine)
		if s.CollectedVines > 3 {
			t.Fatalf("vines exceeded cap: %d", s.CollectedVines)
		}
	}
	if s.CollectedVines != 3 {
		t.Fatalf("vines=%d want=3", s.CollectedVines)
	}
	if _, changed := e.Apply(s, ActionCollectVine); changed {
		t.Fatalf("collecting past the cap should be a no-op")
	}
}

func TestEngine_AutoAdvanceOnLastResource(t *testing.T) {
	e := NewEngine(DefaultRules())
	cases := []struct {
		name   string
		state  State
		action string
	}{
		{"vine last", State{CurrentStep: TalkOcto2, QuestStarted: true, HasCatHair: true, CollectedVines: 2, CollectedBerries: 3, CollectedKimkim: 3}, ActionCollectVine},
		{"berry last", State{CurrentStep: TalkOcto2, QuestStarted: true, HasCatHair: true, CollectedVines: 3, CollectedBerries: 2, CollectedKimkim: 3}, ActionCollectBerry},
		{"kimkim last", State{CurrentStep: TalkOcto2, QuestStarted: true, HasCatHair: true, CollectedVines: 3, CollectedBerries: 3, CollectedKimkim: 2}, ActionCollectKimk},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, changed := e.Apply(tc.state, tc.action)
			if !changed {
				t.Fatalf("expected change")
			}
			if next.CurrentStep != CollectHerbs {
				t.Fatalf("step=%v want=%v", next.CurrentStep, CollectHerbs)
			}
			if next.CollectedVines != 3 || next.CollectedBerries != 3 || next.CollectedKimkim != 3 {
				t.Fatalf("counters: %+v", next)
			}
		})
	}
}

func TestEngine_CollectionOrderCommutes(t *testing.T) {
	e := NewEngine(DefaultRules())
	start := State{CurrentStep: TalkOcto2, QuestStarted: true, HasCatHair: true}
	perms := [][]string{
		{ActionCollectKimk, ActionCollectVine, ActionCollectBerry},
		{ActionCollectKimk, ActionCollectBerry, ActionCollectVine},
		{ActionCollectVine, ActionCollectKimk, ActionCollectBerry},
		{ActionCollectVine, ActionCollectBerry, ActionCollectKimk},
		{ActionCollectBerry, ActionCollectVine, ActionCollectKimk},
		{ActionCollectBerry, ActionCollectKimk, ActionCollectVine},
	}
	want := applyAll(t, e, start, perms[0]...)
	for _, p := range perms[1:] {
		if got := applyAll(t, e, start, p...); got != want {
			t.Fatalf("order %v: got %+v want %+v", p, got, want)
		}
	}
	if want.CollectedVines != 1 || want.CollectedBerries != 1 || want.CollectedKimkim != 1 || want.CurrentStep != TalkOcto2 {
		t.Fatalf("unexpected result %+v", want)
	}
}

func TestEngine_NoopIdempotence(t *testing.T) {
	e := NewEngine(DefaultRules())
	r := rand.New(rand.NewSource(7))
	actions := e.Actions()
	for trial := 0; trial < 200; trial++ {
		s := Default()
		n := r.Intn(30)
		for i := 0; i < n; i++ {
			s, _ = e.Apply(s, actions[r.Intn(len(actions))])
		}
		id := actions[r.Intn(len(actions))]
		once, _ := e.Apply(s, id)
		twice, changed := e.Apply(once, id)
		if id == ActionCollectVine || id == ActionCollectBerry || id == ActionCollectKimk {
			// counters legitimately move again until they cap
			continue
		}
		if changed || twice != once {
			t.Fatalf("%s applied twice from %+v: once=%+v twice=%+v", id, s, once, twice)
		}
	}
}

func TestEngine_StepMonotonicWithoutReset(t *testing.T) {
	e := NewEngine(DefaultRules())
	r := rand.New(rand.NewSource(42))
	actions := append(e.Actions(), "bogus_action", "")
	for trial := 0; trial < 500; trial++ {
		s := Default()
		for i := 0; i < 60; i++ {
			next, _ := e.Apply(s, actions[r.Intn(len(actions))])
			if next.CurrentStep < s.CurrentStep {
				t.Fatalf("step decreased: %v -> %v", s.CurrentStep, next.CurrentStep)
			}
			if next.HasCatHair && next.CurrentStep < TalkCatGuy {
				t.Fatalf("cat hair before cat guy: %+v", next)
			}
			if next.HasChalice && next.CurrentStep < TalkOcto3 {
				t.Fatalf("chalice before talk_octo_3: %+v", next)
			}
			s = next
		}
	}
}

func TestEngine_LateReplayDoesNotRegress(t *testing.T) {
	e := NewEngine(DefaultRules())
	s := State{CurrentStep: TalkOcto3, QuestStarted: true, HasCatHair: true, CollectedVines: 3, CollectedBerries: 3, CollectedKimkim: 3}
	for _, id := range []string{ActionTalkOcto2, ActionTalkOcto3, ActionTalkCatGuy, ActionTalkOcto1} {
		next, changed := e.Apply(s, id)
		if changed || next != s {
			t.Fatalf("replayed %s changed state: %+v", id, next)
		}
	}
}

func TestEngine_CustomThresholds(t *testing.T) {
	e := NewEngine(Rules{RequiredVines: 1, RequiredBerries: 1, RequiredKimkim: 2})
	s := State{CurrentStep: TalkOcto2, QuestStarted: true, HasCatHair: true}
	s = applyAll(t, e, s, ActionCollectVine, ActionCollectVine, ActionCollectBerry, ActionCollectKimk)
	if s.CurrentStep != TalkOcto2 || s.CollectedVines != 1 {
		t.Fatalf("premature advance: %+v", s)
	}
	s = applyAll(t, e, s, ActionCollectKimk)
	if s.CurrentStep != CollectHerbs {
		t.Fatalf("expected collect_herbs, got %+v", s)
	}
}
