package quest

import "sort"

// Action identifiers emitted by the world (dialog choices, pickups).
const (
	ActionTalkOcto1    = "talk_octo_1_action"
	ActionTalkCatGuy   = "talk_catguy_action"
	ActionGetHair      = "get_hair_action"
	ActionTalkOcto2    = "talk_octo_2_action"
	ActionCollectVine  = "collect_vine_action"
	ActionCollectBerry = "collect_berry_action"
	ActionCollectKimk  = "collect_kimkim_action"
	ActionTalkOcto3    = "talk_octo_3_action"
	ActionCalis        = "calis_action"
	ActionTalkOcto4    = "talk_octo_4_action"
)

// transition returns the next state and whether its guard held. A transition
// whose guard fails must return its input unchanged.
type transition func(s State, r Rules) (State, bool)

// Engine applies action identifiers to quest state. It is safe for concurrent
// use: the table is built once and never written afterwards.
type Engine struct {
	rules Rules
	table map[string]transition
}

func NewEngine(rules Rules) *Engine {
	return &Engine{
		rules: rules.Normalize(),
		table: map[string]transition{
			ActionTalkOcto1:    talkOcto1,
			ActionTalkCatGuy:   talkCatGuy,
			ActionGetHair:      getHair,
			ActionTalkOcto2:    talkOcto2,
			ActionCollectVine:  collect(vines),
			ActionCollectBerry: collect(berries),
			ActionCollectKimk:  collect(kimkim),
			ActionTalkOcto3:    talkOcto3,
			ActionCalis:        calis,
			ActionTalkOcto4:    talkOcto4,
		},
	}
}

func (e *Engine) Rules() Rules { return e.rules }

// Known reports whether actionID is part of the action vocabulary.
func (e *Engine) Known(actionID string) bool {
	_, ok := e.table[actionID]
	return ok
}

// Actions returns the vocabulary in sorted order.
func (e *Engine) Actions() []string {
	out := make([]string, 0, len(e.table))
	for id := range e.table {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Apply computes the state that follows s when actionID is performed.
// Unknown ids and failed guards are no-ops. The returned step is never lower
// than s.CurrentStep; changed reports whether the result differs from s.
func (e *Engine) Apply(s State, actionID string) (next State, changed bool) {
	t, ok := e.table[actionID]
	if !ok {
		return s, false
	}
	next, ok = t(s, e.rules)
	if !ok {
		return s, false
	}
	if next.CurrentStep < s.CurrentStep {
		next.CurrentStep = s.CurrentStep
	}
	return next, next != s
}

func talkOcto1(s State, _ Rules) (State, bool) {
	if s.QuestStarted {
		return s, false
	}
	s.QuestStarted = true
	s.CurrentStep = TalkOcto1
	return s, true
}

func talkCatGuy(s State, _ Rules) (State, bool) {
	if s.CurrentStep < TalkOcto1 || s.CurrentStep >= TalkCatGuy {
		return s, false
	}
	s.CurrentStep = TalkCatGuy
	return s, true
}

func getHair(s State, _ Rules) (State, bool) {
	if s.CurrentStep < TalkCatGuy || s.HasCatHair {
		return s, false
	}
	s.HasCatHair = true
	return s, true
}

func talkOcto2(s State, _ Rules) (State, bool) {
	if !s.HasCatHair || s.CurrentStep < TalkCatGuy {
		return s, false
	}
	s.CurrentStep = TalkOcto2
	return s, true
}

type resource int

const (
	vines resource = iota
	berries
	kimkim
)

// collect increments one resource counter and advances to CollectHerbs when
// that increment completes the set, whichever resource comes last.
func collect(res resource) transition {
	return func(s State, r Rules) (State, bool) {
		if s.CurrentStep < TalkOcto2 {
			return s, false
		}
		var have *int
		var need int
		switch res {
		case vines:
			have, need = &s.CollectedVines, r.RequiredVines
		case berries:
			have, need = &s.CollectedBerries, r.RequiredBerries
		default:
			have, need = &s.CollectedKimkim, r.RequiredKimkim
		}
		if *have >= need {
			return s, false
		}
		*have++
		if r.HasAllHerbs(s) && s.CurrentStep < CollectHerbs {
			s.CurrentStep = CollectHerbs
		}
		return s, true
	}
}

func talkOcto3(s State, r Rules) (State, bool) {
	if !r.HasAllHerbs(s) || s.CurrentStep < TalkOcto2 {
		return s, false
	}
	s.CurrentStep = TalkOcto3
	return s, true
}

func calis(s State, _ Rules) (State, bool) {
	if s.CurrentStep < TalkOcto3 || s.HasChalice {
		return s, false
	}
	s.HasChalice = true
	if s.CurrentStep == TalkOcto3 {
		s.CurrentStep = CalisStep
	}
	return s, true
}

func talkOcto4(s State, _ Rules) (State, bool) {
	if !s.HasChalice || s.CurrentStep < CalisStep {
		return s, false
	}
	s.CurrentStep = TalkOcto4
	return s, true
}
