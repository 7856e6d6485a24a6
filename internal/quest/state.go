// Package quest holds the per-player quest progress model and the transition
// engine that advances it in response to action identifiers.
package quest

import "fmt"

// Step is a monotonic progress milestone. Ordering is meaningful: guards compare
// steps with < and >=.
type Step int

const (
	NotStarted Step = iota
	TalkOcto1
	TalkCatGuy
	TalkOcto2
	CollectHerbs
	TalkOcto3
	CalisStep
	TalkOcto4
)

// FinalStep is the terminal step for gameplay purposes. A reset can still
// move a player out of it.
const FinalStep = TalkOcto4

var stepNames = [...]string{
	NotStarted:   "not_started",
	TalkOcto1:    "talk_octo_1",
	TalkCatGuy:   "talk_catguy",
	TalkOcto2:    "talk_octo_2",
	CollectHerbs: "collect_herbs",
	TalkOcto3:    "talk_octo_3",
	CalisStep:    "calis",
	TalkOcto4:    "talk_octo_4",
}

// Valid reports whether s is one of the enumerated steps.
func (s Step) Valid() bool { return s >= NotStarted && s <= FinalStep }

func (s Step) String() string {
	if !s.Valid() {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

// State is one player's quest progress. It is a plain value: copies are
// independent and the engine never mutates the state it is given.
type State struct {
	CurrentStep      Step
	CollectedVines   int
	CollectedBerries int
	CollectedKimkim  int
	HasCatHair       bool
	HasChalice       bool
	QuestStarted     bool
}

// Default returns the state of a player who has never touched the quest.
func Default() State { return State{CurrentStep: NotStarted} }

// IsDefault reports whether s equals Default().
func (s State) IsDefault() bool { return s == Default() }

// Complete reports whether the player reached the final step.
func (s State) Complete() bool { return s.CurrentStep == FinalStep }

// Rules carries the required resource counts. The reference configuration
// requires three of each.
type Rules struct {
	RequiredVines   int `yaml:"required_vines"`
	RequiredBerries int `yaml:"required_berries"`
	RequiredKimkim  int `yaml:"required_kimkim"`
}

const defaultRequired = 3

// DefaultRules returns the reference thresholds.
func DefaultRules() Rules {
	return Rules{
		RequiredVines:   defaultRequired,
		RequiredBerries: defaultRequired,
		RequiredKimkim:  defaultRequired,
	}
}

// Normalize replaces non-positive thresholds with the reference value.
func (r Rules) Normalize() Rules {
	if r.RequiredVines <= 0 {
		r.RequiredVines = defaultRequired
	}
	if r.RequiredBerries <= 0 {
		r.RequiredBerries = defaultRequired
	}
	if r.RequiredKimkim <= 0 {
		r.RequiredKimkim = defaultRequired
	}
	return r
}

// HasAllHerbs reports whether every resource counter reached its threshold.
func (r Rules) HasAllHerbs(s State) bool {
	return s.CollectedVines >= r.RequiredVines &&
		s.CollectedBerries >= r.RequiredBerries &&
		s.CollectedKimkim >= r.RequiredKimkim
}

// Clamp forces counters into [0, required] and an out-of-range step back to
// NotStarted. Used when reconciling records that did not come from the engine.
func (r Rules) Clamp(s State) State {
	s.CollectedVines = clampInt(s.CollectedVines, 0, r.RequiredVines)
	s.CollectedBerries = clampInt(s.CollectedBerries, 0, r.RequiredBerries)
	s.CollectedKimkim = clampInt(s.CollectedKimkim, 0, r.RequiredKimkim)
	if !s.CurrentStep.Valid() {
		s.CurrentStep = NotStarted
	}
	return s
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
