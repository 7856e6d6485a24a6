package store

import (
	"encoding/json"

	"questsync.dev/internal/quest"
)

// persistedState is the stored JSON shape: exactly the quest.State fields.
type persistedState struct {
	CurrentStep      int  `json:"currentStep"`
	CollectedVines   int  `json:"collectedVines"`
	CollectedBerries int  `json:"collectedBerries"`
	CollectedKimkim  int  `json:"collectedKimkim"`
	HasCatHair       bool `json:"hasCatHair"`
	HasChalice       bool `json:"hasChalice"`
	QuestStarted     bool `json:"questStarted"`
}

// partialState decodes a record that may predate some fields. Every field is
// optional so absence can be told apart from an explicit zero.
type partialState struct {
	CurrentStep      *int  `json:"currentStep"`
	CollectedVines   *int  `json:"collectedVines"`
	CollectedBerries *int  `json:"collectedBerries"`
	CollectedKimkim  *int  `json:"collectedKimkim"`
	HasCatHair       *bool `json:"hasCatHair"`
	HasChalice       *bool `json:"hasChalice"`
	QuestStarted     *bool `json:"questStarted"`
}

func EncodeState(s quest.State) ([]byte, error) {
	return json.Marshal(persistedState{
		CurrentStep:      int(s.CurrentStep),
		CollectedVines:   s.CollectedVines,
		CollectedBerries: s.CollectedBerries,
		CollectedKimkim:  s.CollectedKimkim,
		HasCatHair:       s.HasCatHair,
		HasChalice:       s.HasChalice,
		QuestStarted:     s.QuestStarted,
	})
}

// DecodeState reconciles a stored record field by field over the default
// state. Missing fields keep their default, counters are clamped to the
// configured thresholds, and an out-of-range step falls back to the default
// step. Unknown fields are ignored.
func DecodeState(raw []byte, rules quest.Rules) (quest.State, error) {
	var p partialState
	if err := json.Unmarshal(raw, &p); err != nil {
		return quest.Default(), err
	}
	s := quest.Default()
	if p.CurrentStep != nil {
		s.CurrentStep = quest.Step(*p.CurrentStep)
	}
	if p.CollectedVines != nil {
		s.CollectedVines = *p.CollectedVines
	}
	if p.CollectedBerries != nil {
		s.CollectedBerries = *p.CollectedBerries
	}
	if p.CollectedKimkim != nil {
		s.CollectedKimkim = *p.CollectedKimkim
	}
	if p.HasCatHair != nil {
		s.HasCatHair = *p.HasCatHair
	}
	if p.HasChalice != nil {
		s.HasChalice = *p.HasChalice
	}
	if p.QuestStarted != nil {
		s.QuestStarted = *p.QuestStarted
	}
	return rules.Normalize().Clamp(s), nil
}
