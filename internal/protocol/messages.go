package protocol

import "questsync.dev/internal/quest"

// QUEST_ACTION (client -> server)
type QuestActionMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	ActionID        string `json:"actionId"`
}

// QUEST_STATE_REQUEST (client -> server). Sent once per session start and on
// every reconnect.
type QuestStateRequestMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

// QUEST_RESET (client -> server)
type QuestResetMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

// QUEST_STATE_UPDATE (server -> client): the full authoritative snapshot.
type StateUpdateMsg struct {
	Type             string `json:"type"`
	ProtocolVersion  string `json:"protocol_version,omitempty"`
	CurrentStep      int    `json:"currentStep"`
	CollectedVines   int    `json:"collectedVines"`
	CollectedBerries int    `json:"collectedBerries"`
	CollectedKimkim  int    `json:"collectedKimkim"`
	HasCatHair       bool   `json:"hasCatHair"`
	HasChalice       bool   `json:"hasChalice"`
	QuestStarted     bool   `json:"questStarted"`
}

func NewAction(actionID string) QuestActionMsg {
	return QuestActionMsg{Type: TypeQuestAction, ProtocolVersion: Version, ActionID: actionID}
}

func NewStateRequest() QuestStateRequestMsg {
	return QuestStateRequestMsg{Type: TypeQuestStateRequest, ProtocolVersion: Version}
}

func NewReset() QuestResetMsg {
	return QuestResetMsg{Type: TypeQuestReset, ProtocolVersion: Version}
}

// NewStateUpdate builds a snapshot message from s.
func NewStateUpdate(s quest.State) StateUpdateMsg {
	return StateUpdateMsg{
		Type:             TypeQuestStateUpdate,
		ProtocolVersion:  Version,
		CurrentStep:      int(s.CurrentStep),
		CollectedVines:   s.CollectedVines,
		CollectedBerries: s.CollectedBerries,
		CollectedKimkim:  s.CollectedKimkim,
		HasCatHair:       s.HasCatHair,
		HasChalice:       s.HasChalice,
		QuestStarted:     s.QuestStarted,
	}
}

// State converts the snapshot back into a quest state. No clamping is done:
// the mirror shows exactly what the server sent.
func (m StateUpdateMsg) State() quest.State {
	return quest.State{
		CurrentStep:      quest.Step(m.CurrentStep),
		CollectedVines:   m.CollectedVines,
		CollectedBerries: m.CollectedBerries,
		CollectedKimkim:  m.CollectedKimkim,
		HasCatHair:       m.HasCatHair,
		HasChalice:       m.HasChalice,
		QuestStarted:     m.QuestStarted,
	}
}
