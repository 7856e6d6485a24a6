package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeQuestAction       = "QUEST_ACTION"
	TypeQuestStateRequest = "QUEST_STATE_REQUEST"
	TypeQuestReset        = "QUEST_RESET"
	TypeQuestStateUpdate  = "QUEST_STATE_UPDATE"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// IsClientType reports whether t is a message a client may send.
func IsClientType(t string) bool {
	switch t {
	case TypeQuestAction, TypeQuestStateRequest, TypeQuestReset:
		return true
	}
	return false
}
