package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"questsync.dev/internal/protocol"
	"questsync.dev/internal/quest"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	actionSchema := compile("quest_action.schema.json")
	requestSchema := compile("quest_state_request.schema.json")
	resetSchema := compile("quest_reset.schema.json")
	updateSchema := compile("quest_state_update.schema.json")

	var action any
	_ = json.Unmarshal([]byte(`{"type":"QUEST_ACTION","protocol_version":"1.0","actionId":"collect_vine_action"}`), &action)
	validate(actionSchema, action)

	var req any
	_ = json.Unmarshal([]byte(`{"type":"QUEST_STATE_REQUEST"}`), &req)
	validate(requestSchema, req)

	var reset any
	_ = json.Unmarshal([]byte(`{"type":"QUEST_RESET","protocol_version":"1.0"}`), &reset)
	validate(resetSchema, reset)

	var update any
	b, _ := json.Marshal(protocol.NewStateUpdate(quest.State{CurrentStep: quest.TalkOcto2, QuestStarted: true, HasCatHair: true, CollectedVines: 2}))
	_ = json.Unmarshal(b, &update)
	validate(updateSchema, update)
}

func TestValidator_AcceptsUnknownActionIDs(t *testing.T) {
	v, err := protocol.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	if err := v.Validate(protocol.TypeQuestAction, []byte(`{"type":"QUEST_ACTION","actionId":"dance_action"}`)); err != nil {
		t.Fatalf("unknown action id should pass the schema: %v", err)
	}
}

func TestValidator_RejectsMalformed(t *testing.T) {
	v, err := protocol.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	bad := []struct {
		typ string
		raw string
	}{
		{protocol.TypeQuestAction, `{"type":"QUEST_ACTION"}`},
		{protocol.TypeQuestAction, `{"type":"QUEST_ACTION","actionId":7}`},
		{protocol.TypeQuestStateRequest, `{"type":"QUEST_RESET"}`},
		{"NOPE", `{"type":"NOPE"}`},
	}
	for _, b := range bad {
		if err := v.Validate(b.typ, []byte(b.raw)); err == nil {
			t.Fatalf("expected %s %s to fail validation", b.typ, b.raw)
		}
	}
}
