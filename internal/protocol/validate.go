package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var schemaFiles = map[string]string{
	TypeQuestAction:       "quest_action.schema.json",
	TypeQuestStateRequest: "quest_state_request.schema.json",
	TypeQuestReset:        "quest_reset.schema.json",
	TypeQuestStateUpdate:  "quest_state_update.schema.json",
}

// Validator checks raw frames against the embedded message schemas.
type Validator struct {
	byType map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	for _, name := range schemaFiles {
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(name, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
	}
	v := &Validator{byType: map[string]*jsonschema.Schema{}}
	for typ, name := range schemaFiles {
		s, err := c.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		v.byType[typ] = s
	}
	return v, nil
}

// Validate checks raw against the schema registered for msgType.
func (v *Validator) Validate(msgType string, raw []byte) error {
	s, ok := v.byType[msgType]
	if !ok {
		return fmt.Errorf("unknown message type %q", msgType)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return s.Validate(doc)
}
