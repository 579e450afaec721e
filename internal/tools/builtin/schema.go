// Package builtin ships the standard workspace tools: file reads and writes,
// glob and grep search, shell execution, and the plan-mode controls.
package builtin

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// schemaFor derives a JSON schema document from an argument struct.
func schemaFor(v any) json.RawMessage {
	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	s := r.Reflect(v)
	s.Version = ""
	raw, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return raw
}
