package task

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// taskSchema derives the task tool's parameter schema from taskArgs.
func taskSchema() json.RawMessage {
	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	s := r.Reflect(&taskArgs{})
	s.Version = ""
	raw, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return raw
}
