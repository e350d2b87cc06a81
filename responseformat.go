package toolloop

import (
	"encoding/json"
	"errors"

	reflector "github.com/invopop/jsonschema"
)

// ResponseFormatFor builds a structured-output format from the Go type T. Definitions are
// inlined, since several vendors reject $ref in response schemas. When strict is true every
// object gets additionalProperties: false and all of its properties become required.
func ResponseFormatFor[T any](name string, strict bool) (ResponseFormat, error) {
	if name == "" {
		return ResponseFormat{}, errors.New("response format name must not be empty")
	}
	r := reflector.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: !strict,
	}
	s := r.Reflect(new(T))
	data, err := json.Marshal(s)
	if err != nil {
		return ResponseFormat{}, err
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(data, &schemaMap); err != nil {
		return ResponseFormat{}, err
	}
	delete(schemaMap, "$schema")
	stripSchemaIDs(schemaMap)
	if strict {
		applyStrictMode(schemaMap)
	}
	raw, err := renderSchema(schemaMap)
	if err != nil {
		return ResponseFormat{}, err
	}
	return ResponseFormat{Name: name, Schema: raw, Strict: strict}, nil
}
