package toolloop

import (
	"encoding/json"
	"maps"
	"reflect"
)

// Extractor validates and decodes arguments of type T the way tools built by NewTool do, for
// callers that drive tool calls themselves.
type Extractor[T any] struct {
	schema *argsSchema
}

// NewExtractor builds the schema of T once. With strict, every object is closed and all of its
// properties are required.
func NewExtractor[T any](strict bool) (*Extractor[T], error) {
	s, err := reflectSchema[T](strict)
	if err != nil {
		return nil, err
	}
	return &Extractor[T]{schema: s}, nil
}

// Schema returns a copy of the top level of the schema; nested values are shared.
func (e *Extractor[T]) Schema() map[string]any {
	return maps.Clone(e.schema.doc)
}

// ParseAndValidate checks argsJSON against the schema, decodes it into T and then calls
// Validate when T (or *T) implements Validatable. Every failure is a *ParseError, so the
// message can go back to the model as is.
func (e *Extractor[T]) ParseAndValidate(argsJSON []byte) (T, error) {
	var args T
	if err := e.schema.check(argsJSON); err != nil {
		return args, err
	}
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		var zero T
		return zero, wrapJSONParseError(err)
	}
	if err := validateDecoded(&args); err != nil {
		var zero T
		if IsParseError(err) {
			return zero, err
		}
		return zero, &ParseError{Message: "validation failed: " + err.Error(), Err: err}
	}
	return args, nil
}

// validateDecoded calls Validate once: on the value when it implements Validatable, otherwise
// on its address. Nil pointers and interfaces are skipped.
func validateDecoded[T any](p *T) error {
	if v, ok := any(*p).(Validatable); ok {
		if rv := reflect.ValueOf(*p); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil
		}
		return v.Validate()
	}
	if reflect.TypeFor[T]().Kind() == reflect.Pointer {
		return nil
	}
	return validateCustom(p)
}
