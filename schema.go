package toolloop

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v6"
)

// typeMappings holds the schemas registered through RegisterType.
var typeMappings = struct {
	sync.RWMutex
	m map[reflect.Type]*jsonschema.Schema
}{m: make(map[reflect.Type]*jsonschema.Schema)}

// RegisterType makes generated schemas describe values of the type of emptyInstance as jsonType
// with an optional format, e.g. RegisterType(uuid.UUID{}, "string", "uuid"). A pointer field
// uses the mapping of its element type. Register types before building the tools that use them;
// tools already built keep the schema they were built with.
//
// RegisterType panics when emptyInstance is nil or jsonType is empty.
func RegisterType(emptyInstance any, jsonType, format string) {
	if emptyInstance == nil {
		panic("toolloop: RegisterType emptyInstance must not be nil")
	}
	if jsonType == "" {
		panic("toolloop: RegisterType jsonType must not be empty")
	}
	typeMappings.Lock()
	defer typeMappings.Unlock()
	typeMappings.m[reflect.TypeOf(emptyInstance)] = &jsonschema.Schema{Type: jsonType, Format: format}
}

func registeredTypes() map[reflect.Type]*jsonschema.Schema {
	typeMappings.RLock()
	defer typeMappings.RUnlock()
	out := make(map[reflect.Type]*jsonschema.Schema, len(typeMappings.m))
	for t, s := range typeMappings.m {
		out[t] = s.CloneSchemas()
	}
	return out
}

// argsSchema is the argument schema of one tool, kept as an editable document, as the JSON
// sent to providers and as a compiled validator. It is immutable once built.
type argsSchema struct {
	doc      map[string]any
	raw      json.RawMessage
	compiled *validator.Schema
}

// reflectSchema builds the argument schema of T. Nested types are inlined and the description
// and enum struct tags of top-level fields are applied.
func reflectSchema[T any](strict bool) (*argsSchema, error) {
	s, err := jsonschema.For[T](&jsonschema.ForOptions{TypeSchemas: registeredTypes()})
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errNilSchema
	}
	doc, err := toDocument(s)
	if err != nil {
		return nil, err
	}
	applyFieldTags(doc, reflect.TypeFor[T]())
	return newArgsSchema(doc, strict)
}

// dynamicSchema builds an argument schema from a caller-supplied document, which is copied
// first and never modified.
func dynamicSchema(doc map[string]any, strict bool) (*argsSchema, error) {
	if doc == nil {
		return nil, errors.New("dynamic schema map must not be nil")
	}
	cp, err := toDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("copy dynamic schema: %w", err)
	}
	s, err := newArgsSchema(cp, strict)
	if err != nil {
		return nil, fmt.Errorf("compile dynamic schema: %w", err)
	}
	return s, nil
}

// newArgsSchema takes ownership of doc.
func newArgsSchema(doc map[string]any, strict bool) (*argsSchema, error) {
	if strict {
		applyStrictMode(doc)
	}
	stripSchemaIDs(doc)
	compiled, err := compileRawSchema(doc)
	if err != nil {
		return nil, err
	}
	raw, err := renderSchema(doc)
	if err != nil {
		return nil, err
	}
	return &argsSchema{doc: doc, raw: raw, compiled: compiled}, nil
}

// check decodes argsJSON generically and validates it. Failures are *ParseError.
func (s *argsSchema) check(argsJSON []byte) error {
	var v any
	if err := json.Unmarshal(argsJSON, &v); err != nil {
		return wrapJSONParseError(err)
	}
	return validateAgainstSchema(s.compiled, v)
}

// toDocument turns any JSON-marshalable value into a fresh generic document.
func toDocument(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// applyFieldTags copies the description and enum tags of the fields of typ onto the matching
// top-level properties. enum is a comma separated list.
func applyFieldTags(doc map[string]any, typ reflect.Type) {
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	props, _ := doc["properties"].(map[string]any)
	if typ == nil || typ.Kind() != reflect.Struct || len(props) == 0 {
		return
	}
	for _, f := range reflect.VisibleFields(typ) {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" || !f.IsExported() {
			continue
		}
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		if d := f.Tag.Get("description"); d != "" {
			prop["description"] = d
		}
		if e := f.Tag.Get("enum"); e != "" {
			var values []any
			for v := range strings.SplitSeq(e, ",") {
				values = append(values, strings.TrimSpace(v))
			}
			prop["enum"] = values
		}
	}
}

// walkSchema calls visit for every object node of the tree, the root first.
func walkSchema(doc map[string]any, visit func(map[string]any)) {
	stack := []map[string]any{doc}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil {
			continue
		}
		visit(n)
		for _, v := range n {
			switch v := v.(type) {
			case map[string]any:
				stack = append(stack, v)
			case []any:
				for _, item := range v {
					if m, ok := item.(map[string]any); ok {
						stack = append(stack, m)
					}
				}
			}
		}
	}
}

// applyStrictMode closes every object (additionalProperties: false) and requires all of its
// properties, listed in sorted order.
func applyStrictMode(doc map[string]any) {
	walkSchema(doc, func(n map[string]any) {
		props, ok := n["properties"].(map[string]any)
		if !ok {
			return
		}
		n["additionalProperties"] = false
		if len(props) == 0 {
			return
		}
		var required []any
		for _, k := range slices.Sorted(maps.Keys(props)) {
			required = append(required, k)
		}
		n["required"] = required
	})
}

var errNilSchema = errors.New("schema reflection returned nil")

// schemaResource names the single resource of each compilation.
const schemaResource = "schema.json"

// compileRawSchema compiles doc without modifying it.
func compileRawSchema(doc map[string]any) (*validator.Schema, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	inst, err := validator.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	c := validator.NewCompiler()
	if err := c.AddResource(schemaResource, inst); err != nil {
		return nil, err
	}
	return c.Compile(schemaResource)
}

func renderSchema(doc map[string]any) (json.RawMessage, error) {
	return json.Marshal(doc)
}

// stripSchemaIDs drops $id and string id keywords so that compilation never resolves them.
// A property called "id" is an object and is kept.
func stripSchemaIDs(doc map[string]any) {
	walkSchema(doc, func(n map[string]any) {
		delete(n, "$id")
		if _, ok := n["id"].(string); ok {
			delete(n, "id")
		}
	})
}
