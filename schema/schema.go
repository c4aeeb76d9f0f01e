// Package schema derives flat function-parameter JSON schemas from Go types.
// It is used for the fixed built-in tools; compiled tools assemble their
// schemas directly from the service description instead.
package schema

import (
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	cache   = make(map[reflect.Type]*Schema)
	cacheMu sync.RWMutex
)

// Schema wraps the reflected JSON schema together with the flattened
// function-parameters form expected by model providers.
type Schema struct {
	*jsonschema.Schema
	// Parameters is the Function parameters definition.
	Parameters *jsonschema.Schema
}

// New creates a new schema from the given type. Results are cached per type.
func New(t reflect.Type) (*Schema, error) {
	cacheMu.RLock()
	s, ok := cache[t]
	cacheMu.RUnlock()
	if ok {
		return s, nil
	}

	s, err := buildSchema(t)
	if err != nil {
		return nil, err
	}

	cacheMu.Lock()
	cache[t] = s
	cacheMu.Unlock()
	return s, nil
}

func buildSchema(t reflect.Type) (*Schema, error) {
	reflected := reflectType(t)

	root, err := functionSchema(reflected)
	if err != nil {
		return nil, err
	}
	return &Schema{
		Schema:     reflected,
		Parameters: root,
	}, nil
}

// functionSchema finds the root definition the reflector placed under $defs
// and inlines every internal $ref so the result is a self-contained object.
func functionSchema(tSchema *jsonschema.Schema) (*jsonschema.Schema, error) {
	rootID := strings.TrimPrefix(tSchema.Ref, "#/$defs/")

	defs := make(map[string]*jsonschema.Schema)
	var root *jsonschema.Schema
	for name, def := range tSchema.Definitions {
		if name == rootID {
			root = def
		} else {
			defs[name] = def
		}
	}
	if root == nil {
		return nil, errors.Newf("schema: root definition %q not found", rootID)
	}

	res := &jsonschema.Schema{
		Type:       root.Type,
		Properties: root.Properties,
		Required:   root.Required,
	}
	if err := inlineRefs(res.Properties, defs); err != nil {
		return nil, err
	}
	return res, nil
}

func inlineRefs(props *orderedmap.OrderedMap[string, *jsonschema.Schema], defs map[string]*jsonschema.Schema) error {
	if props == nil {
		return nil
	}
	for pair := props.Oldest(); pair != nil; pair = pair.Next() {
		child := pair.Value
		if child.Ref != "" {
			name := strings.TrimPrefix(child.Ref, "#/$defs/")
			def, ok := defs[name]
			if !ok {
				return errors.Newf("schema: unresolved reference %q", child.Ref)
			}
			pair.Value = def
			child = def
		}
		if child.Items != nil && child.Items.Ref != "" {
			name := strings.TrimPrefix(child.Items.Ref, "#/$defs/")
			def, ok := defs[name]
			if !ok {
				return errors.Newf("schema: unresolved reference %q", child.Items.Ref)
			}
			child.Items = def
		}
		if child.Properties != nil {
			if err := inlineRefs(child.Properties, defs); err != nil {
				return err
			}
		}
	}
	return nil
}

// reflectType builds the raw JSON schema for a type. Struct names are suffixed
// with a hash of the package path so same-named types from different
// packages do not collide in $defs.
func reflectType(t reflect.Type) *jsonschema.Schema {
	r := new(jsonschema.Reflector)
	r.Namer = func(t reflect.Type) string {
		name := t.Name()
		if t.Kind() == reflect.Struct {
			full := t.PkgPath() + "/" + t.Name()
			name = t.Name() + "@" + strconv.FormatUint(xxhash.Sum64String(full), 10)
		}
		return name
	}
	return r.ReflectFromType(t)
}
