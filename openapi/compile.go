package openapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/effective-security/xlog"
	"github.com/invopop/jsonschema"
	"github.com/questor-ai/questor/pkg/llms"
)

const (
	// AuthTokenProperty is injected into every compiled tool schema so the
	// model can carry credentials it obtained during the conversation.
	AuthTokenProperty = "auth_token"

	// PaymentTokenProperty, when supplied by the model, is forwarded as
	// its own request header rather than as an operation argument.
	PaymentTokenProperty = "payment_token"

	// PaymentHeader is the header the payment token is injected into.
	PaymentHeader = "X-Payment"

	// maxToolNameLen is applied after sanitizing; the provider limit of 64
	// is enforced by the registry.
	maxToolNameLen = 60
)

// Options configures compilation of one description.
type Options struct {
	// NameOverrides maps "{verb}_{path}" to an externally supplied tool name.
	NameOverrides map[string]string

	// AuthValue is a bearer or API-key value applied to the declared
	// security schemes. The model-supplied auth_token argument is used when
	// this is empty.
	AuthValue string

	// OptionalProperties disables the policy of marking every property
	// required. By default the compiler forces the model to supply complete
	// call arguments.
	OptionalProperties bool

	// HTTPClient issues the compiled tools' requests. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

// Compile turns a description into tool definitions, one per (path, verb)
// pair with an operation, in deterministic path-then-verb order.
func Compile(doc *Document, opts Options) []llms.ToolDef {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	paths := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var defs []llms.ToolDef
	for _, path := range paths {
		item := doc.Paths[path]
		for _, vo := range item.Operations() {
			op := vo.Operation
			params := append(append([]Parameter{}, item.Params...), op.Parameters...)

			name := deriveName(vo.Verb, path, op, opts.NameOverrides)
			schema := buildParameterSchema(params, op.RequestBody, opts.OptionalProperties)

			exec := &executor{
				client:    client,
				baseURL:   baseURL(doc),
				method:    strings.ToUpper(vo.Verb),
				path:      path,
				params:    params,
				security:  resolveSecurity(doc, op),
				schemes:   doc.Components.SecuritySchemes,
				authValue: opts.AuthValue,
			}

			desc := op.Description
			if desc == "" {
				desc = op.Summary
			}
			defs = append(defs, llms.ToolDef{
				Name:        name,
				Description: desc,
				Parameters:  schema,
				Execute:     exec.Execute,
			})
		}
	}

	logger.KV(xlog.DEBUG,
		"status", "compiled_description",
		"title", doc.Info.Title,
		"tools", len(defs),
	)
	return defs
}

// deriveName picks the tool name, in priority order: external override,
// operation summary, operation identifier, path-derived fallback.
func deriveName(verb, path string, op *Operation, overrides map[string]string) string {
	if override, ok := overrides[verb+"_"+path]; ok {
		if name := sanitizeName(override); name != "" {
			return name
		}
	}
	if op.Summary != "" {
		name := sanitizeName(op.Summary)
		if name != "" {
			// single-token summaries read poorly without the verb
			if !strings.Contains(name, "_") {
				name = sanitizeName(verb + "_" + name)
			}
			return name
		}
	}
	if op.OperationID != "" {
		if name := sanitizeName(verb + "_" + op.OperationID); name != "" {
			return name
		}
	}
	return sanitizeName(verb + "_" + pathFallback(path))
}

// sanitizeName lowercases, restricts to [a-z0-9_], collapses runs of
// underscores, trims the ends, and truncates to 60 characters.
func sanitizeName(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if len(name) > maxToolNameLen {
		name = strings.Trim(name[:maxToolNameLen], "_")
	}
	return name
}

// pathFallback derives a name fragment from the path: parameter braces are
// stripped, separators become underscores.
func pathFallback(path string) string {
	s := strings.NewReplacer("{", "", "}", "", "/", "_", "-", "_").Replace(path)
	return s
}

// buildParameterSchema assembles the flat parameter schema: the injected
// auth-token property, one property per declared parameter, and the
// flattened top-level properties of the JSON request body.
func buildParameterSchema(params []Parameter, body *RequestBody, optionalProps bool) *jsonschema.Schema {
	props := jsonschema.NewProperties()
	requiredSet := map[string]bool{AuthTokenProperty: true}

	props.Set(AuthTokenProperty, &jsonschema.Schema{
		Type:        "string",
		Description: "Bearer or API key value for the service. Use an empty string if the API is public.",
	})

	for _, p := range params {
		if p.In != "path" && p.In != "query" && p.In != "header" {
			continue
		}
		props.Set(p.Name, propertyFromSchema(p.Schema, p.Description))
		if p.In == "path" || p.Required {
			requiredSet[p.Name] = true
		}
	}

	if bs := jsonBodySchema(body); bs != nil {
		names := make([]string, 0, len(bs.Properties))
		for name := range bs.Properties {
			names = append(names, name)
		}
		sort.Strings(names)

		required := bs.Required
		// A known malformed shape: required literally equal to ["string"].
		// Treat it as unspecified and require every body property.
		if len(required) == 1 && required[0] == "string" {
			required = names
		}
		for _, name := range names {
			if _, exists := props.Get(name); exists {
				continue
			}
			prop := bs.Properties[name]
			props.Set(name, propertyFromSchema(prop, prop.Description))
		}
		for _, name := range required {
			if _, ok := props.Get(name); ok {
				requiredSet[name] = true
			}
		}
	}

	var required []string
	if optionalProps {
		for pair := props.Oldest(); pair != nil; pair = pair.Next() {
			if requiredSet[pair.Key] {
				required = append(required, pair.Key)
			}
		}
	} else {
		// Force the model to supply complete call arguments.
		for pair := props.Oldest(); pair != nil; pair = pair.Next() {
			required = append(required, pair.Key)
		}
	}

	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

// propertyFromSchema keeps only the flat attributes of a property; nested
// objects are not expanded.
func propertyFromSchema(s *SchemaObject, fallbackDescription string) *jsonschema.Schema {
	prop := &jsonschema.Schema{
		Type:        "string",
		Description: fallbackDescription,
	}
	if s == nil {
		return prop
	}
	if s.Type != "" {
		prop.Type = s.Type
	}
	if s.Title != "" {
		prop.Title = s.Title
	}
	if s.Description != "" {
		prop.Description = s.Description
	}
	prop.Format = s.Format
	prop.Default = s.Default
	if s.Minimum != nil {
		prop.Minimum = json.Number(fmt.Sprintf("%v", *s.Minimum))
	}
	if s.Maximum != nil {
		prop.Maximum = json.Number(fmt.Sprintf("%v", *s.Maximum))
	}
	if len(s.Enum) > 0 {
		prop.Enum = s.Enum
	}
	return prop
}

func jsonBodySchema(body *RequestBody) *SchemaObject {
	if body == nil {
		return nil
	}
	mt, ok := body.Content["application/json"]
	if !ok || mt.Schema == nil || len(mt.Schema.Properties) == 0 {
		return nil
	}
	return mt.Schema
}

// resolveSecurity prefers the operation's declared requirements over the
// document's global ones.
func resolveSecurity(doc *Document, op *Operation) []SecurityRequirement {
	if len(op.Security) > 0 {
		return op.Security
	}
	return doc.Security
}

func baseURL(doc *Document) string {
	if len(doc.Servers) > 0 {
		return strings.TrimRight(doc.Servers[0].URL, "/")
	}
	return ""
}
