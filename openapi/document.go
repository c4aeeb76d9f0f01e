// Package openapi compiles a fetched API description into callable,
// authenticated tool definitions: one tool per (path, verb) pair that has an
// operation defined.
package openapi

import (
	"context"
	"io"
	"net/http"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/questor-ai/questor", "openapi")

// Document is the subset of an OpenAPI 3.x description the compiler
// understands. Unknown fields are ignored.
type Document struct {
	OpenAPI    string                `json:"openapi"`
	Info       Info                  `json:"info"`
	Servers    []Server              `json:"servers"`
	Paths      map[string]PathItem   `json:"paths"`
	Security   []SecurityRequirement `json:"security"`
	Components Components            `json:"components"`
}

// Info describes the API.
type Info struct {
	Title   string `json:"title"`
	Version string `json:"version"`
}

// Server declares a base URL for all operations.
type Server struct {
	URL string `json:"url"`
}

// PathItem holds the operations defined for one path, keyed by HTTP verb.
type PathItem struct {
	Get    *Operation  `json:"get"`
	Put    *Operation  `json:"put"`
	Post   *Operation  `json:"post"`
	Delete *Operation  `json:"delete"`
	Patch  *Operation  `json:"patch"`
	Params []Parameter `json:"parameters"`
}

// Operations returns the defined operations in a fixed verb order, so
// compilation is deterministic.
func (p PathItem) Operations() []VerbOperation {
	var ops []VerbOperation
	for _, vo := range []VerbOperation{
		{"get", p.Get},
		{"post", p.Post},
		{"put", p.Put},
		{"patch", p.Patch},
		{"delete", p.Delete},
	} {
		if vo.Operation != nil {
			ops = append(ops, vo)
		}
	}
	return ops
}

// VerbOperation pairs an HTTP verb with its operation.
type VerbOperation struct {
	Verb      string
	Operation *Operation
}

// Operation is one HTTP operation.
type Operation struct {
	Summary     string                `json:"summary"`
	Description string                `json:"description"`
	OperationID string                `json:"operationId"`
	Parameters  []Parameter           `json:"parameters"`
	RequestBody *RequestBody          `json:"requestBody"`
	Security    []SecurityRequirement `json:"security"`
}

// Parameter is a path, query or header parameter.
type Parameter struct {
	Name        string        `json:"name"`
	In          string        `json:"in"`
	Description string        `json:"description"`
	Required    bool          `json:"required"`
	Schema      *SchemaObject `json:"schema"`
}

// RequestBody declares the operation's request body.
type RequestBody struct {
	Required bool                 `json:"required"`
	Content  map[string]MediaType `json:"content"`
}

// MediaType carries the schema for one content type.
type MediaType struct {
	Schema *SchemaObject `json:"schema"`
}

// SchemaObject is the subset of JSON Schema carried through compilation.
// Nested objects are not recursively expanded.
type SchemaObject struct {
	Type        string                   `json:"type"`
	Title       string                   `json:"title"`
	Description string                   `json:"description"`
	Format      string                   `json:"format"`
	Default     any                      `json:"default"`
	Minimum     *float64                 `json:"minimum"`
	Maximum     *float64                 `json:"maximum"`
	Enum        []any                    `json:"enum"`
	Properties  map[string]*SchemaObject `json:"properties"`
	Required    []string                 `json:"required"`
}

// SecurityRequirement names the security schemes an operation accepts.
type SecurityRequirement map[string][]string

// Components holds the reusable objects the compiler needs.
type Components struct {
	SecuritySchemes map[string]SecurityScheme `json:"securitySchemes"`
}

// SecurityScheme declares how an API authenticates requests.
type SecurityScheme struct {
	Type   string `json:"type"`   // http, apiKey, oauth2
	Scheme string `json:"scheme"` // bearer, basic (for type http)
	In     string `json:"in"`     // header, query (for type apiKey)
	Name   string `json:"name"`   // header name (for type apiKey)
}

// Decode parses an API description document. Decoding is lenient:
// descriptions in the wild are frequently imperfect JSON.
func Decode(body []byte) (*Document, error) {
	var doc Document
	if err := ljson.Unmarshal(body, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to decode API description")
	}
	return &doc, nil
}

// Fetch downloads and decodes an API description from a URL.
func Fetch(ctx context.Context, client *http.Client, url string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch API description: %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Newf("failed to fetch API description: %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read API description: %s", url)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "fetched_description",
		"url", url,
		"size", len(body),
	)
	return Decode(body)
}

// maxDocumentSize bounds how much of a description we are willing to read.
const maxDocumentSize = 8 << 20
