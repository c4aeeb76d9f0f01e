// Package tools defines the fixed built-in tools that are present in every
// registry round. The two bootstrap tools are side-effect light: they only
// acknowledge the request, and the orchestrator performs the actual mount or
// compile when it detects the call in the round's trace.
package tools

import (
	"context"
	"fmt"
	"reflect"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"github.com/questor-ai/questor/pkg/llms"
	"github.com/questor-ai/questor/pkg/llmutils"
	"github.com/questor-ai/questor/schema"
)

const (
	// AddServerToolName mounts a live protocol server.
	AddServerToolName = "add_mcp_server"
	// AddSpecToolName compiles a fetchable API description.
	AddSpecToolName = "add_openapi_spec"
)

// AddServerRequest is the input of the server-mount bootstrap tool.
type AddServerRequest struct {
	URL  string `json:"url" jsonschema:"title=URL,description=The MCP server URL to connect to"`
	Name string `json:"name" jsonschema:"title=Name,description=A short human label for the server"`
}

// AddSpecRequest is the input of the description-compile bootstrap tool.
type AddSpecRequest struct {
	URL  string `json:"url" jsonschema:"title=URL,description=The URL of an OpenAPI JSON document"`
	Name string `json:"name" jsonschema:"title=Name,description=A short human label for the API"`
}

// Bootstrap returns the two bootstrap tool definitions. Their executors do
// not mount or compile anything; they return an acknowledgement so the model
// can continue, and the loop expands the capability set before the next
// round.
func Bootstrap() []llms.ToolDef {
	return []llms.ToolDef{
		{
			Name:        AddServerToolName,
			Description: "Connect a new MCP tool server by URL. Its tools become available on the next turn.",
			Parameters:  mustParams(reflect.TypeOf(AddServerRequest{})),
			Execute: func(ctx context.Context, args map[string]any) (llms.Outcome, error) {
				var req AddServerRequest
				if err := decodeArgs(args, &req); err != nil {
					return llms.Outcome{}, err
				}
				return llms.TextOutcome(fmt.Sprintf("Connecting to MCP server %s. Its tools will be available on your next turn.", req.URL)), nil
			},
		},
		{
			Name:        AddSpecToolName,
			Description: "Register an OpenAPI description by URL. Its operations become callable tools on the next turn.",
			Parameters:  mustParams(reflect.TypeOf(AddSpecRequest{})),
			Execute: func(ctx context.Context, args map[string]any) (llms.Outcome, error) {
				var req AddSpecRequest
				if err := decodeArgs(args, &req); err != nil {
					return llms.Outcome{}, err
				}
				return llms.TextOutcome(fmt.Sprintf("Compiling API description %s. Its operations will be available on your next turn.", req.URL)), nil
			},
		},
	}
}

// Describe renders a YAML block listing the given tools, for use in
// capability announcements.
func Describe(defs []llms.ToolDef) string {
	type item struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description,omitempty"`
	}
	list := make([]item, 0, len(defs))
	for _, d := range defs {
		list = append(list, item{Name: d.Name, Description: d.Description})
	}
	return llmutils.BackticksYAML(llmutils.ToYAML(list))
}

func decodeArgs(args map[string]any, out any) error {
	js := llmutils.ToJSON(args)
	if err := ljson.Unmarshal([]byte(js), out); err != nil {
		return errors.Wrap(err, "failed to unmarshal tool input")
	}
	return nil
}

func mustParams(t reflect.Type) any {
	s, err := schema.New(t)
	if err != nil {
		panic(err)
	}
	return s.Parameters
}
