// Package llms defines the model-invocation boundary: the message and tool
// shapes exchanged with a language model, and the Model interface the
// orchestrator depends on. The model is opaque to the rest of the system;
// it receives the conversation history plus the callable tool set and
// returns text, a step trace and token usage.
package llms

import (
	"context"
)

// Model is an opaque language model invocation. Implementations run the
// provider's bounded internal step loop (thinking turns interleaved with
// tool executions) and return the full trace of that loop.
type Model interface {
	// GetName returns the provider model name.
	GetName() string

	// Generate invokes the model once with the given history and tool set.
	// The returned Messages must be appended to the caller's history so the
	// conversation grows monotonically across rounds.
	Generate(ctx context.Context, history []Message, tools []ToolDef, options ...CallOption) (*GenerateResult, error)
}

// ToolExecutor executes one tool invocation at model request time.
// Handled failures are returned as an error and converted to textual tool
// output by the model loop; they never abort the invocation.
type ToolExecutor func(ctx context.Context, args map[string]any) (Outcome, error)

// ToolDef is one callable tool offered to the model: a name, a description,
// a JSON-Schema parameters object and an executor.
type ToolDef struct {
	Name        string
	Description string
	Parameters  any
	Execute     ToolExecutor
}

// Usage carries the token counts of one model invocation.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}
