package llms

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the type of chat message.
type Role string

const (
	// RoleSystem is a message sent by the system.
	RoleSystem Role = "system"
	// RoleUser is a message sent by the user.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the model.
	RoleAssistant Role = "assistant"
	// RoleTool is a message carrying a tool result.
	RoleTool Role = "tool"
)

// Message is one message in a conversation: a role and a sequence of parts.
type Message struct {
	Role  Role          `json:"role"`
	Parts []ContentPart `json:"parts"`
}

// ContentPart is an interface all parts of content have to implement.
type ContentPart interface {
	isPart()
}

// TextContent is content with some text.
type TextContent struct {
	Text string `json:"text"`
}

func (tc TextContent) String() string {
	return tc.Text
}

func (TextContent) isPart() {}

// TextPart creates TextContent from a given string.
func TextPart(s string) TextContent {
	return TextContent{Text: s}
}

// FunctionCall is the name and arguments of a function call.
type FunctionCall struct {
	// The name of the function to call.
	Name string `json:"name"`
	// The arguments to pass to the function, as a JSON string.
	Arguments string `json:"arguments"`
}

// ToolCall is a call to a tool (as requested by the model) that should be executed.
type ToolCall struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	FunctionCall *FunctionCall `json:"function,omitempty"`
}

func (tc ToolCall) String() string {
	return fmt.Sprintf("ToolCall: %s (%s), input: %s", tc.ID, tc.FunctionCall.Name, tc.FunctionCall.Arguments)
}

func (ToolCall) isPart() {}

// ToolCallResponse is the response returned by a tool call.
type ToolCallResponse struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
}

func (tc ToolCallResponse) String() string {
	return fmt.Sprintf("ToolCallResponse: %s (%s), response size: %d", tc.ToolCallID, tc.Name, len(tc.Content))
}

func (ToolCallResponse) isPart() {}

// MessageFromParts creates a Message with a role and a list of parts.
func MessageFromParts(role Role, parts ...ContentPart) Message {
	return Message{
		Role:  role,
		Parts: parts,
	}
}

// MessageFromTextParts creates a Message with a role and a list of text parts.
func MessageFromTextParts(role Role, parts ...string) Message {
	result := Message{
		Role:  role,
		Parts: make([]ContentPart, 0, len(parts)),
	}
	for _, part := range parts {
		result.Parts = append(result.Parts, TextPart(part))
	}
	return result
}

// MessageFromToolCalls creates a Message with a role and a list of tool calls.
func MessageFromToolCalls(role Role, toolCalls ...ToolCall) Message {
	result := Message{
		Role:  role,
		Parts: make([]ContentPart, 0, len(toolCalls)),
	}
	for _, toolCall := range toolCalls {
		result.Parts = append(result.Parts, toolCall)
	}
	return result
}

// MessageFromToolResponse creates a Message with a role and a tool response.
func MessageFromToolResponse(role Role, toolResponse ToolCallResponse) Message {
	return MessageFromParts(role, toolResponse)
}

// GetContent renders the message parts as displayable text.
func (m Message) GetContent() string {
	var buf strings.Builder
	for _, p := range m.Parts {
		switch typ := p.(type) {
		case TextContent:
			buf.WriteString(typ.Text)
			if !strings.HasSuffix(typ.Text, "\n") {
				buf.WriteString("\n")
			}
		case ToolCall:
			buf.WriteString("Tool Call: ")
			js, _ := json.Marshal(typ)
			buf.Write(js)
			buf.WriteString("\n")
		case ToolCallResponse:
			buf.WriteString("Response: ")
			js, _ := json.Marshal(typ)
			buf.Write(js)
			buf.WriteString("\n")
		}
	}
	return buf.String()
}

// OutcomeContent is one item of tool output. Kind is always "text".
type OutcomeContent struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// Outcome is what a tool execution produces, on success or on handled
// failure. Failures never raise past the executor boundary; they are
// rendered as text content instead.
type Outcome struct {
	Content []OutcomeContent `json:"content"`
}

// TextOutcome creates an Outcome with a single text item.
func TextOutcome(text string) Outcome {
	return Outcome{
		Content: []OutcomeContent{{Kind: "text", Text: text}},
	}
}

// Text concatenates the textual content of the outcome.
func (o Outcome) Text() string {
	if len(o.Content) == 1 {
		return o.Content[0].Text
	}
	var buf strings.Builder
	for _, c := range o.Content {
		if c.Kind != "text" {
			continue
		}
		buf.WriteString(c.Text)
	}
	return buf.String()
}

// StepToolCall is one model-requested tool invocation within a step.
type StepToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// StepToolResult is the outcome of one tool invocation within a step.
type StepToolResult struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Outcome Outcome `json:"outcome"`
}

// Step is one turn of the model's internal loop: free text, plus the tool
// calls it requested in that turn and their results.
type Step struct {
	Text        string           `json:"text"`
	ToolCalls   []StepToolCall   `json:"toolCalls,omitempty"`
	ToolResults []StepToolResult `json:"toolResults,omitempty"`
}

// GenerateResult is the result of one model invocation: the final text, the
// raw step trace, the messages produced (to append to history), and usage.
type GenerateResult struct {
	Text     string
	Steps    []Step
	Messages []Message
	Usage    Usage
}
