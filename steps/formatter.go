// Package steps turns the raw model step trace into the flat, numbered
// records returned to the caller.
package steps

import (
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/questor-ai/questor/pkg/llms"
	"github.com/questor-ai/questor/pkg/llmutils"
	"github.com/questor-ai/questor/tools"
)

// ThinkingTool labels steps that carry model text but no tool invocation.
const ThinkingTool = "thinking"

// PaymentTokenToolName gets a dedicated description and token decoding.
const PaymentTokenToolName = "get_payment_token"

// FormattedStep is one numbered record of the accumulated trace.
type FormattedStep struct {
	Index  int            `json:"index"`
	Tool   string         `json:"tool"`
	Text   string         `json:"text,omitempty"`
	Input  map[string]any `json:"input,omitempty"`
	Result string         `json:"result,omitempty"`
}

// Formatter numbers steps with a counter that keeps increasing across
// rounds, so a record's index identifies it within the whole run.
type Formatter struct {
	next int
}

func NewFormatter() *Formatter {
	return &Formatter{next: 1}
}

// Format appends one round's steps to the trace. A step without tool calls
// becomes one thinking record; a step with tool calls becomes one record per
// call, matched to its result by call ID. Tool-issued bearer tokens are
// decoded (unverified) into an extra thinking record when well formed.
func (f *Formatter) Format(roundSteps []llms.Step) []FormattedStep {
	var out []FormattedStep

	emit := func(s FormattedStep) {
		s.Index = f.next
		f.next++
		out = append(out, s)
	}

	for _, step := range roundSteps {
		if len(step.ToolCalls) == 0 {
			text := step.Text
			if text == "" {
				text = "Thinking."
			}
			emit(FormattedStep{Tool: ThinkingTool, Text: text})
			continue
		}

		results := map[string]string{}
		for _, r := range step.ToolResults {
			results[r.ID] = r.Outcome.Text()
		}

		for _, call := range step.ToolCalls {
			result := results[call.ID]
			emit(FormattedStep{
				Tool:   call.Name,
				Text:   describe(call.Name, step.Text),
				Input:  call.Arguments,
				Result: result,
			})

			if issuesToken(call.Name) {
				if decoded, ok := decodeToken(result); ok {
					emit(FormattedStep{Tool: ThinkingTool, Text: decoded})
				}
			}
		}
	}
	return out
}

// describe prefers the model's own step text, falling back to a canned
// description of the tool.
func describe(name, stepText string) string {
	if stepText != "" {
		return stepText
	}
	switch name {
	case tools.AddServerToolName:
		return "Connecting a new tool server."
	case tools.AddSpecToolName:
		return "Compiling an API description into tools."
	case PaymentTokenToolName:
		return "Obtaining a payment token."
	default:
		return "Calling " + strings.ReplaceAll(name, "_", " ") + "."
	}
}

func issuesToken(name string) bool {
	return name == PaymentTokenToolName || strings.HasSuffix(name, "_token")
}

// decodeToken looks for a signed JWT in the tool output and renders its
// header and claims without verifying the signature. Anything malformed is
// silently ignored.
func decodeToken(text string) (string, bool) {
	candidate := findJWT(text)
	if candidate == "" {
		return "", false
	}

	token, parts, err := jwt.NewParser().ParseUnverified(candidate, jwt.MapClaims{})
	if err != nil || len(parts) != 3 || parts[2] == "" {
		return "", false
	}

	rendered := "Token header:" + llmutils.BackticksJSON(llmutils.ToJSONIndent(token.Header)) +
		"Token claims:" + llmutils.BackticksJSON(llmutils.ToJSONIndent(token.Claims))
	return rendered, true
}

// findJWT extracts the first three-segment base64url token from free text.
func findJWT(text string) string {
	isTokenRune := func(r rune) bool {
		return r == '.' || r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
	}

	fields := strings.FieldsFunc(text, func(r rune) bool { return !isTokenRune(r) })
	for _, field := range fields {
		segments := strings.Split(field, ".")
		if len(segments) != 3 {
			continue
		}
		if segments[0] == "" || segments[1] == "" || segments[2] == "" {
			continue
		}
		return field
	}
	return ""
}
