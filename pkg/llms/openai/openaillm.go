// Package openai adapts the OpenAI chat-completions API to the Model
// interface, running the bounded internal loop of thinking turns and tool
// executions.
package openai

import (
	"context"
	"encoding/json"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
	openaisdk "github.com/openai/openai-go/v3"
	"github.com/questor-ai/questor/pkg/llms"
	"github.com/questor-ai/questor/pkg/llmutils"
)

var logger = xlog.NewPackageLogger("github.com/questor-ai/questor", "openai")

// LLM invokes OpenAI-compatible chat completions.
type LLM struct {
	client openaisdk.Client
	model  string
}

var _ llms.Model = (*LLM)(nil)

// New returns a new OpenAI Model.
func New(opts ...Option) (*LLM, error) {
	o := applyOptions(opts...)
	if o.model == "" {
		return nil, errors.New("model name is required")
	}
	return &LLM{
		client: openaisdk.NewClient(o.requestOptions()...),
		model:  o.model,
	}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.model
}

// Generate implements the Model interface. It loops completions until the
// model stops requesting tools or the step bound is reached, executing each
// requested tool in order and feeding its output back.
func (o *LLM) Generate(ctx context.Context, history []llms.Message, toolDefs []llms.ToolDef, options ...llms.CallOption) (*llms.GenerateResult, error) {
	opts := llms.NewCallOptions(options...)

	params := openaisdk.ChatCompletionNewParams{
		Model: values.StringsCoalesce(opts.Model, o.model),
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(int64(opts.MaxTokens))
	}
	if opts.HasTemperature() {
		params.Temperature = openaisdk.Float(opts.Temperature)
	}

	for _, msg := range history {
		converted, err := messageParams(msg)
		if err != nil {
			return nil, err
		}
		params.Messages = append(params.Messages, converted...)
	}

	byName := make(map[string]llms.ToolDef, len(toolDefs))
	for _, def := range toolDefs {
		byName[def.Name] = def
		params.Tools = append(params.Tools, toolParam(def))
	}

	result := &llms.GenerateResult{}
	for turn := 0; turn < opts.MaxSteps; turn++ {
		resp, err := o.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, errors.Wrap(err, "model invocation failed")
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("model returned no choices")
		}

		result.Usage.PromptTokens += int(resp.Usage.PromptTokens)
		result.Usage.CompletionTokens += int(resp.Usage.CompletionTokens)
		result.Usage.TotalTokens += int(resp.Usage.TotalTokens)

		message := resp.Choices[0].Message
		params.Messages = append(params.Messages, message.ToParam())

		step := llms.Step{Text: message.Content}

		if len(message.ToolCalls) == 0 {
			result.Text = message.Content
			result.Messages = append(result.Messages, llms.MessageFromTextParts(llms.RoleAssistant, message.Content))
			result.Steps = append(result.Steps, step)
			return result, nil
		}

		// the assistant message carrying the calls precedes the tool responses
		ids := make([]string, len(message.ToolCalls))
		var assistantParts []llms.ContentPart
		if message.Content != "" {
			assistantParts = append(assistantParts, llms.TextPart(message.Content))
		}
		for i, call := range message.ToolCalls {
			ids[i] = values.StringsCoalesce(call.ID, uuid.New().String())
			assistantParts = append(assistantParts, llms.ToolCall{
				ID:   ids[i],
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
				},
			})
		}
		result.Messages = append(result.Messages, llms.MessageFromParts(llms.RoleAssistant, assistantParts...))

		for i, call := range message.ToolCalls {
			id := ids[i]
			name := call.Function.Name

			args, outcome := o.executeCall(ctx, byName, name, call.Function.Arguments)
			text := outcome.Text()

			step.ToolCalls = append(step.ToolCalls, llms.StepToolCall{ID: id, Name: name, Arguments: args})
			step.ToolResults = append(step.ToolResults, llms.StepToolResult{ID: id, Name: name, Outcome: outcome})

			params.Messages = append(params.Messages, openaisdk.ToolMessage(text, id))
			result.Messages = append(result.Messages, llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
				ToolCallID: id,
				Name:       name,
				Content:    text,
			}))
		}

		result.Steps = append(result.Steps, step)
	}

	logger.ContextKV(ctx, xlog.WARNING,
		"status", "step_bound_reached",
		"max_steps", opts.MaxSteps,
	)
	return result, nil
}

// executeCall decodes the arguments and runs the tool. Every failure is
// rendered as tool output so the model can recover; decoding failures fail
// closed without executing anything.
func (o *LLM) executeCall(ctx context.Context, byName map[string]llms.ToolDef, name, rawArgs string) (map[string]any, llms.Outcome) {
	def, ok := byName[name]
	if !ok {
		return nil, llms.TextOutcome("Unknown tool: " + name)
	}

	args := map[string]any{}
	if rawArgs != "" {
		if err := ljson.Unmarshal([]byte(llmutils.CleanJSON([]byte(rawArgs))), &args); err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "bad_tool_arguments",
				"tool", name,
				"err", err.Error(),
			)
			return nil, llms.TextOutcome("Invalid tool arguments: " + err.Error())
		}
	}

	outcome, err := def.Execute(ctx, args)
	if err != nil {
		return args, llms.TextOutcome("Tool " + name + " failed: " + err.Error())
	}
	return args, outcome
}

func toolParam(def llms.ToolDef) openaisdk.ChatCompletionToolUnionParam {
	return openaisdk.ChatCompletionToolUnionParam{
		OfFunction: &openaisdk.ChatCompletionFunctionToolParam{
			Function: openaisdk.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openaisdk.String(def.Description),
				Parameters:  openaisdk.FunctionParameters(toParameters(def.Parameters)),
			},
		},
	}
}

// toParameters renders any schema value as the plain map the SDK expects.
func toParameters(schema any) map[string]any {
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	js, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(js, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// messageParams converts one history message to provider messages. A tool
// message fans out to one provider message per response part.
func messageParams(msg llms.Message) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	switch msg.Role {
	case llms.RoleSystem:
		return []openaisdk.ChatCompletionMessageParamUnion{openaisdk.SystemMessage(msg.GetContent())}, nil

	case llms.RoleUser:
		return []openaisdk.ChatCompletionMessageParamUnion{openaisdk.UserMessage(msg.GetContent())}, nil

	case llms.RoleTool:
		var out []openaisdk.ChatCompletionMessageParamUnion
		for _, p := range msg.Parts {
			resp, ok := p.(llms.ToolCallResponse)
			if !ok {
				return nil, errors.Newf("unexpected part %T in tool message", p)
			}
			out = append(out, openaisdk.ToolMessage(resp.Content, resp.ToolCallID))
		}
		return out, nil

	case llms.RoleAssistant:
		var text string
		var calls []openaisdk.ChatCompletionMessageToolCallUnionParam
		for _, p := range msg.Parts {
			switch typ := p.(type) {
			case llms.TextContent:
				text += typ.Text
			case llms.ToolCall:
				calls = append(calls, openaisdk.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openaisdk.ChatCompletionMessageFunctionToolCallParam{
						ID: typ.ID,
						Function: openaisdk.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      typ.FunctionCall.Name,
							Arguments: typ.FunctionCall.Arguments,
						},
					},
				})
			default:
				return nil, errors.Newf("unexpected part %T in assistant message", p)
			}
		}
		if len(calls) == 0 {
			return []openaisdk.ChatCompletionMessageParamUnion{openaisdk.AssistantMessage(text)}, nil
		}
		assistant := openaisdk.ChatCompletionAssistantMessageParam{ToolCalls: calls}
		if text != "" {
			assistant.Content.OfString = openaisdk.String(text)
		}
		return []openaisdk.ChatCompletionMessageParamUnion{{OfAssistant: &assistant}}, nil

	default:
		return nil, errors.Newf("role %v not supported", msg.Role)
	}
}
