// Package orchestrator runs the round loop: build the tool registry for the
// current session context, invoke the model, fold its steps into the
// accumulated trace, and expand the context when the model asked to mount a
// new capability. A round that mounts nothing terminates the run.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/questor-ai/questor/agentctx"
	"github.com/questor-ai/questor/pkg/llms"
	"github.com/questor-ai/questor/registry"
	"github.com/questor-ai/questor/steps"
	"github.com/questor-ai/questor/tools"
)

var logger = xlog.NewPackageLogger("github.com/questor-ai/questor", "orchestrator")

// DefaultMaxRounds bounds how many times the context may expand in one run.
const DefaultMaxRounds = 8

// ErrRoundBudgetExceeded is returned when the model keeps mounting new
// capabilities without ever answering.
var ErrRoundBudgetExceeded = errors.New("round budget exceeded")

// Orchestrator drives one run at a time; it holds no per-run state.
type Orchestrator struct {
	model     llms.Model
	builder   *registry.Builder
	maxRounds int
	callOpts  []llms.CallOption
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxRounds overrides the round budget.
func WithMaxRounds(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxRounds = n
		}
	}
}

// WithCallOptions sets options passed to every model invocation.
func WithCallOptions(opts ...llms.CallOption) Option {
	return func(o *Orchestrator) {
		o.callOpts = opts
	}
}

// New creates an Orchestrator over a model and a registry builder.
func New(model llms.Model, builder *registry.Builder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		model:     model,
		builder:   builder,
		maxRounds: DefaultMaxRounds,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunResult is the terminal value of a run. Usage covers the final round's
// model invocation; the trace covers every round.
type RunResult struct {
	Answer  string
	Steps   []steps.FormattedStep
	Usage   llms.Usage
	Context *agentctx.Context
}

// Run executes rounds until one finishes without mounting anything, or the
// round budget runs out. The context is mutated in place and returned so
// callers can persist the expanded capability set.
func (o *Orchestrator) Run(ctx context.Context, actx *agentctx.Context, prompt string) (*RunResult, error) {
	actx.Append(llms.MessageFromTextParts(llms.RoleUser, prompt))

	formatter := steps.NewFormatter()
	var trace []steps.FormattedStep
	seenResources := map[string]struct{}{}
	knownTools := map[string]struct{}{}

	for round := 0; round < o.maxRounds; round++ {
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "round_started",
			"round", round,
			"servers", len(actx.MountedServers),
			"specs", len(actx.APISpecs),
		)

		res, grew, err := o.round(ctx, actx, seenResources, knownTools)
		if err != nil {
			return nil, err
		}
		trace = append(trace, formatter.Format(res.Steps)...)

		if !grew {
			return &RunResult{
				Answer:  res.Text,
				Steps:   trace,
				Usage:   res.Usage,
				Context: actx,
			}, nil
		}
	}
	return nil, errors.WithMessagef(ErrRoundBudgetExceeded, "after %d rounds", o.maxRounds)
}

// round builds the registry, invokes the model once and applies any
// bootstrap calls. The round's server sessions live exactly as long as the
// invocation that may call into them.
func (o *Orchestrator) round(ctx context.Context, actx *agentctx.Context, seenResources, knownTools map[string]struct{}) (*llms.GenerateResult, bool, error) {
	reg, err := o.builder.Build(ctx, actx)
	if err != nil {
		return nil, false, err
	}
	defer reg.Close()

	for _, r := range reg.Resources {
		if _, ok := seenResources[r]; ok {
			continue
		}
		seenResources[r] = struct{}{}
		actx.Append(llms.MessageFromTextParts(llms.RoleSystem, r))
	}

	// tools that appeared since the previous round are announced; the first
	// round's set is the baseline the model already sees in its tool list
	announce := len(knownTools) > 0
	var added []llms.ToolDef
	for _, def := range reg.Tools() {
		if _, ok := knownTools[def.Name]; ok {
			continue
		}
		knownTools[def.Name] = struct{}{}
		added = append(added, def)
	}
	if announce && len(added) > 0 {
		actx.Append(llms.MessageFromTextParts(llms.RoleSystem,
			"New tools are now available:"+tools.Describe(added)))
	}

	res, err := o.model.Generate(ctx, actx.History, reg.Tools(), o.callOpts...)
	if err != nil {
		return nil, false, errors.WithMessage(err, "model invocation failed")
	}
	actx.Append(res.Messages...)

	return res, o.applyBootstrap(ctx, actx, res.Steps), nil
}

// applyBootstrap scans the round's tool calls for capability mounts and
// applies them to the context. Malformed calls are logged and skipped.
func (o *Orchestrator) applyBootstrap(ctx context.Context, actx *agentctx.Context, roundSteps []llms.Step) bool {
	grew := false
	for _, step := range roundSteps {
		for _, call := range step.ToolCalls {
			switch call.Name {
			case tools.AddServerToolName:
				url, name, ok := mountArgs(call.Arguments)
				if !ok {
					logger.ContextKV(ctx, xlog.WARNING, "status", "bad_mount_arguments", "tool", call.Name)
					continue
				}
				if actx.AddServer(agentctx.ServerRef{URL: url, Name: name}) {
					actx.Append(llms.MessageFromTextParts(llms.RoleSystem,
						fmt.Sprintf("The MCP server %s is now connected. Its tools are available from this turn on.", url)))
					grew = true
				}

			case tools.AddSpecToolName:
				url, name, ok := mountArgs(call.Arguments)
				if !ok {
					logger.ContextKV(ctx, xlog.WARNING, "status", "bad_mount_arguments", "tool", call.Name)
					continue
				}
				if actx.AddSpec(agentctx.SpecRef{URL: url, Name: name}) {
					actx.Append(llms.MessageFromTextParts(llms.RoleSystem,
						fmt.Sprintf("The API description %s has been compiled. Its operations are available as tools from this turn on.", url)))
					grew = true
				}
			}
		}
	}
	return grew
}

// mountArgs defensively extracts the url and optional name from bootstrap
// call arguments.
func mountArgs(args map[string]any) (url, name string, ok bool) {
	if args == nil {
		return "", "", false
	}
	url, _ = args["url"].(string)
	if url == "" {
		return "", "", false
	}
	name, _ = args["name"].(string)
	return url, name, true
}
