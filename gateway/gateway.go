// Package gateway is the invocation boundary: it applies usage governance,
// assembles the model and orchestrator for one run, and renders every
// outcome, success or failure, as a structured result document. Nothing
// raises past Handle.
package gateway

import (
	"context"
	"net/http"

	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/questor-ai/questor/agentctx"
	"github.com/questor-ai/questor/mcpclient"
	"github.com/questor-ai/questor/orchestrator"
	"github.com/questor-ai/questor/pkg/llms"
	"github.com/questor-ai/questor/pkg/llms/openai"
	"github.com/questor-ai/questor/registry"
	"github.com/questor-ai/questor/steps"
	"github.com/questor-ai/questor/usage"
	"github.com/redis/go-redis/v9"
)

var logger = xlog.NewPackageLogger("github.com/questor-ai/questor", "gateway")

// Input is the caller's request.
type Input struct {
	Prompt string `json:"prompt"`
}

// Result is the document returned for every invocation. On success Answer,
// Steps, Usage and AgentContext are set; on handled failure Error is true,
// Message describes the failure and the kind-specific fields are populated.
type Result struct {
	Error   bool   `json:"error,omitempty"`
	Message string `json:"message,omitempty"`

	Answer       string                `json:"answer,omitempty"`
	Steps        []steps.FormattedStep `json:"steps"`
	Usage        *llms.Usage           `json:"usage"`
	AgentContext *agentctx.Context     `json:"agentContext"`

	RedisError   bool  `json:"redisError,omitempty"`
	DailyCap     int64 `json:"dailyCap,omitempty"`
	CurrentUsage int64 `json:"currentUsage,omitempty"`
}

// Gateway handles invocations against one configuration.
type Gateway struct {
	cfg        *Config
	counter    *usage.Counter
	dialer     mcpclient.Dialer
	httpClient *http.Client
	model      llms.Model
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithModel injects a model, bypassing provider construction.
func WithModel(m llms.Model) Option {
	return func(g *Gateway) { g.model = m }
}

// WithCounter injects a usage counter.
func WithCounter(c *usage.Counter) Option {
	return func(g *Gateway) { g.counter = c }
}

// WithDialer injects a protocol server dialer.
func WithDialer(d mcpclient.Dialer) Option {
	return func(g *Gateway) { g.dialer = d }
}

// WithHTTPClient sets the client used for description fetches and compiled
// tool calls.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.httpClient = c }
}

// New creates a Gateway. Unless TestMode is set, a Redis-backed usage
// counter is connected per the config.
func New(cfg *Config, opts ...Option) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := &Gateway{cfg: cfg}
	for _, opt := range opts {
		opt(g)
	}
	if g.httpClient == nil {
		g.httpClient = http.DefaultClient
	}
	if g.dialer == nil {
		g.dialer = mcpclient.NewDialer(g.httpClient)
	}
	if g.counter == nil && !cfg.TestMode {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address(cfg.Production),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		g.counter = usage.NewCounter(client)
	}
	return g, nil
}

// Handle runs one invocation. The credential, when set, is used as the
// model provider token for this run. The initial context may be nil for a
// fresh session; the returned document always carries the (possibly
// expanded) context so the caller can resume from it.
func (g *Gateway) Handle(ctx context.Context, credential string, in Input, initial *agentctx.Context) *Result {
	actx := initial
	if actx == nil {
		actx = agentctx.New(nil, nil)
	}

	if in.Prompt == "" {
		return errorResult(actx, "prompt is required")
	}

	if !g.cfg.TestMode {
		if res := g.checkQuota(ctx, actx); res != nil {
			return res
		}
	}

	model := g.model
	if model == nil {
		var err error
		model, err = openai.New(
			openai.WithModel(g.cfg.Provider.Model),
			openai.WithBaseURL(g.cfg.Provider.BaseURL),
			openai.WithToken(values.StringsCoalesce(credential, g.cfg.Provider.Token)),
			openai.WithHTTPClient(g.httpClient),
		)
		if err != nil {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "model_setup", "err", err.Error())
			return errorResult(actx, "failed to set up the model: "+err.Error())
		}
	}

	var orchOpts []orchestrator.Option
	if g.cfg.MaxRounds > 0 {
		orchOpts = append(orchOpts, orchestrator.WithMaxRounds(g.cfg.MaxRounds))
	}
	orch := orchestrator.New(model, registry.NewBuilder(g.dialer, g.httpClient), orchOpts...)

	run, err := orch.Run(ctx, actx, in.Prompt)
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "run_failed", "err", err.Error())
		return errorResult(actx, err.Error())
	}

	trace := run.Steps
	if trace == nil {
		trace = []steps.FormattedStep{}
	}
	return &Result{
		Answer:       run.Answer,
		Steps:        trace,
		Usage:        &run.Usage,
		AgentContext: run.Context,
	}
}

// checkQuota enforces governance before any model work starts. The system
// refuses to run ungoverned: an unreachable counter is fatal, not ignored.
func (g *Gateway) checkQuota(ctx context.Context, actx *agentctx.Context) *Result {
	conn := g.counter.CheckConnection(ctx)
	if !conn.Connected {
		res := errorResult(actx, "usage store unavailable: "+conn.Err)
		res.RedisError = true
		return res
	}

	limit := g.counter.CheckLimit(ctx, g.cfg.DailyCap)
	if limit.Err != "" {
		res := errorResult(actx, "usage store unavailable: "+limit.Err)
		res.RedisError = true
		return res
	}
	if limit.LimitExceeded {
		res := errorResult(actx, "daily usage cap reached")
		res.DailyCap = g.cfg.DailyCap
		res.CurrentUsage = limit.CurrentUsage
		return res
	}

	if _, err := g.counter.Increment(ctx); err != nil {
		res := errorResult(actx, "usage store unavailable: "+err.Error())
		res.RedisError = true
		return res
	}
	return nil
}

func errorResult(actx *agentctx.Context, message string) *Result {
	return &Result{
		Error:        true,
		Message:      message,
		Steps:        []steps.FormattedStep{},
		Usage:        nil,
		AgentContext: actx,
	}
}
