// Package registry assembles the tool set offered to the model on each
// round: the bootstrap tools, tools compiled from mounted API descriptions,
// and tools listed by connected MCP servers.
package registry

import (
	"context"
	"net/http"

	"github.com/cespare/xxhash/v2"
	"github.com/effective-security/xlog"
	"github.com/questor-ai/questor/agentctx"
	"github.com/questor-ai/questor/mcpclient"
	"github.com/questor-ai/questor/openapi"
	"github.com/questor-ai/questor/pkg/llms"
	"github.com/questor-ai/questor/tools"
)

var logger = xlog.NewPackageLogger("github.com/questor-ai/questor", "registry")

// maxNameLen is the provider-imposed limit on tool names. Definitions with
// longer names are dropped rather than truncated, since a truncated name no
// longer matches what its description promises.
const maxNameLen = 64

// Builder rebuilds the registry each round. Compiled descriptions are cached
// for the lifetime of the Builder, so a description is fetched at most once
// per run regardless of how many rounds follow.
type Builder struct {
	dialer     mcpclient.Dialer
	httpClient *http.Client

	// OptionalProperties is passed through to the description compiler.
	OptionalProperties bool

	cache map[uint64][]llms.ToolDef
}

// NewBuilder returns a Builder using the given dialer for protocol servers
// and HTTP client for description fetches.
func NewBuilder(dialer mcpclient.Dialer, httpClient *http.Client) *Builder {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Builder{
		dialer:     dialer,
		httpClient: httpClient,
		cache:      map[uint64][]llms.ToolDef{},
	}
}

// Result is one round's registry. Close must be called when the round ends;
// it tears down every session opened during Build.
type Result struct {
	sessions []mcpclient.Session

	// Resources holds the rendered text of every resource the connected
	// servers expose, for injection into the conversation.
	Resources []string

	order []string
	defs  map[string]llms.ToolDef
}

// Tools returns the definitions in registration order.
func (r *Result) Tools() []llms.ToolDef {
	out := make([]llms.ToolDef, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}

// Close tears down the round's server sessions.
func (r *Result) Close() {
	for _, s := range r.sessions {
		if err := s.Close(); err != nil {
			logger.KV(xlog.WARNING, "status", "session_close_failed", "err", err.Error())
		}
	}
	r.sessions = nil
}

func (r *Result) register(def llms.ToolDef) {
	if len(def.Name) > maxNameLen {
		logger.KV(xlog.WARNING,
			"status", "tool_name_too_long",
			"name", def.Name,
			"len", len(def.Name),
		)
		return
	}
	if _, exists := r.defs[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	// same-name definitions overwrite earlier ones
	r.defs[def.Name] = def
}

// Build assembles the registry for one round from the session context.
// Unreachable servers and broken descriptions degrade to warnings; Build
// itself fails only on programmer error.
func (b *Builder) Build(ctx context.Context, actx *agentctx.Context) (*Result, error) {
	res := &Result{defs: map[string]llms.ToolDef{}}

	for _, def := range tools.Bootstrap() {
		res.register(def)
	}

	for _, ref := range actx.APISpecs {
		for _, def := range b.compiled(ctx, ref) {
			res.register(def)
		}
	}

	for _, ref := range actx.MountedServers {
		if !mcpclient.IsProtocolURL(ref.URL) {
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "not_a_protocol_url",
				"url", ref.URL,
			)
			continue
		}

		sess, err := b.dialer.Dial(ctx, ref.URL, ref.Headers)
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "server_unreachable",
				"url", ref.URL,
				"err", err.Error(),
			)
			continue
		}
		res.sessions = append(res.sessions, sess)

		defs, err := sess.ListTools(ctx)
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "tool_listing_failed",
				"url", ref.URL,
				"err", err.Error(),
			)
			continue
		}
		for _, def := range defs {
			res.register(def)
		}

		texts, err := sess.Resources(ctx)
		if err == nil {
			res.Resources = append(res.Resources, texts...)
		}
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "registry_built",
		"tools", len(res.order),
		"servers", len(actx.MountedServers),
		"specs", len(actx.APISpecs),
	)
	return res, nil
}

// compiled fetches and compiles one description, served from the per-run
// cache on repeat rounds.
func (b *Builder) compiled(ctx context.Context, ref agentctx.SpecRef) []llms.ToolDef {
	key := xxhash.Sum64String(ref.URL + "\x00" + ref.AuthHeader)
	if defs, ok := b.cache[key]; ok {
		return defs
	}

	doc, err := openapi.Fetch(ctx, b.httpClient, ref.URL)
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "description_fetch_failed",
			"url", ref.URL,
			"err", err.Error(),
		)
		return nil
	}

	defs := openapi.Compile(doc, openapi.Options{
		AuthValue:          ref.AuthHeader,
		OptionalProperties: b.OptionalProperties,
		HTTPClient:         b.httpClient,
	})
	b.cache[key] = defs
	return defs
}
