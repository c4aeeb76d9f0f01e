// Package mcpclient connects to remote MCP servers and adapts their tools
// and resources to the model-facing tool definitions.
package mcpclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/questor-ai/questor/pkg/llms"
)

var logger = xlog.NewPackageLogger("github.com/questor-ai/questor", "mcpclient")

const (
	clientName    = "questor"
	clientVersion = "1.0.0"
)

// Session is one live connection to an MCP server.
type Session interface {
	// ListTools returns the server's tools as callable definitions.
	ListTools(ctx context.Context) ([]llms.ToolDef, error)

	// Resources reads every listed resource and returns its rendered text.
	// Servers without resource support yield an empty slice.
	Resources(ctx context.Context) ([]string, error)

	Close() error
}

// Dialer opens sessions. Implementations other than the HTTP one exist only
// in tests.
type Dialer interface {
	Dial(ctx context.Context, serverURL string, headers map[string]string) (Session, error)
}

// NewDialer returns a Dialer that speaks Streamable HTTP or SSE, chosen by
// the URL path.
func NewDialer(client *http.Client) Dialer {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpDialer{client: client}
}

// IsProtocolURL reports whether a URL looks like an MCP endpoint rather
// than a static description document.
func IsProtocolURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	path := strings.TrimRight(u.Path, "/")
	if strings.HasSuffix(path, ".json") || strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		return false
	}
	return true
}

type httpDialer struct {
	client *http.Client
}

var _ Dialer = (*httpDialer)(nil)

func (d *httpDialer) Dial(ctx context.Context, serverURL string, headers map[string]string) (Session, error) {
	client := d.client
	if len(headers) > 0 {
		client = &http.Client{
			Transport: &headerTransport{
				base:    d.client.Transport,
				headers: headers,
			},
			Timeout: d.client.Timeout,
		}
	}

	var transport mcp.Transport
	if strings.HasSuffix(strings.TrimRight(mustPath(serverURL), "/"), "/sse") {
		transport = &mcp.SSEClientTransport{Endpoint: serverURL, HTTPClient: client}
	} else {
		transport = &mcp.StreamableClientTransport{Endpoint: serverURL, HTTPClient: client}
	}

	c := mcp.NewClient(&mcp.Implementation{Name: clientName, Version: clientVersion}, nil)
	cs, err := c.Connect(ctx, transport, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to MCP server: %s", serverURL)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "connected",
		"url", serverURL,
	)
	return &session{cs: cs, serverURL: serverURL}, nil
}

func mustPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}

// headerTransport injects static headers into every request, typically for
// server-side authentication.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for k, v := range t.headers {
		clone.Header.Set(k, v)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

type session struct {
	cs        *mcp.ClientSession
	serverURL string
}

var _ Session = (*session)(nil)

func (s *session) ListTools(ctx context.Context) ([]llms.ToolDef, error) {
	res, err := s.cs.ListTools(ctx, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list tools: %s", s.serverURL)
	}

	defs := make([]llms.ToolDef, 0, len(res.Tools))
	for _, tool := range res.Tools {
		name := tool.Name
		defs = append(defs, llms.ToolDef{
			Name:        name,
			Description: tool.Description,
			Parameters:  tool.InputSchema,
			Execute: func(ctx context.Context, args map[string]any) (llms.Outcome, error) {
				return s.call(ctx, name, args)
			},
		})
	}
	return defs, nil
}

// call invokes one remote tool. Remote failures are rendered as text so the
// model can react to them; they never propagate as errors.
func (s *session) call(ctx context.Context, name string, args map[string]any) (llms.Outcome, error) {
	res, err := s.cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "tool_call_failed",
			"tool", name,
			"url", s.serverURL,
			"err", err.Error(),
		)
		return llms.TextOutcome("Tool call failed: " + err.Error()), nil
	}

	text := contentText(res.Content)
	if res.IsError {
		return llms.TextOutcome("Tool returned an error: " + text), nil
	}
	return llms.TextOutcome(text), nil
}

func (s *session) Resources(ctx context.Context) ([]string, error) {
	listed, err := s.cs.ListResources(ctx, nil)
	if err != nil {
		// resource support is optional; treat refusal as absence
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "no_resources",
			"url", s.serverURL,
			"err", err.Error(),
		)
		return nil, nil
	}

	var texts []string
	for _, r := range listed.Resources {
		read, err := s.cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: r.URI})
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"status", "resource_read_failed",
				"uri", r.URI,
				"err", err.Error(),
			)
			continue
		}
		for _, c := range read.Contents {
			if c.Text != "" {
				texts = append(texts, c.Text)
			}
		}
	}
	return texts, nil
}

func (s *session) Close() error {
	return s.cs.Close()
}

func contentText(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
