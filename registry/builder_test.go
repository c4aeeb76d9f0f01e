package registry_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/questor-ai/questor/agentctx"
	"github.com/questor-ai/questor/mcpclient"
	"github.com/questor-ai/questor/pkg/llms"
	"github.com/questor-ai/questor/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	defs      []llms.ToolDef
	resources []string
	closed    bool
}

func (s *fakeSession) ListTools(ctx context.Context) ([]llms.ToolDef, error) {
	return s.defs, nil
}

func (s *fakeSession) Resources(ctx context.Context) ([]string, error) {
	return s.resources, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeDialer struct {
	sessions map[string]*fakeSession
	dialed   []string
}

func (d *fakeDialer) Dial(ctx context.Context, serverURL string, headers map[string]string) (mcpclient.Session, error) {
	d.dialed = append(d.dialed, serverURL)
	if s, ok := d.sessions[serverURL]; ok {
		return s, nil
	}
	return nil, context.DeadlineExceeded
}

func textDef(name string) llms.ToolDef {
	return llms.ToolDef{
		Name:       name,
		Parameters: map[string]any{"type": "object"},
		Execute: func(ctx context.Context, args map[string]any) (llms.Outcome, error) {
			return llms.TextOutcome(name), nil
		},
	}
}

func toolNames(res *registry.Result) []string {
	var names []string
	for _, def := range res.Tools() {
		names = append(names, def.Name)
	}
	return names
}

func TestBuild_BootstrapAndServerTools(t *testing.T) {
	sess := &fakeSession{
		defs:      []llms.ToolDef{textDef("remote_echo")},
		resources: []string{"service notes"},
	}
	dialer := &fakeDialer{sessions: map[string]*fakeSession{"https://svc.example.com/mcp": sess}}

	actx := agentctx.New(
		[]agentctx.ServerRef{{URL: "https://svc.example.com/mcp"}},
		nil,
	)

	b := registry.NewBuilder(dialer, nil)
	res, err := b.Build(context.Background(), actx)
	require.NoError(t, err)

	names := toolNames(res)
	assert.Contains(t, names, "add_mcp_server")
	assert.Contains(t, names, "add_openapi_spec")
	assert.Contains(t, names, "remote_echo")
	assert.Equal(t, []string{"service notes"}, res.Resources)

	res.Close()
	assert.True(t, sess.closed)
}

func TestBuild_SkipsDocumentURLs(t *testing.T) {
	dialer := &fakeDialer{sessions: map[string]*fakeSession{}}
	actx := agentctx.New(
		[]agentctx.ServerRef{{URL: "https://svc.example.com/openapi.json"}},
		nil,
	)

	b := registry.NewBuilder(dialer, nil)
	res, err := b.Build(context.Background(), actx)
	require.NoError(t, err)

	assert.Empty(t, dialer.dialed)
	assert.Len(t, res.Tools(), 2) // just the bootstrap pair
}

func TestBuild_UnreachableServerDegrades(t *testing.T) {
	dialer := &fakeDialer{sessions: map[string]*fakeSession{}}
	actx := agentctx.New(
		[]agentctx.ServerRef{{URL: "https://gone.example.com/mcp"}},
		nil,
	)

	b := registry.NewBuilder(dialer, nil)
	res, err := b.Build(context.Background(), actx)
	require.NoError(t, err)
	assert.Len(t, res.Tools(), 2)
}

func TestBuild_DropsOversizedNames(t *testing.T) {
	long := strings.Repeat("a", 65)
	sess := &fakeSession{defs: []llms.ToolDef{textDef(long), textDef("kept")}}
	dialer := &fakeDialer{sessions: map[string]*fakeSession{"https://svc.example.com/mcp": sess}}

	actx := agentctx.New(
		[]agentctx.ServerRef{{URL: "https://svc.example.com/mcp"}},
		nil,
	)

	b := registry.NewBuilder(dialer, nil)
	res, err := b.Build(context.Background(), actx)
	require.NoError(t, err)

	names := toolNames(res)
	assert.NotContains(t, names, long)
	assert.Contains(t, names, "kept")
}

func TestBuild_SameNameOverwrites(t *testing.T) {
	first := textDef("dup")
	second := llms.ToolDef{
		Name:        "dup",
		Description: "second wins",
		Parameters:  map[string]any{"type": "object"},
		Execute: func(ctx context.Context, args map[string]any) (llms.Outcome, error) {
			return llms.TextOutcome("second"), nil
		},
	}
	sess := &fakeSession{defs: []llms.ToolDef{first, second}}
	dialer := &fakeDialer{sessions: map[string]*fakeSession{"https://svc.example.com/mcp": sess}}

	actx := agentctx.New(
		[]agentctx.ServerRef{{URL: "https://svc.example.com/mcp"}},
		nil,
	)

	b := registry.NewBuilder(dialer, nil)
	res, err := b.Build(context.Background(), actx)
	require.NoError(t, err)

	var dup *llms.ToolDef
	count := 0
	for _, def := range res.Tools() {
		if def.Name == "dup" {
			d := def
			dup = &d
			count++
		}
	}
	require.Equal(t, 1, count)
	assert.Equal(t, "second wins", dup.Description)
}

func TestBuild_CompiledDescriptionsCachedPerRun(t *testing.T) {
	var fetches atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		_, _ = w.Write([]byte(`{
			"openapi": "3.0.0",
			"info": {"title": "Widgets", "version": "1"},
			"servers": [{"url": "https://widgets.example.com"}],
			"paths": {"/widget": {"get": {"summary": "Get Widget"}}}
		}`))
	}))
	defer srv.Close()

	actx := agentctx.New(nil, []agentctx.SpecRef{{URL: srv.URL + "/openapi.json"}})

	b := registry.NewBuilder(&fakeDialer{}, srv.Client())

	res, err := b.Build(context.Background(), actx)
	require.NoError(t, err)
	assert.Contains(t, toolNames(res), "get_widget")
	require.EqualValues(t, 1, fetches.Load())

	// the second round reuses the compiled definitions
	res, err = b.Build(context.Background(), actx)
	require.NoError(t, err)
	assert.Contains(t, toolNames(res), "get_widget")
	assert.EqualValues(t, 1, fetches.Load())
}
