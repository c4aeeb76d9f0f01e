package agentctx_test

import (
	"testing"

	"github.com/questor-ai/questor/agentctx"
	"github.com/questor-ai/questor/pkg/llms"
	"github.com/stretchr/testify/assert"
)

func Test_Context_AddServer(t *testing.T) {
	c := agentctx.New(nil, nil)

	assert.True(t, c.AddServer(agentctx.ServerRef{URL: "https://one.example.com/mcp"}))
	assert.True(t, c.AddServer(agentctx.ServerRef{URL: "https://two.example.com/mcp"}))
	// re-mounting the same URL is a no-op, trailing slash included
	assert.False(t, c.AddServer(agentctx.ServerRef{URL: "https://one.example.com/mcp/"}))

	assert.Len(t, c.MountedServers, 2)
	assert.Equal(t, "https://one.example.com/mcp", c.MountedServers[0].URL)
	assert.Equal(t, "https://two.example.com/mcp", c.MountedServers[1].URL)
}

func Test_Context_AddSpec(t *testing.T) {
	c := agentctx.New(
		[]agentctx.ServerRef{{URL: "https://srv.example.com/sse"}},
		[]agentctx.SpecRef{{URL: "https://api.example.com/openapi.json"}},
	)

	assert.False(t, c.AddSpec(agentctx.SpecRef{URL: "https://api.example.com/openapi.json"}))
	assert.True(t, c.AddSpec(agentctx.SpecRef{URL: "https://other.example.com/openapi.json", AuthHeader: "tok"}))
	assert.Len(t, c.APISpecs, 2)

	// server and spec URL namespaces are independent
	assert.True(t, c.AddSpec(agentctx.SpecRef{URL: "https://srv.example.com/sse"}))
}

func Test_Context_Append(t *testing.T) {
	c := agentctx.New(nil, nil)
	c.Append(llms.MessageFromTextParts(llms.RoleSystem, "sys"))
	c.Append(llms.MessageFromTextParts(llms.RoleUser, "hi"))
	assert.Len(t, c.History, 2)
	assert.Equal(t, llms.RoleSystem, c.History[0].Role)
}
