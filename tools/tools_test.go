package tools_test

import (
	"context"
	"testing"

	"github.com/questor-ai/questor/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Bootstrap(t *testing.T) {
	defs := tools.Bootstrap()
	require.Len(t, defs, 2)
	assert.Equal(t, tools.AddServerToolName, defs[0].Name)
	assert.Equal(t, tools.AddSpecToolName, defs[1].Name)

	ctx := context.Background()
	out, err := defs[0].Execute(ctx, map[string]any{"url": "https://tools.example.com/mcp", "name": "tools"})
	require.NoError(t, err)
	assert.Contains(t, out.Text(), "https://tools.example.com/mcp")
	assert.Contains(t, out.Text(), "next turn")

	out, err = defs[1].Execute(ctx, map[string]any{"url": "https://api.example.com/openapi.json", "name": "api"})
	require.NoError(t, err)
	assert.Contains(t, out.Text(), "https://api.example.com/openapi.json")
}

func Test_Describe(t *testing.T) {
	defs := tools.Bootstrap()
	desc := tools.Describe(defs)
	assert.Contains(t, desc, "```yaml")
	assert.Contains(t, desc, tools.AddServerToolName)
	assert.Contains(t, desc, tools.AddSpecToolName)
}
