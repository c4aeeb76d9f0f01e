package schema_test

import (
	"reflect"
	"testing"

	"github.com/questor-ai/questor/pkg/llmutils"
	"github.com/questor-ai/questor/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mountRequest struct {
	URL  string `json:"url" jsonschema:"title=URL,description=The server URL to mount"`
	Name string `json:"name,omitempty" jsonschema:"title=Name,description=Human label for the server"`
}

func Test_Schema(t *testing.T) {
	s, err := schema.New(reflect.TypeOf(mountRequest{}))
	require.NoError(t, err)
	require.NotNil(t, s.Parameters)

	assert.Equal(t, "object", s.Parameters.Type)
	assert.Equal(t, []string{"url"}, s.Parameters.Required)

	urlProp, ok := s.Parameters.Properties.Get("url")
	require.True(t, ok)
	assert.Equal(t, "string", urlProp.Type)
	assert.Equal(t, "The server URL to mount", urlProp.Description)

	// cached lookups return the same instance
	s2, err := schema.New(reflect.TypeOf(mountRequest{}))
	require.NoError(t, err)
	assert.Same(t, s, s2)

	// the flattened form serializes without $refs
	js := llmutils.ToJSON(s.Parameters)
	assert.NotContains(t, js, "$ref")
	assert.NotContains(t, js, "$defs")
}
