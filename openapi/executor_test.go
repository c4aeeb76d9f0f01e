package openapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/questor-ai/questor/openapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileOne(t *testing.T, doc *openapi.Document, opts openapi.Options) func(context.Context, map[string]any) (string, error) {
	t.Helper()
	defs := openapi.Compile(doc, opts)
	require.Len(t, defs, 1)
	exec := defs[0].Execute
	return func(ctx context.Context, args map[string]any) (string, error) {
		out, err := exec(ctx, args)
		return out.Text(), err
	}
}

func TestExecutor_GetWithPathAndQuery(t *testing.T) {
	var seen *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"42","status":"ok"}`))
	}))
	defer srv.Close()

	doc := &openapi.Document{
		Servers: []openapi.Server{{URL: srv.URL}},
		Paths: map[string]openapi.PathItem{
			"/widgets/{id}": {
				Get: &openapi.Operation{
					Summary: "Get Widget",
					Parameters: []openapi.Parameter{
						{Name: "id", In: "path"},
						{Name: "verbose", In: "query"},
					},
				},
			},
		},
	}

	call := compileOne(t, doc, openapi.Options{HTTPClient: srv.Client()})
	text, err := call(context.Background(), map[string]any{
		"auth_token": "",
		"id":         float64(42),
		"verbose":    "true",
	})
	require.NoError(t, err)

	require.NotNil(t, seen)
	assert.Equal(t, "/widgets/42", seen.URL.Path)
	assert.Equal(t, "true", seen.URL.Query().Get("verbose"))
	assert.Empty(t, seen.Header.Get("Authorization"))
	assert.Contains(t, text, `"status": "ok"`)
}

func TestExecutor_PostBodyFromUnconsumedArgs(t *testing.T) {
	var body map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"created":true}`))
	}))
	defer srv.Close()

	doc := &openapi.Document{
		Servers:  []openapi.Server{{URL: srv.URL}},
		Security: []openapi.SecurityRequirement{{"bearerAuth": nil}},
		Components: openapi.Components{
			SecuritySchemes: map[string]openapi.SecurityScheme{
				"bearerAuth": {Type: "http", Scheme: "bearer"},
			},
		},
		Paths: map[string]openapi.PathItem{
			"/things": {
				Post: &openapi.Operation{Summary: "Create Thing"},
			},
		},
	}

	call := compileOne(t, doc, openapi.Options{HTTPClient: srv.Client()})
	text, err := call(context.Background(), map[string]any{
		"auth_token": "tok-123",
		"name":       "gizmo",
		"count":      float64(3),
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-123", auth)
	assert.Equal(t, "gizmo", body["name"])
	assert.EqualValues(t, 3, body["count"])
	// the token never leaks into the body
	assert.NotContains(t, body, "auth_token")
	assert.Contains(t, text, "created")
}

func TestExecutor_APIKeyHeader(t *testing.T) {
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("X-Api-Key")
		_, _ = w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	doc := &openapi.Document{
		Servers:  []openapi.Server{{URL: srv.URL}},
		Security: []openapi.SecurityRequirement{{"apiKey": nil}},
		Components: openapi.Components{
			SecuritySchemes: map[string]openapi.SecurityScheme{
				"apiKey": {Type: "apiKey", In: "header", Name: "X-Api-Key"},
			},
		},
		Paths: map[string]openapi.PathItem{
			"/ping": {Get: &openapi.Operation{Summary: "Ping Service"}},
		},
	}

	// configured value wins over the model-supplied token
	call := compileOne(t, doc, openapi.Options{HTTPClient: srv.Client(), AuthValue: "configured"})
	_, err := call(context.Background(), map[string]any{"auth_token": "from-model"})
	require.NoError(t, err)
	assert.Equal(t, "configured", key)
}

func TestExecutor_PaymentTokenHeader(t *testing.T) {
	var payment string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payment = r.Header.Get("X-Payment")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	doc := &openapi.Document{
		Servers: []openapi.Server{{URL: srv.URL}},
		Paths: map[string]openapi.PathItem{
			"/premium": {Get: &openapi.Operation{Summary: "Premium Data"}},
		},
	}

	call := compileOne(t, doc, openapi.Options{HTTPClient: srv.Client()})
	_, err := call(context.Background(), map[string]any{
		"auth_token":    "",
		"payment_token": "pay-456",
	})
	require.NoError(t, err)
	assert.Equal(t, "pay-456", payment)
}

func TestExecutor_NonSuccessIsHandled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"token expired"}`))
	}))
	defer srv.Close()

	doc := &openapi.Document{
		Servers: []openapi.Server{{URL: srv.URL}},
		Paths: map[string]openapi.PathItem{
			"/secure": {Get: &openapi.Operation{Summary: "Secure Data"}},
		},
	}

	call := compileOne(t, doc, openapi.Options{HTTPClient: srv.Client()})
	text, err := call(context.Background(), map[string]any{"auth_token": "stale"})

	// failures surface as text for the model, never as an error
	require.NoError(t, err)
	assert.Contains(t, text, "403")
	assert.Contains(t, text, "token expired")
}

func TestExecutor_TransportFailureIsHandled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	doc := &openapi.Document{
		Servers: []openapi.Server{{URL: srv.URL}},
		Paths: map[string]openapi.PathItem{
			"/gone": {Get: &openapi.Operation{Summary: "Gone Service"}},
		},
	}

	call := compileOne(t, doc, openapi.Options{})
	text, err := call(context.Background(), map[string]any{"auth_token": ""})
	require.NoError(t, err)
	assert.Contains(t, text, "failed")
}
