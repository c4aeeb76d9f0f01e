package openai

import (
	"net/http"
	"os"

	"github.com/openai/openai-go/v3/option"
)

const (
	tokenEnvVarName   = "OPENAI_API_KEY"  //nolint:gosec
	modelEnvVarName   = "OPENAI_MODEL"    //nolint:gosec
	baseURLEnvVarName = "OPENAI_BASE_URL" //nolint:gosec
)

type options struct {
	token      string
	model      string
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for the OpenAI client.
type Option func(*options)

// WithToken passes the API token to the client. If not set, the token is
// read from the OPENAI_API_KEY environment variable.
func WithToken(token string) Option {
	return func(opts *options) {
		opts.token = token
	}
}

// WithModel sets the model name. If not set, the model is read from the
// OPENAI_MODEL environment variable.
func WithModel(model string) Option {
	return func(opts *options) {
		opts.model = model
	}
}

// WithBaseURL passes a base URL for OpenAI-compatible endpoints. If not set,
// it is read from OPENAI_BASE_URL, and the SDK default applies when that is
// empty too.
func WithBaseURL(baseURL string) Option {
	return func(opts *options) {
		opts.baseURL = baseURL
	}
}

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(opts *options) {
		opts.httpClient = client
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{
		token:   os.Getenv(tokenEnvVarName),
		model:   os.Getenv(modelEnvVarName),
		baseURL: os.Getenv(baseURLEnvVarName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) requestOptions() []option.RequestOption {
	var out []option.RequestOption
	if o.token != "" {
		out = append(out, option.WithAPIKey(o.token))
	}
	if o.baseURL != "" {
		out = append(out, option.WithBaseURL(o.baseURL))
	}
	if o.httpClient != nil {
		out = append(out, option.WithHTTPClient(o.httpClient))
	}
	return out
}
