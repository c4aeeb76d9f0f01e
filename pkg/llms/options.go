package llms

// CallOption is a function that configures CallOptions.
type CallOption func(*CallOptions)

// CallOptions is a set of options for a single model invocation.
type CallOptions struct {
	// Model is the provider model name to use.
	Model string
	// MaxSteps bounds the model's internal step loop.
	MaxSteps int
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int
	// Temperature is the sampling temperature, between 0 and 1.
	Temperature float64
	// temperatureSet records whether Temperature was supplied.
	temperatureSet bool
}

// DefaultMaxSteps bounds the internal step loop when no option is supplied.
const DefaultMaxSteps = 10

// NewCallOptions applies the options over defaults.
func NewCallOptions(options ...CallOption) *CallOptions {
	opts := &CallOptions{
		MaxSteps: DefaultMaxSteps,
	}
	for _, opt := range options {
		opt(opts)
	}
	return opts
}

// WithModel sets the provider model name.
func WithModel(model string) CallOption {
	return func(o *CallOptions) {
		o.Model = model
	}
}

// WithMaxSteps bounds the model's internal step loop.
func WithMaxSteps(maxSteps int) CallOption {
	return func(o *CallOptions) {
		if maxSteps > 0 {
			o.MaxSteps = maxSteps
		}
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(maxTokens int) CallOption {
	return func(o *CallOptions) {
		o.MaxTokens = maxTokens
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temperature float64) CallOption {
	return func(o *CallOptions) {
		o.Temperature = temperature
		o.temperatureSet = true
	}
}

// HasTemperature reports whether a temperature was explicitly supplied.
func (o *CallOptions) HasTemperature() bool {
	return o.temperatureSet
}
