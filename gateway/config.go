package gateway

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
	"github.com/go-playground/validator/v10"
)

// Config is the gateway configuration.
type Config struct {
	// TestMode bypasses all usage governance.
	TestMode bool `json:"test_mode" yaml:"test_mode"`
	// Production selects the production Redis address.
	Production bool `json:"production" yaml:"production"`
	// DailyCap is the shared daily invocation budget.
	DailyCap int64 `json:"daily_cap" yaml:"daily_cap" validate:"gte=0"`

	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	Provider ProviderConfig `json:"provider" yaml:"provider"`

	// MaxRounds overrides the orchestrator's round budget.
	MaxRounds int `json:"max_rounds,omitempty" yaml:"max_rounds,omitempty" validate:"gte=0"`
}

// RedisConfig holds the counter backend addresses.
type RedisConfig struct {
	Addr           string `json:"addr" yaml:"addr"`
	ProductionAddr string `json:"production_addr,omitempty" yaml:"production_addr,omitempty"`
	Password       string `json:"password,omitempty" yaml:"password,omitempty"`
	DB             int    `json:"db,omitempty" yaml:"db,omitempty"`
}

// ProviderConfig selects the model endpoint.
type ProviderConfig struct {
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Token   string `json:"token,omitempty" yaml:"token,omitempty"`
	Model   string `json:"model" yaml:"model" validate:"required"`
}

// DefaultDailyCap applies when the configuration leaves the cap unset.
const DefaultDailyCap = 250

// Address returns the Redis address selected by the Production flag.
func (c *RedisConfig) Address(production bool) string {
	if production && c.ProductionAddr != "" {
		return c.ProductionAddr
	}
	return c.Addr
}

// LoadConfig reads and validates a YAML config file, expanding environment
// references in its values.
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
		return nil, errors.WithMessage(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and applies defaults.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.WithMessage(err, "invalid config")
	}
	if c.DailyCap == 0 {
		c.DailyCap = DefaultDailyCap
	}
	return nil
}
