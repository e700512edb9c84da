// Package config loads promptctl configuration.
//
// Precedence, highest first:
//
//  1. PROMPTKIT_* environment variables (PROMPTKIT_ENGINE_DEFAULT_PROVIDER, ...)
//  2. the config file (YAML or JSON)
//  3. defaults
//
// Provider secrets never live in the file: a provider names the secret key and
// the secrets store resolves it at request time.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "PROMPTKIT"

// ErrInvalidConfig is returned when the decoded config fails validation.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Provider kinds understood by internal/provider.
const (
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
	KindGemini    = "gemini"
	KindOllama    = "ollama"
	KindCompat    = "compat"
	KindLangChain = "langchain"
)

// Config is the full promptctl configuration.
type Config struct {
	// Environment selects manifest overlays ({name}.{env}.yaml).
	Environment string           `mapstructure:"environment" json:"environment,omitempty" jsonschema:"description=Manifest overlay environment such as dev or prod"`
	Log         LogConfig        `mapstructure:"log" json:"log"`
	Prompts     PromptsConfig    `mapstructure:"prompts" json:"prompts"`
	Engine      EngineConfig     `mapstructure:"engine" json:"engine"`
	Providers   []ProviderConfig `mapstructure:"providers" json:"providers" validate:"required,min=1,unique=Name,dive" jsonschema:"required,minItems=1"`
}

// LogConfig configures internal/logger.
type LogConfig struct {
	Mode  string `mapstructure:"mode" json:"mode,omitempty" validate:"oneof=development production" jsonschema:"enum=development,enum=production,default=development"`
	Level string `mapstructure:"level" json:"level,omitempty" validate:"oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`
}

// PromptsConfig says where manifests come from. Exactly one source must be set.
type PromptsConfig struct {
	Dir         string        `mapstructure:"dir" json:"dir,omitempty" jsonschema:"description=Local manifest directory"`
	URL         string        `mapstructure:"url" json:"url,omitempty" validate:"omitempty,url" jsonschema:"description=Base URL of an HTTP manifest store"`
	Git         GitConfig     `mapstructure:"git" json:"git,omitempty"`
	TTL         time.Duration `mapstructure:"ttl" json:"ttl,omitempty" validate:"gte=0" jsonschema:"type=string,description=Remote cache TTL as a Go duration"`
	OnDuplicate string        `mapstructure:"on_duplicate" json:"on_duplicate,omitempty" validate:"oneof=overwrite reject" jsonschema:"enum=overwrite,enum=reject,default=overwrite"`
}

// GitConfig points at a manifest repository.
type GitConfig struct {
	Repo     string `mapstructure:"repo" json:"repo,omitempty"`
	Branch   string `mapstructure:"branch" json:"branch,omitempty"`
	Dir      string `mapstructure:"dir" json:"dir,omitempty"`
	Depth    int    `mapstructure:"depth" json:"depth,omitempty" validate:"gte=0"`
	TokenKey string `mapstructure:"token_key" json:"token_key,omitempty" jsonschema:"description=Secret key holding the HTTPS access token"`
}

// EngineConfig holds per-call defaults.
type EngineConfig struct {
	DefaultProvider string        `mapstructure:"default_provider" json:"default_provider,omitempty"`
	Timeout         time.Duration `mapstructure:"timeout" json:"timeout,omitempty" validate:"gte=0" jsonschema:"type=string,description=Provider request timeout as a Go duration"`
}

// ProviderConfig describes one adapter.
type ProviderConfig struct {
	Name       string            `mapstructure:"name" json:"name" validate:"required" jsonschema:"required"`
	Kind       string            `mapstructure:"kind" json:"kind" validate:"required,oneof=openai anthropic gemini ollama compat langchain" jsonschema:"required,enum=openai,enum=anthropic,enum=gemini,enum=ollama,enum=compat,enum=langchain"`
	Model      string            `mapstructure:"model" json:"model,omitempty"`
	BaseURL    string            `mapstructure:"base_url" json:"base_url,omitempty" validate:"omitempty,url"`
	APIKey     string            `mapstructure:"api_key_secret" json:"api_key_secret,omitempty" jsonschema:"description=Secret key holding the API key"`
	Headers    map[string]string `mapstructure:"headers" json:"headers,omitempty"`
	MaxRetries int               `mapstructure:"max_retries" json:"max_retries,omitempty" validate:"gte=0"`
	// Backend is the langchaingo model behind a langchain provider.
	Backend    string            `mapstructure:"backend" json:"backend,omitempty" validate:"omitempty,oneof=ollama openai" jsonschema:"enum=ollama,enum=openai"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "")
	v.SetDefault("log.mode", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("prompts.dir", "")
	v.SetDefault("prompts.url", "")
	v.SetDefault("prompts.git.repo", "")
	v.SetDefault("prompts.git.branch", "main")
	v.SetDefault("prompts.git.dir", "")
	v.SetDefault("prompts.git.depth", 1)
	v.SetDefault("prompts.git.token_key", "")
	v.SetDefault("prompts.ttl", 5*time.Minute)
	v.SetDefault("prompts.on_duplicate", "overwrite")
	v.SetDefault("engine.default_provider", "")
	v.SetDefault("engine.timeout", time.Duration(0))
}

// Load reads path (may be empty), applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	sources := 0
	for _, s := range []string{c.Prompts.Dir, c.Prompts.URL, c.Prompts.Git.Repo} {
		if s != "" {
			sources++
		}
	}
	if sources != 1 {
		return fmt.Errorf("%w: exactly one of prompts.dir, prompts.url, prompts.git.repo must be set", ErrInvalidConfig)
	}
	for _, p := range c.Providers {
		if p.Kind == KindLangChain && p.Backend == "" {
			return fmt.Errorf("%w: provider %q of kind langchain needs a backend", ErrInvalidConfig, p.Name)
		}
	}
	if name := c.Engine.DefaultProvider; name != "" {
		if _, ok := c.Provider(name); !ok {
			return fmt.Errorf("%w: engine.default_provider %q is not configured", ErrInvalidConfig, name)
		}
	}
	return nil
}

// Provider returns the provider config named name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}
