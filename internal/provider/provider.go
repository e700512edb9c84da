// Package provider builds promptkit adapters from configuration.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/llms"
	lcollama "github.com/tmc/langchaingo/llms/ollama"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/skosovsky/promptkit"
	"github.com/skosovsky/promptkit/adapter"
	"github.com/skosovsky/promptkit/adapter/anthropic"
	"github.com/skosovsky/promptkit/adapter/compat"
	"github.com/skosovsky/promptkit/adapter/gemini"
	"github.com/skosovsky/promptkit/adapter/langchain"
	"github.com/skosovsky/promptkit/adapter/ollama"
	"github.com/skosovsky/promptkit/adapter/openai"
	"github.com/skosovsky/promptkit/internal/config"
	"github.com/skosovsky/promptkit/secrets"
)

// ErrUnknownKind is returned for a provider kind with no adapter.
var ErrUnknownKind = errors.New("provider: unknown kind")

type builder struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures Build.
type Option func(*builder)

// WithHTTPClient sets the HTTP client handed to every adapter.
func WithHTTPClient(c *http.Client) Option {
	return func(b *builder) {
		if c != nil {
			b.httpClient = c
		}
	}
}

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// Build returns one adapter per config, in order. API keys are read from store
// on every request, except for langchain backends which take the key at construction.
func Build(ctx context.Context, cfgs []config.ProviderConfig, store secrets.Store, opts ...Option) ([]promptkit.Provider, error) {
	b := &builder{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	out := make([]promptkit.Provider, 0, len(cfgs))
	for _, pc := range cfgs {
		p, err := b.build(ctx, pc, store)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		b.logger.Debug("provider configured",
			zap.String("provider", pc.Name),
			zap.String("kind", pc.Kind),
			zap.String("model", pc.Model),
		)
		out = append(out, p)
	}
	return out, nil
}

func (b *builder) options(pc config.ProviderConfig, store secrets.Store) []adapter.Option {
	opts := []adapter.Option{adapter.WithName(pc.Name)}
	if pc.Model != "" {
		opts = append(opts, adapter.WithModel(pc.Model))
	}
	if pc.BaseURL != "" {
		opts = append(opts, adapter.WithBaseURL(pc.BaseURL))
	}
	for k, v := range pc.Headers {
		opts = append(opts, adapter.WithHeader(k, v))
	}
	if pc.MaxRetries > 0 {
		opts = append(opts, adapter.WithMaxRetries(pc.MaxRetries))
	}
	if b.httpClient != nil {
		opts = append(opts, adapter.WithHTTPClient(b.httpClient))
	}
	if pc.APIKey != "" && store != nil {
		opts = append(opts, adapter.WithCredentials(adapter.SecretKey(store, pc.APIKey)))
	}
	return opts
}

func (b *builder) build(ctx context.Context, pc config.ProviderConfig, store secrets.Store) (promptkit.Provider, error) {
	opts := b.options(pc, store)
	switch pc.Kind {
	case config.KindOpenAI:
		return openai.New(opts...), nil
	case config.KindAnthropic:
		return anthropic.New(opts...), nil
	case config.KindGemini:
		return gemini.New(opts...), nil
	case config.KindOllama:
		return ollama.New(opts...), nil
	case config.KindCompat:
		return compat.New(opts...), nil
	case config.KindLangChain:
		model, err := b.langchainModel(ctx, pc, store)
		if err != nil {
			return nil, err
		}
		return langchain.New(model, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, pc.Kind)
	}
}

func (b *builder) langchainModel(ctx context.Context, pc config.ProviderConfig, store secrets.Store) (llms.Model, error) {
	switch pc.Backend {
	case "ollama":
		var opts []lcollama.Option
		if pc.BaseURL != "" {
			opts = append(opts, lcollama.WithServerURL(pc.BaseURL))
		}
		if pc.Model != "" {
			opts = append(opts, lcollama.WithModel(pc.Model))
		}
		if b.httpClient != nil {
			opts = append(opts, lcollama.WithHTTPClient(b.httpClient))
		}
		return lcollama.New(opts...)
	case "openai":
		if pc.APIKey == "" || store == nil {
			return nil, fmt.Errorf("%w: langchain openai backend needs api_key_secret", adapter.ErrMissingCredentials)
		}
		key, err := store.Get(ctx, pc.APIKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", adapter.ErrMissingCredentials, err)
		}
		opts := []lcopenai.Option{lcopenai.WithToken(key)}
		if pc.BaseURL != "" {
			opts = append(opts, lcopenai.WithBaseURL(pc.BaseURL))
		}
		if pc.Model != "" {
			opts = append(opts, lcopenai.WithModel(pc.Model))
		}
		if b.httpClient != nil {
			opts = append(opts, lcopenai.WithHTTPClient(b.httpClient))
		}
		return lcopenai.New(opts...)
	default:
		return nil, fmt.Errorf("%w: langchain backend %q", ErrUnknownKind, pc.Backend)
	}
}
