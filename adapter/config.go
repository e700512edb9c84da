package adapter

import (
	"context"
	"fmt"
	"maps"
	"net/http"

	"github.com/skosovsky/promptkit/secrets"
)

// Credentials resolves the API key at request time.
type Credentials func(ctx context.Context) (string, error)

// StaticKey returns Credentials that always yield key.
func StaticKey(key string) Credentials {
	return func(context.Context) (string, error) { return key, nil }
}

// SecretKey returns Credentials that read key from store on every request,
// so rotated secrets take effect without rebuilding the adapter.
func SecretKey(store secrets.Store, key string) Credentials {
	return func(ctx context.Context) (string, error) {
		v, err := store.Get(ctx, key)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrMissingCredentials, err)
		}
		return v, nil
	}
}

// Config is the transport configuration shared by vendor adapters.
type Config struct {
	Name         string
	BaseURL      string
	DefaultModel string
	Headers      map[string]string
	HTTPClient   *http.Client
	Credentials  Credentials
	// MaxRetries is passed to SDKs that retry on their own. Default 0: the engine never retries.
	MaxRetries int
}

// Option configures an adapter (functional options pattern).
type Option func(*Config)

// NewConfig applies opts over the vendor defaults.
func NewConfig(name, defaultModel string, opts ...Option) Config {
	c := Config{Name: name, DefaultModel: defaultModel, Headers: map[string]string{}}
	for _, opt := range opts {
		opt(&c)
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	return c
}

// WithName overrides the provider name used for selection and errors.
func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// WithBaseURL sets the API base URL.
func WithBaseURL(u string) Option {
	return func(c *Config) { c.BaseURL = u }
}

// WithModel sets the model used when CallOptions carries none.
func WithModel(m string) Option {
	return func(c *Config) { c.DefaultModel = m }
}

// WithHeader adds a static request header.
func WithHeader(key, value string) Option {
	return func(c *Config) {
		if c.Headers == nil {
			c.Headers = map[string]string{}
		}
		c.Headers[key] = value
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) { c.HTTPClient = hc }
}

// WithCredentials sets the API key source.
func WithCredentials(cr Credentials) Option {
	return func(c *Config) { c.Credentials = cr }
}

// WithMaxRetries enables SDK-level retries.
func WithMaxRetries(n int) Option {
	return func(c *Config) { c.MaxRetries = n }
}

// APIKey resolves the configured credentials. It returns "" without error when none are configured.
func (c Config) APIKey(ctx context.Context) (string, error) {
	if c.Credentials == nil {
		return "", nil
	}
	return c.Credentials(ctx)
}

// AuthTransport injects static headers and a credentials-derived Authorization header.
type AuthTransport struct {
	Base        http.RoundTripper
	Headers     map[string]string
	Credentials Credentials
	// Scheme prefixes the key in the Authorization header. Default "Bearer".
	Scheme string
}

// RoundTrip implements http.RoundTripper.
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}
	if t.Credentials != nil {
		key, err := t.Credentials(req.Context())
		if err != nil {
			return nil, err
		}
		if key != "" {
			scheme := t.Scheme
			if scheme == "" {
				scheme = "Bearer"
			}
			req.Header.Set("Authorization", scheme+" "+key)
		}
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// Client returns a copy of c's HTTP client whose transport applies AuthTransport.
func (c Config) Client() *http.Client {
	hc := *c.HTTPClient
	hc.Transport = &AuthTransport{
		Base:        c.HTTPClient.Transport,
		Headers:     maps.Clone(c.Headers),
		Credentials: c.Credentials,
	}
	return &hc
}
