package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skosovsky/promptkit"
	"github.com/skosovsky/promptkit/internal/cast"
)

// Sentinel errors for adapter implementations. Callers should use errors.Is.
var (
	ErrUnsupportedRole    = errors.New("adapter: unsupported message role for this provider")
	ErrInvalidResponse    = errors.New("adapter: raw response has unexpected type")
	ErrEmptyResponse      = errors.New("adapter: response contains no choices")
	ErrInvalidPayload     = errors.New("adapter: payload item has unexpected type")
	ErrMalformedArgs      = errors.New("adapter: tool call args or tool parameters JSON is malformed")
	ErrMissingCredentials = errors.New("adapter: no credentials configured")
)

// ModelParams holds model settings resolved from CallOptions.
type ModelParams struct {
	Model       string
	Temperature *float64
	MaxTokens   *int64
	TopP        *float64
	Stop        []string
}

// Params resolves model settings: typed CallOptions fields win, then well-known
// Extra keys, then defaultModel for the model name.
func Params(opts promptkit.CallOptions, defaultModel string) ModelParams {
	out := ExtractModelConfig(opts.Extra)
	if opts.Model != "" {
		out.Model = opts.Model
	}
	if out.Model == "" {
		out.Model = defaultModel
	}
	if opts.Temperature != nil {
		out.Temperature = opts.Temperature
	}
	if opts.MaxTokens != nil {
		out.MaxTokens = opts.MaxTokens
	}
	if opts.TopP != nil {
		out.TopP = opts.TopP
	}
	if len(opts.Stop) > 0 {
		out.Stop = opts.Stop
	}
	return out
}

// ExtractModelConfig reads well-known keys from a generic config map.
// Well-known keys: "model" (string), "temperature" (float64), "max_tokens" (int64), "top_p" (float64), "stop" ([]string).
func ExtractModelConfig(cfg map[string]any) ModelParams {
	var out ModelParams
	if cfg == nil {
		return out
	}
	if m, ok := cfg["model"].(string); ok {
		out.Model = m
	}
	if v, ok := cfg["temperature"]; ok {
		if f, ok := cast.ToFloat64(v); ok {
			out.Temperature = &f
		}
	}
	if v, ok := cfg["max_tokens"]; ok {
		if i, ok := cast.ToInt64(v); ok {
			out.MaxTokens = &i
		}
	}
	if v, ok := cfg["top_p"]; ok {
		if f, ok := cast.ToFloat64(v); ok {
			out.TopP = &f
		}
	}
	if v, ok := cfg["stop"]; ok {
		if ss, ok := cast.ToStringSlice(v); ok {
			out.Stop = ss
		}
	}
	return out
}

// RequestOptions is the Options() result shared by adapters whose request
// parameters are built at send time. Params is vendor-specific.
type RequestOptions[P any] struct {
	Params  P
	Timeout time.Duration
}

// Items type-asserts every payload item to T.
func Items[T any](items []any, what string) ([]T, error) {
	out := make([]T, 0, len(items))
	for i, it := range items {
		v, ok := it.(T)
		if !ok {
			return nil, fmt.Errorf("%w: %s %d is %T", ErrInvalidPayload, what, i, it)
		}
		out = append(out, v)
	}
	return out, nil
}

// FormatEach converts tools one by one with format and returns them as []any.
// An empty input yields an empty, non-nil slice.
func FormatEach[T any](tools []promptkit.ToolDefinition, format func(promptkit.ToolDefinition) (T, error)) ([]any, error) {
	out := make([]any, 0, len(tools))
	for _, t := range tools {
		v, err := format(t)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", t.Name, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// WithTimeout derives the per-request context. d <= 0 means no adapter timeout.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// RequestError maps a failed request onto promptkit errors.
// parent is the caller's context, not the per-request one: a cancelled parent
// yields *promptkit.CancelledError, an expired adapter deadline a timeout *promptkit.ProviderError.
func RequestError(parent context.Context, provider string, status int, body []byte, err error) error {
	if errors.Is(parent.Err(), context.Canceled) || (status == 0 && errors.Is(err, context.Canceled)) {
		return &promptkit.CancelledError{Provider: provider, Err: context.Canceled}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", promptkit.ErrTimeout, err)
	}
	return promptkit.NewProviderError(provider, status, body, err)
}
