package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/skosovsky/promptkit"
	"github.com/skosovsky/promptkit/adapter"
)

// Name is the default provider name.
const Name = "openai"

// DefaultModel is used when neither the adapter nor the call sets a model.
const DefaultModel = openai.ChatModelGPT4o

// Options is the Options() result: request parameters without messages and tools.
type Options = adapter.RequestOptions[openai.ChatCompletionNewParams]

// Adapter implements promptkit.Provider for the OpenAI Chat Completions API.
type Adapter struct {
	cfg    adapter.Config
	client openai.Client
}

// New returns an Adapter. SDK retries are off unless adapter.WithMaxRetries is given.
func New(opts ...adapter.Option) *Adapter {
	cfg := adapter.NewConfig(Name, string(DefaultModel), opts...)
	reqOpts := []option.RequestOption{
		option.WithHTTPClient(cfg.HTTPClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	for k, v := range cfg.Headers {
		reqOpts = append(reqOpts, option.WithHeader(k, v))
	}
	return &Adapter{cfg: cfg, client: openai.NewClient(reqOpts...)}
}

// Name implements promptkit.Provider.
func (a *Adapter) Name() string { return a.cfg.Name }

// Message converts a rendered message into a chat message param.
func (a *Adapter) Message(role promptkit.Role, content string) (any, error) {
	switch role {
	case promptkit.RoleSystem:
		return openai.SystemMessage(content), nil
	case promptkit.RoleUser:
		return openai.UserMessage(content), nil
	default:
		return nil, fmt.Errorf("%w: %q", adapter.ErrUnsupportedRole, role)
	}
}

// Options implements promptkit.RequestObject.
func (a *Adapter) Options(opts promptkit.CallOptions) (any, error) {
	return a.OptionsTyped(opts), nil
}

// OptionsTyped returns the concrete type so callers avoid type assertion.
func (a *Adapter) OptionsTyped(opts promptkit.CallOptions) *Options {
	mp := adapter.Params(opts, a.cfg.DefaultModel)
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(mp.Model), //nolint:unconvert // ChatModel may be a distinct type
	}
	if mp.Temperature != nil {
		params.Temperature = openai.Float(*mp.Temperature)
	}
	if mp.MaxTokens != nil {
		params.MaxTokens = openai.Int(*mp.MaxTokens)
	}
	if mp.TopP != nil {
		params.TopP = openai.Float(*mp.TopP)
	}
	if len(mp.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: mp.Stop}
	}
	if opts.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return &Options{Params: params, Timeout: opts.Timeout}
}

// FormatTools implements promptkit.ToolFormat.
func (a *Adapter) FormatTools(tools []promptkit.ToolDefinition) ([]any, error) {
	return adapter.FormatEach(tools, a.formatTool)
}

// FormatTool implements promptkit.ToolFormat.
func (a *Adapter) FormatTool(tool promptkit.ToolDefinition) (any, error) {
	return a.formatTool(tool)
}

func (a *Adapter) formatTool(t promptkit.ToolDefinition) (openai.ChatCompletionToolUnionParam, error) {
	fn := shared.FunctionDefinitionParam{Name: t.Name}
	if t.Description != "" {
		fn.Description = openai.String(t.Description)
	}
	if t.Parameters != nil {
		fn.Parameters = shared.FunctionParameters(t.Parameters)
	}
	return openai.ChatCompletionFunctionTool(fn), nil
}

// Request sends a chat completion and returns *openai.ChatCompletion.
func (a *Adapter) Request(ctx context.Context, payload *promptkit.Payload) (any, error) {
	params, timeout, err := a.build(payload)
	if err != nil {
		return nil, err
	}
	reqCtx, cancel := adapter.WithTimeout(ctx, timeout)
	defer cancel()

	key, err := a.cfg.APIKey(reqCtx)
	if err != nil {
		return nil, adapter.RequestError(ctx, a.cfg.Name, 0, nil, err)
	}
	var callOpts []option.RequestOption
	if key != "" {
		callOpts = append(callOpts, option.WithAPIKey(key))
	}
	resp, err := a.client.Chat.Completions.New(reqCtx, params, callOpts...)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, adapter.RequestError(ctx, a.cfg.Name, apiErr.StatusCode, []byte(apiErr.RawJSON()), err)
		}
		return nil, adapter.RequestError(ctx, a.cfg.Name, 0, nil, err)
	}
	return resp, nil
}

func (a *Adapter) build(payload *promptkit.Payload) (openai.ChatCompletionNewParams, time.Duration, error) {
	if payload == nil {
		return openai.ChatCompletionNewParams{}, 0, fmt.Errorf("%w: nil payload", adapter.ErrInvalidPayload)
	}
	opts, ok := payload.Options.(*Options)
	if !ok {
		if payload.Options != nil {
			return openai.ChatCompletionNewParams{}, 0, fmt.Errorf("%w: options are %T", adapter.ErrInvalidPayload, payload.Options)
		}
		opts = a.OptionsTyped(promptkit.CallOptions{})
	}
	msgs, err := adapter.Items[openai.ChatCompletionMessageParamUnion](payload.Messages, "message")
	if err != nil {
		return openai.ChatCompletionNewParams{}, 0, err
	}
	tools, err := adapter.Items[openai.ChatCompletionToolUnionParam](payload.Tools, "tool")
	if err != nil {
		return openai.ChatCompletionNewParams{}, 0, err
	}
	params := opts.Params
	params.Messages = msgs
	if len(tools) > 0 {
		params.Tools = tools
	}
	return params, opts.Timeout, nil
}

// Content returns the first choice's text. A reply with only tool calls yields "".
func (a *Adapter) Content(raw any) (string, error) {
	completion, err := completionOf(raw)
	if err != nil {
		return "", err
	}
	return completion.Choices[0].Message.Content, nil
}

// ToolCall returns the first function call of the first choice, or nil.
func (a *Adapter) ToolCall(raw any) (*promptkit.ToolCall, error) {
	completion, err := completionOf(raw)
	if err != nil {
		return nil, err
	}
	for _, tc := range completion.Choices[0].Message.ToolCalls {
		if tc.Type == "function" {
			return &promptkit.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: tc.Function.Arguments}, nil
		}
	}
	return nil, nil
}

func completionOf(raw any) (*openai.ChatCompletion, error) {
	completion, ok := raw.(*openai.ChatCompletion)
	if !ok || completion == nil {
		return nil, fmt.Errorf("%w: %T", adapter.ErrInvalidResponse, raw)
	}
	if len(completion.Choices) == 0 {
		return nil, adapter.ErrEmptyResponse
	}
	return completion, nil
}

// Compile-time check that Adapter implements Provider.
var _ promptkit.Provider = (*Adapter)(nil)
