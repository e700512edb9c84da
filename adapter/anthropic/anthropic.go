package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/skosovsky/promptkit"
	"github.com/skosovsky/promptkit/adapter"
)

// Name is the default provider name.
const Name = "anthropic"

// DefaultModel is used when neither the adapter nor the call sets a model.
const DefaultModel = anthropic.ModelClaudeSonnet4_5_20250929

const defaultMaxTokens int64 = 1024

// Options is the Options() result: request parameters without messages and tools.
type Options = adapter.RequestOptions[anthropic.MessageNewParams]

// Adapter implements promptkit.Provider for the Anthropic Messages API.
type Adapter struct {
	cfg    adapter.Config
	client anthropic.Client
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
	return &Adapter{cfg: cfg, client: anthropic.NewClient(reqOpts...)}
}

// Name implements promptkit.Provider.
func (a *Adapter) Name() string { return a.cfg.Name }

// Message returns anthropic.TextBlockParam for system text and anthropic.MessageParam for user text.
func (a *Adapter) Message(role promptkit.Role, content string) (any, error) {
	switch role {
	case promptkit.RoleSystem:
		return anthropic.TextBlockParam{Text: content}, nil
	case promptkit.RoleUser:
		return anthropic.NewUserMessage(anthropic.NewTextBlock(content)), nil
	default:
		return nil, fmt.Errorf("%w: %q", adapter.ErrUnsupportedRole, role)
	}
}

// Options implements promptkit.RequestObject.
func (a *Adapter) Options(opts promptkit.CallOptions) (any, error) {
	return a.OptionsTyped(opts)
}

// OptionsTyped returns the concrete type so callers avoid type assertion.
func (a *Adapter) OptionsTyped(opts promptkit.CallOptions) (*Options, error) {
	mp := adapter.Params(opts, a.cfg.DefaultModel)
	params := anthropic.MessageNewParams{
		MaxTokens: defaultMaxTokens,
		Model:     anthropic.Model(mp.Model),
	}
	if mp.MaxTokens != nil {
		params.MaxTokens = *mp.MaxTokens
	}
	if mp.Temperature != nil {
		params.Temperature = anthropic.Float(*mp.Temperature)
	}
	if mp.TopP != nil {
		params.TopP = anthropic.Float(*mp.TopP)
	}
	if len(mp.Stop) > 0 {
		params.StopSequences = mp.Stop
	}
	if opts.JSONMode {
		instruction := "Respond with a single JSON object and nothing else."
		if opts.ResponseSchema != nil {
			schema, err := json.Marshal(opts.ResponseSchema)
			if err != nil {
				return nil, fmt.Errorf("%w: response schema: %w", adapter.ErrMalformedArgs, err)
			}
			instruction += " It must match this JSON Schema: " + string(schema)
		}
		params.System = []anthropic.TextBlockParam{{Text: instruction}}
	}
	return &Options{Params: params, Timeout: opts.Timeout}, nil
}

// FormatTools implements promptkit.ToolFormat.
func (a *Adapter) FormatTools(tools []promptkit.ToolDefinition) ([]any, error) {
	return adapter.FormatEach(tools, formatTool)
}

// FormatTool implements promptkit.ToolFormat.
func (a *Adapter) FormatTool(tool promptkit.ToolDefinition) (any, error) {
	return formatTool(tool)
}

func formatTool(t promptkit.ToolDefinition) (anthropic.ToolUnionParam, error) {
	tool := anthropic.ToolUnionParamOfTool(toolSchemaFromParameters(t.Parameters), t.Name)
	if t.Description != "" && tool.OfTool != nil {
		tool.OfTool.Description = anthropic.String(t.Description)
	}
	return tool, nil
}

func toolSchemaFromParameters(params map[string]any) anthropic.ToolInputSchemaParam {
	schema := anthropic.ToolInputSchemaParam{
		Type: constant.Object("object"),
	}
	if params == nil {
		return schema
	}
	if p, ok := params["properties"].(map[string]any); ok {
		schema.Properties = p
	}
	switch r := params["required"].(type) {
	case []string:
		schema.Required = r
	case []any:
		required := make([]string, 0, len(r))
		for _, x := range r {
			if s, ok := x.(string); ok {
				required = append(required, s)
			}
		}
		schema.Required = required
	}
	return schema
}

// Request sends a Messages API call and returns *anthropic.Message.
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
	resp, err := a.client.Messages.New(reqCtx, params, callOpts...)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, adapter.RequestError(ctx, a.cfg.Name, apiErr.StatusCode, []byte(apiErr.RawJSON()), err)
		}
		return nil, adapter.RequestError(ctx, a.cfg.Name, 0, nil, err)
	}
	return resp, nil
}

func (a *Adapter) build(payload *promptkit.Payload) (anthropic.MessageNewParams, time.Duration, error) {
	var zero anthropic.MessageNewParams
	if payload == nil {
		return zero, 0, fmt.Errorf("%w: nil payload", adapter.ErrInvalidPayload)
	}
	opts, ok := payload.Options.(*Options)
	if !ok {
		if payload.Options != nil {
			return zero, 0, fmt.Errorf("%w: options are %T", adapter.ErrInvalidPayload, payload.Options)
		}
		var err error
		if opts, err = a.OptionsTyped(promptkit.CallOptions{}); err != nil {
			return zero, 0, err
		}
	}
	params := opts.Params
	var system []anthropic.TextBlockParam
	for i, m := range payload.Messages {
		switch msg := m.(type) {
		case anthropic.TextBlockParam:
			system = append(system, msg)
		case anthropic.MessageParam:
			params.Messages = append(params.Messages, msg)
		default:
			return zero, 0, fmt.Errorf("%w: message %d is %T", adapter.ErrInvalidPayload, i, m)
		}
	}
	// Rendered system text goes before any instruction added by Options.
	params.System = append(system, params.System...)
	tools, err := adapter.Items[anthropic.ToolUnionParam](payload.Tools, "tool")
	if err != nil {
		return zero, 0, err
	}
	if len(tools) > 0 {
		params.Tools = tools
	}
	return params, opts.Timeout, nil
}

// Content joins the reply's text blocks. A reply with only tool use yields "".
func (a *Adapter) Content(raw any) (string, error) {
	msg, err := messageOf(raw)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

// ToolCall returns the first tool_use block, or nil.
func (a *Adapter) ToolCall(raw any) (*promptkit.ToolCall, error) {
	msg, err := messageOf(raw)
	if err != nil {
		return nil, err
	}
	for _, block := range msg.Content {
		if block.Type == "tool_use" {
			args := string(block.Input)
			if args == "" {
				args = "{}"
			}
			return &promptkit.ToolCall{ID: block.ID, Name: block.Name, Args: args}, nil
		}
	}
	return nil, nil
}

func messageOf(raw any) (*anthropic.Message, error) {
	msg, ok := raw.(*anthropic.Message)
	if !ok || msg == nil {
		return nil, fmt.Errorf("%w: %T", adapter.ErrInvalidResponse, raw)
	}
	return msg, nil
}

// Compile-time check that Adapter implements Provider.
var _ promptkit.Provider = (*Adapter)(nil)
