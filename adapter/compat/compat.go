package compat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/skosovsky/promptkit"
	"github.com/skosovsky/promptkit/adapter"
)

// Name is the default provider name.
const Name = "compat"

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://localhost:8000/v1"

// Options is the Options() result.
type Options = adapter.RequestOptions[goopenai.ChatCompletionRequest]

// Adapter implements promptkit.Provider for OpenAI-compatible servers.
type Adapter struct {
	cfg    adapter.Config
	client *goopenai.Client
}

// New returns an Adapter. The default model must usually be set with adapter.WithModel.
func New(opts ...adapter.Option) *Adapter {
	cfg := adapter.NewConfig(Name, "", opts...)
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cc := goopenai.DefaultConfig("")
	cc.BaseURL = cfg.BaseURL
	cc.HTTPClient = cfg.Client()
	return &Adapter{cfg: cfg, client: goopenai.NewClientWithConfig(cc)}
}

// Name implements promptkit.Provider.
func (a *Adapter) Name() string { return a.cfg.Name }

// Message converts a rendered message into goopenai.ChatCompletionMessage.
func (a *Adapter) Message(role promptkit.Role, content string) (any, error) {
	switch role {
	case promptkit.RoleSystem:
		return goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: content}, nil
	case promptkit.RoleUser:
		return goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: content}, nil
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
	req := goopenai.ChatCompletionRequest{Model: mp.Model, Stop: mp.Stop}
	if mp.Temperature != nil {
		req.Temperature = float32(*mp.Temperature)
	}
	if mp.MaxTokens != nil {
		req.MaxTokens = int(*mp.MaxTokens)
	}
	if mp.TopP != nil {
		req.TopP = float32(*mp.TopP)
	}
	if opts.JSONMode {
		req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return &Options{Params: req, Timeout: opts.Timeout}
}

// FormatTools implements promptkit.ToolFormat.
func (a *Adapter) FormatTools(tools []promptkit.ToolDefinition) ([]any, error) {
	return adapter.FormatEach(tools, formatTool)
}

// FormatTool implements promptkit.ToolFormat.
func (a *Adapter) FormatTool(tool promptkit.ToolDefinition) (any, error) {
	return formatTool(tool)
}

func formatTool(t promptkit.ToolDefinition) (goopenai.Tool, error) {
	var params any = t.Parameters
	if t.Parameters == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return goopenai.Tool{
		Type: goopenai.ToolTypeFunction,
		Function: &goopenai.FunctionDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		},
	}, nil
}

// Request calls CreateChatCompletion and returns *goopenai.ChatCompletionResponse.
func (a *Adapter) Request(ctx context.Context, payload *promptkit.Payload) (any, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: nil payload", adapter.ErrInvalidPayload)
	}
	opts, ok := payload.Options.(*Options)
	if !ok {
		if payload.Options != nil {
			return nil, fmt.Errorf("%w: options are %T", adapter.ErrInvalidPayload, payload.Options)
		}
		opts = a.OptionsTyped(promptkit.CallOptions{})
	}
	msgs, err := adapter.Items[goopenai.ChatCompletionMessage](payload.Messages, "message")
	if err != nil {
		return nil, err
	}
	tools, err := adapter.Items[goopenai.Tool](payload.Tools, "tool")
	if err != nil {
		return nil, err
	}
	req := opts.Params
	req.Messages = msgs
	if len(tools) > 0 {
		req.Tools = tools
	}

	reqCtx, cancel := adapter.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	resp, err := a.client.CreateChatCompletion(reqCtx, req)
	if err != nil {
		status, body := errorDetails(err)
		return nil, adapter.RequestError(ctx, a.cfg.Name, status, body, err)
	}
	return &resp, nil
}

func errorDetails(err error) (int, []byte) {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, []byte(apiErr.Message)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, reqErr.Body
	}
	return 0, nil
}

// Content returns the text of the first choice.
func (a *Adapter) Content(raw any) (string, error) {
	msg, err := firstMessage(raw)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// ToolCall returns the first tool call of the first choice, or nil.
func (a *Adapter) ToolCall(raw any) (*promptkit.ToolCall, error) {
	msg, err := firstMessage(raw)
	if err != nil {
		return nil, err
	}
	if len(msg.ToolCalls) == 0 {
		return nil, nil
	}
	tc := msg.ToolCalls[0]
	args := tc.Function.Arguments
	if args == "" {
		args = "{}"
	}
	if !json.Valid([]byte(args)) {
		return nil, fmt.Errorf("%w: tool call %q", adapter.ErrMalformedArgs, tc.Function.Name)
	}
	return &promptkit.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args}, nil
}

func firstMessage(raw any) (*goopenai.ChatCompletionMessage, error) {
	resp, ok := raw.(*goopenai.ChatCompletionResponse)
	if !ok || resp == nil {
		return nil, fmt.Errorf("%w: %T", adapter.ErrInvalidResponse, raw)
	}
	if len(resp.Choices) == 0 {
		return nil, adapter.ErrEmptyResponse
	}
	return &resp.Choices[0].Message, nil
}

var _ promptkit.Provider = (*Adapter)(nil)
