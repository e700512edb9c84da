package langchain

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/tmc/langchaingo/llms"

	"github.com/skosovsky/promptkit"
	"github.com/skosovsky/promptkit/adapter"
)

// Name is the default provider name.
const Name = "langchain"

// ErrNilModel is returned by Request when the adapter wraps no model.
var ErrNilModel = errors.New("langchain: nil llms.Model")

// Options is the Options() result.
type Options = adapter.RequestOptions[[]llms.CallOption]

// Adapter implements promptkit.Provider on top of an llms.Model.
// Transport settings of adapter.Config do not apply; the wrapped model owns its client.
type Adapter struct {
	cfg   adapter.Config
	model llms.Model
}

// New wraps model. An empty default model leaves model selection to the wrapped client.
func New(model llms.Model, opts ...adapter.Option) *Adapter {
	return &Adapter{cfg: adapter.NewConfig(Name, "", opts...), model: model}
}

// Name implements promptkit.Provider.
func (a *Adapter) Name() string { return a.cfg.Name }

// Message converts a rendered message into llms.MessageContent.
func (a *Adapter) Message(role promptkit.Role, content string) (any, error) {
	switch role {
	case promptkit.RoleSystem:
		return llms.TextParts(llms.ChatMessageTypeSystem, content), nil
	case promptkit.RoleUser:
		return llms.TextParts(llms.ChatMessageTypeHuman, content), nil
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
	var calls []llms.CallOption
	if mp.Model != "" {
		calls = append(calls, llms.WithModel(mp.Model))
	}
	if mp.Temperature != nil {
		calls = append(calls, llms.WithTemperature(*mp.Temperature))
	}
	if mp.MaxTokens != nil {
		n := *mp.MaxTokens
		if n > math.MaxInt32 {
			n = math.MaxInt32
		}
		calls = append(calls, llms.WithMaxTokens(int(n)))
	}
	if mp.TopP != nil {
		calls = append(calls, llms.WithTopP(*mp.TopP))
	}
	if len(mp.Stop) > 0 {
		calls = append(calls, llms.WithStopWords(mp.Stop))
	}
	if opts.JSONMode {
		calls = append(calls, llms.WithJSONMode())
	}
	return &Options{Params: calls, Timeout: opts.Timeout}
}

// FormatTools implements promptkit.ToolFormat.
func (a *Adapter) FormatTools(tools []promptkit.ToolDefinition) ([]any, error) {
	return adapter.FormatEach(tools, formatTool)
}

// FormatTool implements promptkit.ToolFormat.
func (a *Adapter) FormatTool(tool promptkit.ToolDefinition) (any, error) {
	return formatTool(tool)
}

func formatTool(t promptkit.ToolDefinition) (llms.Tool, error) {
	params := t.Parameters
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		},
	}, nil
}

// Request calls GenerateContent and returns *llms.ContentResponse.
func (a *Adapter) Request(ctx context.Context, payload *promptkit.Payload) (any, error) {
	if a.model == nil {
		return nil, adapter.RequestError(ctx, a.cfg.Name, 0, nil, ErrNilModel)
	}
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
	msgs, err := adapter.Items[llms.MessageContent](payload.Messages, "message")
	if err != nil {
		return nil, err
	}
	tools, err := adapter.Items[llms.Tool](payload.Tools, "tool")
	if err != nil {
		return nil, err
	}
	calls := append([]llms.CallOption(nil), opts.Params...)
	if len(tools) > 0 {
		calls = append(calls, llms.WithTools(tools))
	}

	reqCtx, cancel := adapter.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	resp, err := a.model.GenerateContent(reqCtx, msgs, calls...)
	if err != nil {
		return nil, adapter.RequestError(ctx, a.cfg.Name, 0, nil, err)
	}
	if resp == nil {
		return nil, adapter.RequestError(ctx, a.cfg.Name, 0, nil, adapter.ErrEmptyResponse)
	}
	return resp, nil
}

// Content returns the text of the first choice.
func (a *Adapter) Content(raw any) (string, error) {
	choice, err := firstChoice(raw)
	if err != nil {
		return "", err
	}
	return choice.Content, nil
}

// ToolCall returns the first tool call of the first choice, or nil.
func (a *Adapter) ToolCall(raw any) (*promptkit.ToolCall, error) {
	choice, err := firstChoice(raw)
	if err != nil {
		return nil, err
	}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		args := tc.FunctionCall.Arguments
		if args == "" {
			args = "{}"
		}
		return &promptkit.ToolCall{ID: tc.ID, Name: tc.FunctionCall.Name, Args: args}, nil
	}
	if fc := choice.FuncCall; fc != nil {
		args := fc.Arguments
		if args == "" {
			args = "{}"
		}
		return &promptkit.ToolCall{Name: fc.Name, Args: args}, nil
	}
	return nil, nil
}

func firstChoice(raw any) (*llms.ContentChoice, error) {
	resp, ok := raw.(*llms.ContentResponse)
	if !ok || resp == nil {
		return nil, fmt.Errorf("%w: %T", adapter.ErrInvalidResponse, raw)
	}
	if len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return nil, adapter.ErrEmptyResponse
	}
	return resp.Choices[0], nil
}

var _ promptkit.Provider = (*Adapter)(nil)
