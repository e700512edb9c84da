package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/skosovsky/promptkit"
	"github.com/skosovsky/promptkit/adapter"
)

// Name is the default provider name.
const Name = "ollama"

// DefaultModel is used when neither the adapter nor the call sets a model.
const DefaultModel = "llama3.2"

// DefaultBaseURL is the local Ollama server.
const DefaultBaseURL = "http://localhost:11434"

// Options is the Options() result.
type Options = adapter.RequestOptions[api.ChatRequest]

// Adapter implements promptkit.Provider for the Ollama Chat API.
type Adapter struct {
	cfg    adapter.Config
	client *api.Client
	err    error
}

// New returns an Adapter. Credentials, when set, are sent as a bearer token.
func New(opts ...adapter.Option) *Adapter {
	cfg := adapter.NewConfig(Name, DefaultModel, opts...)
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	a := &Adapter{cfg: cfg}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		a.err = fmt.Errorf("ollama: invalid base URL %q: %w", cfg.BaseURL, err)
		return a
	}
	a.client = api.NewClient(base, cfg.Client())
	return a
}

// Name implements promptkit.Provider.
func (a *Adapter) Name() string { return a.cfg.Name }

// Message converts a rendered message into api.Message.
func (a *Adapter) Message(role promptkit.Role, content string) (any, error) {
	switch role {
	case promptkit.RoleSystem, promptkit.RoleUser:
		return api.Message{Role: string(role), Content: content}, nil
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
	req := api.ChatRequest{Model: mp.Model}
	if mp.Temperature != nil || mp.MaxTokens != nil || mp.TopP != nil || len(mp.Stop) > 0 {
		req.Options = make(map[string]any)
		if mp.Temperature != nil {
			req.Options["temperature"] = *mp.Temperature
		}
		if mp.MaxTokens != nil {
			req.Options["num_predict"] = *mp.MaxTokens
		}
		if mp.TopP != nil {
			req.Options["top_p"] = *mp.TopP
		}
		if len(mp.Stop) > 0 {
			req.Options["stop"] = mp.Stop
		}
	}
	if opts.JSONMode {
		req.Format = json.RawMessage(`"json"`)
		if opts.ResponseSchema != nil {
			b, err := json.Marshal(opts.ResponseSchema)
			if err != nil {
				return nil, fmt.Errorf("%w: response schema: %w", adapter.ErrMalformedArgs, err)
			}
			req.Format = b
		}
	}
	return &Options{Params: req, Timeout: opts.Timeout}, nil
}

// FormatTools implements promptkit.ToolFormat.
func (a *Adapter) FormatTools(tools []promptkit.ToolDefinition) ([]any, error) {
	return adapter.FormatEach(tools, formatTool)
}

// FormatTool implements promptkit.ToolFormat.
func (a *Adapter) FormatTool(tool promptkit.ToolDefinition) (any, error) {
	return formatTool(tool)
}

func formatTool(t promptkit.ToolDefinition) (api.Tool, error) {
	params := api.ToolFunctionParameters{
		Type:       "object",
		Properties: api.NewToolPropertiesMap(),
	}
	if t.Parameters != nil {
		b, err := json.Marshal(t.Parameters)
		if err != nil {
			return api.Tool{}, fmt.Errorf("%w: failed to marshal tool parameters: %w", adapter.ErrMalformedArgs, err)
		}
		if err = json.Unmarshal(b, &params); err != nil {
			return api.Tool{}, fmt.Errorf("%w: failed to unmarshal tool parameters: %w", adapter.ErrMalformedArgs, err)
		}
		if params.Properties == nil {
			params.Properties = api.NewToolPropertiesMap()
		}
	}
	return api.Tool{
		Type: "function",
		Function: api.ToolFunction{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		},
	}, nil
}

// Request sends a non-streaming chat request and returns *api.ChatResponse.
func (a *Adapter) Request(ctx context.Context, payload *promptkit.Payload) (any, error) {
	if a.err != nil {
		return nil, adapter.RequestError(ctx, a.cfg.Name, 0, nil, a.err)
	}
	req, timeout, err := a.build(payload)
	if err != nil {
		return nil, err
	}
	reqCtx, cancel := adapter.WithTimeout(ctx, timeout)
	defer cancel()

	var resp *api.ChatResponse
	err = a.client.Chat(reqCtx, req, func(r api.ChatResponse) error {
		if resp == nil {
			resp = &r
			return nil
		}
		// Some servers stream anyway; fold chunks into one reply.
		resp.Message.Content += r.Message.Content
		resp.Message.ToolCalls = append(resp.Message.ToolCalls, r.Message.ToolCalls...)
		resp.Done = r.Done
		resp.DoneReason = r.DoneReason
		return nil
	})
	if err != nil {
		if status, msg, ok := statusError(err); ok {
			return nil, adapter.RequestError(ctx, a.cfg.Name, status, []byte(msg), err)
		}
		return nil, adapter.RequestError(ctx, a.cfg.Name, 0, nil, err)
	}
	if resp == nil {
		return nil, adapter.RequestError(ctx, a.cfg.Name, 0, nil, adapter.ErrEmptyResponse)
	}
	return resp, nil
}

func statusError(err error) (int, string, bool) {
	var v api.StatusError
	if errors.As(err, &v) {
		return v.StatusCode, v.ErrorMessage, true
	}
	var p *api.StatusError
	if errors.As(err, &p) && p != nil {
		return p.StatusCode, p.ErrorMessage, true
	}
	return 0, "", false
}

func (a *Adapter) build(payload *promptkit.Payload) (*api.ChatRequest, time.Duration, error) {
	if payload == nil {
		return nil, 0, fmt.Errorf("%w: nil payload", adapter.ErrInvalidPayload)
	}
	opts, ok := payload.Options.(*Options)
	if !ok {
		if payload.Options != nil {
			return nil, 0, fmt.Errorf("%w: options are %T", adapter.ErrInvalidPayload, payload.Options)
		}
		var err error
		if opts, err = a.OptionsTyped(promptkit.CallOptions{}); err != nil {
			return nil, 0, err
		}
	}
	msgs, err := adapter.Items[api.Message](payload.Messages, "message")
	if err != nil {
		return nil, 0, err
	}
	tools, err := adapter.Items[api.Tool](payload.Tools, "tool")
	if err != nil {
		return nil, 0, err
	}
	req := opts.Params
	req.Messages = msgs
	if len(tools) > 0 {
		req.Tools = tools
	}
	stream := false
	req.Stream = &stream
	return &req, opts.Timeout, nil
}

// Content returns the reply text.
func (a *Adapter) Content(raw any) (string, error) {
	resp, err := responseOf(raw)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// ToolCall returns the first tool call, or nil.
func (a *Adapter) ToolCall(raw any) (*promptkit.ToolCall, error) {
	resp, err := responseOf(raw)
	if err != nil {
		return nil, err
	}
	if len(resp.Message.ToolCalls) == 0 {
		return nil, nil
	}
	tc := resp.Message.ToolCalls[0]
	args := "{}"
	if m := tc.Function.Arguments.ToMap(); len(m) > 0 {
		b, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to marshal tool call args: %w", adapter.ErrMalformedArgs, err)
		}
		args = string(b)
	}
	return &promptkit.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args}, nil
}

func responseOf(raw any) (*api.ChatResponse, error) {
	resp, ok := raw.(*api.ChatResponse)
	if !ok || resp == nil {
		return nil, fmt.Errorf("%w: %T", adapter.ErrInvalidResponse, raw)
	}
	return resp, nil
}

var _ promptkit.Provider = (*Adapter)(nil)
