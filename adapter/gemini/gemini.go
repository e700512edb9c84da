package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/skosovsky/promptkit"
	"github.com/skosovsky/promptkit/adapter"
)

// Name is the default provider name.
const Name = "gemini"

// DefaultModel is used when neither the adapter nor the call sets a model.
const DefaultModel = "gemini-2.5-flash"

// SystemText is the Message() result for system text.
type SystemText string

// Params are the GenerateContent arguments other than contents.
type Params struct {
	Model  string
	Config genai.GenerateContentConfig
}

// Options is the Options() result.
type Options = adapter.RequestOptions[Params]

// Adapter implements promptkit.Provider for the Gemini API.
// A genai client is built per request so rotated credentials apply immediately.
type Adapter struct {
	cfg adapter.Config
}

// New returns an Adapter.
func New(opts ...adapter.Option) *Adapter {
	return &Adapter{cfg: adapter.NewConfig(Name, DefaultModel, opts...)}
}

// Name implements promptkit.Provider.
func (a *Adapter) Name() string { return a.cfg.Name }

// Message returns SystemText for system text and *genai.Content for user text.
func (a *Adapter) Message(role promptkit.Role, content string) (any, error) {
	switch role {
	case promptkit.RoleSystem:
		return SystemText(content), nil
	case promptkit.RoleUser:
		return genai.NewContentFromText(content, genai.RoleUser), nil
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
	var config genai.GenerateContentConfig
	if mp.Temperature != nil {
		t := float32(*mp.Temperature)
		config.Temperature = &t
	}
	if mp.MaxTokens != nil {
		if *mp.MaxTokens > math.MaxInt32 {
			config.MaxOutputTokens = math.MaxInt32
		} else {
			config.MaxOutputTokens = int32(*mp.MaxTokens)
		}
	}
	if mp.TopP != nil {
		p := float32(*mp.TopP)
		config.TopP = &p
	}
	if len(mp.Stop) > 0 {
		config.StopSequences = mp.Stop
	}
	if opts.JSONMode {
		config.ResponseMIMEType = "application/json"
		schema, err := mapToGenaiSchema(opts.ResponseSchema)
		if err != nil {
			return nil, fmt.Errorf("%w: response schema: %w", adapter.ErrMalformedArgs, err)
		}
		config.ResponseSchema = schema
	}
	return &Options{Params: Params{Model: mp.Model, Config: config}, Timeout: opts.Timeout}, nil
}

// FormatTools implements promptkit.ToolFormat.
func (a *Adapter) FormatTools(tools []promptkit.ToolDefinition) ([]any, error) {
	return adapter.FormatEach(tools, formatTool)
}

// FormatTool implements promptkit.ToolFormat.
func (a *Adapter) FormatTool(tool promptkit.ToolDefinition) (any, error) {
	return formatTool(tool)
}

func formatTool(t promptkit.ToolDefinition) (*genai.FunctionDeclaration, error) {
	return &genai.FunctionDeclaration{
		Name:                 t.Name,
		Description:          t.Description,
		ParametersJsonSchema: t.Parameters,
	}, nil
}

// Request calls GenerateContent and returns *genai.GenerateContentResponse.
func (a *Adapter) Request(ctx context.Context, payload *promptkit.Payload) (any, error) {
	opts, contents, err := a.build(payload)
	if err != nil {
		return nil, err
	}
	reqCtx, cancel := adapter.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	key, err := a.cfg.APIKey(reqCtx)
	if err != nil {
		return nil, adapter.RequestError(ctx, a.cfg.Name, 0, nil, err)
	}
	headers := http.Header{}
	for k, v := range a.cfg.Headers {
		headers.Set(k, v)
	}
	client, err := genai.NewClient(reqCtx, &genai.ClientConfig{
		APIKey:      key,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  a.cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: a.cfg.BaseURL, Headers: headers},
	})
	if err != nil {
		return nil, adapter.RequestError(ctx, a.cfg.Name, 0, nil, err)
	}
	config := opts.Params.Config
	resp, err := client.Models.GenerateContent(reqCtx, opts.Params.Model, contents, &config)
	if err != nil {
		if status, msg, ok := apiError(err); ok {
			return nil, adapter.RequestError(ctx, a.cfg.Name, status, []byte(msg), err)
		}
		return nil, adapter.RequestError(ctx, a.cfg.Name, 0, nil, err)
	}
	return resp, nil
}

// apiError extracts the status and message of a genai API failure, returned by value or pointer.
func apiError(err error) (int, string, bool) {
	var v genai.APIError
	if errors.As(err, &v) {
		return v.Code, v.Message, true
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return p.Code, p.Message, true
	}
	return 0, "", false
}

func (a *Adapter) build(payload *promptkit.Payload) (*Options, []*genai.Content, error) {
	if payload == nil {
		return nil, nil, fmt.Errorf("%w: nil payload", adapter.ErrInvalidPayload)
	}
	opts, ok := payload.Options.(*Options)
	if !ok {
		if payload.Options != nil {
			return nil, nil, fmt.Errorf("%w: options are %T", adapter.ErrInvalidPayload, payload.Options)
		}
		var err error
		if opts, err = a.OptionsTyped(promptkit.CallOptions{}); err != nil {
			return nil, nil, err
		}
	}
	var system []string
	var contents []*genai.Content
	for i, m := range payload.Messages {
		switch msg := m.(type) {
		case SystemText:
			system = append(system, string(msg))
		case *genai.Content:
			contents = append(contents, msg)
		default:
			return nil, nil, fmt.Errorf("%w: message %d is %T", adapter.ErrInvalidPayload, i, m)
		}
	}
	decls, err := adapter.Items[*genai.FunctionDeclaration](payload.Tools, "tool")
	if err != nil {
		return nil, nil, err
	}
	// Copy so the caller's Options stay reusable.
	out := *opts
	if len(system) > 0 {
		out.Params.Config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if len(decls) > 0 {
		out.Params.Config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return &out, contents, nil
}

// Content returns the reply text. A reply with only function calls yields "".
func (a *Adapter) Content(raw any) (string, error) {
	resp, err := responseOf(raw)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// ToolCall returns the first function call, or nil.
func (a *Adapter) ToolCall(raw any) (*promptkit.ToolCall, error) {
	resp, err := responseOf(raw)
	if err != nil {
		return nil, err
	}
	calls := resp.FunctionCalls()
	if len(calls) == 0 {
		return nil, nil
	}
	fc := calls[0]
	args := "{}"
	if len(fc.Args) > 0 {
		b, err := json.Marshal(fc.Args)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to marshal function call args: %w", adapter.ErrMalformedArgs, err)
		}
		args = string(b)
	}
	return &promptkit.ToolCall{ID: fc.ID, Name: fc.Name, Args: args}, nil
}

func responseOf(raw any) (*genai.GenerateContentResponse, error) {
	resp, ok := raw.(*genai.GenerateContentResponse)
	if !ok || resp == nil {
		return nil, fmt.Errorf("%w: %T", adapter.ErrInvalidResponse, raw)
	}
	return resp, nil
}

// Compile-time check that Adapter implements Provider.
var _ promptkit.Provider = (*Adapter)(nil)
