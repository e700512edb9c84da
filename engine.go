package promptkit

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const tracerName = "github.com/skosovsky/promptkit"

// Config is the engine's construction input.
type Config struct {
	// Registry receives Prompts. A new registry is created when nil.
	Registry *Registry
	// Providers are the available adapters; names must be unique.
	Providers []Provider
	// Tools are offered to the model on every call.
	Tools []ToolDefinition
	// Prompts are registered into Registry at construction.
	Prompts []PromptTemplate
}

// Engine binds registered prompts to provider adapters.
// It keeps no per-call state and is safe for concurrent use.
type Engine struct {
	registry  *Registry
	providers []Provider
	byName    map[string]Provider
	tools     []ToolDefinition
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewEngine validates cfg, registers cfg.Prompts and returns an Engine.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		logger: zap.NewNop(),
		tracer: noop.NewTracerProvider().Tracer(tracerName),
		byName: make(map[string]Provider, len(cfg.Providers)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.registry = cfg.Registry
	if e.registry == nil {
		e.registry = NewRegistry(WithRegistryLogger(e.logger))
	}
	for i, p := range cfg.Providers {
		if p == nil {
			return nil, fmt.Errorf("%w: provider %d is nil", ErrInvalidProvider, i)
		}
		name := p.Name()
		if name == "" {
			return nil, fmt.Errorf("%w: provider %d has empty name", ErrInvalidProvider, i)
		}
		if _, dup := e.byName[name]; dup {
			return nil, fmt.Errorf("%w: duplicate provider name %q", ErrInvalidProvider, name)
		}
		e.byName[name] = p
		e.providers = append(e.providers, p)
	}
	for _, t := range cfg.Tools {
		if t.Name == "" {
			return nil, fmt.Errorf("%w: tool with empty name", ErrInvalidTemplate)
		}
	}
	e.tools = slices.Clone(cfg.Tools)
	for _, t := range cfg.Prompts {
		if err := e.registry.Register(t); err != nil {
			return nil, fmt.Errorf("promptkit: register prompt %q: %w", t.Name, err)
		}
	}
	return e, nil
}

// Registry returns the registry the engine reads from.
func (e *Engine) Registry() *Registry { return e.registry }

// Providers returns provider names in registration order.
func (e *Engine) Providers() []string {
	names := make([]string, len(e.providers))
	for i, p := range e.providers {
		names[i] = p.Name()
	}
	return names
}

// Execute renders prompt name with vars, sends it to the selected provider and
// returns the validated reply.
//
// The provider is opts.Provider, else opts.DefaultProvider, else the first
// configured provider. Errors are *NotFoundError, *ProviderError,
// *SchemaValidationError or *CancelledError; no retry is attempted.
// A reply that is only a tool call returns a Result carrying ToolCall and nil
// Data: the response format is not checked, so Decode on it fails with
// ErrSchemaValidation.
func (e *Engine) Execute(ctx context.Context, name string, vars map[string]any, opts CallOptions) (*Result, error) {
	execID := uuid.NewString()
	log := e.logger.With(zap.String("execution_id", execID), zap.String("prompt", name))
	ctx, span := e.tracer.Start(ctx, "promptkit.Execute", trace.WithAttributes(
		attribute.String("promptkit.prompt", name),
		attribute.String("promptkit.execution_id", execID),
	))
	defer span.End()

	start := time.Now()
	res, err := e.execute(ctx, execID, name, vars, opts, log, span)
	if err != nil {
		e.recordFailure(span, log, err)
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	log.Debug("prompt executed",
		zap.String("provider", res.Provider),
		zap.Bool("tool_call", res.ToolCall != nil),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// ExecuteStruct is Execute with variables read from payload's `prompt` tags.
func (e *Engine) ExecuteStruct(ctx context.Context, name string, payload any, opts CallOptions) (*Result, error) {
	vars, err := VariablesFromStruct(payload)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, name, vars, opts)
}

func (e *Engine) execute(
	ctx context.Context,
	execID, name string,
	vars map[string]any,
	opts CallOptions,
	log *zap.Logger,
	span trace.Span,
) (*Result, error) {
	tpl, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}
	p, err := e.selectProvider(opts)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("provider", p.Name()))
	span.SetAttributes(attribute.String("promptkit.provider", p.Name()))

	for _, field := range slices.Sorted(maps.Keys(tpl.RequestFormat)) {
		if _, ok := lookup(vars, []string{field}); !ok {
			log.Debug("request variable not provided", zap.String("variable", field))
		}
	}

	payload := &Payload{}
	if tpl.System != "" {
		msg, err := e.renderMessage(p, RoleSystem, tpl.System, vars, log)
		if err != nil {
			return nil, err
		}
		payload.Messages = append(payload.Messages, msg)
	}
	msg, err := e.renderMessage(p, RoleUser, tpl.User, vars, log)
	if err != nil {
		return nil, err
	}
	payload.Messages = append(payload.Messages, msg)

	if tpl.Structured() {
		opts.JSONMode = true
		if opts.ResponseSchema == nil {
			opts.ResponseSchema = tpl.ResponseFormat.JSONSchema()
		}
	}
	if payload.Options, err = p.Options(opts); err != nil {
		return nil, NewProviderError(p.Name(), 0, nil, fmt.Errorf("build options: %w", err))
	}
	if len(e.tools) > 0 {
		if payload.Tools, err = p.FormatTools(e.tools); err != nil {
			return nil, NewProviderError(p.Name(), 0, nil, fmt.Errorf("format tools: %w", err))
		}
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, &CancelledError{Provider: p.Name(), Err: ctx.Err()}
	}
	raw, err := p.Request(ctx, payload)
	if err != nil {
		return nil, classifyRequestError(ctx, p.Name(), err)
	}

	res := &Result{ExecutionID: execID, Prompt: name, Provider: p.Name(), Raw: raw}
	if res.ToolCall, err = p.ToolCall(raw); err != nil {
		return nil, NewProviderError(p.Name(), 0, nil, fmt.Errorf("read tool call: %w", err))
	}
	if res.Text, err = p.Content(raw); err != nil {
		return nil, NewProviderError(p.Name(), 0, nil, fmt.Errorf("read content: %w", err))
	}
	if res.Text == "" && res.ToolCall != nil {
		return res, nil
	}
	value, err := ParseResponse(res.Text, tpl.ResponseFormat)
	if err != nil {
		return nil, err
	}
	if obj, ok := value.(map[string]any); ok {
		res.Data = obj
	}
	return res, nil
}

func (e *Engine) renderMessage(p Provider, role Role, text string, vars map[string]any, log *zap.Logger) (any, error) {
	rendered, unresolved := Render(text, vars)
	for _, path := range unresolved {
		log.Warn("unresolved placeholder left in prompt",
			zap.String("placeholder", path),
			zap.String("role", string(role)),
		)
	}
	msg, err := p.Message(role, rendered)
	if err != nil {
		return nil, NewProviderError(p.Name(), 0, nil, fmt.Errorf("build %s message: %w", role, err))
	}
	return msg, nil
}

func (e *Engine) selectProvider(opts CallOptions) (Provider, error) {
	name := opts.Provider
	if name == "" {
		name = opts.DefaultProvider
	}
	if name == "" {
		if len(e.providers) == 0 {
			return nil, &NotFoundError{Kind: "provider", Name: ""}
		}
		return e.providers[0], nil
	}
	p, ok := e.byName[name]
	if !ok {
		return nil, &NotFoundError{Kind: "provider", Name: name}
	}
	return p, nil
}

func (e *Engine) recordFailure(span trace.Span, log *zap.Logger, err error) {
	if errors.Is(err, ErrCancelled) {
		span.SetAttributes(attribute.Bool("promptkit.cancelled", true))
		log.Debug("execution cancelled", zap.Error(err))
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var pe *ProviderError
	var se *SchemaValidationError
	switch {
	case errors.As(err, &pe):
		log.Error("provider request failed",
			zap.String("provider", pe.Provider),
			zap.Int("status", pe.StatusCode),
			zap.String("body", pe.Body),
			zap.Error(pe.Err),
		)
	case errors.As(err, &se):
		log.Warn("response rejected by response format",
			zap.String("field", se.Field),
			zap.String("expected", string(se.Expected)),
			zap.String("actual", se.Actual),
		)
	default:
		log.Warn("execution failed", zap.Error(err))
	}
}

// classifyRequestError maps an adapter error onto the engine's error categories.
func classifyRequestError(ctx context.Context, provider string, err error) error {
	var ce *CancelledError
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
		return &CancelledError{Provider: provider, Err: context.Canceled}
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(provider, 0, nil, fmt.Errorf("%w: %w", ErrTimeout, err))
	}
	return NewProviderError(provider, 0, nil, err)
}
