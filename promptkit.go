package promptkit

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Role is the message role in a rendered prompt.
type Role string

// Message roles produced by the engine.
const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Kind is a JSON value kind used in request and response formats.
type Kind string

// Supported kinds.
const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
	KindAny     Kind = "any"
)

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	switch k {
	case KindString, KindNumber, KindInteger, KindBoolean, KindObject, KindArray, KindAny:
		return true
	default:
		return false
	}
}

// Schema maps a field name to its expected kind.
type Schema map[string]Kind

// Validate returns ErrInvalidTemplate if any field has an empty name or unsupported kind.
func (s Schema) Validate() error {
	for _, field := range slices.Sorted(maps.Keys(s)) {
		if field == "" {
			return fmt.Errorf("%w: empty field name", ErrInvalidTemplate)
		}
		if !s[field].Valid() {
			return fmt.Errorf("%w: field %q has unsupported kind %q", ErrInvalidTemplate, field, s[field])
		}
	}
	return nil
}

// JSONSchema returns an object JSON Schema in which every field is required.
// KindAny fields carry no type constraint.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s))
	required := make([]string, 0, len(s))
	for _, field := range slices.Sorted(maps.Keys(s)) {
		prop := map[string]any{}
		if k := s[field]; k != KindAny {
			prop["type"] = string(k)
		}
		props[field] = prop
		required = append(required, field)
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// PromptTemplate is a named prompt with optional system text, user text and
// request/response formats. Templates are immutable once registered.
type PromptTemplate struct {
	Name           string
	Description    string
	Version        string
	System         string
	User           string
	RequestFormat  Schema
	ResponseFormat Schema
}

// Structured reports whether the template declares a response format.
func (t PromptTemplate) Structured() bool { return len(t.ResponseFormat) > 0 }

// Validate checks name, user text and both formats.
func (t PromptTemplate) Validate() error {
	if err := ValidateName(t.Name); err != nil {
		return err
	}
	if t.User == "" {
		return fmt.Errorf("%w: %q has empty user template", ErrInvalidTemplate, t.Name)
	}
	if err := t.RequestFormat.Validate(); err != nil {
		return fmt.Errorf("request format of %q: %w", t.Name, err)
	}
	if err := t.ResponseFormat.Validate(); err != nil {
		return fmt.Errorf("response format of %q: %w", t.Name, err)
	}
	return nil
}

// Clone returns a deep copy.
func (t PromptTemplate) Clone() PromptTemplate {
	t.RequestFormat = maps.Clone(t.RequestFormat)
	t.ResponseFormat = maps.Clone(t.ResponseFormat)
	return t
}

func (t PromptTemplate) equal(o PromptTemplate) bool {
	return t.Name == o.Name && t.Description == o.Description && t.Version == o.Version &&
		t.System == o.System && t.User == o.User &&
		maps.Equal(t.RequestFormat, o.RequestFormat) && maps.Equal(t.ResponseFormat, o.ResponseFormat)
}

// ToolDefinition is the provider-neutral tool schema.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"` // JSON Schema for parameters
}

// ToolCall is a model request to call a function.
type ToolCall struct {
	ID   string // Empty for providers without call ids
	Name string
	Args string // JSON string of arguments
}

// CallOptions are per-call execution options.
type CallOptions struct {
	// Provider selects the adapter by name. Falls back to DefaultProvider, then to the first registered adapter.
	Provider        string
	DefaultProvider string

	Model       string
	Temperature *float64
	MaxTokens   *int64
	TopP        *float64
	Stop        []string

	// JSONMode asks the provider for a JSON reply. The engine sets it for structured prompts.
	JSONMode bool
	// ResponseSchema is the JSON Schema of the expected reply; filled by the engine.
	ResponseSchema map[string]any

	// Timeout bounds a single provider request. Zero means no adapter-level timeout.
	Timeout time.Duration

	// Extra carries vendor-specific keys (e.g. "temperature", "max_tokens", "top_p", "stop", "model").
	Extra map[string]any
}

// Payload is the provider-shaped request handed to Provider.Request.
type Payload struct {
	Messages []any
	Options  any
	Tools    []any
}

// Result is the outcome of one execution.
type Result struct {
	ExecutionID string
	Prompt      string
	Provider    string
	// Data is the validated reply of a structured prompt.
	Data map[string]any
	// Text is the reply content; for structured prompts it is the unparsed content.
	Text string
	// ToolCall is set when the model asked for a tool call.
	ToolCall *ToolCall
	// Raw is the provider-native response.
	Raw any
}

// Value returns Data for structured results and Text otherwise.
func (r *Result) Value() any {
	if r.Data != nil {
		return r.Data
	}
	return r.Text
}

// Decode copies Data into v through JSON.
func (r *Result) Decode(v any) error {
	if r.Data == nil {
		return fmt.Errorf("%w: result has no structured data", ErrSchemaValidation)
	}
	b, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("promptkit: encode result: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("promptkit: decode result: %w", err)
	}
	return nil
}
