package promptkit

import "context"

// RequestObject builds provider-native request parts.
type RequestObject interface {
	// Message converts one rendered message into the provider's message type.
	Message(role Role, content string) (any, error)
	// Options converts call options into the provider's request options.
	Options(opts CallOptions) (any, error)
}

// ToolFormat converts provider-neutral tool definitions into the provider's tool dialect.
type ToolFormat interface {
	// FormatTools converts all tools. Providers without tool support return an empty slice.
	FormatTools(tools []ToolDefinition) ([]any, error)
	FormatTool(tool ToolDefinition) (any, error)
}

// ResponseReader extracts content from a provider-native response.
type ResponseReader interface {
	// Content returns the reply text.
	Content(raw any) (string, error)
	// ToolCall returns the first tool call in the reply, or nil.
	ToolCall(raw any) (*ToolCall, error)
}

// Provider is an adapter for one AI backend.
// Request is the only method that performs I/O. Implementations must be safe
// for concurrent use and must not keep per-call state.
type Provider interface {
	Name() string
	RequestObject
	ToolFormat
	ResponseReader
	// Request sends the payload and returns the provider-native response.
	// Non-2xx replies and transport failures are *ProviderError; a cancelled ctx is *CancelledError.
	Request(ctx context.Context, payload *Payload) (any, error)
}

// NoTools implements ToolFormat for providers without tool calling.
// Embed it in an adapter to opt out.
type NoTools struct{}

// FormatTools returns an empty slice.
func (NoTools) FormatTools([]ToolDefinition) ([]any, error) { return []any{}, nil }

// FormatTool returns nil.
func (NoTools) FormatTool(ToolDefinition) (any, error) { return nil, nil }

var _ ToolFormat = NoTools{}
