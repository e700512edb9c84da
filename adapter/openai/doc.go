// Package openai implements promptkit.Provider for the OpenAI Chat Completions API
// using github.com/openai/openai-go/v3.
//
// Message returns openai.ChatCompletionMessageParamUnion, Options returns *Options,
// FormatTool returns openai.ChatCompletionToolUnionParam and Request returns *openai.ChatCompletion.
package openai
