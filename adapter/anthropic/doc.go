// Package anthropic implements promptkit.Provider for the Anthropic Messages API
// using github.com/anthropics/anthropic-sdk-go.
//
// System messages become anthropic.TextBlockParam, user messages anthropic.MessageParam.
// Anthropic has no JSON mode: structured prompts get an extra system block carrying the response schema.
package anthropic
