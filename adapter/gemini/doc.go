// Package gemini implements promptkit.Provider for the Gemini API using google.golang.org/genai.
//
// System messages become SystemText and are sent as the system instruction; user messages are *genai.Content.
// Structured prompts request application/json with a response schema derived from the response format.
package gemini
