// Package adapter holds the pieces shared by promptkit provider adapters:
// transport configuration, credentials, model parameter extraction and the
// mapping of SDK failures onto promptkit's error types.
// Vendor implementations live in subpackages (openai, anthropic, gemini, ollama, langchain).
package adapter
