// Package compat provides a promptkit provider for servers that speak the
// OpenAI chat completions protocol (vLLM, LM Studio, LocalAI, gateways).
//
// It is built on github.com/sashabaranov/go-openai, which tolerates the looser
// responses these servers return. BaseURL must include the API version path,
// for example "http://localhost:8000/v1". Credentials are sent as a bearer token
// resolved on every request.
package compat
