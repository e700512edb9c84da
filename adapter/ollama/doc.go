// Package ollama provides a promptkit provider for the Ollama Chat API.
//
// Message returns api.Message values. Options returns *Options carrying an
// api.ChatRequest without messages; model settings go to the request's Options map
// (temperature, num_predict, top_p, stop). JSON mode sets Format to the response
// schema, or to "json" when no schema is given. Requests are never streamed.
package ollama
