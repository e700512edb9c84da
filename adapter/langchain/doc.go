// Package langchain adapts any langchaingo llms.Model into a promptkit provider.
//
// It lets backends that langchaingo already supports (local runtimes, hosted
// gateways, test fakes) be executed through a promptkit Engine. Message returns
// llms.MessageContent; Options returns *Options whose Params are llms.CallOption
// values applied at request time. JSON mode maps to llms.WithJSONMode; the
// response schema itself is enforced by promptkit after the reply arrives.
package langchain
