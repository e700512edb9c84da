// Package promptkit is a provider-agnostic prompt orchestration engine.
//
// A Registry holds named PromptTemplate values. An Engine renders a template
// with call-time variables, hands the messages and tools to a Provider
// adapter, and validates the reply against the template's response format.
//
//	reg := promptkit.NewRegistry()
//	eng, err := promptkit.NewEngine(promptkit.Config{
//		Registry:  reg,
//		Providers: []promptkit.Provider{openai.New(openai.WithCredentials(adapter.StaticKey(key)))},
//		Prompts:   []promptkit.PromptTemplate{greet},
//	})
//	res, err := eng.Execute(ctx, "greet", map[string]any{"role": "host"}, promptkit.CallOptions{})
//
// Placeholders use single braces: {name} or {path.to.value}. A {state.x}
// placeholder falls back to the top-level x and vice versa. Unresolved
// placeholders are left in place and logged as warnings.
package promptkit
