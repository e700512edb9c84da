package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/promptkit"
	"github.com/skosovsky/promptkit/adapter"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

const completionJSON = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "gpt-4o",
	"choices": [{
		"index": 0,
		"finish_reason": "stop",
		"message": {"role": "assistant", "content": "{\"result\":\"success\"}"}
	}]
}`

const toolCallJSON = `{
	"id": "chatcmpl-2",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "gpt-4o",
	"choices": [{
		"index": 0,
		"finish_reason": "tool_calls",
		"message": {
			"role": "assistant",
			"content": null,
			"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "lookup", "arguments": "{\"q\":\"x\"}"}}]
		}
	}]
}`

type capturedRequest struct {
	Path   string
	Auth   string
	Header string
	Body   map[string]any
}

// newServer answers chat completions with body and reports each request on the returned channel.
func newServer(t *testing.T, status int, body string) (*httptest.Server, <-chan capturedRequest) {
	t.Helper()
	reqs := make(chan capturedRequest, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var decoded map[string]any
		_ = json.Unmarshal(raw, &decoded)
		reqs <- capturedRequest{
			Path:   r.URL.Path,
			Auth:   r.Header.Get("Authorization"),
			Header: r.Header.Get("X-Team"),
			Body:   decoded,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func newTestAdapter(srv *httptest.Server, opts ...adapter.Option) *Adapter {
	base := []adapter.Option{
		adapter.WithBaseURL(srv.URL),
		adapter.WithCredentials(adapter.StaticKey("sk-test")),
		adapter.WithHTTPClient(srv.Client()),
	}
	return New(append(base, opts...)...)
}

func ExampleAdapter_Message() {
	a := New()
	msg, _ := a.Message(promptkit.RoleUser, "Hello")
	fmt.Println(msg.(openai.ChatCompletionMessageParamUnion).OfUser.Content.OfString.Value)
	// Output: Hello
}

func TestMessage(t *testing.T) {
	t.Parallel()
	a := New()
	sys, err := a.Message(promptkit.RoleSystem, "You are a helper.")
	require.NoError(t, err)
	require.NotNil(t, sys.(openai.ChatCompletionMessageParamUnion).OfSystem)

	user, err := a.Message(promptkit.RoleUser, "Hi")
	require.NoError(t, err)
	assert.Equal(t, "Hi", user.(openai.ChatCompletionMessageParamUnion).OfUser.Content.OfString.Value)

	_, err = a.Message("assistant", "x")
	require.ErrorIs(t, err, adapter.ErrUnsupportedRole)
}

func TestOptionsTyped(t *testing.T) {
	t.Parallel()
	temp, maxTokens := 0.2, int64(64)
	a := New(adapter.WithModel("gpt-4o-mini"))
	opts := a.OptionsTyped(promptkit.CallOptions{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		Stop:        []string{"END"},
		JSONMode:    true,
		Timeout:     time.Second,
	})
	assert.Equal(t, "gpt-4o-mini", string(opts.Params.Model))
	assert.InDelta(t, 0.2, opts.Params.Temperature.Value, 1e-9)
	assert.Equal(t, int64(64), opts.Params.MaxTokens.Value)
	assert.Equal(t, []string{"END"}, opts.Params.Stop.OfStringArray)
	assert.NotNil(t, opts.Params.ResponseFormat.OfJSONObject)
	assert.Equal(t, time.Second, opts.Timeout)

	plain := a.OptionsTyped(promptkit.CallOptions{Model: "o3"})
	assert.Equal(t, "o3", string(plain.Params.Model))
	assert.Nil(t, plain.Params.ResponseFormat.OfJSONObject)
}

func TestFormatTools(t *testing.T) {
	t.Parallel()
	a := New()
	tools, err := a.FormatTools([]promptkit.ToolDefinition{{
		Name:        "lookup",
		Description: "Look things up",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{"q": map[string]any{"type": "string"}}},
	}})
	require.NoError(t, err)
	require.Len(t, tools, 1)
	tool := tools[0].(openai.ChatCompletionToolUnionParam)
	require.NotNil(t, tool.OfFunction)
	assert.Equal(t, "lookup", tool.OfFunction.Function.Name)

	empty, err := a.FormatTools(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRequest_Success(t *testing.T) {
	t.Parallel()
	srv, reqs := newServer(t, http.StatusOK, completionJSON)
	a := newTestAdapter(srv, adapter.WithHeader("X-Team", "core"))

	sys, _ := a.Message(promptkit.RoleSystem, "Be brief.")
	user, _ := a.Message(promptkit.RoleUser, "Hi")
	opts, _ := a.Options(promptkit.CallOptions{JSONMode: true})
	tools, _ := a.FormatTools([]promptkit.ToolDefinition{{Name: "lookup"}})
	raw, err := a.Request(context.Background(), &promptkit.Payload{
		Messages: []any{sys, user},
		Options:  opts,
		Tools:    tools,
	})
	require.NoError(t, err)

	got := <-reqs
	assert.True(t, strings.HasSuffix(got.Path, "/chat/completions"), got.Path)
	assert.Equal(t, "Bearer sk-test", got.Auth)
	assert.Equal(t, "core", got.Header)
	assert.Equal(t, "gpt-4o", got.Body["model"])
	assert.Len(t, got.Body["messages"], 2)
	assert.Len(t, got.Body["tools"], 1)
	assert.Equal(t, map[string]any{"type": "json_object"}, got.Body["response_format"])

	text, err := a.Content(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":"success"}`, text)
	call, err := a.ToolCall(raw)
	require.NoError(t, err)
	assert.Nil(t, call)
}

func TestRequest_ToolCall(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t, http.StatusOK, toolCallJSON)
	a := newTestAdapter(srv)
	user, _ := a.Message(promptkit.RoleUser, "Find x")
	raw, err := a.Request(context.Background(), &promptkit.Payload{Messages: []any{user}})
	require.NoError(t, err)

	text, err := a.Content(raw)
	require.NoError(t, err)
	assert.Empty(t, text)
	call, err := a.ToolCall(raw)
	require.NoError(t, err)
	assert.Equal(t, &promptkit.ToolCall{ID: "call_1", Name: "lookup", Args: `{"q":"x"}`}, call)
}

func TestRequest_HTTPError(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t, http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	a := newTestAdapter(srv)
	user, _ := a.Message(promptkit.RoleUser, "Hi")
	_, err := a.Request(context.Background(), &promptkit.Payload{Messages: []any{user}})

	var pe *promptkit.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusUnauthorized, pe.StatusCode)
	assert.Equal(t, Name, pe.Provider)
	assert.Contains(t, pe.Body, "bad key")
}

func TestRequest_Timeout(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	a := newTestAdapter(srv)
	user, _ := a.Message(promptkit.RoleUser, "Hi")
	opts, _ := a.Options(promptkit.CallOptions{Timeout: 50 * time.Millisecond})
	_, err := a.Request(context.Background(), &promptkit.Payload{Messages: []any{user}, Options: opts})
	require.ErrorIs(t, err, promptkit.ErrProvider)
	require.ErrorIs(t, err, promptkit.ErrTimeout)
}

func TestRequest_Cancelled(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	a := newTestAdapter(srv)
	user, _ := a.Message(promptkit.RoleUser, "Hi")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	_, err := a.Request(ctx, &promptkit.Payload{Messages: []any{user}})
	require.ErrorIs(t, err, promptkit.ErrCancelled)
	assert.NotErrorIs(t, err, promptkit.ErrProvider)
}

func TestRequest_InvalidPayload(t *testing.T) {
	t.Parallel()
	a := New()
	_, err := a.Request(context.Background(), &promptkit.Payload{Messages: []any{"plain string"}})
	require.ErrorIs(t, err, adapter.ErrInvalidPayload)
	_, err = a.Request(context.Background(), nil)
	require.ErrorIs(t, err, adapter.ErrInvalidPayload)
	_, err = a.Request(context.Background(), &promptkit.Payload{Options: "wrong"})
	require.ErrorIs(t, err, adapter.ErrInvalidPayload)
}

func TestContent_InvalidRaw(t *testing.T) {
	t.Parallel()
	a := New()
	_, err := a.Content("not a completion")
	require.ErrorIs(t, err, adapter.ErrInvalidResponse)
	_, err = a.ToolCall(&openai.ChatCompletion{})
	require.ErrorIs(t, err, adapter.ErrEmptyResponse)
}

func TestEngine_Greet(t *testing.T) {
	t.Parallel()
	srv, reqs := newServer(t, http.StatusOK, "{\"id\":\"c\",\"object\":\"chat.completion\",\"created\":1,\"model\":\"gpt-4o\","+
		"\"choices\":[{\"index\":0,\"finish_reason\":\"stop\",\"message\":{\"role\":\"assistant\","+
		"\"content\":\"```json\\n{\\\"result\\\":\\\"success\\\"}\\n```\"}}]}")
	eng, err := promptkit.NewEngine(promptkit.Config{
		Providers: []promptkit.Provider{newTestAdapter(srv)},
		Prompts: []promptkit.PromptTemplate{{
			Name:           "greet",
			System:         "You are a {role}.",
			User:           "Say hi to {target}.",
			ResponseFormat: promptkit.Schema{"result": promptkit.KindString},
		}},
	})
	require.NoError(t, err)

	res, err := eng.Execute(context.Background(), "greet",
		map[string]any{"role": "host", "target": "world"},
		promptkit.CallOptions{Provider: Name})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": "success"}, res.Data)

	got := <-reqs
	msgs := got.Body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "You are a host.", msgs[0].(map[string]any)["content"])
	assert.Equal(t, "Say hi to world.", msgs[1].(map[string]any)["content"])
}
