package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/promptkit"
	"github.com/skosovsky/promptkit/adapter"
	"github.com/skosovsky/promptkit/adapter/anthropic"
	"github.com/skosovsky/promptkit/adapter/compat"
	"github.com/skosovsky/promptkit/adapter/gemini"
	"github.com/skosovsky/promptkit/adapter/langchain"
	"github.com/skosovsky/promptkit/adapter/ollama"
	"github.com/skosovsky/promptkit/adapter/openai"
	"github.com/skosovsky/promptkit/internal/config"
	"github.com/skosovsky/promptkit/secrets"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func TestBuild_AllKinds(t *testing.T) {
	t.Parallel()
	store := secrets.NewMap(map[string]string{"lc_key": "sk-test"})
	cfgs := []config.ProviderConfig{
		{Name: "oa", Kind: config.KindOpenAI},
		{Name: "claude", Kind: config.KindAnthropic, Model: "claude-sonnet-4-5"},
		{Name: "g", Kind: config.KindGemini},
		{Name: "local", Kind: config.KindOllama, BaseURL: "http://localhost:11434"},
		{Name: "router", Kind: config.KindCompat, BaseURL: "https://router.example/v1", Headers: map[string]string{"x-team": "p"}},
		{Name: "chain", Kind: config.KindLangChain, Backend: "ollama", Model: "qwen3"},
		{Name: "chain-oa", Kind: config.KindLangChain, Backend: "openai", APIKey: "lc_key"},
	}
	providers, err := Build(context.Background(), cfgs, store)
	require.NoError(t, err)
	require.Len(t, providers, len(cfgs))

	for i, p := range providers {
		assert.Equal(t, cfgs[i].Name, p.Name())
	}
	assert.IsType(t, &openai.Adapter{}, providers[0])
	assert.IsType(t, &anthropic.Adapter{}, providers[1])
	assert.IsType(t, &gemini.Adapter{}, providers[2])
	assert.IsType(t, &ollama.Adapter{}, providers[3])
	assert.IsType(t, &compat.Adapter{}, providers[4])
	assert.IsType(t, &langchain.Adapter{}, providers[5])
	assert.IsType(t, &langchain.Adapter{}, providers[6])
}

func TestBuild_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     config.ProviderConfig
		store   secrets.Store
		wantErr error
	}{
		{
			name:    "unknown kind",
			cfg:     config.ProviderConfig{Name: "x", Kind: "bard"},
			wantErr: ErrUnknownKind,
		},
		{
			name:    "unknown langchain backend",
			cfg:     config.ProviderConfig{Name: "x", Kind: config.KindLangChain, Backend: "mistral"},
			wantErr: ErrUnknownKind,
		},
		{
			name:    "langchain openai without secret",
			cfg:     config.ProviderConfig{Name: "x", Kind: config.KindLangChain, Backend: "openai"},
			wantErr: adapter.ErrMissingCredentials,
		},
		{
			name:    "langchain openai secret missing",
			cfg:     config.ProviderConfig{Name: "x", Kind: config.KindLangChain, Backend: "openai", APIKey: "absent"},
			store:   secrets.NewMap(nil),
			wantErr: secrets.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Build(context.Background(), []config.ProviderConfig{tt.cfg}, tt.store)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), `provider "x"`)
		})
	}
}

// The secret is resolved per request, so a key rotated after Build is used.
func TestBuild_CompatEndToEnd(t *testing.T) {
	t.Parallel()
	auth := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","model":"m",`+
			`"choices":[{"index":0,"message":{"role":"assistant","content":"hi there"},"finish_reason":"stop"}]}`)
	}))
	t.Cleanup(srv.Close)

	store := secrets.NewMap(map[string]string{"router_key": "rk-1"})
	providers, err := Build(context.Background(), []config.ProviderConfig{{
		Name:    "router",
		Kind:    config.KindCompat,
		BaseURL: srv.URL + "/v1",
		Model:   "m",
		APIKey:  "router_key",
	}}, store, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	engine, err := promptkit.NewEngine(promptkit.Config{
		Providers: providers,
		Prompts:   []promptkit.PromptTemplate{{Name: "hello", User: "Say hi to {who}."}},
	})
	require.NoError(t, err)

	res, err := engine.Execute(context.Background(), "hello", map[string]any{"who": "Ann"}, promptkit.CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hi there", res.Text)
	assert.Equal(t, "router", res.Provider)
	assert.Equal(t, "Bearer rk-1", <-auth)

	store.Set("router_key", "rk-2")
	_, err = engine.Execute(context.Background(), "hello", map[string]any{"who": "Bo"}, promptkit.CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Bearer rk-2", <-auth)
}
