package remoteregistry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/skosovsky/promptkit"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// mockFetcher serves manifests from a map and counts Fetch calls.
type mockFetcher struct {
	mu      sync.Mutex
	docs    map[string]string
	err     error
	calls   atomic.Int32
	gate    chan struct{}
	closed  bool
	listErr error
}

func newMockFetcher(docs map[string]string) *mockFetcher {
	return &mockFetcher{docs: docs}
}

func (m *mockFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	m.calls.Add(1)
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	doc, ok := m.docs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return []byte(doc), nil
}

func (m *mockFetcher) set(name, doc string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc == "" {
		delete(m.docs, name)
		return
	}
	m.docs[name] = doc
}

func (m *mockFetcher) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockFetcher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// listingFetcher adds Lister to mockFetcher.
type listingFetcher struct {
	*mockFetcher
}

func (l listingFetcher) ListNames(context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listErr != nil {
		return nil, l.listErr
	}
	names := make([]string, 0, len(l.docs))
	for name := range l.docs {
		names = append(names, name)
	}
	return names, nil
}

func manifestFor(name, user string) string {
	return fmt.Sprintf("name: %s\nuser: %q\n", name, user)
}

// clock is a manual time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLoader_Get_FetchesAndRegisters(t *testing.T) {
	t.Parallel()
	f := newMockFetcher(map[string]string{"greet": greetYAML})
	reg := promptkit.NewRegistry()
	l := New(f, reg)

	tpl, err := l.Get(context.Background(), "greet")
	require.NoError(t, err)
	assert.Equal(t, "Say hi to {target}.", tpl.User)
	assert.Same(t, reg, l.Registry())

	stored, err := reg.Get("greet")
	require.NoError(t, err)
	assert.Equal(t, tpl, stored)

	_, err = l.Get(context.Background(), "greet")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestLoader_Get_TTLExpiry(t *testing.T) {
	t.Parallel()
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	f := newMockFetcher(map[string]string{"greet": manifestFor("greet", "v1")})
	l := New(f, promptkit.NewRegistry(), WithTTL(time.Minute), WithClock(c.Now))
	ctx := context.Background()

	_, err := l.Get(ctx, "greet")
	require.NoError(t, err)
	f.set("greet", manifestFor("greet", "v2"))

	c.Advance(30 * time.Second)
	tpl, err := l.Get(ctx, "greet")
	require.NoError(t, err)
	assert.Equal(t, "v1", tpl.User)

	c.Advance(31 * time.Second)
	tpl, err = l.Get(ctx, "greet")
	require.NoError(t, err)
	assert.Equal(t, "v2", tpl.User)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestLoader_Get_InfiniteTTL(t *testing.T) {
	t.Parallel()
	for _, ttl := range []time.Duration{0, -time.Second} {
		c := &clock{now: time.Unix(0, 0)}
		f := newMockFetcher(map[string]string{"greet": greetYAML})
		l := New(f, promptkit.NewRegistry(), WithTTL(ttl), WithClock(c.Now))
		_, err := l.Get(context.Background(), "greet")
		require.NoError(t, err)
		c.Advance(24 * time.Hour)
		_, err = l.Get(context.Background(), "greet")
		require.NoError(t, err)
		assert.Equal(t, int32(1), f.calls.Load(), "ttl=%v", ttl)
	}
}

func TestLoader_Get_StaleOnError(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.WarnLevel)
	f := newMockFetcher(map[string]string{"greet": greetYAML})
	l := New(f, promptkit.NewRegistry(), WithLogger(zap.New(core)))
	ctx := context.Background()

	_, err := l.Get(ctx, "greet")
	require.NoError(t, err)
	l.Evict("greet")
	f.fail(fmt.Errorf("%w: connection refused", ErrFetchFailed))

	tpl, err := l.Get(ctx, "greet")
	require.NoError(t, err)
	assert.Equal(t, "greet", tpl.Name)
	entries := logs.FilterMessage("remote refresh failed, serving cached prompt").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "greet", entries[0].ContextMap()["prompt"])
}

func TestLoader_Get_NotFound(t *testing.T) {
	t.Parallel()
	f := newMockFetcher(map[string]string{"greet": greetYAML})
	reg := promptkit.NewRegistry()
	l := New(f, reg)
	ctx := context.Background()

	_, err := l.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, promptkit.ErrNotFound)
	var nf *promptkit.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.Name)

	// A prompt deleted at the source is unregistered on refresh.
	_, err = l.Get(ctx, "greet")
	require.NoError(t, err)
	f.set("greet", "")
	l.EvictAll()
	_, err = l.Get(ctx, "greet")
	require.ErrorIs(t, err, promptkit.ErrNotFound)
	assert.Zero(t, reg.Len())
}

func TestLoader_Get_Errors(t *testing.T) {
	t.Parallel()
	f := newMockFetcher(map[string]string{
		"broken":  "name: broken\n",
		"renamed": manifestFor("other", "x"),
	})
	l := New(f, promptkit.NewRegistry())
	ctx := context.Background()

	_, err := l.Get(ctx, "broken")
	require.Error(t, err)
	_, err = l.Get(ctx, "renamed")
	require.ErrorIs(t, err, ErrNameMismatch)
	_, err = l.Get(ctx, "../x")
	require.ErrorIs(t, err, promptkit.ErrInvalidName)
	assert.Equal(t, int32(2), f.calls.Load())

	f.fail(errors.New("boom"))
	_, err = l.Get(ctx, "never-fetched")
	require.EqualError(t, err, "boom")
}

func TestLoader_Get_ContextCancellation(t *testing.T) {
	t.Parallel()
	f := newMockFetcher(map[string]string{"greet": greetYAML})
	l := New(f, promptkit.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Get(ctx, "greet")
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.calls.Load())
}

func TestLoader_Get_ConcurrentMissesShareOneFetch(t *testing.T) {
	t.Parallel()
	f := newMockFetcher(map[string]string{"greet": greetYAML})
	f.gate = make(chan struct{})
	l := New(f, promptkit.NewRegistry())

	const n = 16
	var wg, started sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		started.Add(1)
		go func() {
			defer wg.Done()
			started.Done()
			_, err := l.Get(context.Background(), "greet")
			errs <- err
		}()
	}
	started.Wait()
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestLoader_LoadAll(t *testing.T) {
	t.Parallel()
	f := listingFetcher{newMockFetcher(map[string]string{
		"greet":          greetYAML,
		"support/triage": manifestFor("support/triage", "Triage {ticket}"),
	})}
	reg := promptkit.NewRegistry()
	require.NoError(t, reg.Register(promptkit.PromptTemplate{Name: "local", User: "kept"}))
	l := New(f, reg)
	ctx := context.Background()

	names, err := l.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"greet", "support/triage"}, names)
	assert.Equal(t, []string{"greet", "local", "support/triage"}, slices.Collect(reg.List()))

	f.set("greet", "")
	names, err = l.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"support/triage"}, names)
	assert.Equal(t, []string{"local", "support/triage"}, slices.Collect(reg.List()))

	f.set("bad", "name: bad\n")
	_, err = l.LoadAll(ctx)
	require.Error(t, err)
	assert.Equal(t, []string{"local", "support/triage"}, slices.Collect(reg.List()))
}

func TestLoader_LoadAll_NoLister(t *testing.T) {
	t.Parallel()
	l := New(newMockFetcher(nil), promptkit.NewRegistry())
	_, err := l.LoadAll(context.Background())
	require.ErrorIs(t, err, ErrNoLister)
}

func TestLoader_Close(t *testing.T) {
	t.Parallel()
	f := newMockFetcher(nil)
	require.NoError(t, New(f, promptkit.NewRegistry()).Close())
	assert.True(t, f.closed)
}

func TestLoader_New_NilPanics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { New(nil, promptkit.NewRegistry()) })
	assert.Panics(t, func() { New(newMockFetcher(nil), nil) })
}

func TestLoader_EngineExecutesFetchedPrompt(t *testing.T) {
	t.Parallel()
	f := newMockFetcher(map[string]string{"greet": greetYAML})
	reg := promptkit.NewRegistry()
	l := New(f, reg)
	_, err := l.Get(context.Background(), "greet")
	require.NoError(t, err)

	engine, err := promptkit.NewEngine(promptkit.Config{Registry: reg, Providers: []promptkit.Provider{echoProvider{}}})
	require.NoError(t, err)
	res, err := engine.Execute(context.Background(), "greet",
		map[string]any{"role": "host", "target": "world"}, promptkit.CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": "Say hi to world."}, res.Data)
}

// echoProvider replies with {"result": <user message>}.
type echoProvider struct {
	promptkit.NoTools
}

func (echoProvider) Name() string { return "echo" }

func (echoProvider) Message(role promptkit.Role, content string) (any, error) {
	return [2]string{string(role), content}, nil
}

func (echoProvider) Options(promptkit.CallOptions) (any, error) { return nil, nil }

func (echoProvider) Request(_ context.Context, p *promptkit.Payload) (any, error) {
	last := p.Messages[len(p.Messages)-1].([2]string)
	return fmt.Sprintf(`{"result": %q}`, last[1]), nil
}

func (echoProvider) Content(raw any) (string, error) { return raw.(string), nil }

func (echoProvider) ToolCall(any) (*promptkit.ToolCall, error) { return nil, nil }
