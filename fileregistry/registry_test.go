package fileregistry

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/skosovsky/promptkit"
	"github.com/skosovsky/promptkit/manifest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func file(s string) *fstest.MapFile { return &fstest.MapFile{Data: []byte(s)} }

const greetYAML = `
name: greet
version: "1"
system: You are a {role}.
user: Say hi to {target}.
response_format:
  result: string
`

func TestLoader_Load(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"prompts/greet.yaml":         file(greetYAML),
		"prompts/support/bundle.yml": file("name: support/triage\nuser: Triage {ticket}\n---\nname: support/summary\nuser: Summarize {ticket}\n"),
		"prompts/README.md":          file("not a manifest"),
	}
	reg := promptkit.NewRegistry()
	names, err := New(fsys, WithRoot("prompts")).Load(context.Background(), reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"greet", "support/summary", "support/triage"}, names)

	tpl, err := reg.Get("greet")
	require.NoError(t, err)
	assert.Equal(t, "Say hi to {target}.", tpl.User)
	assert.True(t, tpl.Structured())
}

func TestLoader_EnvOverlay(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"greet.yaml":            file(greetYAML),
		"greet.production.yaml": file("name: greet\nuser: Greet {target} formally.\n"),
		"greet.staging.yaml":    file("name: greet\nuser: Hey {target}!\n"),
		"release.v2.yaml":       file("name: release.v2\nuser: Notes for {tag}\n"),
	}
	tests := []struct {
		env  string
		want string
	}{
		{env: "", want: "Say hi to {target}."},
		{env: "production", want: "Greet {target} formally."},
		{env: "staging", want: "Hey {target}!"},
		{env: "dev", want: "Say hi to {target}."},
	}
	for _, tt := range tests {
		t.Run("env="+tt.env, func(t *testing.T) {
			t.Parallel()
			reg := promptkit.NewRegistry()
			names, err := New(fsys, WithEnv(tt.env)).Load(context.Background(), reg)
			require.NoError(t, err)
			assert.Equal(t, []string{"greet", "release.v2"}, names)
			tpl, err := reg.Get("greet")
			require.NoError(t, err)
			assert.Equal(t, tt.want, tpl.User)
		})
	}
}

func TestLoader_DuplicateName(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"a.yaml": file(greetYAML),
		"b.yaml": file(greetYAML),
	}
	reg := promptkit.NewRegistry()
	_, err := New(fsys).Load(context.Background(), reg)
	require.ErrorIs(t, err, promptkit.ErrDuplicatePrompt)
	assert.Zero(t, reg.Len())
}

func TestLoader_InvalidManifestLeavesRegistryUnchanged(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{"greet.yaml": file(greetYAML)}
	reg := promptkit.NewRegistry()
	l := New(fsys)
	_, err := l.Load(context.Background(), reg)
	require.NoError(t, err)

	fsys["broken.yaml"] = file("name: broken\n")
	_, err = l.Load(context.Background(), reg)
	require.ErrorIs(t, err, manifest.ErrInvalidManifest)
	assert.Equal(t, []string{"greet"}, slices.Collect(reg.List()))
}

func TestLoader_ReloadRemovesVanishedPrompts(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	write := func(name, data string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0o600))
	}
	write("greet.yaml", greetYAML)
	write("farewell.yaml", "name: farewell\nuser: Bye {target}\n")

	reg := promptkit.NewRegistry()
	require.NoError(t, reg.Register(promptkit.PromptTemplate{Name: "inline", User: "kept"}))
	l := NewDir(dir)
	_, err := l.Load(context.Background(), reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"farewell", "greet", "inline"}, slices.Collect(reg.List()))

	require.NoError(t, os.Remove(filepath.Join(dir, "farewell.yaml")))
	write("greet.yaml", "name: greet\nuser: Wave at {target}.\n")
	names, err := l.Load(context.Background(), reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"greet"}, names)
	// Prompts registered by other code are not touched.
	assert.Equal(t, []string{"greet", "inline"}, slices.Collect(reg.List()))
	tpl, err := reg.Get("greet")
	require.NoError(t, err)
	assert.Equal(t, "Wave at {target}.", tpl.User)
}

func TestLoader_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(fstest.MapFS{"greet.yaml": file(greetYAML)}).Load(ctx, promptkit.NewRegistry())
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoader_ConcurrentLoadAndGet(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{"greet.yaml": file(greetYAML)}
	reg := promptkit.NewRegistry()
	l := New(fsys)
	_, err := l.Load(context.Background(), reg)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, loadErr := l.Load(context.Background(), reg)
			assert.NoError(t, loadErr)
		}()
		go func() {
			defer wg.Done()
			tpl, getErr := reg.Get("greet")
			assert.NoError(t, getErr)
			assert.Equal(t, "greet", tpl.Name)
		}()
	}
	wg.Wait()
}

func TestLoader_Watch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.yaml"), []byte(greetYAML), 0o600))
	core, logs := observer.New(zap.WarnLevel)
	reg := promptkit.NewRegistry()
	l := NewDir(dir, WithLogger(zap.New(core)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Watch(ctx, reg, 10*time.Millisecond) }()

	require.Eventually(t, func() bool { _, err := reg.Get("greet"); return err == nil }, time.Second, 5*time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("name: bad\n"), 0o600))
	require.Eventually(t, func() bool { return logs.FilterMessage("manifest reload failed").Len() > 0 }, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	_, err := reg.Get("greet")
	require.NoError(t, err)
}

func TestLoader_WatchNonPositiveInterval(t *testing.T) {
	t.Parallel()
	l := NewDir(t.TempDir())
	for _, interval := range []time.Duration{0, -time.Second} {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.ErrorIs(t, l.Watch(ctx, promptkit.NewRegistry(), interval), context.Canceled)
	}
}
