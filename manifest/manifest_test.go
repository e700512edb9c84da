package manifest

import (
	"embed"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/promptkit"
)

//go:embed testdata/*.yaml
var testdataFS embed.FS

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestParseBytes_ValidSimple(t *testing.T) {
	t.Parallel()
	data := []byte(`
name: simple_prompt
version: "1"
user: "Hello, {user_name}."
`)
	tpl, err := ParseBytes(data)
	require.NoError(t, err)
	assert.Equal(t, "simple_prompt", tpl.Name)
	assert.Equal(t, "1", tpl.Version)
	assert.Equal(t, "Hello, {user_name}.", tpl.User)
	assert.False(t, tpl.Structured())
}

func TestParseFS_Greet(t *testing.T) {
	t.Parallel()
	tpl, err := ParseFS(testdataFS, "testdata/greet.yaml")
	require.NoError(t, err)
	assert.Equal(t, promptkit.PromptTemplate{
		Name:           "greet",
		Version:        "1",
		Description:    "Greets a user in a given persona.",
		System:         "You are a {role}.",
		User:           "Say hi to {target}.",
		RequestFormat:  promptkit.Schema{"role": promptkit.KindString, "target": promptkit.KindString},
		ResponseFormat: promptkit.Schema{"result": promptkit.KindString},
	}, tpl)
}

func TestParseFile(t *testing.T) {
	t.Parallel()
	tpl, err := ParseFile(filepath.Join("testdata", "greet.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "greet", tpl.Name)

	_, err = ParseFile(filepath.Join("testdata", "missing.yaml"))
	require.Error(t, err)
}

func TestParseBytes_Invalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data string
	}{
		{name: "missing name", data: "user: hi\n"},
		{name: "empty user", data: "name: x\nsystem: hi\n"},
		{name: "unknown kind", data: "name: x\nuser: hi\nresponse_format:\n  a: text\n"},
		{name: "unknown key", data: "name: x\nuser: hi\nmessages: []\n"},
		{name: "bad name", data: "name: ../etc\nuser: hi\n"},
		{name: "bad yaml", data: "name: x\nuser: [unclosed"},
		{name: "two documents", data: "name: a\nuser: hi\n---\nname: b\nuser: hi\n"},
		{name: "empty", data: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseBytes([]byte(tt.data))
			require.ErrorIs(t, err, ErrInvalidManifest)
		})
	}
}

func TestParseFS_InvalidFiles(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"testdata/invalid_missing_name.yaml", "testdata/invalid_kind.yaml"} {
		_, err := ParseFS(testdataFS, name)
		require.ErrorIs(t, err, ErrInvalidManifest, name)
	}
}

func TestParseAll_Bundle(t *testing.T) {
	t.Parallel()
	data, err := testdataFS.ReadFile("testdata/bundle.yaml")
	require.NoError(t, err)
	all, err := ParseAll(data)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "support/triage", all[0].Name)
	assert.Equal(t, promptkit.KindBoolean, all[0].ResponseFormat["urgent"])
	assert.Equal(t, "support/summary", all[1].Name)
}

func TestMarshal_RoundTrip(t *testing.T) {
	t.Parallel()
	want, err := ParseFS(testdataFS, "testdata/greet.yaml")
	require.NoError(t, err)
	data, err := Marshal(want)
	require.NoError(t, err)
	got, err := ParseBytes(data)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
