package promptkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse_Valid(t *testing.T) {
	t.Parallel()
	format := Schema{"result": KindString}
	tests := []struct {
		name    string
		content string
	}{
		{"bare", `{"result":"ok"}`},
		{"json fence", "```json\n{\"result\":\"ok\"}\n```"},
		{"plain fence", "```\n{\"result\":\"ok\"}\n```"},
		{"inline fence", "```json{\"result\":\"ok\"}```"},
		{"surrounding whitespace", "\n  {\"result\":\"ok\"}  \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseResponse(tt.content, format)
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"result": "ok"}, got)
		})
	}
}

func TestParseResponse_RawWithoutFormat(t *testing.T) {
	t.Parallel()
	content := "```json\n{\"result\":\"ok\"}\n```"
	got, err := ParseResponse(content, nil)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestParseResponse_MissingField(t *testing.T) {
	t.Parallel()
	_, err := ParseResponse(`{"other":"x"}`, Schema{"result": KindString})
	require.ErrorIs(t, err, ErrSchemaValidation)
	var se *SchemaValidationError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "result", se.Field)
	assert.Equal(t, KindString, se.Expected)
	assert.Equal(t, "missing", se.Actual)
}

func TestParseResponse_KindMismatch(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		json   string
		kind   Kind
		actual string
	}{
		{"number for string", `{"v":1}`, KindString, "integer"},
		{"string for number", `{"v":"1"}`, KindNumber, "string"},
		{"fraction for integer", `{"v":1.5}`, KindInteger, "number"},
		{"string for boolean", `{"v":"true"}`, KindBoolean, "string"},
		{"array for object", `{"v":[]}`, KindObject, "array"},
		{"object for array", `{"v":{}}`, KindArray, "object"},
		{"null for string", `{"v":null}`, KindString, "null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseResponse(tt.json, Schema{"v": tt.kind})
			var se *SchemaValidationError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "v", se.Field)
			assert.Equal(t, tt.kind, se.Expected)
			assert.Equal(t, tt.actual, se.Actual)
		})
	}
}

func TestParseResponse_AllKinds(t *testing.T) {
	t.Parallel()
	format := Schema{
		"s": KindString, "n": KindNumber, "i": KindInteger, "b": KindBoolean,
		"o": KindObject, "a": KindArray, "x": KindAny,
	}
	got, err := ParseResponse(`{"s":"t","n":1.25,"i":4,"b":false,"o":{"k":1},"a":[1],"x":null,"extra":"kept"}`, format)
	require.NoError(t, err)
	obj := got.(map[string]any)
	assert.Equal(t, "kept", obj["extra"])
	assert.InDelta(t, 4.0, obj["i"], 0)
}

func TestParseResponse_InvalidDocument(t *testing.T) {
	t.Parallel()
	for _, content := range []string{"not json", `["a"]`, `{"result":"ok"} trailing`, `{"result":"ok"}{}`, ""} {
		_, err := ParseResponse(content, Schema{"result": KindString})
		require.ErrorIs(t, err, ErrSchemaValidation, content)
		var se *SchemaValidationError
		require.ErrorAs(t, err, &se)
		assert.Empty(t, se.Field)
	}
}

func TestStripCodeFence(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `{"a":1}`, StripCodeFence("```JSON\n{\"a\":1}\n```"))
	assert.Equal(t, "plain", StripCodeFence("  plain  "))
	assert.Equal(t, `{"a":1}`, StripCodeFence("```{\"a\":1}\n```"))
}
