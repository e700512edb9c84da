package promptkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/skosovsky/promptkit/internal/cast"
)

// ParseResponse turns reply content into a validated result.
// With an empty format the content is returned unchanged as a string.
// Otherwise Markdown code fences are stripped, the content must be exactly one
// JSON object, and every field of format must be present with the declared kind.
// Fields outside format are kept without validation. Values are never coerced.
func ParseResponse(content string, format Schema) (any, error) {
	if len(format) == 0 {
		return content, nil
	}
	obj, err := decodeObject(StripCodeFence(content))
	if err != nil {
		return nil, err
	}
	if err := CheckFields(obj, format); err != nil {
		return nil, err
	}
	return obj, nil
}

// CheckFields validates obj against format, reporting the first failing field in sorted order.
func CheckFields(obj map[string]any, format Schema) error {
	for _, field := range slices.Sorted(maps.Keys(format)) {
		want := format[field]
		v, ok := obj[field]
		if !ok {
			return &SchemaValidationError{Field: field, Expected: want, Actual: "missing"}
		}
		if !kindMatches(want, v) {
			return &SchemaValidationError{Field: field, Expected: want, Actual: kindOf(v)}
		}
	}
	return nil
}

// StripCodeFence removes a surrounding Markdown code fence (```json ... ``` or ``` ... ```).
// Content without a leading fence is only trimmed of surrounding whitespace.
func StripCodeFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop the info string ("json", "JSON", ...) up to the first newline.
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		if info := strings.TrimSpace(s[:nl]); !strings.ContainsAny(info, "{[") {
			s = s[nl+1:]
		}
	} else {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "json"), "JSON")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func decodeObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &SchemaValidationError{Expected: KindObject, Actual: "invalid JSON", Err: fmt.Errorf("%w: %w", ErrInvalidJSON, err)}
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, &SchemaValidationError{Expected: KindObject, Actual: "trailing data", Err: ErrInvalidJSON}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &SchemaValidationError{Expected: KindObject, Actual: kindOf(v), Err: ErrInvalidJSON}
	}
	return obj, nil
}

func kindMatches(want Kind, v any) bool {
	switch want {
	case KindAny:
		return true
	case KindString:
		_, ok := v.(string)
		return ok
	case KindBoolean:
		_, ok := v.(bool)
		return ok
	case KindNumber:
		_, ok := cast.ToFloat64(v)
		return ok
	case KindInteger:
		f, ok := cast.ToFloat64(v)
		return ok && cast.IsWhole(f)
	case KindObject:
		_, ok := v.(map[string]any)
		return ok
	case KindArray:
		_, ok := v.([]any)
		return ok
	default:
		return false
	}
}

func kindOf(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return string(KindString)
	case bool:
		return string(KindBoolean)
	case float64:
		if math.Trunc(x) == x {
			return string(KindInteger)
		}
		return string(KindNumber)
	case map[string]any:
		return string(KindObject)
	case []any:
		return string(KindArray)
	default:
		return fmt.Sprintf("%T", v)
	}
}
