package promptkit

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// StateKey is the variables key holding nested conversation state.
const StateKey = "state"

// Render substitutes {path} placeholders in text with values from vars.
// It returns the rendered text and the paths it could not resolve, in order of appearance.
//
// A placeholder is a dotted path of identifiers, optionally padded with spaces
// inside the braces. Brace spans that are not a path (JSON snippets, for
// example) are copied as is. Unresolved placeholders stay in the output verbatim.
//
// Lookup walks vars from the top. {state.x} falls back to the top-level x when
// vars has no state.x, and {x} falls back to state.x when vars has no x.
// Render never modifies text or vars and is safe for concurrent use.
func Render(text string, vars map[string]any) (string, []string) {
	var b strings.Builder
	b.Grow(len(text))
	var unresolved []string
	i := 0
	for i < len(text) {
		open := strings.IndexByte(text[i:], '{')
		if open < 0 {
			b.WriteString(text[i:])
			break
		}
		open += i
		b.WriteString(text[i:open])
		end := strings.IndexByte(text[open+1:], '}')
		if end < 0 {
			b.WriteString(text[open:])
			break
		}
		end += open + 1
		path, ok := parsePath(text[open+1 : end])
		if !ok {
			// Not a placeholder; keep scanning right after the brace so "{ {name} }" still resolves.
			b.WriteByte('{')
			i = open + 1
			continue
		}
		if v, found := lookup(vars, path); found {
			b.WriteString(formatValue(v))
		} else {
			b.WriteString(text[open : end+1])
			unresolved = append(unresolved, strings.Join(path, "."))
		}
		i = end + 1
	}
	return b.String(), unresolved
}

// Placeholders returns the distinct placeholder paths referenced by text, in order.
func Placeholders(text string) []string {
	_, paths := Render(text, nil)
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func parsePath(inner string) ([]string, bool) {
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return nil, false
	}
	segs := strings.Split(inner, ".")
	for i, seg := range segs {
		if seg == "" {
			return nil, false
		}
		for j, r := range seg {
			switch {
			case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9':
				if i == 0 && j == 0 {
					return nil, false
				}
			default:
				return nil, false
			}
		}
	}
	return segs, true
}

func lookup(vars map[string]any, path []string) (any, bool) {
	if v, ok := walk(vars, path); ok {
		return v, true
	}
	if path[0] == StateKey {
		if len(path) > 1 {
			return walk(vars, path[1:])
		}
		return nil, false
	}
	state, ok := vars[StateKey]
	if !ok {
		return nil, false
	}
	return walk(state, path)
}

func walk(cur any, path []string) (any, bool) {
	for _, seg := range path {
		next, ok := child(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func child(v any, key string) (any, bool) {
	switch m := v.(type) {
	case map[string]any:
		x, ok := m[key]
		return x, ok
	case map[string]string:
		x, ok := m[key]
		return x, ok
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		kt := rv.Type().Key()
		if kt.Kind() != reflect.String {
			return nil, false
		}
		x := rv.MapIndex(reflect.ValueOf(key).Convert(kt))
		if !x.IsValid() {
			return nil, false
		}
		return x.Interface(), true
	case reflect.Struct:
		return structField(rv, key)
	case reflect.Slice, reflect.Array:
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= rv.Len() {
			return nil, false
		}
		return rv.Index(idx).Interface(), true
	default:
		return nil, false
	}
}

// structField matches key against the json tag name first, then the Go field name.
func structField(rv reflect.Value, key string) (any, bool) {
	typ := rv.Type()
	for i := range typ.NumField() {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == key || f.Name == key {
			return rv.Field(i).Interface(), true
		}
	}
	return nil, false
}

func formatValue(v any) string {
	if isNilRef(v) {
		return ""
	}
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x)
	}
	switch reflect.Indirect(reflect.ValueOf(v)).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}

// isNilRef reports a nil interface or a typed nil pointer, map, slice, func or chan.
func isNilRef(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
