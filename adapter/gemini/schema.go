package gemini

import (
	"fmt"
	"maps"
	"slices"

	"google.golang.org/genai"
)

// mapToGenaiSchema converts a JSON Schema map into genai.Schema. A nil map yields nil.
// Supported keywords: type, description, enum, nullable, properties, required, items.
// An absent type maps to TypeUnspecified so "any" fields stay unconstrained.
func mapToGenaiSchema(m map[string]any) (*genai.Schema, error) {
	if m == nil {
		return nil, nil
	}
	s := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		s.Type = genaiType(t)
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	if n, ok := m["nullable"].(bool); ok {
		s.Nullable = &n
	}
	s.Enum = stringList(m["enum"])
	s.Required = stringList(m["required"])

	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		s.PropertyOrdering = slices.Sorted(maps.Keys(props))
		for _, name := range s.PropertyOrdering {
			sub, ok := props[name].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("property %q: schema is %T, want object", name, props[name])
			}
			conv, err := mapToGenaiSchema(sub)
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", name, err)
			}
			s.Properties[name] = conv
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		conv, err := mapToGenaiSchema(items)
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		s.Items = conv
	}
	return s, nil
}

func stringList(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func genaiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}
