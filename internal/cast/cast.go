// Package cast coerces loosely typed values from decoded JSON, YAML and CallOptions.Extra.
package cast

import (
	"encoding/json"
	"math"
)

// ToFloat64 converts a numeric value to float64. NaN and infinities are rejected,
// since they cannot come from JSON.
func ToFloat64(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	default:
		i, ok := intValue(v)
		return float64(i), ok
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ToInt64 converts a whole number to int64. Floats with a fractional part are rejected;
// unsigned values above math.MaxInt64 are clamped.
func ToInt64(v any) (int64, bool) {
	if i, ok := intValue(v); ok {
		return i, true
	}
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	}
	f, ok := ToFloat64(v)
	if !ok || !IsWhole(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// IsWhole reports whether f has no fractional part.
func IsWhole(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f) && math.Trunc(f) == f
}

func intValue(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint:
		return clampUint(uint64(x)), true
	case uint64:
		return clampUint(x), true
	default:
		return 0, false
	}
}

func clampUint(u uint64) int64 {
	if u > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(u)
}

// ToStringSlice converts v to []string. Accepts []string, []any of strings, or a
// single string, which becomes a one-element slice ("stop": "END").
func ToStringSlice(v any) ([]string, bool) {
	switch x := v.(type) {
	case []string:
		return x, true
	case string:
		return []string{x}, true
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
