package model

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Answer values arrive from JSON, YAML and BSON decoders, so they are plain
// `any`. The helpers below coerce them into the shapes the engine works with.

// AsString returns v as a trimmed string. Numbers and booleans are formatted;
// booleans become "yes"/"no" to match yes-no questions.
func AsString(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return strings.TrimSpace(x), true
	case bool:
		if x {
			return "yes", true
		}
		return "no", true
	case json.Number:
		return x.String(), true
	}
	if f, ok := AsNumber(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}

// AsNumber returns v as a float64. Numeric strings are parsed.
func AsNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return x, !math.IsNaN(x) && !math.IsInf(x, 0)
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// AsStrings returns a list answer as strings. Any slice type is accepted so
// that decoder-specific list types work too; a lone string becomes a
// one-element list. Elements that are not scalars make the whole value invalid.
func AsStrings(v any) ([]string, bool) {
	if v == nil {
		return nil, false
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return []string{}, true
		}
		return []string{s}, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		s, ok := AsString(rv.Index(i).Interface())
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// IsList reports whether v is a slice or array.
func IsList(v any) bool {
	if v == nil {
		return false
	}
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// IsEmpty reports whether v counts as "no answer".
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	if IsList(v) {
		return reflect.ValueOf(v).Len() == 0
	}
	return false
}

// FormatValue renders an answer for display and prompts.
func FormatValue(v any) string {
	if list, ok := AsStrings(v); ok && IsList(v) {
		return strings.Join(list, ", ")
	}
	if s, ok := AsString(v); ok {
		return s
	}
	return fmt.Sprint(v)
}
