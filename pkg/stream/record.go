package stream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record is the field map accumulated for one element of the record array.
//
// Scalar values keep their JSON types (string, json.Number, bool, nil).
// Nested values are decoded as ordinary values, except grouped keys, which
// hold a map[string][]any of the scalar lists under each child name.
type Record map[string]any

// String returns the value at key rendered as a string. Missing and null
// values return "".
func (r Record) String(key string) string {
	return toString(r[key])
}

// StringOr returns String(key), or def when the value is empty.
func (r Record) StringOr(key, def string) string {
	if s := r.String(key); s != "" {
		return s
	}
	return def
}

// Int returns the value at key as an int.
func (r Record) Int(key string) (int, bool) {
	switch v := r[key].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return 0, false
			}
			return int(f), true
		}
		return int(n), true
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	default:
		return 0, false
	}
}

// Bool returns the value at key as a bool, or def when absent or not boolean.
func (r Record) Bool(key string, def bool) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Map returns the object at key.
func (r Record) Map(key string) map[string]any {
	m, _ := r[key].(map[string]any)
	return m
}

// Strings returns the array at key with every element rendered as a string.
func (r Record) Strings(key string) []string {
	list, ok := r[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s := toString(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Grouped returns the grouped list captured at key as string lists.
func (r Record) Grouped(key string) map[string][]string {
	g, ok := r[key].(map[string][]any)
	if !ok {
		return nil
	}
	out := make(map[string][]string, len(g))
	for name, list := range g {
		vals := make([]string, 0, len(list))
		for _, v := range list {
			vals = append(vals, toString(v))
		}
		out[name] = vals
	}
	return out
}

// Context holds the scalar values seen on the way to the record array, such
// as a report's tool version or generation time.
type Context map[string]any

// String returns the value at key rendered as a string.
func (c Context) String(key string) string {
	return toString(c[key])
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
