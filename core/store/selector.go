package store

import (
	"encoding/json"
	"reflect"
)

// Selector is a Mango-style query: field equality and $in membership.
type Selector map[string]any

// Where starts a selector with an equality clause.
func Where(field string, value any) Selector {
	return Selector{field: value}
}

// Where adds an equality clause.
func (s Selector) Where(field string, value any) Selector {
	s[field] = value
	return s
}

// In adds a membership clause. An empty value list is ignored.
func (s Selector) In(field string, values ...any) Selector {
	if len(values) == 0 {
		return s
	}
	s[field] = map[string]any{"$in": values}
	return s
}

// Strings converts values for use with In.
func Strings(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// Match reports whether doc satisfies every clause. Array fields match a
// clause when any element does.
func (s Selector) Match(doc Doc) bool {
	for field, cond := range s {
		v, ok := doc[field]
		if !ok {
			return false
		}
		if m, isMap := cond.(map[string]any); isMap {
			if set, has := m["$in"]; has {
				if !matchIn(v, set) {
					return false
				}
				continue
			}
		}
		if !matchAny(v, func(x any) bool { return equal(x, cond) }) {
			return false
		}
	}
	return true
}

func matchIn(v, set any) bool {
	values, ok := set.([]any)
	if !ok {
		return false
	}
	return matchAny(v, func(x any) bool {
		for _, want := range values {
			if equal(x, want) {
				return true
			}
		}
		return false
	})
}

func matchAny(v any, pred func(any) bool) bool {
	if arr, ok := v.([]any); ok {
		for _, x := range arr {
			if pred(x) {
				return true
			}
		}
		return false
	}
	return pred(v)
}

// equal compares JSON values, treating all numbers as float64.
func equal(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func normalize(v any) any {
	switch v.(type) {
	case nil, string, bool, float64:
		return v
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
