package coerce

import (
	"encoding/json"
	"fmt"

	"github.com/resqmeals/gateway/core/fault"
)

const defaultMaxDepth = 4

// Rule is one normalization step. Apply returns the object holding the
// chain's wanted key, or false when the rule does not match v.
type Rule interface {
	Name() string
	Apply(c *Chain, v any, depth int) (map[string]any, bool)
}

// Direct matches an object that already carries the wanted key.
type Direct struct{}

func (Direct) Name() string { return "direct" }

func (Direct) Apply(c *Chain, v any, _ int) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	if c.Key == "" {
		return m, true
	}
	_, has := m[c.Key]
	return m, has
}

// StringWrapped parses a string holding JSON and resolves the result again.
type StringWrapped struct{}

func (StringWrapped) Name() string { return "string_wrapped" }

func (StringWrapped) Apply(c *Chain, v any, depth int) (map[string]any, bool) {
	s, ok := v.(string)
	if !ok {
		return nil, false
	}
	var parsed any
	if err := json.Unmarshal([]byte(ForceJSONText(s)), &parsed); err != nil {
		return nil, false
	}
	return c.resolve(parsed, depth+1)
}

// NestedField descends into Key when the object lacks the wanted key.
type NestedField struct{ Key string }

func (n NestedField) Name() string { return "nested_field(" + n.Key + ")" }

func (n NestedField) Apply(c *Chain, v any, depth int) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	if _, has := m[c.Key]; has && c.Key != "" {
		return nil, false
	}
	inner, has := m[n.Key]
	if !has {
		return nil, false
	}
	return c.resolve(inner, depth+1)
}

// Chain tries its rules in order until one yields an object holding Key.
// An empty Key accepts any object.
type Chain struct {
	Key      string
	Rules    []Rule
	MaxDepth int
}

// Resolve applies the chain to v.
func (c *Chain) Resolve(v any) (map[string]any, error) {
	if m, ok := c.resolve(v, 0); ok {
		return m, nil
	}
	if c.Key == "" {
		return nil, fault.Newf(fault.ErrShape, "coerce", "no JSON object in %s", describe(v))
	}
	return nil, fault.Newf(fault.ErrShape, "coerce", "missing %q in %s", c.Key, describe(v))
}

func (c *Chain) resolve(v any, depth int) (map[string]any, bool) {
	limit := c.MaxDepth
	if limit <= 0 {
		limit = defaultMaxDepth
	}
	if depth > limit {
		return nil, false
	}
	for _, r := range c.Rules {
		if m, ok := r.Apply(c, v, depth); ok {
			return m, true
		}
	}
	return nil, false
}

func describe(v any) string {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		return fmt.Sprintf("object with keys %v", keys)
	case string:
		if len(t) > 80 {
			t = t[:80] + "..."
		}
		return fmt.Sprintf("text %q", t)
	default:
		return fmt.Sprintf("%T", v)
	}
}
