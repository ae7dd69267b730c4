package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// fieldRule fills one Message field from the first present candidate
// (dotted key paths, tried in order), or from fallback.
type fieldRule struct {
	candidates []string
	fallback   func() string
	set        func(m *Message, v string)
}

func constant(s string) func() string { return func() string { return s } }

// defaultRules is the precedence table for known webhook schemas.
var defaultRules = []fieldRule{
	{
		candidates: []string{"id", "alert_id", "page_id"},
		fallback:   generatedID,
		set:        func(m *Message, v string) { m.ID = v },
	},
	{
		candidates: []string{"title", "message", "name"},
		fallback:   constant("Alert"),
		set:        func(m *Message, v string) { m.Title = v },
	},
	{
		candidates: []string{"severity", "priority", "urgency"},
		fallback:   constant("P?"),
		set:        func(m *Message, v string) { m.Severity = v },
	},
	{
		candidates: []string{"service", "service_name", "tags.service"},
		fallback:   constant("unknown"),
		set:        func(m *Message, v string) { m.Service = v },
	},
}

// Normalize converts a raw webhook body into a truncated Message.
func Normalize(body []byte) (Message, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if doc == nil {
		return Message{}, ErrInvalidPayload
	}
	return NormalizeMap(doc), nil
}

// NormalizeMap applies the precedence rules to an already decoded object.
func NormalizeMap(doc map[string]any) Message {
	var m Message
	for _, rule := range defaultRules {
		v, ok := firstPresent(doc, rule.candidates)
		if !ok {
			rule.set(&m, rule.fallback())
			continue
		}
		rule.set(&m, stringify(v))
	}
	return m.truncated()
}

func firstPresent(doc map[string]any, paths []string) (any, bool) {
	for _, p := range paths {
		if v, ok := lookup(doc, p); ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// lookup resolves a dotted path. A "tags" list of "key:value" strings
// is treated like an object, since Datadog sends tags that way.
func lookup(doc map[string]any, path string) (any, bool) {
	head, rest, nested := strings.Cut(path, ".")
	v, ok := doc[head]
	if !ok || !nested {
		return v, ok
	}

	switch inner := v.(type) {
	case map[string]any:
		return lookup(inner, rest)
	case []any:
		return lookupTagList(inner, rest)
	case string:
		return lookupTagList(splitTags(inner), rest)
	}
	return nil, false
}

func lookupTagList(tags []any, key string) (any, bool) {
	for _, t := range tags {
		s, ok := t.(string)
		if !ok {
			continue
		}
		if k, v, found := strings.Cut(strings.TrimSpace(s), ":"); found && k == key {
			return v, true
		}
	}
	return nil, false
}

func splitTags(s string) []any {
	parts := strings.Split(s, ",")
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out
}

// stringify renders scalars as written and structures as compact JSON.
func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
