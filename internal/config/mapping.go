package config

import (
	"fmt"
	"strings"
)

// FieldRule maps one directory field to the identity provider field it is read from.
type FieldRule struct {
	Target string
	Source string
}

// FieldMapping is applied in order.
type FieldMapping []FieldRule

// ParseFieldMapping parses "target=source,target=source". Order is preserved.
func ParseFieldMapping(s string) (FieldMapping, error) {
	var out FieldMapping
	seen := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		target, source, ok := strings.Cut(part, "=")
		target, source = strings.TrimSpace(target), strings.TrimSpace(source)
		if !ok || target == "" || source == "" {
			return nil, fmt.Errorf("invalid field mapping entry %q", part)
		}
		if seen[target] {
			return nil, fmt.Errorf("duplicate field mapping target %q", target)
		}
		seen[target] = true
		out = append(out, FieldRule{Target: target, Source: source})
	}
	return out, nil
}

func (m FieldMapping) String() string {
	parts := make([]string, 0, len(m))
	for _, r := range m {
		parts = append(parts, r.Target+"="+r.Source)
	}
	return strings.Join(parts, ",")
}
