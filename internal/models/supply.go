package models

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultSupplies is the supply catalogue used when none is configured.
var DefaultSupplies = []string{
	"food", "clothes", "clothing", "medicine", "medical", "shelter",
	"blankets", "hygiene", "batteries", "communication", "emergency_services",
}

// SupplyCatalog is the closed set of supply categories a request may name.
type SupplyCatalog struct {
	known map[string]struct{}
}

func NewSupplyCatalog(ids []string) *SupplyCatalog {
	if len(ids) == 0 {
		ids = DefaultSupplies
	}
	c := &SupplyCatalog{known: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id != "" {
			c.known[id] = struct{}{}
		}
	}
	return c
}

// IDs returns the catalogue sorted.
func (c *SupplyCatalog) IDs() []string {
	out := make([]string, 0, len(c.known))
	for id := range c.known {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Normalize validates a requested supply list and returns it lower-cased and
// de-duplicated in first-seen order. Empty lists and unknown ids are rejected.
func (c *SupplyCatalog) Normalize(supplies []string) ([]string, error) {
	if len(supplies) == 0 {
		return nil, fmt.Errorf("%w: at least one supply category is required", ErrValidation)
	}
	seen := make(map[string]struct{}, len(supplies))
	out := make([]string, 0, len(supplies))
	for _, s := range supplies {
		id := strings.ToLower(strings.TrimSpace(s))
		if _, ok := c.known[id]; !ok {
			return nil, fmt.Errorf("%w: unknown supply category %q", ErrValidation, s)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
