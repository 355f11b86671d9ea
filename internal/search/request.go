package search

import (
	"fmt"
	"strings"
)

// Validation messages shown to the user.
const (
	MsgEmptyQuery      = "Please enter a search query."
	MsgNoPlatforms     = "Select at least one platform."
	msgUnknownPlatform = "Unsupported platform: %s."
)

// Request is a validated search: a trimmed non-empty query and a non-empty,
// de-duplicated list of supported platform names in the order given.
type Request struct {
	Query     string
	Platforms []string
}

// NewRequest validates raw form or API input.
func NewRequest(query string, platforms []string) (Request, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return Request{}, &ValidationError{Field: "query", Reason: MsgEmptyQuery}
	}

	seen := make(map[string]bool, len(platforms))
	selected := make([]string, 0, len(platforms))
	for _, raw := range platforms {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		name, ok := Canonical(raw)
		if !ok {
			return Request{}, &ValidationError{Field: "platforms", Reason: fmt.Sprintf(msgUnknownPlatform, strings.TrimSpace(raw))}
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		selected = append(selected, name)
	}
	if len(selected) == 0 {
		return Request{}, &ValidationError{Field: "platforms", Reason: MsgNoPlatforms}
	}
	return Request{Query: q, Platforms: selected}, nil
}

// Prompt is the user instruction sent to the agent: the literal query, a
// blank line, then the comma-joined platform list.
func (r Request) Prompt() string {
	return r.Query + "\n\n" + "Platforms: " + strings.Join(r.Platforms, ",")
}

// Requested reports whether name (already canonical) was asked for.
func (r Request) Requested(name string) bool {
	for _, p := range r.Platforms {
		if p == name {
			return true
		}
	}
	return false
}
