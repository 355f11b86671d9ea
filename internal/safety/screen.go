// Package safety screens search queries before they are handed to the agent
// and scans agent output for echoed credentials.
package safety

import (
	"regexp"
	"strings"
)

// Action is the recommended response to a screened input.
type Action int

const (
	// ActionAllow means nothing matched.
	ActionAllow Action = iota
	// ActionWarn means the query looks like an injection attempt. It is
	// logged and still sent; product names collide with these phrases too
	// often to reject on them.
	ActionWarn
)

func (a Action) String() string {
	if a == ActionWarn {
		return "warn"
	}
	return "allow"
}

// Verdict is the outcome of screening one query.
type Verdict struct {
	Action Action
	Reason string
}

// Suspicious reports whether the query matched a rule.
func (v Verdict) Suspicious() bool { return v.Action == ActionWarn }

type rule struct {
	re     *regexp.Regexp
	reason string
}

var queryRules = []rule{
	{
		re:     regexp.MustCompile(`(?i)\b(ignore|disregard)\s+(all\s+)?(the\s+)?(previous|above|prior|earlier)\s+(instructions?|prompts?|rules?)\b`),
		reason: "query tries to override the search instructions",
	},
	{
		re:     regexp.MustCompile(`(?i)\b(you\s+are\s+now\s+(a|an|the)\s+\w+|new\s+instructions?|override\s+(the\s+)?(system\s+)?prompt)\b`),
		reason: "query tries to change the agent role",
	},
	{
		re:     regexp.MustCompile(`(?i)\b(reveal|show|print|repeat|output)\s+(me\s+)?(your\s+)?(system\s+)?(prompt|instructions?)\b`),
		reason: "query asks for the agent instructions",
	},
	{
		re:     regexp.MustCompile(`(?i)\b(api[_\s-]?(key|token)|browser[_\s-]?auth|environment\s+variables?|env\s+vars?)\b`),
		reason: "query mentions credentials",
	},
	{
		re:     regexp.MustCompile(`(?i)(\[\s*SYSTEM\s*\]|<\s*\|?\s*(system|im_start|im_end)\s*\|?\s*>)`),
		reason: "query contains chat template markers",
	},
	{
		re:     regexp.MustCompile(`(?i)\b(file|javascript|data):`),
		reason: "query contains a non-web URL scheme",
	},
}

// Screen checks a product search query. Blank input is allowed here;
// emptiness is a validation concern.
func Screen(query string) Verdict {
	if strings.TrimSpace(query) == "" {
		return Verdict{Action: ActionAllow}
	}
	for _, r := range queryRules {
		if r.re.MatchString(query) {
			return Verdict{Action: ActionWarn, Reason: r.reason}
		}
	}
	return Verdict{Action: ActionAllow}
}
