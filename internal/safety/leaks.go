package safety

import "regexp"

// Leak is a credential-looking match found in agent output.
type Leak struct {
	Kind   string
	Sample string
}

var leakPatterns = []struct {
	re   *regexp.Regexp
	kind string
}{
	{regexp.MustCompile(`(?i)(api[_-]?key|api[_-]?token|apikey)\s*[:=]\s*"?([A-Za-z0-9_\-./+=]{16,})"?`), "api key"},
	{regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9_\-./+=]{16,}`), "bearer token"},
	{regexp.MustCompile(`sk-[A-Za-z0-9_\-]{20,}`), "openai key"},
	{regexp.MustCompile(`AIza[A-Za-z0-9_\-]{30,}`), "google key"},
	{regexp.MustCompile(`(?i)wss?://[^\s/@:]+:[^\s/@]+@`), "browser credential"},
}

// ScanOutput looks for credentials the agent may have echoed from a tool
// response. Samples are truncated so they can be logged.
func ScanOutput(output string) []Leak {
	if output == "" {
		return nil
	}
	var leaks []Leak
	for _, p := range leakPatterns {
		for _, match := range p.re.FindAllString(output, 3) {
			sample := match
			if len(sample) > 12 {
				sample = sample[:9] + "..."
			}
			leaks = append(leaks, Leak{Kind: p.kind, Sample: sample})
		}
	}
	return leaks
}
