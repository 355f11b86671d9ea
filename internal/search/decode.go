package search

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	reflectschema "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// MalformedOutputError describes agent output that is not a valid
// SearchResponse. Raw keeps the text for debug logging.
type MalformedOutputError struct {
	Message string
	Raw     string
}

func (e *MalformedOutputError) Error() string { return e.Message }

// Decoder is the parse-and-validate boundary between agent text and typed
// results. It is built once and is safe for concurrent use.
type Decoder struct {
	schema     *jsonschema.Schema
	schemaJSON json.RawMessage
	logger     *slog.Logger
}

// ResponseSchema reflects the JSON Schema of SearchResponse from the Go types.
func ResponseSchema() (json.RawMessage, error) {
	r := &reflectschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	raw, err := json.Marshal(r.Reflect(&SearchResponse{}))
	if err != nil {
		return nil, fmt.Errorf("marshal response schema: %w", err)
	}
	return raw, nil
}

// NewDecoder compiles the SearchResponse schema.
func NewDecoder(logger *slog.Logger) (*Decoder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schemaJSON, err := ResponseSchema()
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema JSON: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("search_response.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("search_response.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Decoder{schema: schema, schemaJSON: schemaJSON, logger: logger}, nil
}

// SchemaJSON returns the compiled schema document.
func (d *Decoder) SchemaJSON() json.RawMessage {
	return d.schemaJSON
}

// Decode extracts the JSON object from text, validates it against the
// schema, and keeps only blocks for platforms in req. Every failure is an
// *UpstreamError of class MALFORMED. Block and hit order are preserved.
func (d *Decoder) Decode(text string, req Request) (SearchResponse, error) {
	jsonStr := extractJSON(text)
	if jsonStr == "" {
		return SearchResponse{}, d.malformed("agent output contains no JSON object", text)
	}

	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(jsonStr))
	if err != nil {
		return SearchResponse{}, d.malformed(fmt.Sprintf("invalid JSON: %s", err), text)
	}
	if err := d.schema.Validate(parsed); err != nil {
		return SearchResponse{}, d.malformed(fmt.Sprintf("schema validation failed: %s", err), text)
	}

	var resp SearchResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return SearchResponse{}, d.malformed(fmt.Sprintf("decode response: %s", err), text)
	}
	return d.restrict(resp, req), nil
}

func (d *Decoder) malformed(msg, raw string) error {
	d.logger.Debug("agent output rejected", "reason", msg, "raw_len", len(raw))
	return &UpstreamError{
		Class: ErrorClassMalformed,
		Op:    "decode",
		Err:   &MalformedOutputError{Message: msg, Raw: raw},
	}
}

// restrict drops blocks for platforms that were not requested and rewrites
// accepted names to their canonical spelling.
func (d *Decoder) restrict(resp SearchResponse, req Request) SearchResponse {
	out := SearchResponse{Platforms: make([]PlatformBlock, 0, len(resp.Platforms))}
	for _, block := range resp.Platforms {
		name, ok := Canonical(block.Platform)
		if !ok || !req.Requested(name) {
			d.logger.Warn("dropping unrequested platform block",
				"platform", block.Platform,
				"hits", len(block.Results),
				"requested", strings.Join(req.Platforms, ","),
			)
			continue
		}
		if block.Results == nil {
			block.Results = []Hit{}
		}
		for i := range block.Results {
			block.Results[i].URL = NormalizeURL(block.Results[i].URL)
		}
		block.Platform = name
		out.Platforms = append(out.Platforms, block)
	}
	return out
}

// NormalizeURL percent-encodes every byte that an HTML href would escape
// on render, so the stored URL is the exact string read back from the page.
// Existing %XX escapes are left alone.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	clean := true
	for i := 0; i < len(raw); i++ {
		if !urlByteKept(raw[i]) {
			clean = false
			break
		}
	}
	if clean {
		return raw
	}
	var b strings.Builder
	b.Grow(len(raw) + 16)
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if urlByteKept(c) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

// urlByteKept matches html/template's URL normalizer: unreserved characters,
// reserved delimiters except quote and parens, and '%'.
func urlByteKept(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-._~!#$&*+,/:;=?@[]%", c) >= 0
}

// extractJSON finds the first JSON object in the text: a ```json fence, a
// bare fence, or a balanced {...} span.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") && isJSON(trimmed) {
		return trimmed
	}

	if idx := strings.Index(text, "```json"); idx >= 0 {
		start := idx + len("```json")
		if end := strings.Index(text[start:], "```"); end >= 0 {
			candidate := strings.TrimSpace(text[start : start+end])
			if candidate != "" {
				return candidate
			}
		}
	}

	if idx := strings.Index(text, "```\n"); idx >= 0 {
		start := idx + 4
		if end := strings.Index(text[start:], "```"); end >= 0 {
			candidate := strings.TrimSpace(text[start : start+end])
			if isJSON(candidate) {
				return candidate
			}
		}
	}

	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		if candidate := extractBalanced(text[i:]); candidate != "" && isJSON(candidate) {
			return candidate
		}
	}
	return ""
}

func isJSON(s string) bool {
	return json.Valid([]byte(s))
}

// extractBalanced returns the {...} span at the start of s, honoring
// string literals and escapes.
func extractBalanced(s string) string {
	if len(s) == 0 || s[0] != '{' {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
