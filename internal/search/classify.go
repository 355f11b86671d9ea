package search

import (
	"context"
	"errors"
	"strings"
)

// ErrorClass narrows an UpstreamError for the message shown to the user.
type ErrorClass string

const (
	// ErrorClassAuth indicates rejected credentials (401, invalid key).
	ErrorClassAuth ErrorClass = "AUTH"

	// ErrorClassRateLimit indicates rate limiting or quota exhaustion (429).
	ErrorClassRateLimit ErrorClass = "RATE_LIMIT"

	// ErrorClassTimeout indicates the provider or transport gave up waiting.
	ErrorClassTimeout ErrorClass = "TIMEOUT"

	// ErrorClassBilling indicates billing or payment issues.
	ErrorClassBilling ErrorClass = "BILLING"

	// ErrorClassContextOverflow indicates scraped pages overflowed the model context.
	ErrorClassContextOverflow ErrorClass = "CONTEXT_OVERFLOW"

	// ErrorClassMalformed indicates output that failed schema validation.
	ErrorClassMalformed ErrorClass = "MALFORMED"

	// ErrorClassUnknown is the default.
	ErrorClassUnknown ErrorClass = "UNKNOWN"
)

// ClassifyError inspects an agent error for known provider patterns.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	var me *MalformedOutputError
	if errors.As(err, &me) {
		return ErrorClassMalformed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}
	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "401", "unauthorized", "invalid key", "invalid api key", "incorrect api key", "forbidden", "403"):
		return ErrorClassAuth
	case containsAny(msg, "429", "rate limit", "rate_limit", "quota", "too many requests"):
		return ErrorClassRateLimit
	case containsAny(msg, "deadline exceeded", "timeout", "timed out"):
		return ErrorClassTimeout
	case containsAny(msg, "billing", "payment", "insufficient funds"):
		return ErrorClassBilling
	case containsAny(msg, "context_length", "context length", "token limit", "max tokens", "maximum context", "context window"):
		return ErrorClassContextOverflow
	}
	return ErrorClassUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func classMessage(c ErrorClass) string {
	switch c {
	case ErrorClassAuth:
		return "The search agent rejected its credentials. Check the configured API keys."
	case ErrorClassRateLimit:
		return "The search agent is rate limited right now. Please try again in a minute."
	case ErrorClassTimeout:
		return "The search agent timed out before returning results."
	case ErrorClassBilling:
		return "The search agent account has a billing problem."
	case ErrorClassContextOverflow:
		return "The scraped pages were too large for the agent. Try fewer platforms."
	case ErrorClassMalformed:
		return "The search agent returned results in an unexpected format."
	}
	return ""
}
