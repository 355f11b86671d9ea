package search

import (
	"errors"
	"fmt"
	"strings"

	"github.com/basket/shopscout/internal/shared"
)

// Kind names one of the four failure categories a search can end in.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindConfiguration Kind = "configuration"
	KindConnection    Kind = "connection"
	KindUpstream      Kind = "upstream"
)

// ValidationError is bad or missing user input. It never reaches the agent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConfigurationError reports required credentials absent from the
// environment.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "missing required configuration: " + strings.Join(e.Missing, ", ")
}

// ConnectionError means the tool server could not be started, initialized
// or enumerated.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("tool server %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// UpstreamError means the agent call failed or its output did not validate.
type UpstreamError struct {
	Class ErrorClass
	Op    string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("agent %s (%s): %v", e.Op, e.Class, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NewUpstreamError classifies err and wraps it.
func NewUpstreamError(op string, err error) *UpstreamError {
	return &UpstreamError{Class: ClassifyError(err), Op: op, Err: err}
}

// KindOf returns the category of err. Errors outside the taxonomy are
// reported as upstream failures.
func KindOf(err error) Kind {
	var (
		ve *ValidationError
		ce *ConfigurationError
		ne *ConnectionError
	)
	switch {
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &ce):
		return KindConfiguration
	case errors.As(err, &ne):
		return KindConnection
	default:
		return KindUpstream
	}
}

const maxDetailLen = 200

// UserMessage maps any search error to a short, non-empty sentence that is
// safe to show in the page. Credentials are redacted from upstream detail.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		ve *ValidationError
		ce *ConfigurationError
		ne *ConnectionError
		ue *UpstreamError
	)
	switch {
	case errors.As(err, &ve):
		if ve.Reason != "" {
			return ve.Reason
		}
		return "Please check your input."
	case errors.As(err, &ce):
		if len(ce.Missing) == 0 {
			return "Search is not configured on this server."
		}
		return "Search is not configured: missing " + strings.Join(ce.Missing, ", ") + "."
	case errors.As(err, &ne):
		return "Could not reach the scraping tool server. Please try again later."
	case errors.As(err, &ue):
		if msg := classMessage(ue.Class); msg != "" {
			return msg
		}
		return "Agent error: " + detail(ue.Err)
	default:
		return "Agent error: " + detail(err)
	}
}

func detail(err error) string {
	if err == nil {
		return "unknown failure"
	}
	msg := strings.TrimSpace(shared.Redact(err.Error()))
	if msg == "" {
		return "unknown failure"
	}
	if r := []rune(msg); len(r) > maxDetailLen {
		msg = string(r[:maxDetailLen-3]) + "..."
	}
	return msg
}
