package service

import (
	"fmt"
	"strings"
)

// FieldError names one property and the constraints it violated.
type FieldError struct {
	Property    string            `json:"property"`
	Constraints map[string]string `json:"constraints"`
}

// ValidationError is returned before any external call when the input is
// malformed. It lists every failing field, not just the first.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Property)
	}
	return "validation failed: " + strings.Join(names, ", ")
}

// Has reports whether property is among the failing fields.
func (e *ValidationError) Has(property string) bool {
	for _, f := range e.Fields {
		if f.Property == property {
			return true
		}
	}
	return false
}

func newValidationError(property, constraint, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{
		Property:    property,
		Constraints: map[string]string{constraint: message},
	}}}
}

// UnsupportedMediaError rejects an upload whose media type is outside the
// allow-list. The format is never guessed from the content.
type UnsupportedMediaError struct {
	MediaType string
}

func (e *UnsupportedMediaError) Error() string {
	return fmt.Sprintf("unsupported file type: %q", e.MediaType)
}

// ExtractionError wraps a parser failure on an accepted file type. Only the
// generic message is meant for clients.
type ExtractionError struct {
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract text from %q: %v", e.Filename, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// UpstreamError is a failed LLM call. It is never retried.
type UpstreamError struct {
	Model string
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("LLM API error (model %s): %v", e.Model, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// EditError is any failure on the edit path. The relay turns it into an
// edit_error event instead of dropping the connection.
type EditError struct {
	RequestID string
	Err       error
}

func (e *EditError) Error() string {
	return fmt.Sprintf("edit %s failed: %v", e.RequestID, e.Err)
}

func (e *EditError) Unwrap() error { return e.Err }
