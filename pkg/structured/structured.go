// Package structured decodes and validates the final answer of a
// conversation against an expected JSON Schema.
package structured

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// ErrEmpty is wrapped by a ParseError when the final text is blank.
var ErrEmpty = errors.New("empty response")

// ParseError reports a final answer that is not valid JSON or does not match
// the expected schema. Raw holds the text as received.
type ParseError struct {
	Format string
	Raw    string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("structured: parse response: %v", e.Err)
	}
	return fmt.Sprintf("structured: parse %s response: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Format describes the expected shape of a final answer. The zero value
// means free text: any answer, including an empty one, is accepted as is.
type Format struct {
	Name   string
	Schema json.RawMessage
}

// Option adjusts a schema derived from a Go type.
type Option func(s *jsonschema.Schema)

// AllowExtraFields lets answers carry object properties the type does not
// declare.
func AllowExtraFields() Option {
	return func(s *jsonschema.Schema) {
		s.AdditionalProperties = nil
	}
}

// For builds a Format whose schema is derived from T.
func For[T any](name string, opts ...Option) (Format, error) {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		return Format{}, fmt.Errorf("structured: schema for %s: %w", name, err)
	}

	for _, opt := range opts {
		opt(s)
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return Format{}, fmt.Errorf("structured: schema for %s: %w", name, err)
	}

	return Format{Name: name, Schema: raw}, nil
}

// MustFor is like For but panics on error.
func MustFor[T any](name string, opts ...Option) Format {
	f, err := For[T](name, opts...)
	if err != nil {
		panic(err)
	}
	return f
}

// JSON is a Format that accepts any JSON value.
func JSON(name string) Format {
	return Format{Name: name, Schema: json.RawMessage(`{}`)}
}

// IsText reports whether f is the free-text format.
func (f Format) IsText() bool {
	return len(f.Schema) == 0
}

// Decode validates text against the format and returns the compacted JSON
// payload. Surrounding whitespace and a Markdown code fence are ignored.
// For the free-text format the payload is nil and no error is returned.
func (f Format) Decode(text string) (json.RawMessage, error) {
	if f.IsText() {
		return nil, nil
	}

	body := Unfence(text)
	if body == "" {
		return nil, &ParseError{Format: f.Name, Raw: text, Err: ErrEmpty}
	}

	var instance any
	if err := json.Unmarshal([]byte(body), &instance); err != nil {
		return nil, &ParseError{Format: f.Name, Raw: text, Err: err}
	}

	resolved, err := f.resolve()
	if err != nil {
		return nil, err
	}

	if err := resolved.Validate(instance); err != nil {
		return nil, &ParseError{Format: f.Name, Raw: text, Err: err}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(body)); err != nil {
		return nil, &ParseError{Format: f.Name, Raw: text, Err: err}
	}

	return buf.Bytes(), nil
}

func (f Format) resolve() (*jsonschema.Resolved, error) {
	var s jsonschema.Schema
	if err := json.Unmarshal(f.Schema, &s); err != nil {
		return nil, fmt.Errorf("structured: invalid schema for %s: %w", f.Name, err)
	}

	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("structured: invalid schema for %s: %w", f.Name, err)
	}

	return resolved, nil
}

// Unfence trims whitespace and strips a surrounding Markdown code fence
// (``` or ```json) that models like to wrap JSON in.
func Unfence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}

	s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "{[\"") {
		s = s[i+1:]
	}

	return strings.TrimSpace(s)
}

// Envelope is the structured final output of a routing agent: a human
// readable summary plus a machine-decodable decision.
type Envelope[D any] struct {
	HumanReadable string `json:"human_readable"`
	Decision      D      `json:"decision"`
}

// Unmarshal decodes a payload produced by Format.Decode into v.
func Unmarshal(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("structured: %w", ErrEmpty)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("structured: %w", err)
	}
	return nil
}
