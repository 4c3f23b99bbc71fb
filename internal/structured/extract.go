// Package structured pulls a single JSON object or array out of free-form
// model output and validates it against the shape each stage expects.
//
// Models wrap JSON in prose, markdown fences and trailing commentary. Extract
// locates the first balanced span of the requested delimiter with a
// depth-counting scanner that is aware of JSON string literals, so nested
// values and braces inside strings never truncate the payload.
package structured

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ovleluv/AIContract-STT/internal/contract"
)

// Shape selects the top-level JSON kind to extract.
type Shape int

const (
	// Object extracts a {...} span.
	Object Shape = iota
	// Array extracts a [...] span.
	Array
)

// String implements fmt.Stringer.
func (s Shape) String() string {
	if s == Array {
		return "array"
	}
	return "object"
}

func (s Shape) delimiters() (open, close byte) {
	if s == Array {
		return '[', ']'
	}
	return '{', '}'
}

// MalformedError is returned when text holds no parseable JSON value of the
// requested shape. Raw carries the full model output for diagnostics and must
// never be treated as a successful payload.
type MalformedError struct {
	Shape Shape
	Raw   string
	Err   error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: no valid JSON %s: %v", contract.ErrMalformedStructuredResponse, e.Shape, e.Err)
	}
	return fmt.Sprintf("%s: no JSON %s found", contract.ErrMalformedStructuredResponse, e.Shape)
}

// Unwrap lets errors.Is match contract.ErrMalformedStructuredResponse.
func (e *MalformedError) Unwrap() []error {
	if e.Err != nil {
		return []error{contract.ErrMalformedStructuredResponse, e.Err}
	}
	return []error{contract.ErrMalformedStructuredResponse}
}

// Extract returns the first balanced JSON span of the given shape in text, in
// compact form. Openers that never balance are skipped; the first span that
// balances is authoritative and must parse, otherwise a *MalformedError is
// returned.
func Extract(text string, shape Shape) (json.RawMessage, error) {
	open, _ := shape.delimiters()

	for start := 0; start < len(text); start++ {
		if text[start] != open {
			continue
		}
		end, ok := balancedEnd(text, start)
		if !ok {
			continue
		}
		span := text[start : end+1]
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(span)); err != nil {
			return nil, &MalformedError{Shape: shape, Raw: text, Err: err}
		}
		return json.RawMessage(buf.Bytes()), nil
	}
	return nil, &MalformedError{Shape: shape, Raw: text}
}

// Decode extracts the first JSON value of the given shape and unmarshals it
// into v.
func Decode(text string, shape Shape, v any) error {
	raw, err := Extract(text, shape)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &MalformedError{Shape: shape, Raw: text, Err: err}
	}
	return nil
}

// balancedEnd scans from the opener at start and returns the index of its
// matching closer. Brackets of both kinds are tracked on a stack so that a
// mismatched closer abandons the span. Characters inside JSON string literals
// are ignored.
func balancedEnd(text string, start int) (int, bool) {
	var stack []byte
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
