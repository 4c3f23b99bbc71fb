package structured

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ovleluv/AIContract-STT/internal/contract"
)

const fieldMapSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "propertyNames": {"minLength": 1}
}`

const stringListSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {"type": "string"}
}`

const analysisSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["contract_type"],
  "properties": {
    "contract_type": {"type": "string"},
    "required_fields": {"type": "array", "items": {"type": "string"}},
    "user_information": {"type": ["array", "object"]}
  }
}`

var (
	fieldMap   = jsonschema.MustCompileString("field_map.json", fieldMapSchema)
	stringList = jsonschema.MustCompileString("string_list.json", stringListSchema)
	analysis   = jsonschema.MustCompileString("analysis.json", analysisSchema)
)

// validate runs schema against raw, reporting violations as a MalformedError.
func validate(schema *jsonschema.Schema, raw json.RawMessage, text string, shape Shape) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &MalformedError{Shape: shape, Raw: text, Err: err}
	}
	if err := schema.Validate(v); err != nil {
		return nil, &MalformedError{Shape: shape, Raw: text, Err: err}
	}
	return v, nil
}

// FieldMap extracts a field-label → value object from text.
//
// Scalar values are rendered as strings, nulls are dropped, arrays are joined
// with ", " and nested objects are flattened by joining the parent and child
// labels with a space (e.g. {"lessor": {"name": "Kim"}} → "lessor name").
func FieldMap(text string) (contract.Fields, error) {
	raw, err := Extract(text, Object)
	if err != nil {
		return nil, err
	}
	v, err := validate(fieldMap, raw, text, Object)
	if err != nil {
		return nil, err
	}
	out := contract.Fields{}
	flatten(out, "", v)
	return out, nil
}

// StringList extracts a JSON array of strings from text. Entries are
// trimmed and empty entries dropped.
func StringList(text string) ([]string, error) {
	raw, err := Extract(text, Array)
	if err != nil {
		return nil, err
	}
	v, err := validate(stringList, raw, text, Array)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, item := range v.([]any) {
		if s := strings.TrimSpace(item.(string)); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// Analysis is the result of analysing a conversation transcript.
type Analysis struct {
	ContractType    string          `json:"contract_type"`
	RequiredFields  []string        `json:"required_fields"`
	UserInformation json.RawMessage `json:"user_information,omitempty"`
}

// ParseAnalysis extracts and validates an Analysis object from text.
func ParseAnalysis(text string) (*Analysis, error) {
	raw, err := Extract(text, Object)
	if err != nil {
		return nil, err
	}
	if _, err := validate(analysis, raw, text, Object); err != nil {
		return nil, err
	}
	var a Analysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, &MalformedError{Shape: Object, Raw: text, Err: err}
	}
	a.ContractType = strings.TrimSpace(a.ContractType)
	return &a, nil
}

func flatten(out contract.Fields, prefix string, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			label := strings.TrimSpace(k)
			if prefix != "" {
				label = prefix + " " + label
			}
			flatten(out, label, val[k])
		}
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := scalar(item); ok && s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 && prefix != "" {
			out[prefix] = strings.Join(parts, ", ")
		}
	default:
		if s, ok := scalar(val); ok && prefix != "" {
			out[prefix] = s
		}
	}
}

func scalar(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), true
	case json.Number:
		return val.String(), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}
