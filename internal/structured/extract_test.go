package structured

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/ovleluv/AIContract-STT/internal/contract"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		shape Shape
		want  string
	}{
		{"object with prose", `Sure! {"a": 1, "b": [1,2]} thanks`, Object, `{"a":1,"b":[1,2]}`},
		{"array with prose", `Here you go: ["Lease", "Sale"] hope it helps`, Array, `["Lease","Sale"]`},
		{"markdown fence", "```json\n{\"x\": \"y\"}\n```", Object, `{"x":"y"}`},
		{"nested objects", `{"outer": {"inner": {"deep": true}}, "n": 2}`, Object, `{"outer":{"inner":{"deep":true}},"n":2}`},
		{"braces inside strings", `{"clause": "see {section} and ]"}`, Object, `{"clause":"see {section} and ]"}`},
		{"escaped quote in string", `{"q": "he said \"}\" loudly"}`, Object, `{"q":"he said \"}\" loudly"}`},
		{"first of two spans", `{"first": 1} and later {"second": 2}`, Object, `{"first":1}`},
		{"trailing braces in commentary", `{"a": "b"} (note: {x} is a placeholder})`, Object, `{"a":"b"}`},
		{"unbalanced opener skipped", `Use { to start. {"a": 1}`, Object, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Extract(tt.text, tt.shape)
			if err != nil {
				t.Fatalf("Extract(%q): %v", tt.text, err)
			}
			if string(got) != tt.want {
				t.Errorf("Extract(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestExtract_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		shape Shape
	}{
		{"no json", "no json here", Object},
		{"empty", "", Array},
		{"wrong shape only", `["a", "b"]`, Object},
		{"first balanced span invalid", `{not: json} {"a": 1}`, Object},
		{"never closes", `{"a": [1, 2}`, Object},
		{"prose brackets before payload", `[note] ["x"]`, Array},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Extract(tt.text, tt.shape)
			if !errors.Is(err, contract.ErrMalformedStructuredResponse) {
				t.Fatalf("err = %v, want ErrMalformedStructuredResponse", err)
			}
			var me *MalformedError
			if !errors.As(err, &me) {
				t.Fatal("expected *MalformedError")
			}
			if me.Raw != tt.text {
				t.Errorf("Raw = %q, want original text", me.Raw)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	var got map[string]any
	if err := Decode(`result: {"a": 1, "b": [1,2]}`, Object, &got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := map[string]any{"a": float64(1), "b": []any{float64(1), float64(2)}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Decode = %v, want %v", got, want)
	}

	var wrong []string
	err := Decode(`{"a": 1}`, Object, &wrong)
	if !errors.Is(err, contract.ErrMalformedStructuredResponse) {
		t.Errorf("type mismatch err = %v, want malformed", err)
	}
}

func TestExtract_ResultIsValidJSON(t *testing.T) {
	t.Parallel()

	got, err := Extract("x {\n  \"k\" : [ 1 , { \"z\" : null } ]\n} y", Object)
	if err != nil {
		t.Fatal(err)
	}
	if !json.Valid(got) {
		t.Errorf("result %s is not valid JSON", got)
	}
}
