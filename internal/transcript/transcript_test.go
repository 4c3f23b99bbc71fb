package transcript

import (
	"testing"
)

var catalog = []string{"Real Estate Lease Agreement", "Power of attorney", "Complaint"}

func TestCorrect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		text      string
		want      string
		corrected []string
	}{
		{
			name:      "misheard multi-word name",
			text:      "I need a power of a turney for my mother",
			want:      "I need a Power of attorney for my mother",
			corrected: []string{"power of a turney"},
		},
		{
			name:      "case only",
			text:      "please draft a real estate lease agreement for my flat",
			want:      "please draft a Real Estate Lease Agreement for my flat",
			corrected: []string{"real estate lease agreement"},
		},
		{
			name:      "punctuation is kept",
			text:      "I want a Power of Attorney.",
			want:      "I want a Power of attorney.",
			corrected: []string{"Power of Attorney"},
		},
		{
			name:      "single word matches case-insensitively",
			text:      "file a complaint",
			want:      "file a Complaint",
			corrected: []string{"complaint"},
		},
		{
			name: "similar single word is left alone",
			text: "I want to complain about my landlord",
			want: "I want to complain about my landlord",
		},
		{
			name: "shared first word is left alone",
			text: "she has power over it, you know",
			want: "she has power over it, you know",
		},
		{
			name: "already spelled correctly",
			text: "Power of attorney\nfor my father",
			want: "Power of attorney\nfor my father",
		},
		{
			name: "unrelated text keeps its whitespace",
			text: "hello   there\nworld",
			want: "hello   there\nworld",
		},
		{
			name: "empty",
			text: "",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, corrections := New().Correct(tt.text, catalog)
			if got != tt.want {
				t.Errorf("Correct(%q) = %q, want %q", tt.text, got, tt.want)
			}
			if len(corrections) != len(tt.corrected) {
				t.Fatalf("corrections = %+v, want originals %q", corrections, tt.corrected)
			}
			for i, c := range corrections {
				if c.Original != tt.corrected[i] {
					t.Errorf("correction %d original = %q, want %q", i, c.Original, tt.corrected[i])
				}
				if c.Confidence < DefaultThreshold || c.Confidence > 1 {
					t.Errorf("correction %d confidence = %v", i, c.Confidence)
				}
			}
		})
	}
}

func TestCorrect_NoNames(t *testing.T) {
	t.Parallel()
	got, corrections := New().Correct("power of a turney", nil)
	if got != "power of a turney" || corrections != nil {
		t.Errorf("got %q, %v", got, corrections)
	}
}

func TestWithThreshold(t *testing.T) {
	t.Parallel()

	strict := New(WithThreshold(1))
	if got, _ := strict.Correct("power of a turney", catalog); got != "power of a turney" {
		t.Errorf("threshold 1 should only accept exact matches, got %q", got)
	}
	if got, _ := strict.Correct("power of attorney", catalog); got != "Power of attorney" {
		t.Errorf("threshold 1 should still fix case, got %q", got)
	}

	for _, bad := range []float64{0, -1, 1.5} {
		if c := New(WithThreshold(bad)); c.threshold != DefaultThreshold {
			t.Errorf("WithThreshold(%v) changed threshold to %v", bad, c.threshold)
		}
	}
}

func TestSplitPunct(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, lead, core, trail string }{
		{"word", "", "word", ""},
		{"\"quoted,\"", "\"", "quoted", ",\""},
		{"...", "...", "", ""},
		{"계약서.", "", "계약서", "."},
	}
	for _, tt := range tests {
		lead, core, trail := splitPunct(tt.in)
		if lead != tt.lead || core != tt.core || trail != tt.trail {
			t.Errorf("splitPunct(%q) = %q %q %q", tt.in, lead, core, trail)
		}
	}
}
