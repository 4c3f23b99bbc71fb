// Package transcript aligns speech transcripts with the contract catalog.
//
// Speech recognisers often mishear domain phrases ("power of a turney") or
// drop their capitalisation, which defeats the case-sensitive catalog match
// the classifier tries first. A [Corrector] rewrites word windows that sound
// like a catalog name into the catalog spelling.
//
// Matching proceeds in two stages:
//
//  1. Phonetic filtering: Double Metaphone codes are computed for the window
//     and the name. A window is a candidate only when the code sets overlap.
//     Scripts without metaphone codes (e.g. Hangul) skip this stage.
//
//  2. Jaro-Winkler ranking on the whole lower-cased phrase, with and without
//     spaces. The best candidate above the threshold wins.
//
// Only windows within one word of the name's length are considered, so a
// single word is never expanded into a multi-word contract name.
package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// DefaultThreshold is the minimum Jaro-Winkler score for a correction.
const DefaultThreshold = 0.9

// Correction records one rewritten span.
type Correction struct {
	Original   string  `json:"original"`
	Corrected  string  `json:"corrected"`
	Confidence float64 `json:"confidence"`
}

// Option configures a [Corrector].
type Option func(*Corrector)

// WithThreshold sets the minimum similarity for a correction. Values outside
// (0, 1] are ignored.
func WithThreshold(t float64) Option {
	return func(c *Corrector) {
		if t > 0 && t <= 1 {
			c.threshold = t
		}
	}
}

// Corrector rewrites misheard catalog names. It is read-only after
// construction and safe for concurrent use.
type Corrector struct {
	threshold float64
}

// New returns a Corrector.
func New(opts ...Option) *Corrector {
	c := &Corrector{threshold: DefaultThreshold}
	for _, o := range opts {
		o(c)
	}
	return c
}

type preparedName struct {
	name   string
	lower  string
	concat string
	words  int
	codes  map[string]struct{}
}

func prepare(names []string) []preparedName {
	out := make([]preparedName, 0, len(names))
	for _, n := range names {
		tokens := strings.Fields(strings.ToLower(n))
		if len(tokens) == 0 {
			continue
		}
		out = append(out, preparedName{
			name:   strings.Join(strings.Fields(n), " "),
			lower:  strings.Join(tokens, " "),
			concat: strings.Join(tokens, ""),
			words:  len(tokens),
			codes:  codesFor(tokens),
		})
	}
	return out
}

// Correct returns text with misheard catalog names replaced by their
// catalog spelling, and the list of replacements. Whitespace runs in the
// text are collapsed to single spaces when at least one correction is made;
// otherwise text is returned unchanged.
func (c *Corrector) Correct(text string, names []string) (string, []Correction) {
	prepared := prepare(names)
	tokens := strings.Fields(text)
	if len(prepared) == 0 || len(tokens) == 0 {
		return text, nil
	}
	maxWords := 0
	for _, p := range prepared {
		maxWords = max(maxWords, p.words+1)
	}

	var (
		out         []string
		corrections []Correction
	)
	for i := 0; i < len(tokens); {
		best, n, score := c.bestAt(tokens[i:min(i+maxWords, len(tokens))], prepared)
		if n == 0 {
			out = append(out, tokens[i])
			i++
			continue
		}

		window := strings.Join(tokens[i:i+n], " ")
		lead, core, trail := splitPunct(window)
		if core != best.name {
			corrections = append(corrections, Correction{Original: core, Corrected: best.name, Confidence: score})
		}
		out = append(out, lead+best.name+trail)
		i += n
	}

	if len(corrections) == 0 {
		return text, nil
	}
	return strings.Join(out, " "), corrections
}

// bestAt finds the best-scoring name for a window starting at tokens[0]. It
// returns n == 0 when nothing clears the threshold.
func (c *Corrector) bestAt(tokens []string, names []preparedName) (best preparedName, n int, score float64) {
	for _, p := range names {
		for size := max(1, p.words-1); size <= min(p.words+1, len(tokens)); size++ {
			_, core, _ := splitPunct(strings.Join(tokens[:size], " "))
			words := strings.Fields(strings.ToLower(core))
			if len(words) == 0 {
				continue
			}
			if codes := codesFor(words); len(codes) > 0 && len(p.codes) > 0 && !overlap(codes, p.codes) {
				continue
			}
			s := similarity(words, p)
			// Prefer the higher score; on a tie prefer the longer window so
			// trailing words of the name are consumed.
			if s >= c.threshold && (s > score || (s == score && size > n)) {
				best, n, score = p, size, s
			}
		}
	}
	return best, n, score
}

// similarity scores a window against a name. Single-word names only match
// case-insensitively, and windows whose letter count differs from the name
// by more than a quarter never match: Jaro-Winkler rewards shared prefixes
// enough to pair "power of a" with "power of attorney" otherwise.
func similarity(words []string, p preparedName) float64 {
	full := strings.Join(words, " ")
	if full == p.lower {
		return 1
	}
	concat := strings.Join(words, "")
	if p.words < 2 || abs(len(concat)-len(p.concat)) > len(p.concat)/4 {
		return 0
	}
	s := matchr.JaroWinkler(full, p.lower, false)
	if len(words) > 1 || p.words > 1 {
		s = max(s, matchr.JaroWinkler(concat, p.concat, false))
	}
	return s
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// splitPunct separates leading and trailing punctuation from s.
func splitPunct(s string) (lead, core, trail string) {
	start := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsPunct(r) })
	if start < 0 {
		return s, "", ""
	}
	end := strings.LastIndexFunc(s, func(r rune) bool { return !unicode.IsPunct(r) })
	_, size := utf8.DecodeRuneInString(s[end:])
	return s[:start], s[start : end+size], s[end+size:]
}

func codesFor(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
