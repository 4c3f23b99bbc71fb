package merge

import (
	"slices"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/ovleluv/AIContract-STT/internal/contract"
)

// Result is a merged contract together with placeholder accounting.
type Result struct {
	Text string

	// Substituted counts placeholders replaced by a field value.
	Substituted int

	// Preserved counts placeholders left verbatim.
	Preserved int
}

// Substitute replaces every placeholder of template whose label equals a
// field key under [Normalize]. Unmatched placeholders and all other text are
// kept byte for byte. Keys with no placeholder are ignored.
//
// When fuzzy is in (0, 1], a placeholder without an exact match takes the
// value of the key with the highest Jaro-Winkler similarity at or above
// fuzzy. Zero disables fuzzy matching.
//
// Substitute is idempotent. Empty values and values containing square
// brackets count as absent, and substitution is repeated until no
// placeholder resolves, which covers stray brackets in the template that
// pair up with text around a replaced placeholder.
func Substitute(template string, fields contract.Fields, fuzzy float64) Result {
	idx := newIndex(fields, fuzzy)
	res := Result{Text: template}
	for {
		next, n, kept := idx.pass(res.Text)
		res.Preserved = kept
		if n == 0 {
			return res
		}
		res.Text = next
		res.Substituted += n
	}
}

// pass performs one left-to-right substitution over text. Every replacement
// removes two brackets and inserts none, so repeated passes terminate.
func (x *index) pass(text string) (out string, substituted, preserved int) {
	phs := Placeholders(text)
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, ph := range phs {
		v, ok := x.lookup(ph.Label)
		if !ok {
			preserved++
			continue
		}
		b.WriteString(text[last:ph.Start])
		b.WriteString(v)
		last = ph.End
		substituted++
	}
	if substituted == 0 {
		return text, 0, preserved
	}
	b.WriteString(text[last:])
	return b.String(), substituted, preserved
}

type entry struct {
	norm  string
	value string
}

// index resolves placeholder labels to field values.
type index struct {
	exact   map[string]string
	entries []entry // sorted by norm, for deterministic fuzzy ties
	fuzzy   float64
}

func newIndex(fields contract.Fields, fuzzy float64) *index {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	// Sorting makes the winner among keys that normalise alike stable.
	slices.Sort(keys)

	idx := &index{exact: make(map[string]string, len(keys)), fuzzy: fuzzy}
	for _, k := range keys {
		v := fields[k]
		n := Normalize(k)
		if n == "" || strings.TrimSpace(v) == "" || strings.ContainsAny(v, "[]") {
			continue
		}
		if _, dup := idx.exact[n]; dup {
			continue
		}
		idx.exact[n] = v
		idx.entries = append(idx.entries, entry{norm: n, value: v})
	}
	return idx
}

func (x *index) lookup(label string) (string, bool) {
	n := Normalize(label)
	if v, ok := x.exact[n]; ok {
		return v, true
	}
	if x.fuzzy <= 0 || x.fuzzy > 1 {
		return "", false
	}
	best, bestScore := "", 0.0
	for _, e := range x.entries {
		if s := matchr.JaroWinkler(n, e.norm, false); s >= x.fuzzy && s > bestScore {
			best, bestScore = e.value, s
		}
	}
	return best, bestScore > 0
}
