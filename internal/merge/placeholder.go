package merge

import "strings"

// Placeholder is one bracketed label found in a template.
type Placeholder struct {
	// Start and End delimit the placeholder including its brackets:
	// text[Start:End] == "[" + Label + "]".
	Start, End int

	// Label is the text between the brackets, verbatim.
	Label string
}

// Placeholders returns the placeholders in text from left to right. A
// placeholder is "[" label "]" where label is non-blank and contains no
// brackets or line breaks. Anything else is prose.
func Placeholders(text string) []Placeholder {
	var out []Placeholder
	for i := 0; i < len(text); {
		open := strings.IndexByte(text[i:], '[')
		if open < 0 {
			break
		}
		open += i
		end := strings.IndexAny(text[open+1:], "[]\n\r")
		if end < 0 {
			break
		}
		end += open + 1
		if text[end] != ']' {
			// Nested or unterminated on this line; restart at the break.
			i = end
			continue
		}
		label := text[open+1 : end]
		if strings.TrimSpace(label) != "" {
			out = append(out, Placeholder{Start: open, End: end + 1, Label: label})
		}
		i = end + 1
	}
	return out
}

// Normalize folds a label or key for comparison: lower case with runs of
// whitespace collapsed to one space and no leading or trailing space.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
