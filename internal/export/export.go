// Package export serialises a finished contract text into a downloadable
// document.
package export

import (
	"fmt"
	"strings"
	"unicode"
)

// Document is a rendered file ready to send as an attachment.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Format names a document format.
type Format string

const (
	FormatDOCX Format = "docx"
	FormatText Format = "txt"
)

// ParseFormat validates a configured format. Empty means [FormatDOCX].
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatDOCX:
		return FormatDOCX, nil
	case FormatText, "text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("export: unknown format %q", s)
	}
}

// Exporter renders contract text in one format.
type Exporter struct {
	format Format
}

// New returns an Exporter for f.
func New(f Format) *Exporter {
	return &Exporter{format: f}
}

// Export renders text. title names the file: "<title>_contract.<ext>".
func (e *Exporter) Export(title, text string) (*Document, error) {
	name := Filename(title, e.format)
	switch e.format {
	case FormatText:
		return &Document{
			Filename:    name,
			ContentType: "text/plain; charset=utf-8",
			Data:        []byte(text),
		}, nil
	default:
		data, err := DOCX(text)
		if err != nil {
			return nil, fmt.Errorf("export: docx: %w", err)
		}
		return &Document{
			Filename:    name,
			ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			Data:        data,
		}, nil
	}
}

// Filename builds "<title>_contract.<ext>". Characters that are unsafe in a
// Content-Disposition filename are replaced; an empty title becomes
// "contract".
func Filename(title string, f Format) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == '"' || r == ':' || r == '*' || r == '?' || r == '<' || r == '>' || r == '|':
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, strings.TrimSpace(title))
	if clean == "" {
		clean = "contract"
	}
	return clean + "_contract." + string(f)
}
