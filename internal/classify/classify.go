// Package classify maps free text to a contract type.
//
// Resolution is two-tier. A case-sensitive substring match against the known
// catalog wins first, with catalog order breaking ties. Only when no catalog
// name occurs in the input is the text generation backend asked to name a
// single type. When both tiers come up empty the result is
// [contract.ErrContractTypeUndetermined].
package classify

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/ovleluv/AIContract-STT/internal/contract"
	"github.com/ovleluv/AIContract-STT/internal/gateway"
	"github.com/ovleluv/AIContract-STT/internal/observe"
	"github.com/ovleluv/AIContract-STT/internal/structured"
)

// Source says which tier produced a [Resolution].
type Source string

const (
	SourceCatalog Source = "catalog"
	SourceModel   Source = "model"
)

// Resolution is a resolved contract type.
type Resolution struct {
	Type   contract.Type
	Source Source
}

// Resolver resolves contract types and suggests candidates. The catalog can
// be swapped at runtime with [Resolver.SetCatalog].
type Resolver struct {
	gw      gateway.Invoker
	catalog atomic.Pointer[contract.Catalog]
}

// New creates a Resolver over catalog.
func New(gw gateway.Invoker, catalog contract.Catalog) *Resolver {
	r := &Resolver{gw: gw}
	r.SetCatalog(catalog)
	return r
}

// SetCatalog replaces the catalog used by subsequent calls.
func (r *Resolver) SetCatalog(c contract.Catalog) {
	cp := make(contract.Catalog, len(c))
	copy(cp, c)
	r.catalog.Store(&cp)
}

// Catalog returns the current catalog.
func (r *Resolver) Catalog() contract.Catalog {
	return *r.catalog.Load()
}

// Resolve returns the contract type for input, asking the model in language
// when the catalog has no match.
func (r *Resolver) Resolve(ctx context.Context, input, language string) (Resolution, error) {
	if strings.TrimSpace(input) == "" {
		return Resolution{}, contract.InvalidInput("message is empty")
	}
	catalog := r.Catalog()
	if t, ok := catalog.Match(input); ok {
		return Resolution{Type: t, Source: SourceCatalog}, nil
	}

	reply, err := r.gw.Invoke(ctx, gateway.Request{
		Stage:           "classify",
		SystemRole:      classifySystemRole,
		Prompt:          classifyPrompt(input, language, catalog),
		MaxOutputTokens: 50,
		Temperature:     0.2,
	})
	if err != nil {
		return Resolution{}, fmt.Errorf("classify: %w: %w", contract.ErrContractTypeUndetermined, err)
	}

	name := ParseTypeName(reply)
	if name == "" {
		observe.Logger(ctx).Info("classification produced no contract type", "reply", reply)
		return Resolution{}, fmt.Errorf("classify: %w", contract.ErrContractTypeUndetermined)
	}
	// Prefer the catalog spelling when the model echoes a known name.
	for _, e := range catalog {
		if strings.EqualFold(string(e.Name), name) {
			return Resolution{Type: e.Name, Source: SourceModel}, nil
		}
	}
	return Resolution{Type: contract.Type(name), Source: SourceModel}, nil
}

// Suggest asks the model for a ranked list of contract types relevant to
// input. An empty list is reported as [contract.ErrContractTypeUndetermined].
func (r *Resolver) Suggest(ctx context.Context, input, language string) ([]contract.Type, error) {
	if strings.TrimSpace(input) == "" {
		return nil, contract.InvalidInput("message is empty")
	}
	reply, err := r.gw.Invoke(ctx, gateway.Request{
		Stage:           "suggest",
		SystemRole:      suggestSystemRole,
		Prompt:          suggestPrompt(input, language),
		MaxOutputTokens: 500,
		Temperature:     0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("classify: suggest: %w", err)
	}
	names, err := structured.StringList(reply)
	if err != nil {
		return nil, fmt.Errorf("classify: suggest: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("classify: suggest: %w", contract.ErrContractTypeUndetermined)
	}
	out := make([]contract.Type, len(names))
	for i, n := range names {
		out[i] = contract.Type(n)
	}
	return out, nil
}

var listMarker = regexp.MustCompile(`^(?:[-*•#]+|\d+[.)])\s*`)

// noneAnswers are replies meaning "no type applies".
var noneAnswers = map[string]bool{
	"none": true, "unknown": true, "n/a": true, "na": true, "null": true, "no match": true,
}

// ParseTypeName reduces a classification reply to a single type name: the
// first non-empty line without list markers, quotes, a "Contract type:"
// label, or trailing punctuation. It returns "" for explicit non-answers.
func ParseTypeName(reply string) string {
	var line string
	for l := range strings.Lines(reply) {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	line = listMarker.ReplaceAllString(line, "")
	if i := strings.Index(line, ":"); i >= 0 && strings.Contains(strings.ToLower(line[:i]), "type") {
		line = line[i+1:]
	}
	line = strings.Trim(strings.TrimSpace(line), "\"'`*“”‘’")
	line = strings.TrimRight(line, ".!")
	line = strings.TrimSpace(line)
	if noneAnswers[strings.ToLower(line)] {
		return ""
	}
	return line
}
