package pipeline

import (
	"context"
	"strings"

	"github.com/ovleluv/AIContract-STT/internal/contract"
	"github.com/ovleluv/AIContract-STT/internal/observe"
)

// DetectLanguage resolves the session language from text. A pinned session
// keeps its language.
func (p *Pipeline) DetectLanguage(ctx context.Context, sessionID, text string) (lang string, err error) {
	ctx, span := p.op(ctx, "detect_language", sessionID)
	defer func() { observe.EndSpan(span, err) }()

	if strings.TrimSpace(text) == "" {
		return "", contract.InvalidInput("no text provided")
	}
	return p.languageFor(ctx, sessionID, text, ""), nil
}

// SuggestContracts lists contract types relevant to message, in the session
// language.
func (p *Pipeline) SuggestContracts(ctx context.Context, sessionID, message string) (types []contract.Type, lang string, err error) {
	ctx, span := p.op(ctx, "suggest_contracts", sessionID)
	defer func() { observe.EndSpan(span, err) }()

	if strings.TrimSpace(message) == "" {
		return nil, "", contract.InvalidInput("message is empty")
	}
	lang = p.languageFor(ctx, sessionID, message, "")
	types, err = stage(ctx, p.d.Metrics, "suggest", func(ctx context.Context) ([]contract.Type, error) {
		return p.d.Classifier.Suggest(ctx, message, lang)
	})
	if err != nil {
		return nil, lang, err
	}
	return types, lang, nil
}
