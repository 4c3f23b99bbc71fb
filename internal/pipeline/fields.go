package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/ovleluv/AIContract-STT/internal/contract"
	"github.com/ovleluv/AIContract-STT/internal/observe"
)

// ExtractFields extracts contract fields from input in the session
// language. Unlike the drafting flow, a malformed model reply is returned as
// an error; [draft.RawResponse] recovers the raw reply from it.
func (p *Pipeline) ExtractFields(ctx context.Context, sessionID, input string) (fields contract.Fields, err error) {
	ctx, span := p.op(ctx, "extract_fields", sessionID)
	defer func() { observe.EndSpan(span, err) }()

	if strings.TrimSpace(input) == "" {
		return nil, contract.InvalidInput("user input is empty")
	}
	lang := p.languageFor(ctx, sessionID, input, "")
	return stage(ctx, p.d.Metrics, "extract", func(ctx context.Context) (contract.Fields, error) {
		return p.d.Extractor.Extract(ctx, input, lang)
	})
}

// MergeFields merges fields into an existing contract text. When the
// session has an active contract type the result replaces its stored draft.
func (p *Pipeline) MergeFields(ctx context.Context, sessionID, current string, fields contract.Fields) (merged string, err error) {
	ctx, span := p.op(ctx, "merge_fields", sessionID)
	defer func() { observe.EndSpan(span, err) }()

	if strings.TrimSpace(current) == "" {
		return "", contract.InvalidInput("contract details are required")
	}
	if len(fields) == 0 {
		return "", contract.InvalidInput("extracted field data is required")
	}

	sess, err := p.d.Sessions.Load(ctx, sessionID)
	if err != nil {
		observe.Logger(ctx).Warn("loading session failed", "session", sessionID, "err", err)
	}
	lang := sess.Language
	if lang == "" {
		lang = p.languageFor(ctx, sessionID, current, "")
	}

	res, err := p.d.Merger.Merge(ctx, current, fields, lang)
	if err != nil {
		return "", err
	}
	if sess.ActiveType != "" {
		p.storeDraft(ctx, sessionID, sess.ActiveType, lang, res.Text)
	}
	return res.Text, nil
}

func isMalformed(err error) bool {
	return errors.Is(err, contract.ErrMalformedStructuredResponse)
}
