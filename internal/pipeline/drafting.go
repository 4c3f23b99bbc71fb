package pipeline

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ovleluv/AIContract-STT/internal/classify"
	"github.com/ovleluv/AIContract-STT/internal/contract"
	"github.com/ovleluv/AIContract-STT/internal/merge"
	"github.com/ovleluv/AIContract-STT/internal/observe"
)

// DraftRequest is the input of [Pipeline.ClassifyAndDraft].
type DraftRequest struct {
	SessionID string
	Message   string

	// Source tags where the message came from ("text", "voice"). It is
	// logged only.
	Source string

	// LanguageHint replaces the fallback language when detection fails.
	LanguageHint string
}

// DraftResult is a drafted contract.
type DraftResult struct {
	ContractType   contract.Type
	TypeSource     classify.Source
	RequiredFields contract.RequiredFieldSet
	Contract       string
	Language       string

	// Extracted holds the fields merged into Contract. It is empty when
	// extraction found nothing or failed; ExtractionFailed tells the two
	// apart.
	Extracted        contract.Fields
	ExtractionFailed bool
}

// ClassifyAndDraft runs the primary path: resolve the language, resolve the
// contract type, then list required fields, generate the template and
// extract fields from the message concurrently, and merge the extracted
// fields into the template.
//
// Contract-type and template failures fail the call. Required fields and
// extraction degrade to empty results.
func (p *Pipeline) ClassifyAndDraft(ctx context.Context, req DraftRequest) (res *DraftResult, err error) {
	ctx, span := p.op(ctx, "classify_and_draft", req.SessionID)
	defer func() { observe.EndSpan(span, err) }()

	if strings.TrimSpace(req.Message) == "" {
		return nil, contract.InvalidInput("message is empty")
	}
	log := observe.Logger(ctx).With("session", req.SessionID, "source", req.Source)

	lang := p.languageFor(ctx, req.SessionID, req.Message, req.LanguageHint)
	res = &DraftResult{Language: lang}

	// Extraction needs only the message and the language, so it starts
	// before the contract type is known.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fields, err := stage(gctx, p.d.Metrics, "extract", func(ctx context.Context) (contract.Fields, error) {
			return p.d.Extractor.Extract(ctx, req.Message, lang)
		})
		if err != nil {
			if gctx.Err() == nil {
				log.Warn("field extraction failed, drafting without fields", "err", err)
				p.d.Metrics.RecordDegradation(gctx, "extract", degradeReason(err))
			}
			res.ExtractionFailed = true
			fields = contract.Fields{}
		}
		res.Extracted = fields
		return nil
	})

	resolution, err := stage(gctx, p.d.Metrics, "classify", func(ctx context.Context) (classify.Resolution, error) {
		return p.d.Classifier.Resolve(ctx, req.Message, lang)
	})
	if err != nil {
		// Returning an error from the group cancels the extraction.
		g.Go(func() error { return err })
		_ = g.Wait()
		return nil, err
	}
	res.ContractType, res.TypeSource = resolution.Type, resolution.Source

	var template string
	g.Go(func() error {
		res.RequiredFields, _ = stage(gctx, p.d.Metrics, "required_fields", func(ctx context.Context) (contract.RequiredFieldSet, error) {
			return p.d.Fields.Resolve(ctx, resolution.Type, lang), nil
		})
		return nil
	})
	g.Go(func() error {
		var err error
		template, err = stage(gctx, p.d.Metrics, "template", func(ctx context.Context) (string, error) {
			return p.d.Generator.Generate(ctx, string(resolution.Type), lang)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.Contract = p.mergeOrKeep(ctx, template, res.Extracted, lang)
	p.storeDraft(ctx, req.SessionID, res.ContractType, lang, res.Contract)
	return res, nil
}

// GenerateRequest is the input of [Pipeline.Generate].
type GenerateRequest struct {
	SessionID string

	// Selection must name a catalog entry.
	Selection string

	// Fields, when non-empty, are merged into the generated template.
	Fields contract.Fields
}

// GenerateResult is a contract generated from a catalog selection.
type GenerateResult struct {
	ContractType   contract.Type
	RequiredFields contract.RequiredFieldSet
	Contract       string
	Language       string
}

// Generate drafts the catalog entry named by req.Selection in the session
// language and merges any supplied fields. An unpinned session is drafted in
// the fallback language and stays unpinned.
func (p *Pipeline) Generate(ctx context.Context, req GenerateRequest) (res *GenerateResult, err error) {
	ctx, span := p.op(ctx, "generate", req.SessionID)
	defer func() { observe.EndSpan(span, err) }()

	entry, ok := p.Catalog().Lookup(req.Selection)
	if !ok {
		return nil, contract.InvalidInput("%q is not a known contract type", req.Selection)
	}
	// A catalog label says nothing about the user's language.
	lang := p.currentLanguage(ctx, req.SessionID)
	res = &GenerateResult{ContractType: entry.Name, Language: lang}

	subject := entry.Description
	if subject == "" {
		subject = string(entry.Name)
	}

	var template string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res.RequiredFields, _ = stage(gctx, p.d.Metrics, "required_fields", func(ctx context.Context) (contract.RequiredFieldSet, error) {
			return p.d.Fields.Resolve(ctx, entry.Name, lang), nil
		})
		return nil
	})
	g.Go(func() error {
		var err error
		template, err = stage(gctx, p.d.Metrics, "template", func(ctx context.Context) (string, error) {
			return p.d.Generator.Generate(ctx, subject, lang)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.Contract = template
	if len(req.Fields) > 0 {
		res.Contract = p.mergeOrKeep(ctx, template, req.Fields, lang)
	}
	p.storeDraft(ctx, req.SessionID, res.ContractType, lang, res.Contract)
	return res, nil
}

// mergeOrKeep merges fields into template inside a drafting flow. A failing
// merge falls back to deterministic substitution so the freshly generated
// draft is not lost.
func (p *Pipeline) mergeOrKeep(ctx context.Context, template string, fields contract.Fields, lang string) string {
	if len(fields) == 0 {
		return template
	}
	merged, err := p.d.Merger.Merge(ctx, template, fields, lang)
	if err != nil {
		observe.Logger(ctx).Warn("merge failed, substituting deterministically", "err", err)
		p.d.Metrics.RecordDegradation(ctx, "merge", degradeReason(err))
		return merge.Substitute(template, fields, 0).Text
	}
	return merged.Text
}

func degradeReason(err error) string {
	switch {
	case contract.IsBackendError(err):
		return "backend"
	case isMalformed(err):
		return "malformed"
	default:
		return "error"
	}
}
