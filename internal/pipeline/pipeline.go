// Package pipeline orchestrates the drafting stages behind every external
// operation: language detection, classify-and-draft, field extraction,
// field merging, draft download, contract suggestions, generation from a
// catalog selection and speech transcription.
//
// The pipeline holds no per-request state of its own. Session state lives in
// a [session.Store] and drafts in a [draftstore.Store], so several
// instances can serve the same users.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ovleluv/AIContract-STT/internal/classify"
	"github.com/ovleluv/AIContract-STT/internal/contract"
	"github.com/ovleluv/AIContract-STT/internal/draft"
	"github.com/ovleluv/AIContract-STT/internal/draftstore"
	"github.com/ovleluv/AIContract-STT/internal/export"
	"github.com/ovleluv/AIContract-STT/internal/language"
	"github.com/ovleluv/AIContract-STT/internal/merge"
	"github.com/ovleluv/AIContract-STT/internal/observe"
	"github.com/ovleluv/AIContract-STT/internal/session"
	"github.com/ovleluv/AIContract-STT/internal/transcript"
	"github.com/ovleluv/AIContract-STT/pkg/provider/stt"
)

// Deps are the collaborators a [Pipeline] orchestrates. All fields except
// STT are required.
type Deps struct {
	Sessions   session.Store
	Language   *language.Resolver
	Classifier *classify.Resolver
	Fields     *draft.FieldResolver
	Generator  *draft.Generator
	Extractor  *draft.Extractor
	Analyzer   *draft.Analyzer
	Merger     *merge.Merger
	Drafts     draftstore.Store
	Exporter   *export.Exporter

	// STT is optional. Without it [Pipeline.Transcribe] fails with
	// [ErrSTTDisabled].
	STT stt.Provider

	// Corrector is optional. When set, transcripts have misheard catalog
	// names rewritten before analysis.
	Corrector *transcript.Corrector

	Metrics *observe.Metrics
}

// ErrSTTDisabled is returned by [Pipeline.Transcribe] when no speech-to-text
// provider is configured.
var ErrSTTDisabled = errors.New("pipeline: speech-to-text is not configured")

// Pipeline implements the drafting operations.
type Pipeline struct {
	d Deps
}

// New validates deps and returns a Pipeline.
func New(d Deps) (*Pipeline, error) {
	var errs []error
	require := func(ok bool, name string) {
		if !ok {
			errs = append(errs, errors.New("pipeline: missing "+name))
		}
	}
	require(d.Sessions != nil, "session store")
	require(d.Language != nil, "language resolver")
	require(d.Classifier != nil, "classifier")
	require(d.Fields != nil, "field resolver")
	require(d.Generator != nil, "generator")
	require(d.Extractor != nil, "extractor")
	require(d.Analyzer != nil, "analyzer")
	require(d.Merger != nil, "merger")
	require(d.Drafts != nil, "draft store")
	require(d.Exporter != nil, "exporter")
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if d.Metrics == nil {
		d.Metrics = observe.DefaultMetrics()
	}
	return &Pipeline{d: d}, nil
}

// SetCatalog swaps the known contract types at runtime.
func (p *Pipeline) SetCatalog(c contract.Catalog) { p.d.Classifier.SetCatalog(c) }

// Catalog returns the known contract types.
func (p *Pipeline) Catalog() contract.Catalog { return p.d.Classifier.Catalog() }

// ConfigureMerge swaps the merge strategy at runtime.
func (p *Pipeline) ConfigureMerge(s merge.Strategy, fuzzy float64) { p.d.Merger.Configure(s, fuzzy) }

// op opens the span for one external operation.
func (p *Pipeline) op(ctx context.Context, name, sessionID string) (context.Context, trace.Span) {
	return observe.StartSpan(ctx, "pipeline."+name,
		trace.WithAttributes(attribute.String("session", sessionID)))
}

// stage times fn as a pipeline stage.
func stage[T any](ctx context.Context, m *observe.Metrics, name string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	v, err := fn(ctx)
	m.RecordStage(ctx, name, time.Since(start).Seconds())
	return v, err
}

// languageFor resolves the session language, detecting from sample when the
// session is not yet pinned.
func (p *Pipeline) languageFor(ctx context.Context, sessionID, sample, hint string) string {
	res, _ := stage(ctx, p.d.Metrics, "language", func(ctx context.Context) (language.Result, error) {
		return p.d.Language.Resolve(ctx, language.Input{SessionID: sessionID, Text: sample, Hint: hint}), nil
	})
	return res.Language
}

// currentLanguage returns the pinned session language or the fallback,
// without detecting or pinning.
func (p *Pipeline) currentLanguage(ctx context.Context, sessionID string) string {
	res, _ := stage(ctx, p.d.Metrics, "language", func(ctx context.Context) (language.Result, error) {
		return p.d.Language.Current(ctx, language.Input{SessionID: sessionID}), nil
	})
	return res.Language
}

// storeDraft saves text as the session's active draft. Failures are logged
// and do not fail the operation that produced the draft.
func (p *Pipeline) storeDraft(ctx context.Context, sessionID string, t contract.Type, lang, text string) {
	log := observe.Logger(ctx).With("session", sessionID, "contract_type", t)
	if err := p.d.Drafts.Put(ctx, &draftstore.Draft{
		SessionID: sessionID,
		Type:      t,
		Language:  lang,
		Text:      text,
	}); err != nil {
		log.Warn("storing draft failed", "err", err)
		return
	}
	if err := p.d.Sessions.SetActiveType(ctx, sessionID, t); err != nil {
		log.Warn("recording active contract type failed", "err", err)
	}
}
