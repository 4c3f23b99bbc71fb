package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"go.opentelemetry.io/otel/metric"

	"github.com/ovleluv/AIContract-STT/internal/contract"
	"github.com/ovleluv/AIContract-STT/internal/observe"
	"github.com/ovleluv/AIContract-STT/internal/structured"
	"github.com/ovleluv/AIContract-STT/internal/transcript"
	"github.com/ovleluv/AIContract-STT/pkg/provider/stt"
)

// TranscriptionResult is the outcome of [Pipeline.Transcribe].
type TranscriptionResult struct {
	Text     string
	Language string

	// Corrections lists catalog names rewritten in Text.
	Corrections []transcript.Correction

	// Analysis is nil when AnalysisErr is set.
	Analysis    *structured.Analysis
	AnalysisErr error
}

// Transcribe converts audio to text, resolves the session language from the
// transcript and analyses it. A failed analysis is reported in the result,
// not as an error.
func (p *Pipeline) Transcribe(ctx context.Context, sessionID string, audio stt.Audio) (res *TranscriptionResult, err error) {
	ctx, span := p.op(ctx, "transcribe", sessionID)
	defer func() { observe.EndSpan(span, err) }()

	if p.d.STT == nil {
		return nil, ErrSTTDisabled
	}

	hint, err := p.d.Sessions.Language(ctx, sessionID)
	if err != nil && !errors.Is(err, contract.ErrSessionLanguageMissing) {
		observe.Logger(ctx).Warn("reading session language failed", "session", sessionID, "err", err)
	}

	start := time.Now()
	tr, err := p.d.STT.Transcribe(ctx, audio, hint)
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.d.Metrics.STTDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("status", status)))
	if err != nil {
		return nil, fmt.Errorf("pipeline: transcribe: %w: %w", contract.ErrBackendUnavailable, err)
	}

	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return nil, contract.InvalidInput("no speech recognised in the recording")
	}
	res = &TranscriptionResult{Text: text}
	if p.d.Corrector != nil {
		res.Text, res.Corrections = p.d.Corrector.Correct(text, catalogNames(p.Catalog()))
		if len(res.Corrections) > 0 {
			observe.Logger(ctx).Debug("corrected transcript", "session", sessionID, "corrections", len(res.Corrections))
		}
		text = res.Text
	}

	var g errgroup.Group
	g.Go(func() error {
		res.Language = p.languageFor(ctx, sessionID, text, tr.Language)
		return nil
	})
	g.Go(func() error {
		res.Analysis, res.AnalysisErr = stage(ctx, p.d.Metrics, "analyze", func(ctx context.Context) (*structured.Analysis, error) {
			return p.d.Analyzer.Analyze(ctx, text)
		})
		if res.AnalysisErr != nil {
			observe.Logger(ctx).Warn("transcript analysis failed", "session", sessionID, "err", res.AnalysisErr)
			p.d.Metrics.RecordDegradation(ctx, "analyze", degradeReason(res.AnalysisErr))
		}
		return nil
	})
	_ = g.Wait()
	return res, nil
}

func catalogNames(c contract.Catalog) []string {
	names := make([]string, len(c))
	for i, e := range c {
		names[i] = string(e.Name)
	}
	return names
}
