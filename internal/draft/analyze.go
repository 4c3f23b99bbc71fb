package draft

import (
	"context"
	"fmt"
	"strings"

	"github.com/ovleluv/AIContract-STT/internal/contract"
	"github.com/ovleluv/AIContract-STT/internal/gateway"
	"github.com/ovleluv/AIContract-STT/internal/structured"
)

// Analyzer reads a conversation transcript and reports the contract type it
// implies, the fields that contract needs and the facts the speakers gave.
type Analyzer struct {
	gw       gateway.Invoker
	settings Settings
}

// NewAnalyzer creates an Analyzer. Zero settings fall back to
// [DefaultAnalyzeSettings].
func NewAnalyzer(gw gateway.Invoker, s Settings) *Analyzer {
	return &Analyzer{gw: gw, settings: s.withDefault(DefaultAnalyzeSettings)}
}

// Analyze runs the analysis on transcript.
func (a *Analyzer) Analyze(ctx context.Context, transcript string) (*structured.Analysis, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, contract.InvalidInput("transcript is empty")
	}
	reply, err := a.gw.Invoke(ctx, a.settings.request("analyze",
		analyzeSystemRole, analyzePrompt(transcript)))
	if err != nil {
		return nil, fmt.Errorf("draft: analyze: %w", err)
	}
	res, err := structured.ParseAnalysis(reply)
	if err != nil {
		return nil, fmt.Errorf("draft: analyze: %w", err)
	}
	return res, nil
}
