package draft

import (
	"context"
	"fmt"
	"strings"

	"github.com/ovleluv/AIContract-STT/internal/contract"
	"github.com/ovleluv/AIContract-STT/internal/gateway"
)

// Generator drafts contract templates with bracketed placeholders.
type Generator struct {
	gw       gateway.Invoker
	settings Settings
}

// NewGenerator creates a Generator. Zero settings fall back to
// [DefaultTemplateSettings].
func NewGenerator(gw gateway.Invoker, s Settings) *Generator {
	return &Generator{gw: gw, settings: s.withDefault(DefaultTemplateSettings)}
}

// Generate drafts a template for subject, which is a contract type name or a
// catalog description, written in language.
func (g *Generator) Generate(ctx context.Context, subject, language string) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", contract.InvalidInput("contract type is empty")
	}
	text, err := g.gw.Invoke(ctx, g.settings.request("template",
		templateSystemRole, templatePrompt(subject, language)))
	if err != nil {
		return "", fmt.Errorf("draft: generate template: %w", err)
	}
	if text == "" {
		return "", fmt.Errorf("draft: generate template: %w: empty draft", contract.ErrBackendUnavailable)
	}
	return text, nil
}
