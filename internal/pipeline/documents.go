package pipeline

import (
	"context"
	"strings"

	"github.com/ovleluv/AIContract-STT/internal/contract"
	"github.com/ovleluv/AIContract-STT/internal/export"
	"github.com/ovleluv/AIContract-STT/internal/observe"
)

// FetchDraft exports the stored draft of the session's active contract
// type. Both a missing active type and a missing draft are reported as
// invalid input: the client asked for a download before drafting anything.
func (p *Pipeline) FetchDraft(ctx context.Context, sessionID string) (doc *export.Document, err error) {
	ctx, span := p.op(ctx, "fetch_draft", sessionID)
	defer func() { observe.EndSpan(span, err) }()

	sess, err := p.d.Sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.ActiveType == "" {
		return nil, contract.InvalidInput("no contract has been drafted in this session")
	}
	d, err := p.d.Drafts.Get(ctx, sessionID, sess.ActiveType)
	if err != nil {
		return nil, err
	}
	return p.d.Exporter.Export(string(d.Type), d.Text)
}

// ExportText exports client-supplied contract text. An empty title names
// the file "contract_contract.<ext>".
func (p *Pipeline) ExportText(ctx context.Context, title, text string) (*export.Document, error) {
	if strings.TrimSpace(text) == "" {
		return nil, contract.InvalidInput("no contract content provided for download")
	}
	_, span := p.op(ctx, "export_text", "")
	defer span.End()
	return p.d.Exporter.Export(title, text)
}
