package draft

import (
	"context"
	"strings"

	"github.com/ovleluv/AIContract-STT/internal/contract"
	"github.com/ovleluv/AIContract-STT/internal/gateway"
	"github.com/ovleluv/AIContract-STT/internal/observe"
)

// FieldResolver lists the fields a contract type needs. The list is
// best-effort presentation metadata: the reply is split on line breaks and
// never parsed as structured data.
type FieldResolver struct {
	gw       gateway.Invoker
	settings Settings
	metrics  *observe.Metrics
}

// NewFieldResolver creates a FieldResolver. Zero settings fall back to
// [DefaultFieldSettings]; a nil m uses [observe.DefaultMetrics].
func NewFieldResolver(gw gateway.Invoker, s Settings, m *observe.Metrics) *FieldResolver {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &FieldResolver{gw: gw, settings: s.withDefault(DefaultFieldSettings), metrics: m}
}

// Resolve never fails. On backend failure it returns an empty, Degraded set.
func (r *FieldResolver) Resolve(ctx context.Context, t contract.Type, language string) contract.RequiredFieldSet {
	reply, err := r.gw.Invoke(ctx, r.settings.request("required_fields",
		fieldsSystemRole, fieldsPrompt(string(t), language)))
	if err != nil {
		observe.Logger(ctx).Warn("required fields unavailable, continuing without them",
			"contract_type", t,
			"err", err,
		)
		r.metrics.RecordDegradation(ctx, "required_fields", "backend")
		return contract.RequiredFieldSet{Fields: []string{}, Degraded: true}
	}
	return contract.RequiredFieldSet{Fields: SplitLines(reply)}
}

// SplitLines splits text on line boundaries and keeps the non-empty trimmed
// lines in order. Duplicates are kept.
func SplitLines(text string) []string {
	out := []string{}
	for line := range strings.Lines(text) {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
