// Package merge substitutes extracted field values into contract templates.
//
// Placeholders are bracketed labels such as "[Lessor name]". Two strategies
// exist. [Deterministic] substitutes by normalised label, repeating until no
// placeholder resolves, and never touches text outside the placeholders it
// fills. [ModelAssisted] asks the text generation backend to place the
// values, which copes with labels that differ from the extracted keys. Its
// reply is accepted only if the prose around the placeholders survives
// unchanged; an empty or rewording reply falls back to deterministic
// substitution.
//
// Under both strategies placeholders without a value stay intact and fields
// without a placeholder are ignored.
package merge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ovleluv/AIContract-STT/internal/contract"
	"github.com/ovleluv/AIContract-STT/internal/gateway"
	"github.com/ovleluv/AIContract-STT/internal/observe"
)

// Strategy names a merge strategy.
type Strategy string

const (
	Deterministic Strategy = "deterministic"
	ModelAssisted Strategy = "model"
)

// ParseStrategy validates a configured strategy name. Empty means
// [Deterministic].
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", Deterministic:
		return Deterministic, nil
	case ModelAssisted:
		return ModelAssisted, nil
	default:
		return "", fmt.Errorf("merge: unknown strategy %q (want %q or %q)", s, Deterministic, ModelAssisted)
	}
}

// Options configures a [Merger].
type Options struct {
	Strategy Strategy

	// FuzzyThreshold enables Jaro-Winkler label matching for the
	// deterministic strategy. Zero disables it.
	FuzzyThreshold float64

	// MaxOutputTokens and Temperature size the model-assisted call.
	// Defaults: 1500 and 0.7. A nil Temperature is unset; 0 is kept.
	MaxOutputTokens int
	Temperature     *float64

	Metrics *observe.Metrics
}

type settings struct {
	strategy Strategy
	fuzzy    float64
}

// Merger applies the configured strategy. The strategy and fuzzy threshold
// can be changed at runtime with [Merger.Configure].
type Merger struct {
	gw        gateway.Invoker
	cur       atomic.Pointer[settings]
	maxTokens int
	temp      float64
	metrics   *observe.Metrics
}

// New creates a Merger. gw may be nil when only the deterministic strategy
// is used.
func New(gw gateway.Invoker, opts Options) *Merger {
	m := &Merger{
		gw:        gw,
		maxTokens: opts.MaxOutputTokens,
		temp:      0.7,
		metrics:   opts.Metrics,
	}
	if m.maxTokens <= 0 {
		m.maxTokens = 1500
	}
	if opts.Temperature != nil {
		m.temp = *opts.Temperature
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	m.Configure(opts.Strategy, opts.FuzzyThreshold)
	return m
}

// Configure swaps the strategy and fuzzy threshold for subsequent merges.
func (m *Merger) Configure(s Strategy, fuzzy float64) {
	if s == "" {
		s = Deterministic
	}
	m.cur.Store(&settings{strategy: s, fuzzy: fuzzy})
}

// Strategy returns the active strategy.
func (m *Merger) Strategy() Strategy {
	return m.cur.Load().strategy
}

// Merge fills template with fields in language. Input validation belongs to
// the caller; an empty template yields an empty result.
func (m *Merger) Merge(ctx context.Context, template string, fields contract.Fields, language string) (Result, error) {
	start := time.Now()
	s := m.cur.Load()

	var (
		res Result
		err error
	)
	switch {
	case s.strategy == ModelAssisted && m.gw != nil:
		res, err = m.modelMerge(ctx, template, fields, language, s.fuzzy)
	default:
		res = Substitute(template, fields, s.fuzzy)
	}
	if err != nil {
		return Result{}, err
	}

	m.metrics.RecordStage(ctx, "merge", time.Since(start).Seconds())
	m.metrics.RecordMerge(ctx, string(s.strategy), res.Substituted, res.Preserved)
	return res, nil
}

func (m *Merger) modelMerge(ctx context.Context, template string, fields contract.Fields, language string, fuzzy float64) (Result, error) {
	before := len(Placeholders(template))
	// Nothing to place: return the input untouched so the model cannot
	// reformat text that has no open placeholders.
	if before == 0 || len(nonEmpty(fields)) == 0 {
		return Result{Text: template, Preserved: before}, nil
	}

	payload, err := json.Marshal(nonEmpty(fields))
	if err != nil {
		return Result{}, fmt.Errorf("merge: encode fields: %w", err)
	}
	text, err := m.gw.Invoke(ctx, gateway.Request{
		Stage:           "merge",
		SystemRole:      mergeSystemRole,
		Prompt:          mergePrompt(template, string(payload), language),
		MaxOutputTokens: m.maxTokens,
		Temperature:     m.temp,
	})
	if err != nil {
		return Result{}, fmt.Errorf("merge: %w", err)
	}
	if text == "" {
		observe.Logger(ctx).Warn("model merge returned nothing, substituting deterministically")
		m.metrics.RecordDegradation(ctx, "merge", "empty")
		return Substitute(template, fields, fuzzy), nil
	}
	if !keepsProse(template, text) {
		observe.Logger(ctx).Warn("model merge changed text outside placeholders, substituting deterministically",
			"template_len", len(template),
			"reply_len", len(text),
		)
		m.metrics.RecordDegradation(ctx, "merge", "rewrote")
		return Substitute(template, fields, fuzzy), nil
	}

	after := len(Placeholders(text))
	return Result{Text: text, Substituted: max(before-after, 0), Preserved: after}, nil
}

// keepsProse reports whether reply contains the text of template around its
// placeholders, in order and unchanged up to whitespace. Each placeholder
// may become any text.
func keepsProse(template, reply string) bool {
	got := collapse(reply)
	phs := Placeholders(template)
	pos, prev := 0, 0
	for i := 0; i <= len(phs); i++ {
		end := len(template)
		if i < len(phs) {
			end = phs[i].Start
		}
		seg := collapse(template[prev:end])
		if i < len(phs) {
			prev = phs[i].End
		}

		switch {
		case i == 0 && len(phs) == 0:
			return got == seg
		case i == 0:
			if !strings.HasPrefix(got, seg) {
				return false
			}
			pos = len(seg)
		case i == len(phs):
			return strings.HasSuffix(got[pos:], seg)
		default:
			j := strings.Index(got[pos:], seg)
			if j < 0 {
				return false
			}
			pos += j + len(seg)
		}
	}
	return true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func nonEmpty(f contract.Fields) contract.Fields {
	out := make(contract.Fields, len(f))
	for k, v := range f {
		if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}

const mergeSystemRole = "You are a contract update system."

func mergePrompt(template, fieldsJSON, language string) string {
	return fmt.Sprintf(`Please update the following contract by inserting the provided JSON data in the appropriate locations.
Please respond in %s.

Contract draft:
%s

JSON data:
%s

Requirements:
- Replace placeholders (e.g., [Seller name], [Buyer name]) with corresponding JSON values.
- If some fields are missing, keep placeholders exactly as they are.
- Do not change any text outside the placeholders you replace.
- Do not include extra explanatory text such as introductions or conclusions.
- Only return the updated contract text.`, language, template, fieldsJSON)
}
