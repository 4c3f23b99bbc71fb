// Package language resolves the language a conversation is conducted in.
//
// The first successful detection is pinned on the session and returned for
// every later message, whatever language that message is written in. When
// detection is impossible the resolver degrades to a fallback code instead
// of failing the request. A fallback is never pinned, so the next message
// gets another chance at detection.
package language

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	textlang "golang.org/x/text/language"

	"github.com/ovleluv/AIContract-STT/internal/contract"
	"github.com/ovleluv/AIContract-STT/internal/gateway"
	"github.com/ovleluv/AIContract-STT/internal/observe"
	"github.com/ovleluv/AIContract-STT/internal/session"
)

// DefaultFallback is used when no hint is supplied and detection fails.
const DefaultFallback = "en"

// Outcome says how a language was obtained.
type Outcome string

const (
	OutcomePinned   Outcome = "pinned"
	OutcomeDetected Outcome = "detected"
	OutcomeFallback Outcome = "fallback"
)

// Result is the outcome of [Resolver.Resolve].
type Result struct {
	Language string
	Outcome  Outcome
}

// Input is one resolution request.
type Input struct {
	// SessionID keys the pinned language.
	SessionID string

	// Text is the sample to detect from.
	Text string

	// Hint is a client-supplied language code used instead of the
	// configured fallback when detection fails. Ignored if malformed.
	Hint string
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithFallback sets the code returned when detection fails and no hint is
// given.
func WithFallback(code string) Option {
	return func(r *Resolver) {
		if c, ok := ParseCode(code); ok {
			r.fallback = c
		}
	}
}

// WithLocks shares a [session.KeyedMutex] with other components.
func WithLocks(l *session.KeyedMutex) Option {
	return func(r *Resolver) { r.locks = l }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// Resolver implements language resolution with per-session pinning.
type Resolver struct {
	gw       gateway.Invoker
	store    session.Store
	locks    *session.KeyedMutex
	fallback string
	metrics  *observe.Metrics
}

// New creates a Resolver.
func New(gw gateway.Invoker, store session.Store, opts ...Option) *Resolver {
	r := &Resolver{
		gw:       gw,
		store:    store,
		fallback: DefaultFallback,
	}
	for _, o := range opts {
		o(r)
	}
	if r.locks == nil {
		r.locks = session.NewKeyedMutex()
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Resolve returns the session's language, detecting and pinning it on first
// use. It never fails: every problem degrades to the fallback code and is
// logged.
func (r *Resolver) Resolve(ctx context.Context, in Input) Result {
	res := r.resolve(ctx, in)
	r.metrics.RecordLanguage(ctx, string(res.Outcome))
	return res
}

// Current returns the session's pinned language, or the hint or fallback
// when nothing is pinned yet. It never detects and never pins, so it suits
// operations that carry no user text to detect from. in.Text is ignored.
func (r *Resolver) Current(ctx context.Context, in Input) Result {
	res := r.fallbackFor(in)
	if lang, ok := r.pinned(ctx, in.SessionID); ok {
		res = Result{Language: lang, Outcome: OutcomePinned}
	}
	r.metrics.RecordLanguage(ctx, string(res.Outcome))
	return res
}

func (r *Resolver) resolve(ctx context.Context, in Input) Result {
	log := observe.Logger(ctx).With("session", in.SessionID)

	if lang, ok := r.pinned(ctx, in.SessionID); ok {
		return Result{Language: lang, Outcome: OutcomePinned}
	}

	unlock, err := r.locks.Lock(ctx, in.SessionID)
	if err != nil {
		log.Warn("language resolution aborted, using fallback", "err", err)
		return r.fallbackFor(in)
	}
	defer unlock()

	// Another request may have pinned while we waited.
	if lang, ok := r.pinned(ctx, in.SessionID); ok {
		return Result{Language: lang, Outcome: OutcomePinned}
	}

	lang, err := r.Detect(ctx, in.Text)
	if err != nil {
		res := r.fallbackFor(in)
		log.Warn("language detection failed, using fallback",
			"fallback", res.Language,
			"err", err,
		)
		return res
	}

	pinned, err := r.store.PinLanguage(ctx, in.SessionID, lang)
	if err != nil {
		log.Warn("pinning detected language failed", "language", lang, "err", err)
		return Result{Language: lang, Outcome: OutcomeDetected}
	}
	if pinned != lang {
		// Lost a race against another process.
		return Result{Language: pinned, Outcome: OutcomePinned}
	}
	log.Debug("language pinned", "language", lang)
	return Result{Language: lang, Outcome: OutcomeDetected}
}

func (r *Resolver) pinned(ctx context.Context, id string) (string, bool) {
	lang, err := r.store.Language(ctx, id)
	if err != nil {
		if !errors.Is(err, contract.ErrSessionLanguageMissing) {
			observe.Logger(ctx).Warn("reading session language failed", "session", id, "err", err)
		}
		return "", false
	}
	return lang, true
}

func (r *Resolver) fallbackFor(in Input) Result {
	if c, ok := ParseCode(in.Hint); ok {
		return Result{Language: c, Outcome: OutcomeFallback}
	}
	return Result{Language: r.fallback, Outcome: OutcomeFallback}
}

// Detect asks the backend for the language of text without touching any
// session.
func (r *Resolver) Detect(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", contract.InvalidInput("no text to detect language from")
	}
	reply, err := r.gw.Invoke(ctx, gateway.Request{
		Stage:           "detect_language",
		Prompt:          detectPrompt(text),
		MaxOutputTokens: 10,
		Temperature:     0.3,
	})
	if err != nil {
		return "", err
	}
	code, ok := ParseCode(reply)
	if !ok {
		return "", fmt.Errorf("language: unrecognised reply %q", reply)
	}
	return code, nil
}

func detectPrompt(text string) string {
	return "Detect the language of the following text and return only the language code " +
		"(e.g., 'en', 'ko', 'es', 'fr').\n\n" + text
}

// tagPattern is a primary subtag with optional region or script subtags.
const tagPattern = `[A-Za-z]{2,3}(?:[-_][A-Za-z0-9]{2,8})*`

var (
	bareRe    = regexp.MustCompile(`^` + tagPattern + `$`)
	labelRe   = regexp.MustCompile(`(?i)\b(?:code|language)\s*[:=]\s*['"` + "`" + `]?(` + tagPattern + `)\b`)
	glossedRe = regexp.MustCompile(`^(` + tagPattern + `)\s*\(`)
	quotedRe  = regexp.MustCompile(`['"` + "`" + `(](` + tagPattern + `)['"` + "`" + `)]`)
)

// ParseCode extracts an ISO 639-1 code such as "ko" from a short model
// reply. The code must be the whole reply ("ko", "'en'", "pt-BR"), follow a
// label ("Language code: ja"), lead a gloss ("en (English)") or be the only
// quoted or parenthesised code ("The language is 'es'."). Prose such as
// "The text is in Korean." yields false. The result is lower case.
func ParseCode(reply string) (string, bool) {
	s := strings.TrimSpace(reply)
	if t := strings.Trim(s, "'\"`.()"); bareRe.MatchString(t) {
		return isoCode(t)
	}
	if m := labelRe.FindStringSubmatch(s); m != nil {
		return isoCode(m[1])
	}
	if m := glossedRe.FindStringSubmatch(s); m != nil {
		return isoCode(m[1])
	}
	var found string
	for _, m := range quotedRe.FindAllStringSubmatch(s, -1) {
		code, ok := isoCode(m[1])
		if !ok {
			continue
		}
		if found != "" && found != code {
			return "", false
		}
		found = code
	}
	return found, found != ""
}

// isoCode validates tag against the language registry and returns its
// two-letter base. Unknown, undetermined and three-letter-only languages
// are rejected.
func isoCode(tag string) (string, bool) {
	t, err := textlang.Parse(strings.ReplaceAll(tag, "_", "-"))
	if err != nil {
		return "", false
	}
	base, conf := t.Base()
	code := base.String()
	if conf != textlang.Exact || len(code) != 2 {
		return "", false
	}
	return code, true
}
