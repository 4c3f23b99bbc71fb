// Package gateway is the single path from the drafting stages to the text
// generation backend.
//
// A [Gateway] validates each request before it leaves the process, bounds the
// number of in-flight calls with a weighted semaphore, applies a per-attempt
// deadline, retries transient failures with capped exponential backoff and
// translates every backend failure into the error taxonomy of package
// contract (ErrBackendUnavailable, ErrBackendTimeout, ErrBackendRefusal).
//
// Refusals are never retried.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/ovleluv/AIContract-STT/internal/contract"
	"github.com/ovleluv/AIContract-STT/internal/observe"
	"github.com/ovleluv/AIContract-STT/internal/resilience"
	"github.com/ovleluv/AIContract-STT/pkg/provider/llm"
)

// Defaults applied by [New].
const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxConcurrency = 8
	DefaultMaxAttempts    = 2
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 4 * time.Second
)

// Request is one role-tagged generation call.
type Request struct {
	// Stage names the pipeline step issuing the call. Used for metrics,
	// spans and logs only.
	Stage string

	// SystemRole is the optional system instruction.
	SystemRole string

	// Prompt is the user prompt. Must not be blank.
	Prompt string

	// MaxOutputTokens must be positive. It is clamped to the backend's
	// advertised output limit.
	MaxOutputTokens int

	// Temperature must be within [0, 1].
	Temperature float64
}

// Invoker is the capability the drafting stages consume.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// Option configures a [Gateway].
type Option func(*Gateway)

// WithTimeout sets the deadline applied to each attempt.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithMaxConcurrency bounds the number of calls in flight at once.
func WithMaxConcurrency(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxConcurrency = n
		}
	}
}

// WithRetry replaces the retry policy. The Retryable field is ignored: the
// gateway decides retryability itself.
func WithRetry(p resilience.RetryPolicy) Option {
	return func(g *Gateway) { g.retry = p }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// Gateway implements [Invoker] on top of an [llm.Provider].
type Gateway struct {
	provider       llm.Provider
	sem            *semaphore.Weighted
	timeout        time.Duration
	maxConcurrency int
	retry          resilience.RetryPolicy
	metrics        *observe.Metrics
}

var _ Invoker = (*Gateway)(nil)

// New creates a Gateway that sends requests to p.
func New(p llm.Provider, opts ...Option) *Gateway {
	g := &Gateway{
		provider:       p,
		timeout:        DefaultTimeout,
		maxConcurrency: DefaultMaxConcurrency,
		retry: resilience.RetryPolicy{
			MaxAttempts:    DefaultMaxAttempts,
			InitialBackoff: DefaultInitialBackoff,
			MaxBackoff:     DefaultMaxBackoff,
		},
	}
	for _, o := range opts {
		o(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	g.sem = semaphore.NewWeighted(int64(g.maxConcurrency))
	return g
}

// Invoke sends req to the backend and returns the trimmed reply text.
//
// Validation failures wrap [contract.ErrInvalidInput] and are returned before
// any backend call. Backend failures wrap exactly one of
// [contract.ErrBackendUnavailable], [contract.ErrBackendTimeout] or
// [contract.ErrBackendRefusal]; the underlying cause stays reachable through
// errors.Is.
func (g *Gateway) Invoke(ctx context.Context, req Request) (text string, err error) {
	stage := req.Stage
	if stage == "" {
		stage = "unknown"
	}
	if err := validate(req); err != nil {
		g.metrics.RecordGatewayCall(ctx, stage, "invalid", 0)
		return "", fmt.Errorf("gateway: %s: %w", stage, err)
	}

	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "gateway.invoke",
		trace.WithAttributes(attribute.String("stage", stage)))
	defer func() {
		g.metrics.RecordGatewayCall(ctx, stage, Status(err), time.Since(start).Seconds())
		observe.EndSpan(span, err)
	}()

	creq := g.buildRequest(req)

	policy := g.retry
	policy.Retryable = func(err error) bool {
		return ctx.Err() == nil && !errors.Is(err, contract.ErrBackendRefusal)
	}

	attempts := 0
	err = resilience.Retry(ctx, policy, func(ctx context.Context, attempt int) error {
		attempts = attempt
		if attempt > 1 {
			g.metrics.GatewayRetries.Add(ctx, 1, metric.WithAttributes(observe.Attr("stage", stage)))
		}
		var callErr error
		text, callErr = g.attempt(ctx, creq)
		return callErr
	})
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		observe.Logger(ctx).Warn("text generation failed",
			"stage", stage,
			"attempts", attempts,
			"err", err,
		)
		return "", fmt.Errorf("gateway: %s: %w", stage, err)
	}
	return text, nil
}

// attempt makes one backend call. The concurrency slot is held only for the
// call itself, not across retry backoff.
func (g *Gateway) attempt(ctx context.Context, req llm.CompletionRequest) (string, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for slot: %w", classify(err))
	}
	g.metrics.GatewayInFlight.Add(ctx, 1)
	defer func() {
		g.metrics.GatewayInFlight.Add(ctx, -1)
		g.sem.Release(1)
	}()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.provider.Complete(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, llm.ErrRefusal) {
			// Some SDKs replace the context error with their own transport error.
			return "", fmt.Errorf("%w: %w", contract.ErrBackendTimeout, errors.Join(ctx.Err(), err))
		}
		return "", classify(err)
	}
	if resp == nil {
		return "", fmt.Errorf("%w: empty response", contract.ErrBackendUnavailable)
	}
	return strings.TrimSpace(resp.Content), nil
}

func (g *Gateway) buildRequest(req Request) llm.CompletionRequest {
	maxTokens := req.MaxOutputTokens
	if limit := g.provider.Capabilities().MaxOutputTokens; limit > 0 && maxTokens > limit {
		maxTokens = limit
	}
	return llm.CompletionRequest{
		SystemPrompt: req.SystemRole,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: req.Prompt}},
		Temperature:  req.Temperature,
		MaxTokens:    maxTokens,
	}
}

func validate(req Request) error {
	var errs []error
	if strings.TrimSpace(req.Prompt) == "" {
		errs = append(errs, contract.InvalidInput("prompt is empty"))
	}
	if req.MaxOutputTokens <= 0 {
		errs = append(errs, contract.InvalidInput("max output tokens must be positive, got %d", req.MaxOutputTokens))
	}
	if req.Temperature < 0 || req.Temperature > 1 {
		errs = append(errs, contract.InvalidInput("temperature must be within [0, 1], got %g", req.Temperature))
	}
	return errors.Join(errs...)
}

// classify maps a provider or context error onto the backend taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, llm.ErrRefusal):
		return fmt.Errorf("%w: %w", contract.ErrBackendRefusal, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", contract.ErrBackendTimeout, err)
	default:
		return fmt.Errorf("%w: %w", contract.ErrBackendUnavailable, err)
	}
}

// Status returns the metric status label for an Invoke result.
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, contract.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, contract.ErrBackendRefusal):
		return "refusal"
	case errors.Is(err, contract.ErrBackendTimeout):
		return "timeout"
	default:
		return "unavailable"
	}
}
