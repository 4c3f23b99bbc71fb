package resilience

import (
	"context"
	"errors"

	"github.com/ovleluv/AIContract-STT/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across multiple
// LLM backends. Each backend has its own circuit breaker.
//
// A refusal is final: it neither trips the refusing backend's breaker nor
// moves on to the next backend.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	if cfg.Permanent == nil {
		cfg.Permanent = isRefusal
	}
	if cfg.CircuitBreaker.IsFailure == nil {
		cfg.CircuitBreaker.IsFailure = func(err error) bool {
			return CountsAsFailure(err) && !isRefusal(err)
		}
	}
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

func isRefusal(err error) bool { return errors.Is(err, llm.ErrRefusal) }

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends the request to the first healthy provider and returns its
// response. If the primary fails, subsequent fallbacks are tried.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Capabilities returns the most restrictive limits across all backends so a
// request sized for one fits every failover target.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	var caps llm.ModelCapabilities
	for i, e := range f.group.entries {
		c := e.value.Capabilities()
		if i == 0 || (c.ContextWindow > 0 && c.ContextWindow < caps.ContextWindow) {
			caps.ContextWindow = c.ContextWindow
		}
		if i == 0 || (c.MaxOutputTokens > 0 && c.MaxOutputTokens < caps.MaxOutputTokens) {
			caps.MaxOutputTokens = c.MaxOutputTokens
		}
	}
	return caps
}

// States reports the breaker state per backend.
func (f *LLMFallback) States() map[string]State {
	return f.group.States()
}
