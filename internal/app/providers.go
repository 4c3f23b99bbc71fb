package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ovleluv/AIContract-STT/internal/config"
	"github.com/ovleluv/AIContract-STT/internal/observe"
	"github.com/ovleluv/AIContract-STT/internal/resilience"
)

// Providers holds the backends the pipeline talks to. Each is a fallback
// group wrapping the configured primary and its fallbacks. STT is nil when
// no speech-to-text provider is configured.
type Providers struct {
	LLM *resilience.LLMFallback
	STT *resilience.STTFallback
}

// BuildProviders instantiates the configured LLM and STT backends through reg
// and wraps them in circuit-broken fallback groups. Breaker transitions are
// logged and recorded on m.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, error) {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	fbCfg := func(kind string) resilience.FallbackConfig {
		cb := cfg.Gateway.CircuitBreaker
		return resilience.FallbackConfig{
			CircuitBreaker: resilience.CircuitBreakerConfig{
				MaxFailures:  cb.MaxFailures,
				ResetTimeout: cb.ResetTimeout,
				HalfOpenMax:  cb.HalfOpenMax,
				OnStateChange: func(name string, from, to resilience.State) {
					slog.Warn("circuit breaker transition",
						"provider", kind, "backend", name, "from", from.String(), "to", to.String())
					m.RecordBreakerTransition(context.Background(), kind+"/"+name, to.String())
				},
			},
		}
	}

	p := &Providers{}

	primary, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("app: llm provider: %w", err)
	}
	p.LLM = resilience.NewLLMFallback(primary, cfg.Providers.LLM.Name, fbCfg("llm"))
	for i, entry := range cfg.Providers.LLMFallbacks {
		fb, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("app: llm fallback %d: %w", i, err)
		}
		p.LLM.AddFallback(uniqueName(entry.Name, i), fb)
	}

	if cfg.Providers.STT.Name == "" {
		return p, nil
	}
	primarySTT, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("app: stt provider: %w", err)
	}
	p.STT = resilience.NewSTTFallback(primarySTT, cfg.Providers.STT.Name, fbCfg("stt"))
	for i, entry := range cfg.Providers.STTFallbacks {
		fb, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, fmt.Errorf("app: stt fallback %d: %w", i, err)
		}
		p.STT.AddFallback(uniqueName(entry.Name, i), fb)
	}
	return p, nil
}

// uniqueName keeps fallback breaker names distinct from the primary when the
// same provider kind is listed twice (e.g. two openai endpoints).
func uniqueName(name string, i int) string {
	return fmt.Sprintf("%s#%d", name, i+1)
}
