// Package config provides the configuration schema, loader, provider
// registry and hot-reload watcher for contractd.
package config

import (
	"time"

	"github.com/ovleluv/AIContract-STT/internal/contract"
	"github.com/ovleluv/AIContract-STT/internal/draft"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure, loaded with [Load] or
// [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Merge     MergeConfig     `yaml:"merge"`
	Session   SessionConfig   `yaml:"session"`
	Store     StoreConfig     `yaml:"store"`
	Export    ExportConfig    `yaml:"export"`
	STT       STTConfig       `yaml:"stt"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the API server. Default ":8080".
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// TLS enables HTTPS when set.
	TLS *TLSConfig `yaml:"tls"`

	// ShutdownTimeout bounds graceful shutdown. Default 15s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TLSConfig holds PEM file paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig selects the text generation and speech-to-text backends.
// Fallback entries are tried in order when the primary fails or its circuit
// breaker is open.
type ProvidersConfig struct {
	LLM          ProviderEntry   `yaml:"llm"`
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	// STT is optional; without it the /stt route answers 503.
	STT          ProviderEntry   `yaml:"stt"`
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`
}

// ProviderEntry is the common configuration block of a backend. Name selects
// the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the implementation, e.g. "openai", "anthropic", "whisper".
	Name string `yaml:"name"`

	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider endpoint. For "whisper" it is the
	// whisper.cpp server address and is required.
	BaseURL string `yaml:"base_url"`

	Model string `yaml:"model"`

	// Timeout bounds the underlying HTTP client. Zero keeps the provider
	// default.
	Timeout time.Duration `yaml:"timeout"`

	// Options holds provider-specific values.
	Options map[string]any `yaml:"options"`
}

// GatewayConfig tunes the text generation gateway. Zero values take the
// gateway defaults.
type GatewayConfig struct {
	Timeout        time.Duration        `yaml:"timeout"`
	MaxConcurrency int                  `yaml:"max_concurrency"`
	MaxAttempts    int                  `yaml:"max_attempts"`
	InitialBackoff time.Duration        `yaml:"initial_backoff"`
	MaxBackoff     time.Duration        `yaml:"max_backoff"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig tunes the per-provider breakers of the fallback
// groups.
type CircuitBreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// PipelineConfig configures the drafting stages.
type PipelineConfig struct {
	// FallbackLanguage is used when detection fails and the client sent no
	// usable hint. Default "en".
	FallbackLanguage string `yaml:"fallback_language"`

	// Catalog lists the known contract types in match order. Empty means
	// the built-in catalog. Hot-reloadable.
	Catalog contract.Catalog `yaml:"catalog"`

	RequiredFields draft.Settings `yaml:"required_fields"`
	Template       draft.Settings `yaml:"template"`
	Extract        draft.Settings `yaml:"extract"`
	Analyze        draft.Settings `yaml:"analyze"`
}

// MergeConfig selects the merge strategy. Strategy and FuzzyThreshold are
// hot-reloadable.
type MergeConfig struct {
	// Strategy is "deterministic" (default) or "model".
	Strategy string `yaml:"strategy"`

	// FuzzyThreshold enables Jaro-Winkler label matching in (0, 1]. Zero
	// disables it.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`

	MaxOutputTokens int      `yaml:"max_output_tokens"`
	Temperature     *float64 `yaml:"temperature"`
}

// SessionConfig configures session state.
type SessionConfig struct {
	// RedisURL selects the Redis store. Empty keeps sessions in memory,
	// which only suits a single instance.
	RedisURL string `yaml:"redis_url"`

	// KeyPrefix namespaces Redis keys.
	KeyPrefix string `yaml:"key_prefix"`

	// TTL expires idle sessions. Default 24h.
	TTL time.Duration `yaml:"ttl"`

	// CookieName carries the session id. Default "contractd_session".
	CookieName string `yaml:"cookie_name"`

	// SecureCookie sets the Secure attribute on the session cookie.
	SecureCookie bool `yaml:"secure_cookie"`
}

// StoreConfig configures the draft store.
type StoreConfig struct {
	// PostgresDSN selects the PostgreSQL store. Empty keeps drafts in
	// memory.
	PostgresDSN string `yaml:"postgres_dsn"`

	// Retention removes drafts not updated for this long. Zero keeps them
	// forever. Only applies to PostgreSQL.
	Retention time.Duration `yaml:"retention"`

	// PruneInterval is how often expired drafts are removed. Default 1h.
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// ExportConfig configures downloads.
type ExportConfig struct {
	// Format is "docx" (default) or "txt".
	Format string `yaml:"format"`
}

// STTConfig configures the speech upload route.
type STTConfig struct {
	// MaxUploadBytes rejects larger recordings. Default 5 MiB.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// CorrectionThreshold enables rewriting of misheard contract names in
	// transcripts at this Jaro-Winkler similarity. Zero disables it.
	CorrectionThreshold float64 `yaml:"correction_threshold"`
}
