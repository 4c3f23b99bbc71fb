package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ovleluv/AIContract-STT/internal/contract"
	"github.com/ovleluv/AIContract-STT/internal/draft"
	"github.com/ovleluv/AIContract-STT/internal/export"
	"github.com/ovleluv/AIContract-STT/internal/language"
	"github.com/ovleluv/AIContract-STT/internal/merge"
)

// ValidProviderNames lists known provider names per provider kind. Unknown
// names only produce a warning since a third-party factory may be
// registered under them.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"openai", "whisper"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultSessionTTL      = 24 * time.Hour
	DefaultCookieName      = "contractd_session"
	DefaultPruneInterval   = time.Hour
	DefaultMaxUploadBytes  = 5 << 20
)

// Load reads the YAML file at path, applies CONTRACTD_* environment
// overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := parse(data, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes, defaults and validates a YAML config from r. It
// ignores the environment.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return parse(data, func(string) (string, bool) { return "", false })
}

func parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides secrets and addresses from the environment. lookup is
// usually [os.LookupEnv].
//
//	CONTRACTD_LISTEN_ADDR      server.listen_addr
//	CONTRACTD_LOG_LEVEL        server.log_level
//	CONTRACTD_LLM_API_KEY      providers.llm.api_key
//	CONTRACTD_LLM_BASE_URL     providers.llm.base_url
//	CONTRACTD_LLM_MODEL        providers.llm.model
//	CONTRACTD_STT_API_KEY      providers.stt.api_key
//	CONTRACTD_STT_BASE_URL     providers.stt.base_url
//	CONTRACTD_REDIS_URL        session.redis_url
//	CONTRACTD_POSTGRES_DSN     store.postgres_dsn
//	CONTRACTD_MAX_UPLOAD_BYTES stt.max_upload_bytes
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"CONTRACTD_LISTEN_ADDR":  &cfg.Server.ListenAddr,
		"CONTRACTD_LLM_API_KEY":  &cfg.Providers.LLM.APIKey,
		"CONTRACTD_LLM_BASE_URL": &cfg.Providers.LLM.BaseURL,
		"CONTRACTD_LLM_MODEL":    &cfg.Providers.LLM.Model,
		"CONTRACTD_STT_API_KEY":  &cfg.Providers.STT.APIKey,
		"CONTRACTD_STT_BASE_URL": &cfg.Providers.STT.BaseURL,
		"CONTRACTD_REDIS_URL":    &cfg.Session.RedisURL,
		"CONTRACTD_POSTGRES_DSN": &cfg.Store.PostgresDSN,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("CONTRACTD_LOG_LEVEL"); ok && v != "" {
		cfg.Server.LogLevel = LogLevel(v)
	}
	if v, ok := lookup("CONTRACTD_MAX_UPLOAD_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: CONTRACTD_MAX_UPLOAD_BYTES: %w", err)
		}
		cfg.STT.MaxUploadBytes = n
	}
	return nil
}

// ApplyDefaults fills unset values. Gateway and stage settings are left at
// zero; their packages apply their own defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Pipeline.FallbackLanguage == "" {
		cfg.Pipeline.FallbackLanguage = language.DefaultFallback
	}
	if len(cfg.Pipeline.Catalog) == 0 {
		cfg.Pipeline.Catalog = contract.DefaultCatalog()
	}
	if cfg.Merge.Strategy == "" {
		cfg.Merge.Strategy = string(merge.Deterministic)
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = DefaultSessionTTL
	}
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = DefaultCookieName
	}
	if cfg.Store.PruneInterval == 0 {
		cfg.Store.PruneInterval = DefaultPruneInterval
	}
	if cfg.Export.Format == "" {
		cfg.Export.Format = string(export.FormatDOCX)
	}
	if cfg.STT.MaxUploadBytes == 0 {
		cfg.STT.MaxUploadBytes = DefaultMaxUploadBytes
	}
}

// Validate checks cfg for coherence and returns every problem found, joined.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		add("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		add("server.tls requires both cert_file and key_file")
	}

	if cfg.Providers.LLM.Name == "" {
		add("providers.llm.name is required")
	}
	errs = append(errs, validateEntry("llm", "providers.llm", cfg.Providers.LLM)...)
	for i, e := range cfg.Providers.LLMFallbacks {
		prefix := fmt.Sprintf("providers.llm_fallbacks[%d]", i)
		if e.Name == "" {
			add("%s.name is required", prefix)
		}
		errs = append(errs, validateEntry("llm", prefix, e)...)
	}
	errs = append(errs, validateEntry("stt", "providers.stt", cfg.Providers.STT)...)
	if len(cfg.Providers.STTFallbacks) > 0 && cfg.Providers.STT.Name == "" {
		add("providers.stt_fallbacks requires providers.stt")
	}
	for i, e := range cfg.Providers.STTFallbacks {
		prefix := fmt.Sprintf("providers.stt_fallbacks[%d]", i)
		if e.Name == "" {
			add("%s.name is required", prefix)
		}
		errs = append(errs, validateEntry("stt", prefix, e)...)
	}

	g := cfg.Gateway
	if g.Timeout < 0 || g.InitialBackoff < 0 || g.MaxBackoff < 0 || g.CircuitBreaker.ResetTimeout < 0 {
		add("gateway durations must not be negative")
	}
	if g.MaxConcurrency < 0 || g.MaxAttempts < 0 || g.CircuitBreaker.MaxFailures < 0 || g.CircuitBreaker.HalfOpenMax < 0 {
		add("gateway counts must not be negative")
	}

	if fl := cfg.Pipeline.FallbackLanguage; fl != "" {
		if code, ok := language.ParseCode(fl); !ok || code != strings.ToLower(fl) {
			add("pipeline.fallback_language %q is not a primary language code such as \"en\"", fl)
		}
	}
	seen := make(map[contract.Type]int, len(cfg.Pipeline.Catalog))
	for i, e := range cfg.Pipeline.Catalog {
		if e.Name == "" {
			add("pipeline.catalog[%d].name is required", i)
			continue
		}
		if prev, ok := seen[e.Name]; ok {
			add("pipeline.catalog[%d].name %q is a duplicate of pipeline.catalog[%d]", i, e.Name, prev)
		}
		seen[e.Name] = i
	}
	for _, st := range []struct {
		name string
		s    draft.Settings
	}{
		{"required_fields", cfg.Pipeline.RequiredFields},
		{"template", cfg.Pipeline.Template},
		{"extract", cfg.Pipeline.Extract},
		{"analyze", cfg.Pipeline.Analyze},
	} {
		errs = append(errs, validateSizing("pipeline."+st.name, st.s.MaxOutputTokens, st.s.Temperature)...)
	}

	if _, err := merge.ParseStrategy(cfg.Merge.Strategy); err != nil {
		add("merge.strategy: %w", err)
	}
	if t := cfg.Merge.FuzzyThreshold; t < 0 || t > 1 {
		add("merge.fuzzy_threshold %.2f is out of range [0, 1]", t)
	}
	errs = append(errs, validateSizing("merge", cfg.Merge.MaxOutputTokens, cfg.Merge.Temperature)...)

	if cfg.Session.TTL < 0 {
		add("session.ttl must not be negative")
	}
	if cfg.Store.Retention < 0 || cfg.Store.PruneInterval < 0 {
		add("store durations must not be negative")
	}
	if cfg.Store.Retention > 0 && cfg.Store.PostgresDSN == "" {
		slog.Warn("store.retention only applies to the PostgreSQL draft store; ignoring")
	}
	if _, err := export.ParseFormat(cfg.Export.Format); err != nil {
		add("export.format: %w", err)
	}
	if cfg.STT.MaxUploadBytes < 0 {
		add("stt.max_upload_bytes must not be negative")
	}
	if t := cfg.STT.CorrectionThreshold; t < 0 || t > 1 {
		add("stt.correction_threshold must be in [0, 1], got %v", t)
	}

	return errors.Join(errs...)
}

func validateEntry(kind, prefix string, e ProviderEntry) []error {
	var errs []error
	if e.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%s.timeout must not be negative", prefix))
	}
	if kind == "stt" && e.Name == "whisper" && e.BaseURL == "" {
		errs = append(errs, fmt.Errorf("%s.base_url is required for whisper", prefix))
	}
	validateProviderName(kind, e.Name)
	return errs
}

func validateSizing(prefix string, tokens int, temp *float64) []error {
	var errs []error
	if tokens < 0 {
		errs = append(errs, fmt.Errorf("%s.max_output_tokens must not be negative", prefix))
	}
	if temp != nil && (*temp < 0 || *temp > 1) {
		errs = append(errs, fmt.Errorf("%s.temperature %.2f is out of range [0, 1]", prefix, *temp))
	}
	return errs
}

// validateProviderName warns when name is set but not a known provider.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
