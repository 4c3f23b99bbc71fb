package main

import (
	"errors"
	"testing"

	"github.com/ovleluv/AIContract-STT/internal/config"
)

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// Construction fails on the missing credentials, not on a missing factory.
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "openai"}); err == nil || errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("openai llm: err = %v", err)
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "openai"}); err == nil || errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("openai stt: err = %v", err)
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "whisper"}); err == nil || errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("whisper: err = %v", err)
	}

	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "whisper", BaseURL: "http://localhost:9000"}); err != nil {
		t.Errorf("whisper with base_url: %v", err)
	}
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "ollama", Model: "llama3"}); err != nil {
		t.Errorf("ollama: %v", err)
	}
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "deepseek-pro"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("unknown provider: err = %v", err)
	}
}

func TestOptString(t *testing.T) {
	t.Parallel()
	opts := map[string]any{"organization": "org-1", "retries": 3}
	if got := optString(opts, "organization"); got != "org-1" {
		t.Errorf("organization = %q", got)
	}
	if got := optString(opts, "retries"); got != "" {
		t.Errorf("non-string value = %q", got)
	}
	if got := optString(nil, "organization"); got != "" {
		t.Errorf("nil map = %q", got)
	}
}

func TestBackend(t *testing.T) {
	t.Parallel()
	if backend("", "redis") != "memory" || backend("redis://x", "redis") != "redis" {
		t.Error("backend labels wrong")
	}
}
