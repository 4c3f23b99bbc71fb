package resilience

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ovleluv/AIContract-STT/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// STT backends. Each backend has its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe buffers the audio once and hands every attempt a fresh reader,
// since a failed backend may have consumed part of the stream.
func (f *STTFallback) Transcribe(ctx context.Context, audio stt.Audio, language string) (*stt.Transcript, error) {
	if audio.Data == nil {
		return nil, fmt.Errorf("stt fallback: audio data must not be nil")
	}
	data, err := io.ReadAll(audio.Data)
	if err != nil {
		return nil, fmt.Errorf("stt fallback: read audio: %w", err)
	}
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (*stt.Transcript, error) {
		attempt := audio
		attempt.Data = bytes.NewReader(data)
		return p.Transcribe(ctx, attempt, language)
	})
}

// States reports the breaker state per backend.
func (f *STTFallback) States() map[string]State {
	return f.group.States()
}
