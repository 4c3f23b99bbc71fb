// Package mock provides a test double for the stt.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Result: &stt.Transcript{Text: "I want to rent my apartment"}}
//	tr, _ := p.Transcribe(ctx, audio, "")
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/ovleluv/AIContract-STT/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Data is the full audio payload read from Audio.Data.
	Data []byte
	// Filename is Audio.Filename.
	Filename string
	// Language is the language hint passed to Transcribe.
	Language string
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe. May be nil.
	Result *stt.Transcript

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Calls records every invocation of Transcribe in order.
	Calls []TranscribeCall
}

// Transcribe drains audio.Data, records the call and returns Result, Err.
func (p *Provider) Transcribe(_ context.Context, audio stt.Audio, language string) (*stt.Transcript, error) {
	var data []byte
	if audio.Data != nil {
		data, _ = io.ReadAll(audio.Data)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, TranscribeCall{Data: data, Filename: audio.Filename, Language: language})
	return p.Result, p.Err
}

// CallCount returns the number of Transcribe invocations. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

var _ stt.Provider = (*Provider)(nil)
