// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider accepts a complete recorded audio blob (typically the webm
// or wav file uploaded by the browser) and returns its transcription. The
// transcript feeds the drafting pipeline exactly like typed input.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"io"
)

// Audio is a single uploaded recording.
type Audio struct {
	// Data is the encoded audio stream. Providers read it at most once.
	Data io.Reader

	// Filename is the client-supplied name (e.g. "recording.webm"). Backends
	// use the extension to infer the container format.
	Filename string

	// ContentType is the MIME type reported by the client, if any.
	ContentType string
}

// Transcript is the result of a transcription call.
type Transcript struct {
	// Text is the recognised speech.
	Text string

	// Language is the language reported by the backend, if it reports one.
	Language string
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe converts audio to text. language is an optional ISO-639-1
	// hint; an empty string lets the backend auto-detect.
	Transcribe(ctx context.Context, audio Audio, language string) (*Transcript, error)
}
