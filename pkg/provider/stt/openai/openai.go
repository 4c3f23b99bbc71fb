// Package openai provides an STT provider backed by the OpenAI audio
// transcription endpoint (whisper-1 and successors).
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/ovleluv/AIContract-STT/pkg/provider/stt"
)

const defaultModel = oai.AudioModelWhisper1

// Provider implements stt.Provider using the OpenAI audio API.
type Provider struct {
	client oai.Client
	model  oai.AudioModel
}

type config struct {
	baseURL string
	model   string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel overrides the transcription model. Defaults to "whisper-1".
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a new OpenAI STT Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	model := defaultModel
	if cfg.model != "" {
		model = oai.AudioModel(cfg.model)
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio, language string) (*stt.Transcript, error) {
	if audio.Data == nil {
		return nil, fmt.Errorf("openai stt: audio data must not be nil")
	}

	filename := audio.Filename
	if filename == "" {
		filename = "audio.webm"
	}
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(audio.Data, filename, audio.ContentType),
		Model: p.model,
	}
	if language != "" {
		params.Language = param.NewOpt(language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai stt: transcription: %w", err)
	}
	return &stt.Transcript{Text: resp.Text, Language: language}, nil
}

var _ stt.Provider = (*Provider)(nil)
