// Package api is the HTTP transport of contractd. Routes keep the paths of
// the browser client:
//
//	POST /detect-language     {text}                                 -> {language}
//	POST /chatbot-response    {message, source?, language?}          -> drafted contract
//	POST /extract-fields      {user_input}                           -> {extracted_fields}
//	POST /update-contract     {current_contract, extracted_fields}   -> {contract}
//	GET  /download-contract                                          -> stored draft as attachment
//	POST /download-contract   {contract_type?, contract_text}        -> posted text as attachment
//	POST /suggest-contracts   {message}                              -> {suggested_contracts, language}
//	POST /generate            {selection, extracted_fields?}         -> generated contract
//	POST /stt                 multipart "file"                       -> {text, analysis, language}
//
// Sessions are identified by a random cookie issued on first contact.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ovleluv/AIContract-STT/internal/contract"
	"github.com/ovleluv/AIContract-STT/internal/export"
	"github.com/ovleluv/AIContract-STT/internal/pipeline"
	"github.com/ovleluv/AIContract-STT/pkg/provider/stt"
)

// Pipeline is the set of drafting operations the transport exposes.
// [*pipeline.Pipeline] implements it.
type Pipeline interface {
	DetectLanguage(ctx context.Context, sessionID, text string) (string, error)
	ClassifyAndDraft(ctx context.Context, req pipeline.DraftRequest) (*pipeline.DraftResult, error)
	ExtractFields(ctx context.Context, sessionID, input string) (contract.Fields, error)
	MergeFields(ctx context.Context, sessionID, current string, fields contract.Fields) (string, error)
	FetchDraft(ctx context.Context, sessionID string) (*export.Document, error)
	ExportText(ctx context.Context, title, text string) (*export.Document, error)
	SuggestContracts(ctx context.Context, sessionID, message string) ([]contract.Type, string, error)
	Generate(ctx context.Context, req pipeline.GenerateRequest) (*pipeline.GenerateResult, error)
	Transcribe(ctx context.Context, sessionID string, audio stt.Audio) (*pipeline.TranscriptionResult, error)
}

var _ Pipeline = (*pipeline.Pipeline)(nil)

// Defaults applied by [New].
const (
	DefaultCookieName     = "contractd_session"
	DefaultMaxUploadBytes = 5 << 20
	maxJSONBytes          = 1 << 20
)

// Options configures a [Server].
type Options struct {
	// CookieName carries the session id.
	CookieName string

	// CookieTTL sets the cookie Max-Age. Zero issues a browser-session
	// cookie.
	CookieTTL time.Duration

	// SecureCookie marks the cookie Secure.
	SecureCookie bool

	// MaxUploadBytes caps /stt recordings.
	MaxUploadBytes int64
}

// Server routes HTTP requests to a [Pipeline].
type Server struct {
	p    Pipeline
	opts Options
}

// New creates a Server.
func New(p Pipeline, opts Options) *Server {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Server{p: p, opts: opts}
}

// Register adds the API routes to mux. Every route runs inside the session
// middleware.
func (s *Server) Register(mux *http.ServeMux) {
	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.withSession(h))
	}
	route("POST /detect-language", s.detectLanguage)
	route("POST /chatbot-response", s.classifyAndDraft)
	route("POST /extract-fields", s.extractFields)
	route("POST /update-contract", s.mergeFields)
	route("GET /download-contract", s.fetchDraft)
	route("POST /download-contract", s.exportText)
	route("POST /suggest-contracts", s.suggestContracts)
	route("POST /generate", s.generate)
	route("POST /stt", s.transcribe)
}
