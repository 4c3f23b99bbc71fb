// Package draft holds the generation stages that turn a resolved contract
// type and a user's free text into drafting material: the required-field
// list, the contract template, the extracted field map and the transcript
// analysis.
//
// Each stage returns an explicit (value, error) result. Only the required
// field list degrades silently; it reports the degradation through
// [contract.RequiredFieldSet.Degraded].
package draft

import "github.com/ovleluv/AIContract-STT/internal/gateway"

// Settings sizes the generation call a stage makes.
type Settings struct {
	MaxOutputTokens int `yaml:"max_output_tokens"`

	// Temperature is nil when unset; an explicit 0 is kept.
	Temperature *float64 `yaml:"temperature"`
}

// withDefault fills unset fields of s from def.
func (s Settings) withDefault(def Settings) Settings {
	if s.MaxOutputTokens <= 0 {
		s.MaxOutputTokens = def.MaxOutputTokens
	}
	if s.Temperature == nil {
		s.Temperature = def.Temperature
	}
	return s
}

func (s Settings) temperature() float64 {
	if s.Temperature == nil {
		return 0
	}
	return *s.Temperature
}

func (s Settings) request(stage, system, prompt string) gateway.Request {
	return gateway.Request{
		Stage:           stage,
		SystemRole:      system,
		Prompt:          prompt,
		MaxOutputTokens: s.MaxOutputTokens,
		Temperature:     s.temperature(),
	}
}

// Default generation settings per stage.
var (
	DefaultFieldSettings    = Settings{MaxOutputTokens: 1000, Temperature: new(0.7)}
	DefaultTemplateSettings = Settings{MaxOutputTokens: 1000, Temperature: new(0.7)}
	DefaultExtractSettings  = Settings{MaxOutputTokens: 500, Temperature: new(0.7)}
	DefaultAnalyzeSettings  = Settings{MaxOutputTokens: 500, Temperature: new(0.7)}
)
