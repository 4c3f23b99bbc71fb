package draft

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ovleluv/AIContract-STT/internal/contract"
	"github.com/ovleluv/AIContract-STT/internal/gateway"
	"github.com/ovleluv/AIContract-STT/internal/structured"
)

// Extractor pulls contract field values out of free text.
type Extractor struct {
	gw       gateway.Invoker
	settings Settings
}

// NewExtractor creates an Extractor. Zero settings fall back to
// [DefaultExtractSettings].
func NewExtractor(gw gateway.Invoker, s Settings) *Extractor {
	return &Extractor{gw: gw, settings: s.withDefault(DefaultExtractSettings)}
}

// Extract returns the field map found in input, with values written in
// language.
//
// Blank input fails with [contract.ErrInvalidInput] before any backend call.
// When the reply holds no usable JSON object the result is an empty,
// non-nil map together with a *[structured.MalformedError] carrying the raw
// reply; callers choose whether to surface it or continue with no fields.
func (e *Extractor) Extract(ctx context.Context, input, language string) (contract.Fields, error) {
	if strings.TrimSpace(input) == "" {
		return contract.Fields{}, contract.InvalidInput("user input is empty")
	}
	reply, err := e.gw.Invoke(ctx, e.settings.request("extract",
		extractSystemRole, extractPrompt(input, language)))
	if err != nil {
		return contract.Fields{}, fmt.Errorf("draft: extract fields: %w", err)
	}
	fields, err := structured.FieldMap(reply)
	if err != nil {
		return contract.Fields{}, fmt.Errorf("draft: extract fields: %w", err)
	}
	return fields, nil
}

// RawResponse returns the model reply carried by a malformed-response error,
// if any.
func RawResponse(err error) (string, bool) {
	var me *structured.MalformedError
	if errors.As(err, &me) {
		return me.Raw, true
	}
	return "", false
}
