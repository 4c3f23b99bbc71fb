package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ovleluv/AIContract-STT/internal/contract"
	"github.com/ovleluv/AIContract-STT/internal/draft"
	"github.com/ovleluv/AIContract-STT/internal/observe"
	"github.com/ovleluv/AIContract-STT/internal/pipeline"
)

type errorBody struct {
	Error       string `json:"error"`
	RawResponse string `json:"raw_response,omitempty"`
}

// statusFor maps an operation error to its HTTP status and client message.
func statusFor(err error) (int, string) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, "request body is too large"
	case errors.Is(err, contract.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, contract.ErrDraftNotFound):
		return http.StatusBadRequest, "no contract has been drafted in this session"
	case errors.Is(err, contract.ErrContractTypeUndetermined):
		return http.StatusUnprocessableEntity, "No relevant contracts found. Please try again."
	case errors.Is(err, contract.ErrBackendRefusal):
		return http.StatusUnprocessableEntity, "the request was declined by the text generation service"
	case errors.Is(err, contract.ErrMalformedStructuredResponse):
		return http.StatusBadGateway, "No valid JSON data found."
	case errors.Is(err, contract.ErrBackendTimeout):
		return http.StatusGatewayTimeout, "the text generation service timed out"
	case errors.Is(err, contract.ErrBackendUnavailable):
		return http.StatusBadGateway, "the text generation service is unavailable"
	case errors.Is(err, pipeline.ErrSTTDisabled):
		return http.StatusServiceUnavailable, "speech-to-text is not configured"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// writeError logs err and writes the mapped status. Malformed model replies
// carry the raw reply for the client to display.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	body := errorBody{Error: msg}
	if raw, ok := draft.RawResponse(err); ok {
		body.RawResponse = raw
	}

	log := observe.Logger(r.Context()).With("route", r.Pattern, "status", status, "err", err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Info("request rejected")
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
