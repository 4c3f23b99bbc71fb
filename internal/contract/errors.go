package contract

import (
	"errors"
	"fmt"
)

// Error taxonomy. Stages wrap these with context; callers test with errors.Is.
var (
	// ErrBackendUnavailable reports a transport, auth or protocol failure of
	// the text generation service.
	ErrBackendUnavailable = errors.New("text generation backend unavailable")

	// ErrBackendTimeout reports that a generation call exceeded its deadline.
	ErrBackendTimeout = errors.New("text generation backend timed out")

	// ErrBackendRefusal reports that the backend explicitly declined a prompt.
	ErrBackendRefusal = errors.New("text generation backend refused the request")

	// ErrMalformedStructuredResponse reports that a model reply did not
	// contain a parseable JSON value of the requested shape.
	ErrMalformedStructuredResponse = errors.New("malformed structured response")

	// ErrContractTypeUndetermined reports that no contract type could be
	// resolved for the input. It is user-facing, not a server fault.
	ErrContractTypeUndetermined = errors.New("no relevant contract found")

	// ErrInvalidInput reports a request rejected before any backend call.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSessionLanguageMissing reports that a session has no pinned
	// language. It is resolved internally via the fallback language and
	// never surfaces to clients.
	ErrSessionLanguageMissing = errors.New("session language missing")

	// ErrDraftNotFound reports that no draft is stored for the session's
	// active contract type.
	ErrDraftNotFound = errors.New("no stored draft")
)

// InvalidInput returns an error wrapping ErrInvalidInput with a
// human-readable reason.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// IsBackendError reports whether err is one of the gateway-level failures.
func IsBackendError(err error) bool {
	return errors.Is(err, ErrBackendUnavailable) ||
		errors.Is(err, ErrBackendTimeout) ||
		errors.Is(err, ErrBackendRefusal)
}
