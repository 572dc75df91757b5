package models

import "fmt"

// ErrorKind classifies every failure mode a dispatch can produce. Callers
// branch on the kind; no layer panics or throws past its boundary.
type ErrorKind string

const (
	// Detected before any network call.
	KindBadRequest          ErrorKind = "bad_request"
	KindUnsupportedProvider ErrorKind = "unsupported_provider"
	KindAdapterInputInvalid ErrorKind = "adapter_input_invalid"
	KindServerMisconfigured ErrorKind = "server_misconfigured"

	// Detected after the single network call.
	KindUpstreamNonJSON       ErrorKind = "upstream_non_json"
	KindUpstreamMalformedJSON ErrorKind = "upstream_malformed_json"
	KindProviderHTTPError     ErrorKind = "provider_http_error"
	KindTransportFailure      ErrorKind = "transport_failure"

	// Detected while normalizing a fetched response.
	KindProviderError     ErrorKind = "provider_error"
	KindContentBlocked    ErrorKind = "content_blocked"
	KindEmptyCompletion   ErrorKind = "empty_completion"
	KindMalformedResponse ErrorKind = "malformed_response"
)

// Error is the structured failure every layer returns. HTTPStatus mirrors
// the upstream status when one exists and is numerically valid, otherwise
// a gateway-appropriate local status.
type Error struct {
	Kind       ErrorKind
	Message    string
	HTTPStatus int
	Detail     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError constructs a structured error.
func NewError(kind ErrorKind, status int, message string) *Error {
	return &Error{Kind: kind, Message: message, HTTPStatus: status}
}

// WithDetail attaches diagnostic detail and returns the error.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// Result converts the error into a canonical ChatResult.
func (e *Error) Result() ChatResult {
	return ChatResult{ErrorKind: e.Kind, ErrorMessage: e.Message}
}
