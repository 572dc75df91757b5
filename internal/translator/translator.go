// Package translator converts canonical chat requests into provider wire
// bodies and normalizes provider responses back into canonical results.
// Everything in this package is a pure function over its inputs: no I/O,
// no shared state. Provider role terms exist only below this boundary.
package translator

import (
	"encoding/json"
	"fmt"

	"quill-relay/internal/models"
)

// truncationMarker is appended to content when the provider stopped at a
// token cap. The frontend renders it verbatim.
const truncationMarker = "\n\n*(Truncated)*"

// maxSnippetLen bounds raw payload excerpts carried in diagnostics.
const maxSnippetLen = 200

// WireMessage is the role/content pair used by the OpenAI-compatible,
// separate-system-field and instance-wrapped families.
type WireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ParseFunc normalizes a provider's raw JSON response. Implementations are
// total: any input, however malformed, yields a ChatResult.
type ParseFunc func(raw []byte) models.ChatResult

// total wraps a parser so that a structural fault escaping the typed
// extraction surfaces as MalformedResponse instead of a panic. Responses
// are untrusted external data; they degrade to a diagnostic, never crash
// the caller.
func total(inner ParseFunc) ParseFunc {
	return func(raw []byte) (res models.ChatResult) {
		defer func() {
			if r := recover(); r != nil {
				res = malformed(raw, fmt.Sprintf("parser fault: %v", r))
			}
		}()
		return inner(raw)
	}
}

// malformed builds a MalformedResponse result carrying a bounded excerpt of
// the raw payload.
func malformed(raw []byte, reason string) models.ChatResult {
	return models.ChatResult{
		ErrorKind:    models.KindMalformedResponse,
		ErrorMessage: fmt.Sprintf("%s; payload: %s", reason, snippet(raw)),
	}
}

func snippet(raw []byte) string {
	if len(raw) > maxSnippetLen {
		return string(raw[:maxSnippetLen])
	}
	return string(raw)
}

// ErrorMessageFromPayload searches a JSON payload for an error message in
// the shapes the supported providers use: a nested error.error.message, an
// error object with a message, a bare error string, a detail field, or a
// bare message field. The most specific match wins.
func ErrorMessageFromPayload(raw []byte) (string, bool) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", false
	}

	switch errVal := payload["error"].(type) {
	case map[string]any:
		if inner, ok := errVal["error"].(map[string]any); ok {
			if msg, ok := inner["message"].(string); ok && msg != "" {
				return msg, true
			}
		}
		if msg, ok := errVal["message"].(string); ok && msg != "" {
			return msg, true
		}
		// An error object without a usable message is still an error.
		if encoded, err := json.Marshal(errVal); err == nil {
			return string(encoded), true
		}
	case string:
		if errVal != "" {
			return errVal, true
		}
	}

	if msg, ok := payload["detail"].(string); ok && msg != "" {
		return msg, true
	}
	if msg, ok := payload["message"].(string); ok && msg != "" {
		return msg, true
	}
	return "", false
}

// renderMessages maps canonical messages onto wire terms, optionally
// prepending the system prompt as a system-role message. Order and count
// are preserved.
func renderMessages(req models.ChatRequest, includeSystem bool) []WireMessage {
	rendered := make([]WireMessage, 0, len(req.Messages)+1)
	if includeSystem && req.SystemPrompt != "" {
		rendered = append(rendered, WireMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, msg := range req.Messages {
		rendered = append(rendered, WireMessage{Role: string(msg.Role), Content: msg.Content})
	}
	return rendered
}

func adapterError(message string) *models.Error {
	return models.NewError(models.KindAdapterInputInvalid, 400, message)
}
