package translator

import (
	"encoding/json"
	"strings"

	"quill-relay/internal/models"
)

// The v1 chat endpoint separates the latest user input from everything
// before it: a standalone message field plus a chat_history list whose
// entries use upper-cased three-way role terms.

type cohereBody struct {
	Message     string       `json:"message"`
	ChatHistory []cohereTurn `json:"chat_history,omitempty"`
}

type cohereTurn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// BuildCohereBody renders the canonical request into the message-plus-
// history format. The last user-role message becomes the current input;
// everything strictly before it becomes history. A sequence with no user
// message, or a blank final user message, cannot be expressed.
func BuildCohereBody(req models.ChatRequest) (any, error) {
	rendered := renderMessages(req, true)

	lastUser := -1
	for i, msg := range rendered {
		if msg.Role == "user" {
			lastUser = i
		}
	}
	if lastUser == -1 {
		return nil, adapterError("at least one user message required")
	}
	if strings.TrimSpace(rendered[lastUser].Content) == "" {
		return nil, adapterError("final user message must not be empty")
	}

	history := make([]cohereTurn, 0, lastUser)
	for _, msg := range rendered[:lastUser] {
		role := strings.ToUpper(msg.Role)
		if msg.Role == "assistant" {
			role = "CHATBOT"
		}
		history = append(history, cohereTurn{Role: role, Message: msg.Content})
	}

	return cohereBody{
		Message:     rendered[lastUser].Content,
		ChatHistory: history,
	}, nil
}

type cohereResponse struct {
	Text        string `json:"text"`
	ChatHistory []struct {
		Role    string `json:"role"`
		Message string `json:"message"`
	} `json:"chat_history"`
	FinishReason string `json:"finish_reason"`
}

// ParseCohere normalizes a v1 chat response: the generated turn is the last
// CHATBOT entry of the returned history, with the top-level text field as a
// fallback.
var ParseCohere = total(parseCohere)

func parseCohere(raw []byte) models.ChatResult {
	if msg, ok := ErrorMessageFromPayload(raw); ok {
		return models.ChatResult{ErrorKind: models.KindProviderError, ErrorMessage: msg}
	}

	var resp cohereResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return malformed(raw, "unexpected response structure")
	}

	var text string
	if n := len(resp.ChatHistory); n > 0 {
		last := resp.ChatHistory[n-1]
		switch strings.ToUpper(last.Role) {
		case "CHATBOT", "ASSISTANT":
			text = strings.TrimSpace(last.Message)
		}
	}
	if text == "" {
		text = strings.TrimSpace(resp.Text)
	}

	switch resp.FinishReason {
	case "", "COMPLETE", "STOP_SEQUENCE":
	case "MAX_TOKENS":
		text += truncationMarker
	case "ERROR_TOXIC":
		return models.ChatResult{ErrorKind: models.KindContentBlocked, ErrorMessage: "stopped by toxicity filter"}
	default:
		if text == "" {
			return models.ChatResult{
				ErrorKind:    models.KindEmptyCompletion,
				ErrorMessage: "generation stopped unexpectedly: " + resp.FinishReason,
			}
		}
	}

	return models.ChatResult{Text: text}
}
