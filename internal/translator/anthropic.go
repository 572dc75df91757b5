package translator

import (
	"encoding/json"
	"strings"

	"quill-relay/internal/models"
)

// defaultMaxTokens is supplied when the caller declares no generation cap;
// the messages endpoint rejects requests without one.
const defaultMaxTokens = 4096

type anthropicBody struct {
	Model     string        `json:"model"`
	System    string        `json:"system,omitempty"`
	Messages  []WireMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

// BuildAnthropicBody renders the canonical request into the messages
// format: the system prompt travels as a dedicated top-level field, not as
// a message.
func BuildAnthropicBody(req models.ChatRequest) (any, error) {
	return anthropicBody{
		Model:     req.Model,
		System:    req.SystemPrompt,
		Messages:  renderMessages(req, false),
		MaxTokens: defaultMaxTokens,
	}, nil
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// ParseAnthropic normalizes a messages-endpoint response: all text-typed
// content blocks concatenated in order.
var ParseAnthropic = total(parseAnthropic)

func parseAnthropic(raw []byte) models.ChatResult {
	if msg, ok := ErrorMessageFromPayload(raw); ok {
		return models.ChatResult{ErrorKind: models.KindProviderError, ErrorMessage: msg}
	}

	var resp anthropicResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return malformed(raw, "unexpected response structure")
	}

	blocks := make([]string, 0, len(resp.Content))
	for _, block := range resp.Content {
		if block.Type == "text" {
			blocks = append(blocks, block.Text)
		}
	}
	text := strings.TrimSpace(strings.Join(blocks, "\n"))

	switch resp.StopReason {
	case "", "end_turn", "stop_sequence":
	case "max_tokens":
		text += truncationMarker
	case "error":
		return models.ChatResult{ErrorKind: models.KindProviderError, ErrorMessage: "generation ended in an error stop"}
	default:
		if text == "" {
			return models.ChatResult{
				ErrorKind:    models.KindEmptyCompletion,
				ErrorMessage: "generation stopped unexpectedly: " + resp.StopReason,
			}
		}
	}

	return models.ChatResult{Text: text, ResolvedModel: resp.Model}
}
