package translator

import (
	"encoding/json"
	"strings"

	"quill-relay/internal/models"
)

// openAIBody is the {model, messages} shape shared by OpenRouter,
// Fireworks, Mistral and any other OpenAI-compatible provider.
type openAIBody struct {
	Model    string        `json:"model"`
	Messages []WireMessage `json:"messages"`
}

// BuildOpenAIBody renders the canonical request into the OpenAI-compatible
// wire format: system prompt first (when present), then the conversation
// with canonical role terms. This is also the fallback for unrecognized
// providers.
func BuildOpenAIBody(req models.ChatRequest) (any, error) {
	return openAIBody{
		Model:    req.Model,
		Messages: renderMessages(req, true),
	}, nil
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// ParseOpenAI normalizes an OpenAI-compatible chat completion response.
var ParseOpenAI = total(parseOpenAI)

func parseOpenAI(raw []byte) models.ChatResult {
	if msg, ok := ErrorMessageFromPayload(raw); ok {
		return models.ChatResult{ErrorKind: models.KindProviderError, ErrorMessage: msg}
	}

	var resp openAIResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return malformed(raw, "unexpected response structure")
	}

	var text, finish string
	if len(resp.Choices) > 0 {
		text = strings.TrimSpace(resp.Choices[0].Message.Content)
		finish = resp.Choices[0].FinishReason
	}

	switch finish {
	case "", "stop":
	case "length", "max_tokens":
		text += truncationMarker
	case "content_filter":
		return models.ChatResult{ErrorKind: models.KindContentBlocked, ErrorMessage: "stopped by content filter"}
	default:
		if text == "" {
			return models.ChatResult{
				ErrorKind:    models.KindEmptyCompletion,
				ErrorMessage: "generation stopped unexpectedly: " + finish,
			}
		}
	}

	return models.ChatResult{Text: text, ResolvedModel: resp.Model}
}
