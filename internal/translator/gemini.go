package translator

import (
	"encoding/json"
	"log/slog"
	"strings"

	"quill-relay/internal/models"
)

// Gemini generateContent requires strictly alternating user/model turns.
// Consecutive same-role messages are merged into a single turn.

type geminiBody struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

// BuildGeminiBody renders the canonical request into the Gemini contents
// format, merging adjacent same-role turns with a blank-line separator.
// The contents array has no system role; a system prompt cannot be
// attached without corrupting turn order, so it is skipped with a warning.
func BuildGeminiBody(req models.ChatRequest) (any, error) {
	if req.SystemPrompt != "" {
		slog.Warn("system prompt is not expressible in gemini contents, skipping",
			"provider", req.Provider,
		)
	}

	var contents []geminiContent
	currentRole := ""
	currentText := ""

	flush := func() {
		if currentRole != "" && currentText != "" {
			contents = append(contents, geminiContent{
				Role:  currentRole,
				Parts: []geminiPart{{Text: currentText}},
			})
		}
	}

	for _, msg := range req.Messages {
		role := "user"
		if msg.Role == models.RoleAssistant {
			role = "model"
		}
		if role == currentRole {
			currentText += "\n\n" + msg.Content
			continue
		}
		flush()
		currentRole = role
		currentText = msg.Content
	}
	flush()

	return geminiBody{Contents: contents}, nil
}

type geminiResponse struct {
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// ParseGemini normalizes a Gemini generateContent response.
var ParseGemini = total(parseGemini)

func parseGemini(raw []byte) models.ChatResult {
	if msg, ok := ErrorMessageFromPayload(raw); ok {
		return models.ChatResult{ErrorKind: models.KindProviderError, ErrorMessage: msg}
	}

	var resp geminiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return malformed(raw, "unexpected response structure")
	}

	if reason := resp.PromptFeedback.BlockReason; reason != "" {
		return models.ChatResult{
			ErrorKind:    models.KindContentBlocked,
			ErrorMessage: "blocked by safety filters: " + reason,
		}
	}

	var text, finish string
	if len(resp.Candidates) > 0 {
		parts := make([]string, 0, len(resp.Candidates[0].Content.Parts))
		for _, part := range resp.Candidates[0].Content.Parts {
			parts = append(parts, part.Text)
		}
		text = strings.TrimSpace(strings.Join(parts, "\n"))
		finish = resp.Candidates[0].FinishReason
	}

	switch finish {
	case "", "STOP":
	case "MAX_TOKENS":
		text += truncationMarker
	case "SAFETY":
		return models.ChatResult{ErrorKind: models.KindContentBlocked, ErrorMessage: "stopped by safety settings"}
	default:
		if text == "" {
			return models.ChatResult{
				ErrorKind:    models.KindEmptyCompletion,
				ErrorMessage: "generation stopped unexpectedly: " + finish,
			}
		}
	}

	return models.ChatResult{Text: text}
}
