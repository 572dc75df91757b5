package translator

import (
	"encoding/json"
	"strings"

	"quill-relay/internal/models"
)

// The predict endpoint wraps the conversation inside instances[0] and takes
// the model from the URL, not the body.

type vertexBody struct {
	Instances []vertexInstance `json:"instances"`
}

type vertexInstance struct {
	Messages []WireMessage `json:"messages"`
}

// BuildVertexBody renders the canonical request into the instances wrapper.
// If a system-role message is present it is moved to the front of the list;
// the move is stable and a no-op when it is already first.
func BuildVertexBody(req models.ChatRequest) (any, error) {
	return vertexBody{
		Instances: []vertexInstance{{Messages: moveSystemFirst(renderMessages(req, true))}},
	}, nil
}

// moveSystemFirst relocates the first system-role entry to index 0 without
// disturbing the relative order of everything else. Callers are expected to
// supply at most one system entry; extras are left where they are.
func moveSystemFirst(rendered []WireMessage) []WireMessage {
	for i, msg := range rendered {
		if msg.Role == "system" {
			if i > 0 {
				rendered = append(rendered[:i], rendered[i+1:]...)
				rendered = append([]WireMessage{msg}, rendered...)
			}
			break
		}
	}
	return rendered
}

type vertexResponse struct {
	Predictions []struct {
		SafetyAttributes struct {
			Blocked bool `json:"blocked"`
		} `json:"safetyAttributes"`
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
		Content      string `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"predictions"`
}

// ParseVertex normalizes a predict response, trying the candidate-nested
// content first and the flat prediction content second.
var ParseVertex = total(parseVertex)

func parseVertex(raw []byte) models.ChatResult {
	if msg, ok := ErrorMessageFromPayload(raw); ok {
		return models.ChatResult{ErrorKind: models.KindProviderError, ErrorMessage: msg}
	}

	var resp vertexResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return malformed(raw, "unexpected response structure")
	}

	var text, finish string
	if len(resp.Predictions) > 0 {
		prediction := resp.Predictions[0]
		if prediction.SafetyAttributes.Blocked {
			return models.ChatResult{ErrorKind: models.KindContentBlocked, ErrorMessage: "blocked by safety filters"}
		}

		if len(prediction.Candidates) > 0 {
			parts := make([]string, 0, len(prediction.Candidates[0].Content.Parts))
			for _, part := range prediction.Candidates[0].Content.Parts {
				parts = append(parts, part.Text)
			}
			text = strings.TrimSpace(strings.Join(parts, "\n"))
			finish = prediction.Candidates[0].FinishReason
		}
		if text == "" {
			text = strings.TrimSpace(prediction.Content)
		}
		if finish == "" {
			finish = prediction.FinishReason
		}
	}

	switch finish {
	case "", "STOP", "FINISH_REASON_UNSPECIFIED":
	case "MAX_TOKENS", "LENGTH":
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
