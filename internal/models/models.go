// Package models contains the canonical chat types shared by every layer.
// Provider-specific role terms and payload shapes never leak above the
// translator; everything here is provider-agnostic.
package models

// Role identifies who authored a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn of a conversation. Order across a slice of
// messages is semantically significant.
type Message struct {
	Role    Role
	Content string
}

// ChatRequest is the canonical representation of a generation request.
// Credential is opaque to the adaptation layer: it is supplied per call,
// forwarded upstream, and never logged or persisted.
type ChatRequest struct {
	Provider     string
	Model        string
	Messages     []Message
	SystemPrompt string
	Credential   string
}

// ChatResult is the canonical outcome of a dispatch. Either Text carries
// the generated content or ErrorKind is set; a successful empty Text with
// no error is also valid (some providers end a turn with no text payload).
type ChatResult struct {
	Text          string    `json:"text"`
	ResolvedModel string    `json:"resolvedModel,omitempty"`
	ErrorKind     ErrorKind `json:"errorKind,omitempty"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
}

// OK reports whether the result carries no error.
func (r ChatResult) OK() bool {
	return r.ErrorKind == ""
}
