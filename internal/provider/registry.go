// Package provider holds the fixed table of provider profiles: endpoint
// template, authentication scheme, request body builder and response parser
// for every supported upstream. Profiles are immutable after construction;
// adding a provider means adding one table entry.
package provider

import (
	"fmt"
	"net/http"
	"net/url"

	"quill-relay/internal/models"
	"quill-relay/internal/translator"
)

// EndpointConfig carries the server-side settings some endpoint templates
// need. Caller credentials are not part of it; they travel per call.
type EndpointConfig struct {
	VertexProject  string
	VertexLocation string
}

// Profile describes one upstream provider. Endpoint builds the target URL,
// ApplyAuth sets exactly one authentication scheme on the headers,
// BuildBody renders the wire payload and Parse normalizes the response.
type Profile struct {
	ID        string
	Endpoint  func(cfg EndpointConfig, model, credential string) (string, error)
	ApplyAuth func(h http.Header, credential string)
	BuildBody func(req models.ChatRequest) (any, error)
	Parse     translator.ParseFunc
}

// Registry resolves provider profiles by identifier.
type Registry struct {
	cfg      EndpointConfig
	profiles map[string]Profile
}

// NewRegistry builds the registry with the fixed provider set.
func NewRegistry(cfg EndpointConfig) *Registry {
	r := &Registry{
		cfg:      cfg,
		profiles: make(map[string]Profile),
	}
	for _, p := range buildProfiles() {
		r.profiles[p.ID] = p
	}
	return r
}

// Lookup returns the profile for a provider identifier.
func (r *Registry) Lookup(id string) (Profile, bool) {
	p, ok := r.profiles[id]
	return p, ok
}

// Endpoints returns the endpoint configuration profiles resolve against.
func (r *Registry) Endpoints() EndpointConfig {
	return r.cfg
}

// IDs lists the supported provider identifiers.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	return ids
}

func buildProfiles() []Profile {
	return []Profile{
		{
			ID: "gemini",
			Endpoint: func(_ EndpointConfig, model, credential string) (string, error) {
				return fmt.Sprintf(
					"https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s",
					url.PathEscape(model), url.QueryEscape(credential),
				), nil
			},
			ApplyAuth: keyInURLAuth,
			BuildBody: translator.BuildGeminiBody,
			Parse:     translator.ParseGemini,
		},
		{
			ID: "anthropic",
			Endpoint: func(_ EndpointConfig, _, _ string) (string, error) {
				return "https://api.anthropic.com/v1/messages", nil
			},
			ApplyAuth: func(h http.Header, credential string) {
				apiKeyAuth(h, credential)
				h.Set("anthropic-version", "2023-06-01")
			},
			BuildBody: translator.BuildAnthropicBody,
			Parse:     translator.ParseAnthropic,
		},
		{
			ID: "openrouter",
			Endpoint: func(_ EndpointConfig, _, _ string) (string, error) {
				return "https://openrouter.ai/api/v1/chat/completions", nil
			},
			ApplyAuth: func(h http.Header, credential string) {
				bearerAuth(h, credential)
				h.Set("HTTP-Referer", "https://quill-relay.local")
				h.Set("X-Title", "Quill Relay")
			},
			BuildBody: translator.BuildOpenAIBody,
			Parse:     translator.ParseOpenAI,
		},
		{
			ID: "fireworksai",
			Endpoint: func(_ EndpointConfig, _, _ string) (string, error) {
				return "https://api.fireworks.ai/inference/v1/chat/completions", nil
			},
			ApplyAuth: func(h http.Header, credential string) {
				bearerAuth(h, credential)
				h.Set("Accept", "application/json")
			},
			BuildBody: translator.BuildOpenAIBody,
			Parse:     translator.ParseOpenAI,
		},
		{
			ID: "mistralai",
			Endpoint: func(_ EndpointConfig, _, _ string) (string, error) {
				return "https://api.mistral.ai/v1/chat/completions", nil
			},
			ApplyAuth: func(h http.Header, credential string) {
				bearerAuth(h, credential)
				h.Set("Accept", "application/json")
			},
			BuildBody: translator.BuildOpenAIBody,
			Parse:     translator.ParseOpenAI,
		},
		{
			ID: "vertexai",
			Endpoint: func(cfg EndpointConfig, model, _ string) (string, error) {
				if cfg.VertexProject == "" {
					return "", models.NewError(models.KindServerMisconfigured,
						http.StatusInternalServerError,
						"vertex ai project id is not configured on the server")
				}
				location := cfg.VertexLocation
				if location == "" {
					location = "us-central1"
				}
				return fmt.Sprintf(
					"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
					location, url.PathEscape(cfg.VertexProject), location, url.PathEscape(model),
				), nil
			},
			ApplyAuth: bearerAuth,
			BuildBody: translator.BuildVertexBody,
			Parse:     translator.ParseVertex,
		},
		{
			ID: "cohere",
			Endpoint: func(_ EndpointConfig, _, _ string) (string, error) {
				return "https://api.cohere.ai/v1/chat", nil
			},
			ApplyAuth: func(h http.Header, credential string) {
				bearerAuth(h, credential)
				h.Set("cohere-version", "2022-12-06")
			},
			BuildBody: translator.BuildCohereBody,
			Parse:     translator.ParseCohere,
		},
	}
}

// Exactly one auth scheme per profile. Each setter removes the headers the
// other schemes would have set so a shared default can never leak through.

func bearerAuth(h http.Header, credential string) {
	h.Set("Authorization", "Bearer "+credential)
	h.Del("x-api-key")
}

func apiKeyAuth(h http.Header, credential string) {
	h.Set("x-api-key", credential)
	h.Del("Authorization")
}

func keyInURLAuth(h http.Header, _ string) {
	h.Del("Authorization")
	h.Del("x-api-key")
}
