// Package router implements the dispatch service: it resolves a provider
// profile, builds the wire request, performs exactly one upstream HTTP call
// and classifies the outcome. No retries, no queueing; retry policy belongs
// to callers so provider quota behavior stays predictable.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"quill-relay/internal/models"
	"quill-relay/internal/provider"
	"quill-relay/internal/translator"
)

const (
	contentTypeJSON  = "application/json"
	userAgent        = "quill-relay/0.1"
	maxUpstreamBytes = 10 << 20 // 10 MiB
	maxSnippetLen    = 200
)

// Upstream is a successfully fetched provider response: validated JSON body
// plus the upstream HTTP status. The wire proxy passes Body through
// unmodified.
type Upstream struct {
	StatusCode int
	Body       []byte
}

// Service dispatches canonical chat requests to upstream providers. It
// holds no mutable state and is safe for concurrent use.
type Service struct {
	registry *provider.Registry
	client   *http.Client
	logger   *slog.Logger
}

// New constructs a dispatch service backed by the provided registry and
// HTTP client.
func New(registry *provider.Registry, client *http.Client) *Service {
	return &Service{
		registry: registry,
		client:   client,
		logger:   slog.Default(),
	}
}

// Forward validates the request, performs the single upstream call and
// returns the raw provider response. All failures come back as a structured
// *models.Error; adapter and request-shape errors are returned before any
// network traffic.
func (s *Service) Forward(ctx context.Context, req models.ChatRequest) (*Upstream, *models.Error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	profile, ok := s.registry.Lookup(req.Provider)
	if !ok {
		return nil, models.NewError(models.KindUnsupportedProvider, http.StatusBadRequest,
			fmt.Sprintf("provider %q is not supported", req.Provider))
	}

	endpoint, err := profile.Endpoint(s.registry.Endpoints(), req.Model, req.Credential)
	if err != nil {
		return nil, asDispatchError(err, models.KindServerMisconfigured, http.StatusInternalServerError)
	}

	body, err := profile.BuildBody(req)
	if err != nil {
		return nil, asDispatchError(err, models.KindAdapterInputInvalid, http.StatusBadRequest)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, models.NewError(models.KindAdapterInputInvalid, http.StatusBadRequest,
			fmt.Sprintf("marshal %s request body: %v", req.Provider, err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, models.NewError(models.KindTransportFailure, http.StatusInternalServerError,
			fmt.Sprintf("construct %s request: %v", req.Provider, err))
	}
	httpReq.Header.Set("Content-Type", contentTypeJSON)
	httpReq.Header.Set("User-Agent", userAgent)
	profile.ApplyAuth(httpReq.Header, req.Credential)

	s.logger.Debug("forwarding request",
		"provider", req.Provider,
		"model", req.Model,
		"body_bytes", len(payload),
	)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, models.NewError(models.KindTransportFailure, http.StatusInternalServerError,
			fmt.Sprintf("contacting the %s service failed: %v", req.Provider, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBytes))
	if err != nil {
		return nil, models.NewError(models.KindTransportFailure, http.StatusInternalServerError,
			fmt.Sprintf("reading the %s response failed: %v", req.Provider, err))
	}

	return s.classify(req.Provider, resp, raw)
}

// classify turns the raw transport outcome into an Upstream or a
// structured error, mirroring the upstream status when it is numerically
// valid.
func (s *Service) classify(providerID string, resp *http.Response, raw []byte) (*Upstream, *models.Error) {
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, contentTypeJSON) {
		s.logger.Warn("non-json upstream response",
			"provider", providerID,
			"status", resp.StatusCode,
			"content_type", contentType,
		)
		e := models.NewError(models.KindUpstreamNonJSON, mirrorStatus(resp.StatusCode, http.StatusBadGateway),
			fmt.Sprintf("received a non-JSON response from the %s API", providerID))
		return nil, e.WithDetail(fmt.Sprintf("status %d, content-type %q: %s",
			resp.StatusCode, contentType, snippet(raw)))
	}

	if !json.Valid(raw) {
		e := models.NewError(models.KindUpstreamMalformedJSON, mirrorStatus(resp.StatusCode, http.StatusBadGateway),
			fmt.Sprintf("received an invalid JSON response from the %s API", providerID))
		return nil, e.WithDetail(fmt.Sprintf("status %d: %s", resp.StatusCode, snippet(raw)))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message, ok := translator.ErrorMessageFromPayload(raw)
		if !ok {
			message = snippet(raw)
		}
		s.logger.Warn("upstream error response",
			"provider", providerID,
			"status", resp.StatusCode,
		)
		return nil, models.NewError(models.KindProviderHTTPError,
			mirrorStatus(resp.StatusCode, http.StatusInternalServerError), message)
	}

	s.logger.Info("upstream request succeeded",
		"provider", providerID,
		"status", resp.StatusCode,
		"body_bytes", len(raw),
	)
	return &Upstream{StatusCode: resp.StatusCode, Body: raw}, nil
}

// Dispatch performs Forward and normalizes the fetched response into a
// canonical result. It never returns an error: every failure mode surfaces
// in the result's error kind.
func (s *Service) Dispatch(ctx context.Context, req models.ChatRequest) models.ChatResult {
	upstream, dispatchErr := s.Forward(ctx, req)
	if dispatchErr != nil {
		return dispatchErr.Result()
	}

	profile, _ := s.registry.Lookup(req.Provider)
	result := profile.Parse(upstream.Body)
	if result.OK() && result.ResolvedModel == "" {
		result.ResolvedModel = req.Model
	}
	return result
}

func validate(req models.ChatRequest) *models.Error {
	switch {
	case strings.TrimSpace(req.Provider) == "":
		return models.NewError(models.KindBadRequest, http.StatusBadRequest, "providerId is required")
	case strings.TrimSpace(req.Model) == "":
		return models.NewError(models.KindBadRequest, http.StatusBadRequest, "modelId is required")
	case req.Messages == nil:
		return models.NewError(models.KindBadRequest, http.StatusBadRequest, "messages array is required")
	case req.Credential == "":
		return models.NewError(models.KindBadRequest, http.StatusBadRequest,
			fmt.Sprintf("API key for provider %q was not provided in the request", req.Provider))
	}
	return nil
}

// asDispatchError preserves structured errors from lower layers and wraps
// anything else with the given kind and status.
func asDispatchError(err error, kind models.ErrorKind, status int) *models.Error {
	var structured *models.Error
	if errors.As(err, &structured) {
		return structured
	}
	return models.NewError(kind, status, err.Error())
}

func mirrorStatus(status, fallback int) int {
	if status >= 100 && status < 600 {
		return status
	}
	return fallback
}

func snippet(raw []byte) string {
	if len(raw) > maxSnippetLen {
		return string(raw[:maxSnippetLen])
	}
	return string(raw)
}
