package router

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"quill-relay/internal/models"
	"quill-relay/internal/provider"
)

// stubTransport serves canned responses without any network and records the
// requests it saw.
type stubTransport struct {
	status      int
	contentType string
	body        string
	err         error
	requests    []*http.Request
}

func (s *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	header := http.Header{}
	header.Set("Content-Type", s.contentType)
	return &http.Response{
		StatusCode: s.status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(s.body)),
		Request:    req,
	}, nil
}

func newService(cfg provider.EndpointConfig, transport *stubTransport) *Service {
	return New(provider.NewRegistry(cfg), &http.Client{Transport: transport})
}

func validRequest() models.ChatRequest {
	return models.ChatRequest{
		Provider:   "openrouter",
		Model:      "some/model",
		Messages:   []models.Message{{Role: models.RoleUser, Content: "hi"}},
		Credential: "sk-test",
	}
}

func TestForwardPreNetworkErrors(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*models.ChatRequest)
		cfg        provider.EndpointConfig
		wantKind   models.ErrorKind
		wantStatus int
	}{
		{
			name:       "missing provider",
			mutate:     func(r *models.ChatRequest) { r.Provider = " " },
			wantKind:   models.KindBadRequest,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing model",
			mutate:     func(r *models.ChatRequest) { r.Model = "" },
			wantKind:   models.KindBadRequest,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing messages",
			mutate:     func(r *models.ChatRequest) { r.Messages = nil },
			wantKind:   models.KindBadRequest,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing credential",
			mutate:     func(r *models.ChatRequest) { r.Credential = "" },
			wantKind:   models.KindBadRequest,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unsupported provider",
			mutate:     func(r *models.ChatRequest) { r.Provider = "chatgpt" },
			wantKind:   models.KindUnsupportedProvider,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "cohere without user message",
			mutate: func(r *models.ChatRequest) {
				r.Provider = "cohere"
				r.Messages = []models.Message{{Role: models.RoleAssistant, Content: "hello"}}
			},
			wantKind:   models.KindAdapterInputInvalid,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "vertex without project",
			mutate:     func(r *models.ChatRequest) { r.Provider = "vertexai" },
			wantKind:   models.KindServerMisconfigured,
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &stubTransport{status: 200, contentType: "application/json", body: "{}"}
			svc := newService(tt.cfg, transport)

			req := validRequest()
			tt.mutate(&req)

			upstream, err := svc.Forward(context.Background(), req)
			if upstream != nil || err == nil {
				t.Fatalf("Forward = (%v, %v), want structured error", upstream, err)
			}
			if err.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", err.Kind, tt.wantKind)
			}
			if err.HTTPStatus != tt.wantStatus {
				t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, tt.wantStatus)
			}
			if len(transport.requests) != 0 {
				t.Errorf("%d upstream calls made, want none", len(transport.requests))
			}
		})
	}
}

func TestForwardSuccess(t *testing.T) {
	payload := `{"choices":[{"message":{"content":"hello"},"finish_reason":"stop"}]}`
	transport := &stubTransport{status: 200, contentType: "application/json; charset=utf-8", body: payload}
	svc := newService(provider.EndpointConfig{}, transport)

	upstream, err := svc.Forward(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if upstream.StatusCode != 200 {
		t.Errorf("StatusCode = %d", upstream.StatusCode)
	}
	if string(upstream.Body) != payload {
		t.Errorf("Body = %s, want passthrough of upstream payload", upstream.Body)
	}

	if len(transport.requests) != 1 {
		t.Fatalf("%d upstream calls, want 1", len(transport.requests))
	}
	sent := transport.requests[0]
	if sent.Method != http.MethodPost {
		t.Errorf("method = %s", sent.Method)
	}
	if sent.URL.Host != "openrouter.ai" {
		t.Errorf("host = %s", sent.URL.Host)
	}
	if got := sent.Header.Get("Authorization"); got != "Bearer sk-test" {
		t.Errorf("Authorization = %q", got)
	}
	if got := sent.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestForwardUpstreamFailures(t *testing.T) {
	tests := []struct {
		name       string
		transport  *stubTransport
		wantKind   models.ErrorKind
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "provider error status with message shape",
			transport:  &stubTransport{status: 429, contentType: "application/json", body: `{"error":{"message":"rate limited"}}`},
			wantKind:   models.KindProviderHTTPError,
			wantStatus: 429,
			wantMsg:    "rate limited",
		},
		{
			name:       "provider error status without message shape",
			transport:  &stubTransport{status: 500, contentType: "application/json", body: `{"oops":true}`},
			wantKind:   models.KindProviderHTTPError,
			wantStatus: 500,
			wantMsg:    `{"oops":true}`,
		},
		{
			name:       "non-json content type",
			transport:  &stubTransport{status: 503, contentType: "text/html", body: "<html>down</html>"},
			wantKind:   models.KindUpstreamNonJSON,
			wantStatus: 503,
		},
		{
			name:       "non-json content type with ok status",
			transport:  &stubTransport{status: 200, contentType: "text/plain", body: "pong"},
			wantKind:   models.KindUpstreamNonJSON,
			wantStatus: 200,
		},
		{
			name:       "invalid json body",
			transport:  &stubTransport{status: 200, contentType: "application/json", body: `{"choices":`},
			wantKind:   models.KindUpstreamMalformedJSON,
			wantStatus: 200,
		},
		{
			name:       "transport failure",
			transport:  &stubTransport{err: errors.New("connection refused")},
			wantKind:   models.KindTransportFailure,
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(provider.EndpointConfig{}, tt.transport)

			upstream, err := svc.Forward(context.Background(), validRequest())
			if upstream != nil || err == nil {
				t.Fatalf("Forward = (%v, %v), want structured error", upstream, err)
			}
			if err.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", err.Kind, tt.wantKind)
			}
			if err.HTTPStatus != tt.wantStatus {
				t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, tt.wantStatus)
			}
			if tt.wantMsg != "" && err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
		})
	}
}

func TestDispatchNormalizes(t *testing.T) {
	t.Run("success with model fallback", func(t *testing.T) {
		transport := &stubTransport{
			status:      200,
			contentType: "application/json",
			body:        `{"choices":[{"message":{"content":"hello"},"finish_reason":"stop"}]}`,
		}
		svc := newService(provider.EndpointConfig{}, transport)

		result := svc.Dispatch(context.Background(), validRequest())
		if !result.OK() || result.Text != "hello" {
			t.Fatalf("result = %+v", result)
		}
		// No model in the response body: the requested model fills in.
		if result.ResolvedModel != "some/model" {
			t.Errorf("ResolvedModel = %q, want requested model", result.ResolvedModel)
		}
	})

	t.Run("dispatch error surfaces in-band", func(t *testing.T) {
		transport := &stubTransport{err: errors.New("connection refused")}
		svc := newService(provider.EndpointConfig{}, transport)

		result := svc.Dispatch(context.Background(), validRequest())
		if result.OK() {
			t.Fatalf("result = %+v, want error", result)
		}
		if result.ErrorKind != models.KindTransportFailure {
			t.Errorf("ErrorKind = %q", result.ErrorKind)
		}
	})

	t.Run("content block surfaces in-band", func(t *testing.T) {
		transport := &stubTransport{
			status:      200,
			contentType: "application/json",
			body:        `{"choices":[{"message":{"content":"x"},"finish_reason":"content_filter"}]}`,
		}
		svc := newService(provider.EndpointConfig{}, transport)

		result := svc.Dispatch(context.Background(), validRequest())
		if result.ErrorKind != models.KindContentBlocked {
			t.Errorf("ErrorKind = %q, want %q", result.ErrorKind, models.KindContentBlocked)
		}
	})
}

func TestForwardCancelledContext(t *testing.T) {
	transport := &stubTransport{status: 200, contentType: "application/json", body: "{}"}
	svc := newService(provider.EndpointConfig{}, transport)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Forward(ctx, validRequest())
	if err == nil || err.Kind != models.KindTransportFailure {
		t.Fatalf("err = %v, want transport failure on cancelled context", err)
	}
}

func TestMirrorStatus(t *testing.T) {
	if got := mirrorStatus(429, 502); got != 429 {
		t.Errorf("mirrorStatus(429) = %d", got)
	}
	if got := mirrorStatus(0, 502); got != 502 {
		t.Errorf("mirrorStatus(0) = %d", got)
	}
	if got := mirrorStatus(999, 500); got != 500 {
		t.Errorf("mirrorStatus(999) = %d", got)
	}
}
