// Package server exposes the proxy over HTTP. Success on the wire is a
// transparent passthrough of the provider's JSON; normalization is a
// library concern offered on a separate endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"quill-relay/internal/config"
	"quill-relay/internal/models"
	"quill-relay/internal/router"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// Server wires the echo application around the dispatch service.
type Server struct {
	cfg     *config.Config
	svc     *router.Service
	app     *echo.Echo
	address string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg *config.Config, svc *router.Service) (*Server, error) {
	if svc == nil {
		return nil, errors.New("dispatch service must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(corsMiddleware(cfg.Server.AllowedOrigin))

	srv := &Server{
		cfg:     cfg,
		svc:     svc,
		app:     e,
		address: fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler returns the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("starting server", "addr", s.address)

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		grace := time.Duration(s.cfg.Server.ShutdownTimeoutSeconds) * time.Second
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.POST("/api/generate", s.handleGenerate)
	s.app.POST("/api/chat", s.handleChat)
}

// corsMiddleware answers preflights with 200 and advertises the POST
// contract plus the small custom header whitelist the frontend sends.
func corsMiddleware(allowedOrigin string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("Access-Control-Allow-Origin", allowedOrigin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Api-Key")

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleGenerate is the wire proxy: one upstream call, raw provider JSON
// back to the caller on success.
func (s *Server) handleGenerate(c echo.Context) error {
	req, err := decodeGenerateRequest(c)
	if err != nil {
		return err
	}

	upstream, dispatchErr := s.svc.Forward(c.Request().Context(), req)
	if dispatchErr != nil {
		return dispatchErr
	}

	return c.JSONBlob(http.StatusOK, upstream.Body)
}

// handleChat runs the same dispatch but returns the normalized canonical
// result; failure modes travel in-band as the result's error kind.
func (s *Server) handleChat(c echo.Context) error {
	req, err := decodeGenerateRequest(c)
	if err != nil {
		return err
	}

	result := s.svc.Dispatch(c.Request().Context(), req)
	return c.JSON(http.StatusOK, result)
}

type generatePayload struct {
	ProviderID   string           `json:"providerId"`
	ModelID      string           `json:"modelId"`
	Messages     []inboundMessage `json:"messages"`
	SystemPrompt string           `json:"systemPrompt"`
	APIKey       string           `json:"apiKey"`
}

type inboundMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func decodeGenerateRequest(c echo.Context) (models.ChatRequest, error) {
	httpReq := c.Request()
	defer httpReq.Body.Close()

	httpReq.Body = http.MaxBytesReader(c.Response(), httpReq.Body, maxBodyBytes)

	var payload generatePayload
	decoder := json.NewDecoder(httpReq.Body)
	if err := decoder.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return models.ChatRequest{}, badRequest("request body is required")
		}
		return models.ChatRequest{}, badRequest(fmt.Sprintf("invalid JSON request body: %v", err))
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return models.ChatRequest{}, badRequest("request body must contain a single JSON object")
	}

	if payload.ProviderID == "" || payload.ModelID == "" || payload.Messages == nil {
		return models.ChatRequest{}, badRequest(
			`missing or invalid parameters: "providerId", "modelId", and "messages" array are required`)
	}
	if payload.APIKey == "" {
		return models.ChatRequest{}, badRequest(
			fmt.Sprintf("API key for provider %q was not provided in the request", payload.ProviderID))
	}

	messages := make([]models.Message, 0, len(payload.Messages))
	for i, msg := range payload.Messages {
		role, err := mapInboundRole(msg.Role)
		if err != nil {
			return models.ChatRequest{}, badRequest(fmt.Sprintf("messages[%d]: %v", i, err))
		}
		messages = append(messages, models.Message{Role: role, Content: msg.Content})
	}

	return models.ChatRequest{
		Provider:     payload.ProviderID,
		Model:        payload.ModelID,
		Messages:     messages,
		SystemPrompt: payload.SystemPrompt,
		Credential:   payload.APIKey,
	}, nil
}

// mapInboundRole translates the caller-facing "ai" term at the boundary;
// nothing below the server ever sees it.
func mapInboundRole(role string) (models.Role, error) {
	switch role {
	case "user":
		return models.RoleUser, nil
	case "ai", "assistant":
		return models.RoleAssistant, nil
	default:
		return "", fmt.Errorf("unsupported role %q", role)
	}
}

func badRequest(message string) *models.Error {
	return models.NewError(models.KindBadRequest, http.StatusBadRequest, message)
}

type errorEnvelope struct {
	Error   errorBody `json:"error"`
	Details string    `json:"details,omitempty"`
}

type errorBody struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Status  string `json:"status"`
}

// errorHandler maps structured dispatch errors and echo's own HTTP errors
// onto the wire envelope.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var structured *models.Error
	if errors.As(err, &structured) {
		writeError(c, structured.HTTPStatus, structured.Message,
			strings.ToUpper(string(structured.Kind)), structured.Detail)
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		message := fmt.Sprintf("%v", httpErr.Message)
		writeError(c, httpErr.Code, message, statusLabel(httpErr.Code), "")
		return
	}

	slog.Error("unhandled server error", "error", err)
	writeError(c, http.StatusInternalServerError, "internal server error",
		statusLabel(http.StatusInternalServerError), "")
}

func writeError(c echo.Context, status int, message, label, details string) {
	envelope := errorEnvelope{Details: details}
	envelope.Error.Message = message
	envelope.Error.Code = status
	envelope.Error.Status = label
	_ = c.JSON(status, envelope)
}

func statusLabel(code int) string {
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(code), " ", "_"))
}
