package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"quill-relay/internal/config"
	"quill-relay/internal/provider"
	"quill-relay/internal/router"
	"quill-relay/internal/server"
)

const serveUsage = `Usage:
  quill-relay serve [--config <path>] [--port <port>]

Flags:
  --config string   Path to YAML configuration file (optional, env vars work without one)
  --port   int      Override server port from configuration`

func serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, serveUsage)
	}

	var cfgPath string
	var overridePort int
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.IntVar(&overridePort, "port", 0, "override server port")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse serve flags: %w", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if overridePort != 0 {
		if overridePort <= 0 || overridePort > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
		}
		cfg.Server.Port = overridePort
	}

	setupLogger(cfg.Logging.Level)

	registry := provider.NewRegistry(provider.EndpointConfig{
		VertexProject:  cfg.VertexAI.ProjectID,
		VertexLocation: cfg.VertexAI.Location,
	})

	svc := router.New(registry, router.NewHTTPClient(cfg.Upstream.Timeout()))

	srv, err := server.New(cfg, svc)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}

// setupLogger installs a JSON slog handler at the configured level.
func setupLogger(level string) {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
